package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// TemplateRepository handles workflow template files.
type TemplateRepository struct {
	store *store
}

func (r *TemplateRepository) GetAll(_ context.Context) ([]*models.WorkflowTemplate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(templatesDir)
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(ids))

	for _, id := range ids {
		var template models.WorkflowTemplate

		found, err := r.store.read(templatesDir, id, &template)
		if err != nil {
			return nil, err
		}

		if found {
			templates = append(templates, &template)
		}
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Label < templates[j].Label
	})

	return templates, nil
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var template models.WorkflowTemplate

	found, err := r.store.read(templatesDir, id, &template)
	if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
	}

	return &template, nil
}

func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if template.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		template.ID = id
	}

	err := r.checkInUse(template)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	for _, state := range template.States {
		state.TemplateID = template.ID
	}

	for _, transition := range template.Transitions {
		transition.TemplateID = template.ID
	}

	return r.store.write(templatesDir, template.ID, template)
}

func (r *TemplateRepository) checkInUse(template *models.WorkflowTemplate) error {
	instances, err := loadInstances(r.store, func(instance *models.WorkflowInstance) bool {
		return instance.TemplateID == template.ID
	})
	if err != nil {
		return err
	}

	var stateIDs, transitionIDs []string

	for _, instance := range instances {
		if !instance.Unstarted() {
			stateIDs = append(stateIDs, *instance.CurrentStateID)
		}

		entries, err := readLog(r.store, instance.ID)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			transitionIDs = append(transitionIDs, entry.TransitionID)
		}
	}

	return persistence.CheckGraphInUse(template, stateIDs, transitionIDs)
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	instances, err := loadInstances(r.store, func(instance *models.WorkflowInstance) bool {
		return instance.TemplateID == id
	})
	if err != nil {
		return err
	}

	if len(instances) > 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateInUse)
	}

	return r.store.remove(templatesDir, id)
}
