package file

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// InstanceRepository handles workflow instances and their logs.
type InstanceRepository struct {
	store *store
}

func loadInstances(s *store, match func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	ids, err := s.ids(instancesDir)
	if err != nil {
		return nil, err
	}

	instances := make([]*models.WorkflowInstance, 0)

	for _, id := range ids {
		var instance models.WorkflowInstance

		found, err := s.read(instancesDir, id, &instance)
		if err != nil {
			return nil, err
		}

		if found && match(&instance) {
			instances = append(instances, &instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	return instances, nil
}

func (r *InstanceRepository) Create(_ context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := loadInstances(r.store, func(other *models.WorkflowInstance) bool {
		return other.DocumentID == instance.DocumentID && other.TemplateID == instance.TemplateID
	})
	if err != nil {
		return err
	}

	if len(existing) > 0 {
		return persistence.NewDocumentInstanceError("Create", instance.DocumentID, persistence.ErrInstanceAlreadyExists)
	}

	if instance.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		instance.ID = id
	}

	now := time.Now().UTC()
	instance.CreatedAt = now
	instance.UpdatedAt = now
	instance.Version = 1

	if instance.Context == nil {
		instance.Context = map[string]any{}
	}

	return r.store.write(instancesDir, instance.ID, instance)
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var instance models.WorkflowInstance

	found, err := r.store.read(instancesDir, id, &instance)
	if err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
	}

	return &instance, nil
}

func (r *InstanceRepository) GetByDocument(_ context.Context, documentID string) ([]*models.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return loadInstances(r.store, func(instance *models.WorkflowInstance) bool {
		return instance.DocumentID == documentID
	})
}

func (r *InstanceRepository) GetByState(_ context.Context, templateID, stateID string) ([]*models.WorkflowInstance, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return loadInstances(r.store, func(instance *models.WorkflowInstance) bool {
		return instance.TemplateID == templateID &&
			instance.CurrentStateID != nil && *instance.CurrentStateID == stateID
	})
}

func (r *InstanceRepository) Update(_ context.Context, instance *models.WorkflowInstance) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.checkVersion("Update", instance)
	if err != nil {
		return err
	}

	return r.writeInstance(instance)
}

func (r *InstanceRepository) CommitTransition(
	_ context.Context,
	instance *models.WorkflowInstance,
	entry *models.LogEntry,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.checkVersion("CommitTransition", instance)
	if err != nil {
		return err
	}

	entries, err := readLog(r.store, instance.ID)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		entry.ID = id
	}

	entry.InstanceID = instance.ID
	entry.Sequence = int64(len(entries)) + 1

	// The log is written first: a crash before the instance write is repaired by replaying it.
	err = r.store.write(logEntriesDir, instance.ID, append(entries, entry))
	if err != nil {
		return err
	}

	return r.writeInstance(instance)
}

func (r *InstanceRepository) LogEntries(_ context.Context, instanceID string) ([]*models.LogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return readLog(r.store, instanceID)
}

func (r *InstanceRepository) LastLogEntry(_ context.Context, instanceID string) (*models.LogEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entries, err := readLog(r.store, instanceID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}

	return entries[len(entries)-1], nil
}

func readLog(s *store, instanceID string) ([]*models.LogEntry, error) {
	entries := make([]*models.LogEntry, 0)

	_, err := s.read(logEntriesDir, instanceID, &entries)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Datetime.Equal(entries[j].Datetime) {
			return entries[i].Sequence < entries[j].Sequence
		}

		return entries[i].Datetime.Before(entries[j].Datetime)
	})

	return entries, nil
}

func (r *InstanceRepository) checkVersion(op string, instance *models.WorkflowInstance) error {
	var stored models.WorkflowInstance

	found, err := r.store.read(instancesDir, instance.ID, &stored)
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	if !found {
		return persistence.NewInstanceError(op, instance.ID, persistence.ErrInstanceNotFound)
	}

	if stored.Version != instance.Version {
		return persistence.NewInstanceError(op, instance.ID, persistence.ErrConcurrentModification)
	}

	return nil
}

func (r *InstanceRepository) writeInstance(instance *models.WorkflowInstance) error {
	instance.Version++
	instance.UpdatedAt = time.Now().UTC()

	err := r.store.write(instancesDir, instance.ID, instance)
	if err != nil {
		instance.Version--

		return err
	}

	return nil
}
