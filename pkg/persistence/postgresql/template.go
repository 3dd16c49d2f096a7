package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/persistence"
)

// TemplateRepository handles workflow template database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectTemplates = `
	SELECT
		id
	  , label
	  , internal_name
	  , auto_launch
	  , ignore_completed
	  , document_type_ids
	  , created_at
	  , updated_at
	FROM workflow_templates
`

type scanner interface {
	Scan(dest ...any) error
}

func (r *TemplateRepository) GetAll(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	rows, err := r.db.QueryContext(ctx, selectTemplates+" ORDER BY label")
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow templates: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow templates: %w", err)
	}

	for _, template := range templates {
		err = r.loadGraph(ctx, template)
		if err != nil {
			return nil, err
		}
	}

	return templates, nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	template, err := scanTemplate(r.db.QueryRowContext(ctx, selectTemplates+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTemplateError("GetByID", id, persistence.ErrTemplateNotFound)
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	err = r.loadGraph(ctx, template)
	if err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	return template, nil
}

func scanTemplate(row scanner) (*models.WorkflowTemplate, error) {
	var (
		template        models.WorkflowTemplate
		documentTypeIDs []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Label,
		&template.InternalName,
		&template.AutoLaunch,
		&template.IgnoreCompleted,
		&documentTypeIDs,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workflow template: %w", err)
	}

	err = json.Unmarshal(documentTypeIDs, &template.DocumentTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal document types: %w", err)
	}

	return &template, nil
}

func (r *TemplateRepository) loadGraph(ctx context.Context, template *models.WorkflowTemplate) error {
	states, err := r.loadStates(ctx, template.ID)
	if err != nil {
		return err
	}

	transitions, err := r.loadTransitions(ctx, template.ID)
	if err != nil {
		return err
	}

	template.States = states
	template.Transitions = transitions

	return nil
}

func (r *TemplateRepository) loadStates(ctx context.Context, templateID string) ([]*models.State, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, initial, final, completion, actions, escalations
		FROM workflow_states
		WHERE template_id = $1
		ORDER BY position
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow states: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	states := make([]*models.State, 0)

	for rows.Next() {
		var (
			state                models.State
			actions, escalations []byte
		)

		err = rows.Scan(&state.ID, &state.Label, &state.Initial, &state.Final, &state.Completion, &actions, &escalations)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow state: %w", err)
		}

		state.TemplateID = templateID

		err = json.Unmarshal(actions, &state.Actions)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal actions of state %s: %w", state.ID, err)
		}

		err = json.Unmarshal(escalations, &state.Escalations)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal escalations of state %s: %w", state.ID, err)
		}

		states = append(states, &state)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow states: %w", err)
	}

	return states, nil
}

func (r *TemplateRepository) loadTransitions(ctx context.Context, templateID string) ([]*models.Transition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, origin_state_id, destination_state_id, condition, permission, fields
		FROM workflow_transitions
		WHERE template_id = $1
		ORDER BY position
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow transitions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	transitions := make([]*models.Transition, 0)

	for rows.Next() {
		var (
			transition models.Transition
			condition  []byte
			fields     []byte
		)

		err = rows.Scan(
			&transition.ID,
			&transition.Label,
			&transition.OriginStateID,
			&transition.DestinationStateID,
			&condition,
			&transition.Permission,
			&fields,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow transition: %w", err)
		}

		transition.TemplateID = templateID

		if len(condition) > 0 {
			err = json.Unmarshal(condition, &transition.Condition)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal condition of transition %s: %w", transition.ID, err)
			}
		}

		err = json.Unmarshal(fields, &transition.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of transition %s: %w", transition.ID, err)
		}

		transitions = append(transitions, &transition)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow transitions: %w", err)
	}

	return transitions, nil
}

// Save upserts the template and replaces its states and transitions.
func (r *TemplateRepository) Save(ctx context.Context, template *models.WorkflowTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		template.ID = id
	}

	documentTypeIDs := template.DocumentTypeIDs
	if documentTypeIDs == nil {
		documentTypeIDs = []string{}
	}

	documentTypesJSON, err := json.Marshal(documentTypeIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal document types: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = checkInUse(ctx, tx, template)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflow_templates (id, label, internal_name, auto_launch, ignore_completed,
			document_type_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			label = EXCLUDED.label,
			internal_name = EXCLUDED.internal_name,
			auto_launch = EXCLUDED.auto_launch,
			ignore_completed = EXCLUDED.ignore_completed,
			document_type_ids = EXCLUDED.document_type_ids,
			updated_at = EXCLUDED.updated_at
	`,
		template.ID,
		template.Label,
		template.InternalName,
		template.AutoLaunch,
		template.IgnoreCompleted,
		documentTypesJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow template: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_transitions WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing transitions: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_states WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing states: %w", err)
	}

	err = saveStates(ctx, tx, template)
	if err != nil {
		return err
	}

	err = saveTransitions(ctx, tx, template)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow template: %w", err)
	}

	return nil
}

// checkInUse share-locks the template's instances so no transition commits while the graph is replaced.
func checkInUse(ctx context.Context, tx *sql.Tx, template *models.WorkflowTemplate) error {
	stateIDs, err := queryIDs(ctx, tx, `
		SELECT current_state_id
		FROM workflow_instances
		WHERE template_id = $1 AND current_state_id IS NOT NULL
		FOR SHARE
	`, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query instance states: %w", err)
	}

	transitionIDs, err := queryIDs(ctx, tx, `
		SELECT DISTINCT l.transition_id
		FROM workflow_instance_log_entries l
		JOIN workflow_instances i ON i.id = l.instance_id
		WHERE i.template_id = $1
	`, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query logged transitions: %w", err)
	}

	return persistence.CheckGraphInUse(template, stateIDs, transitionIDs)
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)

	for rows.Next() {
		var id string

		err = rows.Scan(&id)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func saveStates(ctx context.Context, tx *sql.Tx, template *models.WorkflowTemplate) error {
	for position, state := range template.States {
		state.TemplateID = template.ID

		actions := state.Actions
		if actions == nil {
			actions = []*models.StateAction{}
		}

		actionsJSON, err := json.Marshal(actions)
		if err != nil {
			return fmt.Errorf("failed to marshal actions of state %s: %w", state.ID, err)
		}

		escalations := state.Escalations
		if escalations == nil {
			escalations = []*models.Escalation{}
		}

		escalationsJSON, err := json.Marshal(escalations)
		if err != nil {
			return fmt.Errorf("failed to marshal escalations of state %s: %w", state.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_states (template_id, id, position, label, initial, final, completion, actions, escalations)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, template.ID, state.ID, position, state.Label, state.Initial, state.Final, state.Completion,
			actionsJSON, escalationsJSON)
		if err != nil {
			return fmt.Errorf("failed to save state %s: %w", state.ID, err)
		}
	}

	return nil
}

func saveTransitions(ctx context.Context, tx *sql.Tx, template *models.WorkflowTemplate) error {
	for position, transition := range template.Transitions {
		transition.TemplateID = template.ID

		var conditionJSON any

		if transition.Condition != nil {
			encoded, err := json.Marshal(transition.Condition)
			if err != nil {
				return fmt.Errorf("failed to marshal condition of transition %s: %w", transition.ID, err)
			}

			conditionJSON = string(encoded)
		}

		fields := transition.Fields
		if fields == nil {
			fields = []*models.TransitionField{}
		}

		fieldsJSON, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields of transition %s: %w", transition.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_transitions (template_id, id, position, label, origin_state_id,
				destination_state_id, condition, permission, fields)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, template.ID, transition.ID, position, transition.Label, transition.OriginStateID,
			transition.DestinationStateID, conditionJSON, transition.Permission, fieldsJSON)
		if err != nil {
			return fmt.Errorf("failed to save transition %s: %w", transition.ID, err)
		}
	}

	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	var instances int

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_instances WHERE template_id = $1", id).Scan(&instances)
	if err != nil {
		return fmt.Errorf("failed to count instances of template %s: %w", id, err)
	}

	if instances > 0 {
		return persistence.NewTemplateError("Delete", id, persistence.ErrTemplateInUse)
	}

	_, err = r.db.ExecContext(ctx, "DELETE FROM workflow_templates WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow template %s: %w", id, err)
	}

	return nil
}
