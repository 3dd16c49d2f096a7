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

// InstanceRepository handles workflow instances and their log entries.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectInstances = `
	SELECT
		id
	  , document_id
	  , template_id
	  , current_state_id
	  , context
	  , version
	  , state_changed_at
	  , created_at
	  , updated_at
	FROM workflow_instances
`

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance       models.WorkflowInstance
		currentStateID sql.NullString
		stateChangedAt sql.NullTime
		contextJSON    []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.DocumentID,
		&instance.TemplateID,
		&currentStateID,
		&contextJSON,
		&instance.Version,
		&stateChangedAt,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if currentStateID.Valid {
		instance.CurrentStateID = &currentStateID.String
	}

	if stateChangedAt.Valid {
		instance.StateChangedAt = stateChangedAt.Time
	}

	err = json.Unmarshal(contextJSON, &instance.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal context of instance %s: %w", instance.ID, err)
	}

	if instance.Context == nil {
		instance.Context = map[string]any{}
	}

	return &instance, nil
}

func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	if instance.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		instance.ID = id
	}

	if instance.Context == nil {
		instance.Context = map[string]any{}
	}

	contextJSON, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal instance context: %w", err)
	}

	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_instances (id, document_id, template_id, current_state_id, context, version,
			state_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $7)
	`, instance.ID, instance.DocumentID, instance.TemplateID, nullableState(instance), contextJSON,
		nullableTime(instance.StateChangedAt), now)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewDocumentInstanceError("Create", instance.DocumentID, persistence.ErrInstanceAlreadyExists)
		}

		return persistence.NewDocumentInstanceError("Create", instance.DocumentID, err)
	}

	instance.Version = 1
	instance.CreatedAt = now
	instance.UpdatedAt = now

	return nil
}

func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := scanInstance(r.db.QueryRowContext(ctx, selectInstances+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewInstanceError("GetByID", id, persistence.ErrInstanceNotFound)
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return instance, nil
}

func (r *InstanceRepository) GetByDocument(ctx context.Context, documentID string) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, selectInstances+" WHERE document_id = $1 ORDER BY created_at", documentID)
}

func (r *InstanceRepository) GetByState(ctx context.Context, templateID, stateID string) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, selectInstances+" WHERE template_id = $1 AND current_state_id = $2 ORDER BY created_at",
		templateID, stateID)
}

func (r *InstanceRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowInstance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow instances: %w", err)
	}

	return instances, nil
}

func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance) error {
	return r.update(ctx, r.db, "Update", instance)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *InstanceRepository) update(ctx context.Context, db execer, op string, instance *models.WorkflowInstance) error {
	contextJSON, err := json.Marshal(instance.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal instance context: %w", err)
	}

	now := time.Now().UTC()

	result, err := db.ExecContext(ctx, `
		UPDATE workflow_instances SET
			current_state_id = $3,
			context = $4,
			state_changed_at = $5,
			version = version + 1,
			updated_at = $6
		WHERE id = $1 AND version = $2
	`, instance.ID, instance.Version, nullableState(instance), contextJSON, nullableTime(instance.StateChangedAt), now)
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewInstanceError(op, instance.ID, err)
	}

	if affected == 0 {
		return persistence.NewInstanceError(op, instance.ID, persistence.ErrConcurrentModification)
	}

	instance.Version++
	instance.UpdatedAt = now

	return nil
}

func (r *InstanceRepository) CommitTransition(
	ctx context.Context,
	instance *models.WorkflowInstance,
	entry *models.LogEntry,
) error {
	if entry.ID == "" {
		id, err := persistence.NewID()
		if err != nil {
			return err
		}

		entry.ID = id
	}

	extraData, err := json.Marshal(entry.ExtraData)
	if err != nil {
		return fmt.Errorf("failed to marshal extra data: %w", err)
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

	version := instance.Version

	err = r.update(ctx, tx, "CommitTransition", instance)
	if err != nil {
		return err
	}

	var sequence int64

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workflow_instance_log_entries (id, instance_id, transition_id, user_id, datetime, comment, extra_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sequence
	`, entry.ID, instance.ID, entry.TransitionID, nullableString(entry.UserID), entry.Datetime, entry.Comment,
		extraData).Scan(&sequence)
	if err != nil {
		instance.Version = version

		return persistence.NewInstanceError("CommitTransition", instance.ID, err)
	}

	err = tx.Commit()
	if err != nil {
		instance.Version = version

		return persistence.NewInstanceError("CommitTransition", instance.ID, err)
	}

	entry.InstanceID = instance.ID
	entry.Sequence = sequence

	return nil
}

const selectLogEntries = `
	SELECT id, instance_id, transition_id, user_id, datetime, sequence, comment, extra_data
	FROM workflow_instance_log_entries
	WHERE instance_id = $1
`

func (r *InstanceRepository) LogEntries(ctx context.Context, instanceID string) ([]*models.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, selectLogEntries+" ORDER BY datetime, sequence", instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries of instance %s: %w", instanceID, err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.LogEntry, 0)

	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}

func (r *InstanceRepository) LastLogEntry(ctx context.Context, instanceID string) (*models.LogEntry, error) {
	entry, err := scanLogEntry(r.db.QueryRowContext(ctx,
		selectLogEntries+" ORDER BY datetime DESC, sequence DESC LIMIT 1", instanceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return entry, nil
}

func scanLogEntry(row scanner) (*models.LogEntry, error) {
	var (
		entry     models.LogEntry
		userID    sql.NullString
		extraData []byte
	)

	err := row.Scan(&entry.ID, &entry.InstanceID, &entry.TransitionID, &userID, &entry.Datetime, &entry.Sequence,
		&entry.Comment, &extraData)
	if err != nil {
		return nil, fmt.Errorf("failed to scan log entry: %w", err)
	}

	entry.UserID = userID.String

	if len(extraData) > 0 {
		err = json.Unmarshal(extraData, &entry.ExtraData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra data of log entry %s: %w", entry.ID, err)
		}
	}

	return &entry, nil
}

func nullableState(instance *models.WorkflowInstance) sql.NullString {
	if instance.CurrentStateID == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *instance.CurrentStateID, Valid: true}
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}
