// Package audit records every mutation across the authorization and
// workflow core as an immutable append-only log entry.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/observability"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Recorder writes audit entries to the database.
type Recorder struct {
	q       dbtx
	metrics *observability.Metrics
}

// NewRecorder creates a recorder over the given database handle.
func NewRecorder(db *sql.DB, metrics *observability.Metrics) *Recorder {
	return &Recorder{q: db, metrics: metrics}
}

// WithTx returns a recorder bound to the transaction, so audit writes commit
// or roll back together with the mutation they describe.
func (r *Recorder) WithTx(tx *sql.Tx) *Recorder {
	return &Recorder{q: tx, metrics: r.metrics}
}

// Record appends one audit entry for the entity. An empty userID is recorded
// under the "admin" sentinel.
func (r *Recorder) Record(ctx context.Context, entity Loggable, changeType ChangeType, userID string) error {
	if userID == "" {
		userID = AdminUserID
	}

	entry := Entry{
		ID:          uuid.NewString(),
		UserID:      userID,
		EntityID:    entity.LogID(),
		EntityClass: entity.LogClass(),
		Type:        changeType,
		Message:     entity.LogMessage(),
		CreateDate:  time.Now().UTC(),
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, entity_id, entity_class, change_type, message, create_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.UserID, entry.EntityID, entry.EntityClass, string(entry.Type), entry.Message, entry.CreateDate,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AuditEntriesTotal.WithLabelValues(entry.EntityClass, string(entry.Type)).Inc()
	}
	return nil
}

// Search returns entries matching the filter, most recent first.
func (r *Recorder) Search(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT id, user_id, entity_id, entity_class, change_type, message, create_date
		FROM audit_logs WHERE 1=1`
	var args []interface{}

	if filter.EntityID != "" {
		args = append(args, filter.EntityID)
		query += " AND entity_id = $" + strconv.Itoa(len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += " AND user_id = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY create_date DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var changeType string
		if err := rows.Scan(&e.ID, &e.UserID, &e.EntityID, &e.EntityClass, &changeType, &e.Message, &e.CreateDate); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Type = ChangeType(changeType)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup removes entries older than the retention period and returns how
// many were deleted. Retention is an operational concern; the core itself
// never deletes entries.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := r.q.ExecContext(ctx, "DELETE FROM audit_logs WHERE create_date < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit log: %w", err)
	}
	return result.RowsAffected()
}
