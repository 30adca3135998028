// Package acl implements the grant store and the recursive, group-aware
// permission checking engine protecting documents, tags and route models.
package acl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store handles ACL persistence
type Store struct {
	q     dbtx
	audit *audit.Recorder
}

// NewStore creates a new ACL store
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{q: db, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx, audit: s.audit.WithTx(tx)}
}

// Create persists a new grant and audits it. Duplicate active grants for the
// same (source, perm, target) are skipped; the existing grant wins.
func (s *Store) Create(ctx context.Context, a *ACL, userID string) error {
	exists, err := s.Exists(ctx, a.SourceID, a.Perm, a.TargetID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	a.ID = uuid.NewString()
	a.CreateDate = time.Now().UTC()
	if a.Kind == "" {
		a.Kind = KindUser
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO acls (id, source_id, perm, target_id, target_type, kind, create_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.SourceID, string(a.Perm), a.TargetID, string(a.TargetType), string(a.Kind), a.CreateDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create acl: %w", err)
	}

	return s.audit.Record(ctx, a, audit.ChangeCreate, userID)
}

// Exists reports whether an active grant for the exact
// (source, perm, target) triple exists, regardless of kind.
func (s *Store) Exists(ctx context.Context, sourceID string, perm Permission, targetID string) (bool, error) {
	var id string
	err := s.q.QueryRowContext(ctx, `
		SELECT id FROM acls
		WHERE source_id = $1 AND perm = $2 AND target_id = $3 AND delete_date IS NULL
		LIMIT 1`,
		sourceID, string(perm), targetID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check acl existence: %w", err)
	}
	return true, nil
}

// GetBySource returns the active grants on a source object. A non-empty
// kind narrows the result.
func (s *Store) GetBySource(ctx context.Context, sourceID string, kind Kind) ([]ACL, error) {
	query := `
		SELECT id, source_id, perm, target_id, target_type, kind, create_date
		FROM acls
		WHERE source_id = $1 AND delete_date IS NULL`
	args := []interface{}{sourceID}
	if kind != "" {
		query += " AND kind = $2"
		args = append(args, string(kind))
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get acls by source: %w", err)
	}
	defer rows.Close()

	return scanACLs(rows)
}

// GetByTarget returns the active grants addressed to a target.
func (s *Store) GetByTarget(ctx context.Context, targetID string) ([]ACL, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, source_id, perm, target_id, target_type, kind, create_date
		FROM acls
		WHERE target_id = $1 AND delete_date IS NULL`,
		targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get acls by target: %w", err)
	}
	defer rows.Close()

	return scanACLs(rows)
}

// Delete soft-deletes the active grants matching (source, perm, target,
// kind) and audits each one.
func (s *Store) Delete(ctx context.Context, sourceID string, perm Permission, targetID string, kind Kind, userID string) error {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, source_id, perm, target_id, target_type, kind, create_date
		FROM acls
		WHERE source_id = $1 AND perm = $2 AND target_id = $3 AND kind = $4 AND delete_date IS NULL`,
		sourceID, string(perm), targetID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to load acls for deletion: %w", err)
	}
	matched, err := scanACLs(rows)
	rows.Close()
	if err != nil {
		return err
	}

	for i := range matched {
		if err := s.audit.Record(ctx, &matched[i], audit.ChangeDelete, userID); err != nil {
			return err
		}
	}

	_, err = s.q.ExecContext(ctx, `
		UPDATE acls SET delete_date = $1
		WHERE source_id = $2 AND perm = $3 AND target_id = $4 AND kind = $5 AND delete_date IS NULL`,
		time.Now().UTC(), sourceID, string(perm), targetID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to delete acl: %w", err)
	}
	return nil
}

// DeleteBySource soft-deletes every active grant on a source object.
// Used when the protected object itself is deleted.
func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE acls SET delete_date = $1 WHERE source_id = $2 AND delete_date IS NULL",
		time.Now().UTC(), sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to cascade acl delete by source: %w", err)
	}
	return nil
}

// DeleteByTarget soft-deletes every active grant addressed to a target.
// Used when the target user or group is deleted.
func (s *Store) DeleteByTarget(ctx context.Context, targetID string) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE acls SET delete_date = $1 WHERE target_id = $2 AND delete_date IS NULL",
		time.Now().UTC(), targetID,
	)
	if err != nil {
		return fmt.Errorf("failed to cascade acl delete by target: %w", err)
	}
	return nil
}

func scanACLs(rows *sql.Rows) ([]ACL, error) {
	var acls []ACL
	for rows.Next() {
		var a ACL
		var perm, targetType, kind string
		if err := rows.Scan(&a.ID, &a.SourceID, &perm, &a.TargetID, &targetType, &kind, &a.CreateDate); err != nil {
			return nil, fmt.Errorf("failed to scan acl: %w", err)
		}
		a.Perm = Permission(perm)
		a.TargetType = principal.TargetType(targetType)
		a.Kind = Kind(kind)
		acls = append(acls, a)
	}
	return acls, rows.Err()
}
