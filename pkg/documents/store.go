// Package documents provides the access-controlled document store. Reads
// go through the permission engine, so a document a principal cannot read
// is indistinguishable from one that does not exist.
package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
)

// ErrNotFound is returned when no active document matches, or the caller
// cannot read the one that does.
var ErrNotFound = errors.New("document not found")

// ErrForbidden is returned when the caller can see a document but lacks
// the permission the operation needs.
var ErrForbidden = errors.New("forbidden")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Document is the root object grants and routes attach to.
type Document struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	UserID     string     `json:"user_id"`
	CreateDate time.Time  `json:"create_date"`
	DeleteDate *time.Time `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (d *Document) LogID() string { return d.ID }

// LogClass implements audit.Loggable.
func (d *Document) LogClass() string { return "Document" }

// LogMessage implements audit.Loggable.
func (d *Document) LogMessage() string { return d.Title }

// Store handles document persistence
type Store struct {
	db      *sql.DB
	q       dbtx
	acls    *acl.Store
	checker *acl.Checker
	audit   *audit.Recorder
}

// NewStore creates a new document store
func NewStore(db *sql.DB, acls *acl.Store, checker *acl.Checker, recorder *audit.Recorder) *Store {
	return &Store{db: db, q: db, acls: acls, checker: checker, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{
		db:      s.db,
		q:       tx,
		acls:    s.acls.WithTx(tx),
		checker: s.checker.WithTx(tx),
		audit:   s.audit.WithTx(tx),
	}
}

// Create persists a new document and grants its creator the base READ and
// WRITE ACLs in the same transaction.
func (s *Store) Create(ctx context.Context, title string, p *principal.Principal) (*Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()
	txStore := s.WithTx(tx)

	d := &Document{
		ID:         uuid.NewString(),
		Title:      title,
		UserID:     p.UserID,
		CreateDate: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, user_id, create_date)
		VALUES ($1, $2, $3, $4)`,
		d.ID, d.Title, d.UserID, d.CreateDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	for _, perm := range []acl.Permission{acl.PermRead, acl.PermWrite} {
		grant := &acl.ACL{
			SourceID:   d.ID,
			Perm:       perm,
			TargetID:   p.UserID,
			TargetType: principal.TargetUser,
			Kind:       acl.KindUser,
		}
		if err := txStore.acls.Create(ctx, grant, p.UserID); err != nil {
			return nil, err
		}
	}

	if err := txStore.audit.Record(ctx, d, audit.ChangeCreate, p.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return d, nil
}

// Get returns an active document the principal can read. A denial reads
// the same as a missing document.
func (s *Store) Get(ctx context.Context, id string, targets principal.TargetIDSet) (*Document, error) {
	d, err := s.getActive(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.checker.CheckPermission(ctx, id, acl.PermRead, targets)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, nil
}

func (s *Store) getActive(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.q.QueryRowContext(ctx, `
		SELECT id, title, user_id, create_date
		FROM documents WHERE id = $1 AND delete_date IS NULL`,
		id,
	).Scan(&d.ID, &d.Title, &d.UserID, &d.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

// Exists reports whether an active document with the ID exists, without a
// permission check. Callers own the access decision.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.getActive(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OwnedBy reports whether the active document was created by the user.
func (s *Store) OwnedBy(ctx context.Context, id, userID string) (bool, error) {
	d, err := s.getActive(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return d.UserID == userID, nil
}

// Delete soft-deletes a document the principal can write, cascading to its
// grants, tag links, and routes in one transaction.
func (s *Store) Delete(ctx context.Context, id string, p *principal.Principal, targets principal.TargetIDSet) error {
	d, err := s.getActive(ctx, id)
	if err != nil {
		return err
	}
	canRead, err := s.checker.CheckPermission(ctx, id, acl.PermRead, targets)
	if err != nil {
		return err
	}
	if !canRead {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	canWrite, err := s.checker.CheckPermission(ctx, id, acl.PermWrite, targets)
	if err != nil {
		return err
	}
	if !canWrite {
		return fmt.Errorf("%w: document %s", ErrForbidden, id)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()
	txStore := s.WithTx(tx)

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := txStore.acls.DeleteBySource(ctx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE document_tags SET delete_date = $1 WHERE document_id = $2 AND delete_date IS NULL", now, id); err != nil {
		return fmt.Errorf("failed to cascade tag link delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE route_steps SET delete_date = $1
		WHERE delete_date IS NULL AND route_id IN
			(SELECT id FROM routes WHERE document_id = $2 AND delete_date IS NULL)`,
		now, id); err != nil {
		return fmt.Errorf("failed to cascade route step delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE routes SET delete_date = $1 WHERE document_id = $2 AND delete_date IS NULL", now, id); err != nil {
		return fmt.Errorf("failed to cascade route delete: %w", err)
	}

	if err := txStore.audit.Record(ctx, d, audit.ChangeDelete, p.UserID); err != nil {
		return err
	}
	return tx.Commit()
}
