// Package tags handles tag persistence and the document-tag links the
// permission engine inherits grants through.
package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/audit"
)

// ErrNotFound is returned when no active tag matches.
var ErrNotFound = errors.New("tag not found")

// ErrAlreadyExists is returned when an active tag with the same name
// exists.
var ErrAlreadyExists = errors.New("tag already exists")

// ErrParentNotFound is returned when the named parent tag does not exist.
var ErrParentNotFound = errors.New("parent tag not found")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tag is a named label documents link to. Grants placed on a tag reach the
// documents carrying it.
type Tag struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Color      string     `json:"color,omitempty"`
	ParentID   *string    `json:"parent_id,omitempty"`
	UserID     string     `json:"user_id"`
	CreateDate time.Time  `json:"create_date"`
	DeleteDate *time.Time `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (t *Tag) LogID() string { return t.ID }

// LogClass implements audit.Loggable.
func (t *Tag) LogClass() string { return "Tag" }

// LogMessage implements audit.Loggable.
func (t *Tag) LogMessage() string { return t.Name }

// Store handles tag persistence
type Store struct {
	db    *sql.DB
	q     dbtx
	audit *audit.Recorder
}

// NewStore creates a new tag store
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, q: db, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, audit: s.audit.WithTx(tx)}
}

// Create persists a new tag, optionally nested under a parent named by
// parentName. Nesting is organizational only; grants never follow parent
// pointers.
func (s *Store) Create(ctx context.Context, name, color, parentName, actorID string) (*Tag, error) {
	existing, err := s.GetActiveByName(ctx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	var parentID *string
	if parentName != "" {
		parent, err := s.GetActiveByName(ctx, parentName)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parentName)
		}
		if err != nil {
			return nil, err
		}
		parentID = &parent.ID
	}

	t := &Tag{
		ID:         uuid.NewString(),
		Name:       name,
		Color:      color,
		ParentID:   parentID,
		UserID:     actorID,
		CreateDate: time.Now().UTC(),
	}
	if t.Color == "" {
		t.Color = "#3a87ad"
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, parent_id, user_id, create_date)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Color, t.ParentID, t.UserID, t.CreateDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	if err := s.audit.Record(ctx, t, audit.ChangeCreate, actorID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetActiveByID returns an active tag by ID.
func (s *Store) GetActiveByID(ctx context.Context, id string) (*Tag, error) {
	return s.getActive(ctx, "id", id)
}

// GetActiveByName returns an active tag by name.
func (s *Store) GetActiveByName(ctx context.Context, name string) (*Tag, error) {
	return s.getActive(ctx, "name", name)
}

func (s *Store) getActive(ctx context.Context, column, value string) (*Tag, error) {
	var t Tag
	var parentID sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, color, parent_id, user_id, create_date
		FROM tags WHERE `+column+` = $1 AND delete_date IS NULL`,
		value,
	).Scan(&t.ID, &t.Name, &t.Color, &parentID, &t.UserID, &t.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	if parentID.Valid {
		v := parentID.String
		t.ParentID = &v
	}
	return &t, nil
}

// Exists reports whether an active tag with the ID exists.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var found string
	err := s.q.QueryRowContext(ctx,
		"SELECT id FROM tags WHERE id = $1 AND delete_date IS NULL", id,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tag: %w", err)
	}
	return true, nil
}

// Attach links a tag to a document. Attaching an already-linked tag is a
// no-op.
func (s *Store) Attach(ctx context.Context, documentID, tagID string) error {
	var id string
	err := s.q.QueryRowContext(ctx, `
		SELECT id FROM document_tags
		WHERE document_id = $1 AND tag_id = $2 AND delete_date IS NULL`,
		documentID, tagID,
	).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check tag link: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO document_tags (id, document_id, tag_id, create_date)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), documentID, tagID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// Detach removes a tag from a document. Detaching an absent tag is a no-op.
func (s *Store) Detach(ctx context.Context, documentID, tagID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE document_tags SET delete_date = $1
		WHERE document_id = $2 AND tag_id = $3 AND delete_date IS NULL`,
		time.Now().UTC(), documentID, tagID,
	)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// TagIDsForDocument returns the active tag IDs linked to the document.
func (s *Store) TagIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT t.id
		FROM document_tags dt
		JOIN tags t ON t.id = dt.tag_id AND t.delete_date IS NULL
		WHERE dt.document_id = $1 AND dt.delete_date IS NULL
		ORDER BY t.name`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list document tags: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tag link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateTagList replaces the tags on a document with the given set,
// detaching links not in the set and attaching the missing ones.
func (s *Store) UpdateTagList(ctx context.Context, documentID string, tagIDs []string) error {
	current, err := s.TagIDsForDocument(ctx, documentID)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(tagIDs))
	for _, id := range tagIDs {
		want[id] = true
	}
	have := make(map[string]bool, len(current))
	for _, id := range current {
		have[id] = true
		if !want[id] {
			if err := s.Detach(ctx, documentID, id); err != nil {
				return err
			}
		}
	}
	for _, id := range tagIDs {
		if !have[id] {
			if err := s.Attach(ctx, documentID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Delete soft-deletes a tag and its document links atomically.
func (s *Store) Delete(ctx context.Context, tagID, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := s.WithTx(tx)
	t, err := txStore.GetActiveByID(ctx, tagID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE tags SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, tagID); err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE document_tags SET delete_date = $1 WHERE tag_id = $2 AND delete_date IS NULL", now, tagID); err != nil {
		return fmt.Errorf("failed to cascade tag link delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE tags SET parent_id = NULL WHERE parent_id = $1 AND delete_date IS NULL", tagID); err != nil {
		return fmt.Errorf("failed to detach child tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE acls SET delete_date = $1 WHERE source_id = $2 AND delete_date IS NULL", now, tagID); err != nil {
		return fmt.Errorf("failed to cascade acl delete: %w", err)
	}

	if err := txStore.audit.Record(ctx, t, audit.ChangeDelete, actorID); err != nil {
		return err
	}
	return tx.Commit()
}
