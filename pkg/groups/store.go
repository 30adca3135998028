// Package groups implements the single-parent group hierarchy and the
// membership resolution the permission engine matches grants against.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/audit"
)

var (
	// ErrNotFound is returned when no active group matches.
	ErrNotFound = errors.New("group not found")

	// ErrAlreadyExists is returned when an active group with the same
	// name exists.
	ErrAlreadyExists = errors.New("group already exists")

	// ErrParentNotFound is returned when the named parent group does not
	// exist.
	ErrParentNotFound = errors.New("parent group not found")
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Group is a named set of users with an optional parent group.
type Group struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ParentID   *string    `json:"parent_id,omitempty"`
	CreateDate time.Time  `json:"create_date"`
	DeleteDate *time.Time `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (g *Group) LogID() string { return g.ID }

// LogClass implements audit.Loggable.
func (g *Group) LogClass() string { return "Group" }

// LogMessage implements audit.Loggable.
func (g *Group) LogMessage() string { return g.Name }

// Store handles group persistence and membership
type Store struct {
	db    *sql.DB
	q     dbtx
	audit *audit.Recorder
}

// NewStore creates a new group store
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, q: db, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, audit: s.audit.WithTx(tx)}
}

// Create persists a new group. The parent, when given, is a group name and
// must resolve to an active group.
func (s *Store) Create(ctx context.Context, name, parentName, actorID string) (*Group, error) {
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

	g := &Group{
		ID:         uuid.NewString(),
		Name:       name,
		ParentID:   parentID,
		CreateDate: time.Now().UTC(),
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO groups (id, name, parent_id, create_date)
		VALUES ($1, $2, $3, $4)`,
		g.ID, g.Name, g.ParentID, g.CreateDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	if err := s.audit.Record(ctx, g, audit.ChangeCreate, actorID); err != nil {
		return nil, err
	}
	return g, nil
}

// Update renames a group and/or moves it under a new parent.
func (s *Store) Update(ctx context.Context, groupID, name, parentName, actorID string) (*Group, error) {
	g, err := s.GetActiveByID(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if name != "" && name != g.Name {
		existing, err := s.GetActiveByName(ctx, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		g.Name = name
	}

	g.ParentID = nil
	if parentName != "" {
		parent, err := s.GetActiveByName(ctx, parentName)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrParentNotFound, parentName)
		}
		if err != nil {
			return nil, err
		}
		g.ParentID = &parent.ID
	}

	_, err = s.q.ExecContext(ctx,
		"UPDATE groups SET name = $1, parent_id = $2 WHERE id = $3 AND delete_date IS NULL",
		g.Name, g.ParentID, g.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}

	if err := s.audit.Record(ctx, g, audit.ChangeUpdate, actorID); err != nil {
		return nil, err
	}
	return g, nil
}

// GetActiveByID returns an active group by ID.
func (s *Store) GetActiveByID(ctx context.Context, id string) (*Group, error) {
	return s.getActive(ctx, "id", id)
}

// GetActiveByName returns an active group by name.
func (s *Store) GetActiveByName(ctx context.Context, name string) (*Group, error) {
	return s.getActive(ctx, "name", name)
}

func (s *Store) getActive(ctx context.Context, column, value string) (*Group, error) {
	var g Group
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, parent_id, create_date
		FROM groups WHERE `+column+` = $1 AND delete_date IS NULL`,
		value,
	).Scan(&g.ID, &g.Name, &g.ParentID, &g.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ActiveGroupIDByName implements principal.GroupDirectory. Returns "" when
// no active group matches.
func (s *Store) ActiveGroupIDByName(ctx context.Context, name string) (string, error) {
	g, err := s.GetActiveByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

// AddMember adds a user to a group. Re-adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, groupID, userID string) error {
	var id string
	err := s.q.QueryRowContext(ctx, `
		SELECT id FROM user_groups
		WHERE group_id = $1 AND user_id = $2 AND delete_date IS NULL`,
		groupID, userID,
	).Scan(&id)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check membership: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO user_groups (id, user_id, group_id, create_date)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), userID, groupID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a group.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE user_groups SET delete_date = $1
		WHERE group_id = $2 AND user_id = $3 AND delete_date IS NULL`,
		time.Now().UTC(), groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// Delete soft-deletes a group and cascades atomically: memberships go, the
// grants addressed to the group go, and child groups are detached rather
// than deleted.
func (s *Store) Delete(ctx context.Context, groupID, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := s.WithTx(tx)
	g, err := txStore.GetActiveByID(ctx, groupID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE groups SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, groupID); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE user_groups SET delete_date = $1 WHERE group_id = $2 AND delete_date IS NULL", now, groupID); err != nil {
		return fmt.Errorf("failed to cascade membership delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE acls SET delete_date = $1 WHERE target_id = $2 AND delete_date IS NULL", now, groupID); err != nil {
		return fmt.Errorf("failed to cascade acl delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE groups SET parent_id = NULL WHERE parent_id = $1 AND delete_date IS NULL", groupID); err != nil {
		return fmt.Errorf("failed to detach child groups: %w", err)
	}

	if err := txStore.audit.Record(ctx, g, audit.ChangeDelete, actorID); err != nil {
		return err
	}
	return tx.Commit()
}
