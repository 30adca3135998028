// Package users provides the minimal user store the authorization core
// needs: lookups for the principal resolver and cascading deletion.
// Authentication and credential handling live outside this core.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
)

// ErrNotFound is returned when no active user matches.
var ErrNotFound = errors.New("user not found")

// ErrAlreadyExists is returned when the username is taken by an active user.
var ErrAlreadyExists = errors.New("user already exists")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// User is an account that can act as a principal.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Superuser  bool       `json:"superuser"`
	CreateDate time.Time  `json:"create_date"`
	DeleteDate *time.Time `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (u *User) LogID() string { return u.ID }

// LogClass implements audit.Loggable.
func (u *User) LogClass() string { return "User" }

// LogMessage implements audit.Loggable.
func (u *User) LogMessage() string { return u.Username }

// Store handles user persistence
type Store struct {
	db    *sql.DB
	q     dbtx
	audit *audit.Recorder
}

// NewStore creates a new user store
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, q: db, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, audit: s.audit.WithTx(tx)}
}

// Create persists a new user.
func (s *Store) Create(ctx context.Context, u *User, actorID string) error {
	existing, err := s.GetActiveByUsername(ctx, u.Username)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, u.Username)
	}

	u.ID = uuid.NewString()
	u.CreateDate = time.Now().UTC()

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO users (id, username, superuser, create_date)
		VALUES ($1, $2, $3, $4)`,
		u.ID, u.Username, u.Superuser, u.CreateDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return s.audit.Record(ctx, u, audit.ChangeCreate, actorID)
}

// GetActiveByID returns an active user by ID.
func (s *Store) GetActiveByID(ctx context.Context, id string) (*User, error) {
	return s.getActive(ctx, "id", id)
}

// GetActiveByUsername returns an active user by username.
func (s *Store) GetActiveByUsername(ctx context.Context, username string) (*User, error) {
	return s.getActive(ctx, "username", username)
}

func (s *Store) getActive(ctx context.Context, column, value string) (*User, error) {
	var u User
	err := s.q.QueryRowContext(ctx, `
		SELECT id, username, superuser, create_date
		FROM users WHERE `+column+` = $1 AND delete_date IS NULL`,
		value,
	).Scan(&u.ID, &u.Username, &u.Superuser, &u.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// ActiveUserIDByUsername implements principal.UserDirectory. Returns "" when
// no active user matches.
func (s *Store) ActiveUserIDByUsername(ctx context.Context, username string) (string, error) {
	u, err := s.GetActiveByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// PrincipalByUsername resolves an active user into a principal.
func (s *Store) PrincipalByUsername(ctx context.Context, username string) (*principal.Principal, error) {
	u, err := s.GetActiveByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return &principal.Principal{
		UserID:    u.ID,
		Username:  u.Username,
		Superuser: u.Superuser,
	}, nil
}

// Delete soft-deletes a user and cascades to its group memberships and the
// grants addressed to it, atomically.
func (s *Store) Delete(ctx context.Context, userID, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := s.WithTx(tx)
	u, err := txStore.GetActiveByID(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE user_groups SET delete_date = $1 WHERE user_id = $2 AND delete_date IS NULL", now, userID); err != nil {
		return fmt.Errorf("failed to cascade user group delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE acls SET delete_date = $1 WHERE target_id = $2 AND delete_date IS NULL", now, userID); err != nil {
		return fmt.Errorf("failed to cascade acl delete: %w", err)
	}

	if err := txStore.audit.Record(ctx, u, audit.ChangeDelete, actorID); err != nil {
		return err
	}
	return tx.Commit()
}
