package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
)

const (
	modelCacheSize = 128
	modelCacheTTL  = 5 * time.Minute
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ActionValidator checks transition action definitions at model-save time.
type ActionValidator interface {
	Validate(ctx context.Context, a actions.Action) error
}

// ModelStore handles route model persistence. Step templates are stored as
// a JSON column; parsed templates are kept in a small expirable LRU since
// every route start re-reads its model.
type ModelStore struct {
	db      *sql.DB
	q       dbtx
	acls    *acl.Store
	audit   *audit.Recorder
	actions ActionValidator
	cache   *lru.LRU[string, []StepTemplate]
}

// NewModelStore creates a new route model store
func NewModelStore(db *sql.DB, acls *acl.Store, recorder *audit.Recorder, validator ActionValidator) *ModelStore {
	return &ModelStore{
		db:      db,
		q:       db,
		acls:    acls,
		audit:   recorder,
		actions: validator,
		cache:   lru.NewLRU[string, []StepTemplate](modelCacheSize, nil, modelCacheTTL),
	}
}

// WithTx returns a store bound to the transaction. The cache is shared.
func (s *ModelStore) WithTx(tx *sql.Tx) *ModelStore {
	return &ModelStore{
		db:      s.db,
		q:       tx,
		acls:    s.acls.WithTx(tx),
		audit:   s.audit.WithTx(tx),
		actions: s.actions,
		cache:   s.cache,
	}
}

// validateSteps checks structure, then each transition action against the
// validator when one is wired.
func (s *ModelStore) validateSteps(ctx context.Context, steps []StepTemplate) error {
	if err := ValidateSteps(steps); err != nil {
		return err
	}
	if s.actions == nil {
		return nil
	}
	for i := range steps {
		for _, def := range steps[i].Transitions {
			for _, a := range def.Actions {
				if err := s.actions.Validate(ctx, a); err != nil {
					return fmt.Errorf("%w: step %q transition %q: %v",
						ErrInvalidRouteModel, steps[i].Name, def.Name, err)
				}
			}
		}
	}
	return nil
}

// ValidateSteps checks a model's step templates for structural problems.
func ValidateSteps(steps []StepTemplate) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: model has no steps", ErrInvalidRouteModel)
	}
	for i := range steps {
		if err := steps[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

// Create persists a new route model and grants its creator a READ ACL on
// it, so model visibility follows the same grant machinery as documents.
func (s *ModelStore) Create(ctx context.Context, name string, steps []StepTemplate, p *principal.Principal) (*RouteModel, error) {
	if err := s.validateSteps(ctx, steps); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode steps: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()
	txStore := s.WithTx(tx)

	m := &RouteModel{
		ID:         uuid.NewString(),
		Name:       name,
		Steps:      steps,
		CreateDate: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO route_models (id, name, steps, create_date)
		VALUES ($1, $2, $3, $4)`,
		m.ID, m.Name, string(raw), m.CreateDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create route model: %w", err)
	}

	grant := &acl.ACL{
		SourceID:   m.ID,
		Perm:       acl.PermRead,
		TargetID:   p.UserID,
		TargetType: principal.TargetUser,
		Kind:       acl.KindUser,
	}
	if err := txStore.acls.Create(ctx, grant, p.UserID); err != nil {
		return nil, err
	}

	if err := txStore.audit.Record(ctx, m, audit.ChangeCreate, p.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return m, nil
}

// Update replaces a model's name and steps.
func (s *ModelStore) Update(ctx context.Context, id, name string, steps []StepTemplate, actorID string) (*RouteModel, error) {
	if err := s.validateSteps(ctx, steps); err != nil {
		return nil, err
	}
	m, err := s.GetActiveByID(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode steps: %w", err)
	}

	m.Name = name
	m.Steps = steps
	_, err = s.q.ExecContext(ctx, `
		UPDATE route_models SET name = $1, steps = $2, update_date = $3
		WHERE id = $4 AND delete_date IS NULL`,
		m.Name, string(raw), time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update route model: %w", err)
	}
	s.cache.Remove(id)

	if err := s.audit.Record(ctx, m, audit.ChangeUpdate, actorID); err != nil {
		return nil, err
	}
	return m, nil
}

// GetActiveByID returns an active route model by ID, with its steps parsed.
func (s *ModelStore) GetActiveByID(ctx context.Context, id string) (*RouteModel, error) {
	var m RouteModel
	var raw string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, steps, create_date
		FROM route_models WHERE id = $1 AND delete_date IS NULL`,
		id,
	).Scan(&m.ID, &m.Name, &raw, &m.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route model: %w", err)
	}

	if steps, ok := s.cache.Get(id); ok {
		m.Steps = steps
		return &m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m.Steps); err != nil {
		return nil, fmt.Errorf("%w: corrupt steps for model %s: %v", ErrInvalidRouteModel, id, err)
	}
	s.cache.Add(id, m.Steps)
	return &m, nil
}

// GetActiveByName returns an active route model by name.
func (s *ModelStore) GetActiveByName(ctx context.Context, name string) (*RouteModel, error) {
	var id string
	err := s.q.QueryRowContext(ctx,
		"SELECT id FROM route_models WHERE name = $1 AND delete_date IS NULL", name,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route model: %w", err)
	}
	return s.GetActiveByID(ctx, id)
}

// List returns all active route models, steps parsed, newest first.
func (s *ModelStore) List(ctx context.Context) ([]RouteModel, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, steps, create_date
		FROM route_models WHERE delete_date IS NULL
		ORDER BY create_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list route models: %w", err)
	}
	defer rows.Close()

	var models []RouteModel
	for rows.Next() {
		var m RouteModel
		var raw string
		if err := rows.Scan(&m.ID, &m.Name, &raw, &m.CreateDate); err != nil {
			return nil, fmt.Errorf("failed to scan route model: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &m.Steps); err != nil {
			return nil, fmt.Errorf("%w: corrupt steps for model %s: %v", ErrInvalidRouteModel, m.ID, err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// Delete soft-deletes a route model and its grants. Routes already started
// from it are untouched; they carry their own step copies.
func (s *ModelStore) Delete(ctx context.Context, id, actorID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()
	txStore := s.WithTx(tx)

	m, err := txStore.GetActiveByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE route_models SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, id); err != nil {
		return fmt.Errorf("failed to delete route model: %w", err)
	}
	if err := txStore.acls.DeleteBySource(ctx, id); err != nil {
		return err
	}
	s.cache.Remove(id)

	if err := txStore.audit.Record(ctx, m, audit.ChangeDelete, actorID); err != nil {
		return err
	}
	return tx.Commit()
}
