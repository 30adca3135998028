package routing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/principal"
)

// Store handles route and route step persistence
type Store struct {
	db    *sql.DB
	q     dbtx
	audit *audit.Recorder
}

// NewStore creates a new route store
func NewStore(db *sql.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, q: db, audit: recorder}
}

// WithTx returns a store bound to the transaction.
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{db: s.db, q: tx, audit: s.audit.WithTx(tx)}
}

// CreateRoute inserts a route and its concrete steps.
func (s *Store) CreateRoute(ctx context.Context, r *Route, steps []RouteStep, actorID string) error {
	r.ID = uuid.NewString()
	r.CreateDate = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO routes (id, document_id, name, create_date)
		VALUES ($1, $2, $3, $4)`,
		r.ID, r.DocumentID, r.Name, r.CreateDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}

	for i := range steps {
		step := &steps[i]
		step.ID = uuid.NewString()
		step.RouteID = r.ID
		step.CreateDate = r.CreateDate

		var transitions interface{}
		if len(step.Transitions) > 0 {
			raw, err := json.Marshal(step.Transitions)
			if err != nil {
				return fmt.Errorf("failed to encode transitions: %w", err)
			}
			transitions = string(raw)
		}

		_, err = s.q.ExecContext(ctx, `
			INSERT INTO route_steps
				(id, route_id, name, step_type, step_order, target_id, target_type, transitions, create_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			step.ID, step.RouteID, step.Name, string(step.Type), step.Order,
			step.TargetID, string(step.TargetType), transitions, step.CreateDate,
		)
		if err != nil {
			return fmt.Errorf("failed to create route step: %w", err)
		}
	}

	return s.audit.Record(ctx, r, audit.ChangeCreate, actorID)
}

// GetRoute returns an active route by ID.
func (s *Store) GetRoute(ctx context.Context, id string) (*Route, error) {
	var r Route
	err := s.q.QueryRowContext(ctx, `
		SELECT id, document_id, name, create_date
		FROM routes WHERE id = $1 AND delete_date IS NULL`,
		id,
	).Scan(&r.ID, &r.DocumentID, &r.Name, &r.CreateDate)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &r, nil
}

// RunningRouteForDocument returns the document's route that still has an
// open step, or nil when every route on it is finished.
func (s *Store) RunningRouteForDocument(ctx context.Context, documentID string) (*Route, error) {
	var r Route
	err := s.q.QueryRowContext(ctx, `
		SELECT r.id, r.document_id, r.name, r.create_date
		FROM routes r
		WHERE r.document_id = $1 AND r.delete_date IS NULL
		  AND EXISTS (
			SELECT 1 FROM route_steps rs
			WHERE rs.route_id = r.id AND rs.delete_date IS NULL AND rs.end_date IS NULL
		  )
		ORDER BY r.create_date DESC`,
		documentID,
	).Scan(&r.ID, &r.DocumentID, &r.Name, &r.CreateDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find running route: %w", err)
	}
	return &r, nil
}

// RoutesForDocument returns the document's active routes, newest first.
func (s *Store) RoutesForDocument(ctx context.Context, documentID string) ([]Route, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, document_id, name, create_date
		FROM routes WHERE document_id = $1 AND delete_date IS NULL
		ORDER BY create_date DESC`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Name, &r.CreateDate); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Steps returns a route's steps in order.
func (s *Store) Steps(ctx context.Context, routeID string) ([]RouteStep, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, route_id, name, step_type, step_order, target_id, target_type,
		       transitions, comment, end_date, transition, validator_user_id, create_date
		FROM route_steps
		WHERE route_id = $1 AND delete_date IS NULL
		ORDER BY step_order`,
		routeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list route steps: %w", err)
	}
	defer rows.Close()

	var steps []RouteStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// CurrentStep returns the lowest-ordered step of the route that has not
// been closed, or ErrNoCurrentStep when the route is finished. "Current"
// is derived, never stored.
func (s *Store) CurrentStep(ctx context.Context, routeID string) (*RouteStep, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, route_id, name, step_type, step_order, target_id, target_type,
		       transitions, comment, end_date, transition, validator_user_id, create_date
		FROM route_steps
		WHERE route_id = $1 AND delete_date IS NULL AND end_date IS NULL
		ORDER BY step_order
		LIMIT 1`,
		routeID,
	)
	step, err := scanStep(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: route %s", ErrNoCurrentStep, routeID)
	}
	if err != nil {
		return nil, err
	}
	return step, nil
}

// CloseStep records the step's outcome. The condition on end_date makes
// the close a compare-and-set: of two concurrent validators exactly one
// wins, the other gets ErrNoCurrentStep.
func (s *Store) CloseStep(ctx context.Context, stepID string, transition Transition, comment, validatorUserID string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE route_steps
		SET end_date = $1, transition = $2, comment = $3, validator_user_id = $4
		WHERE id = $5 AND delete_date IS NULL AND end_date IS NULL`,
		time.Now().UTC(), string(transition), comment, validatorUserID, stepID,
	)
	if err != nil {
		return fmt.Errorf("failed to close route step: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: step %s already closed", ErrNoCurrentStep, stepID)
	}
	return nil
}

// DeleteRoute soft-deletes a route and its steps.
func (s *Store) DeleteRoute(ctx context.Context, routeID, actorID string) error {
	r, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if _, err := s.q.ExecContext(ctx,
		"UPDATE route_steps SET delete_date = $1 WHERE route_id = $2 AND delete_date IS NULL", now, routeID); err != nil {
		return fmt.Errorf("failed to delete route steps: %w", err)
	}
	if _, err := s.q.ExecContext(ctx,
		"UPDATE routes SET delete_date = $1 WHERE id = $2 AND delete_date IS NULL", now, routeID); err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	return s.audit.Record(ctx, r, audit.ChangeDelete, actorID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStep(row rowScanner) (*RouteStep, error) {
	var step RouteStep
	var stepType, targetType string
	var transitions, comment, transition, validator sql.NullString
	err := row.Scan(
		&step.ID, &step.RouteID, &step.Name, &stepType, &step.Order,
		&step.TargetID, &targetType, &transitions, &comment,
		&step.EndDate, &transition, &validator, &step.CreateDate,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan route step: %w", err)
	}

	step.Type = StepType(stepType)
	step.TargetType = principal.TargetType(targetType)
	if comment.Valid {
		step.Comment = comment.String
	}
	if transition.Valid {
		tr := Transition(transition.String)
		step.Transition = &tr
	}
	if validator.Valid {
		v := validator.String
		step.ValidatorUserID = &v
	}
	if transitions.Valid && transitions.String != "" {
		if err := json.Unmarshal([]byte(transitions.String), &step.Transitions); err != nil {
			return nil, fmt.Errorf("corrupt transitions for step %s: %w", step.ID, err)
		}
	}
	return &step, nil
}
