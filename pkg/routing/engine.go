package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platinummonkey/docket/pkg/acl"
	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/audit"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
	"github.com/platinummonkey/docket/pkg/tags"
)

// Engine drives routes through their steps. Every mutating operation runs
// in one transaction so a failed transition never leaves a half-closed
// step or a dangling workflow grant.
type Engine struct {
	db       *sql.DB
	models   *ModelStore
	routes   *Store
	acls     *acl.Store
	checker  *acl.Checker
	resolver *principal.Resolver
	executor *actions.Executor
	tags     *tags.Store
	audit    *audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEngine creates a new route engine
func NewEngine(
	db *sql.DB,
	models *ModelStore,
	routes *Store,
	acls *acl.Store,
	checker *acl.Checker,
	resolver *principal.Resolver,
	executor *actions.Executor,
	tagStore *tags.Store,
	recorder *audit.Recorder,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Engine {
	return &Engine{
		db:       db,
		models:   models,
		routes:   routes,
		acls:     acls,
		checker:  checker,
		resolver: resolver,
		executor: executor,
		tags:     tagStore,
		audit:    recorder,
		logger:   logger,
		metrics:  metrics,
	}
}

// Start instantiates a route from a model onto a document. The caller
// needs WRITE on the document and READ on the model. Target names are
// resolved up front; any failure aborts with ErrInvalidRouteModel before a
// single row is written. The first step's target receives a temporary
// workflow READ grant on the document so reviewers can see what they are
// asked to act on.
func (e *Engine) Start(ctx context.Context, documentID, modelID string, p *principal.Principal) (*Route, error) {
	ctx, span := observability.Tracer("routing").Start(ctx, "Start")
	defer span.End()

	targets, err := e.resolver.TargetIDSet(ctx, p)
	if err != nil {
		return nil, err
	}
	canWrite, err := e.checker.CheckPermission(ctx, documentID, acl.PermWrite, targets)
	if err != nil {
		return nil, err
	}
	if !canWrite {
		e.metrics.RouteStartsTotal.WithLabelValues("forbidden").Inc()
		return nil, fmt.Errorf("%w: document %s", ErrForbidden, documentID)
	}
	canReadModel, err := e.checker.CheckPermission(ctx, modelID, acl.PermRead, targets)
	if err != nil {
		return nil, err
	}
	if !canReadModel {
		e.metrics.RouteStartsTotal.WithLabelValues("forbidden").Inc()
		return nil, fmt.Errorf("%w: route model %s", ErrForbidden, modelID)
	}

	model, err := e.models.GetActiveByID(ctx, modelID)
	if err != nil {
		return nil, err
	}

	running, err := e.routes.RunningRouteForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if running != nil {
		e.metrics.RouteStartsTotal.WithLabelValues("conflict").Inc()
		return nil, fmt.Errorf("%w: route %s", ErrRunningRoute, running.ID)
	}

	// Resolve every target before writing anything.
	steps := make([]RouteStep, len(model.Steps))
	for i, tmpl := range model.Steps {
		targetID, err := e.resolver.ResolveTargetID(ctx, tmpl.Target.Name, tmpl.Target.Type)
		if err != nil {
			e.metrics.RouteStartsTotal.WithLabelValues("invalid_model").Inc()
			return nil, fmt.Errorf("%w: step %q: %v", ErrInvalidRouteModel, tmpl.Name, err)
		}
		steps[i] = RouteStep{
			Name:        tmpl.Name,
			Type:        tmpl.Type,
			Order:       i,
			TargetID:    targetID,
			TargetType:  tmpl.Target.Type,
			Transitions: tmpl.Transitions,
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	route := &Route{DocumentID: documentID, Name: model.Name}
	if err := e.routes.WithTx(tx).CreateRoute(ctx, route, steps, p.UserID); err != nil {
		return nil, err
	}

	first := steps[0]
	if err := e.grantWorkflowRead(ctx, tx, documentID, &first, p.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	e.metrics.RouteStartsTotal.WithLabelValues("started").Inc()
	e.logger.WithFields(map[string]interface{}{
		"route_id":    route.ID,
		"document_id": documentID,
		"model_id":    modelID,
	}).Info("route started")
	return route, nil
}

// CurrentStep returns the open step of the document's running route, or
// ErrNoCurrentStep when no route is active.
func (e *Engine) CurrentStep(ctx context.Context, documentID string) (*RouteStep, error) {
	route, err := e.routes.RunningRouteForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		return nil, fmt.Errorf("%w: document %s", ErrNoCurrentStep, documentID)
	}
	return e.routes.CurrentStep(ctx, route.ID)
}

// IsTransitionable reports whether the principal may act on the document's
// current step: the step's target is the principal themselves or a group
// in their resolved membership. Share targets are never transitionable.
// Deliberately no superuser shortcut here; acting on a step means being
// its addressee.
func (e *Engine) IsTransitionable(ctx context.Context, documentID string, p *principal.Principal) (bool, error) {
	step, err := e.CurrentStep(ctx, documentID)
	if errors.Is(err, ErrNoCurrentStep) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.stepActionable(ctx, step, p)
}

func (e *Engine) stepActionable(ctx context.Context, step *RouteStep, p *principal.Principal) (bool, error) {
	switch step.TargetType {
	case principal.TargetUser:
		return step.TargetID == p.UserID, nil
	case principal.TargetGroup:
		groupIDs, err := e.resolver.TargetIDSet(ctx, p)
		if err != nil {
			return false, err
		}
		return groupIDs.Contains(step.TargetID), nil
	}
	return false, nil
}

// Validate closes the document's current step with the given transition,
// runs the transition's actions, and hands the workflow READ grant to the
// next step's target. When the closed step was the last one the route is
// complete and the workflow grant is withdrawn.
func (e *Engine) Validate(ctx context.Context, documentID string, transition Transition, comment string, p *principal.Principal) (*RouteStep, error) {
	ctx, span := observability.Tracer("routing").Start(ctx, "Validate")
	defer span.End()

	route, err := e.routes.RunningRouteForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if route == nil {
		e.metrics.RouteTransitionsTotal.WithLabelValues(string(transition), "no_step").Inc()
		return nil, fmt.Errorf("%w: document %s", ErrNoCurrentStep, documentID)
	}
	step, err := e.routes.CurrentStep(ctx, route.ID)
	if err != nil {
		return nil, err
	}

	ok, err := e.stepActionable(ctx, step, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.RouteTransitionsTotal.WithLabelValues(string(transition), "forbidden").Inc()
		return nil, fmt.Errorf("%w: step %s", ErrForbidden, step.ID)
	}
	if !step.Type.Allows(transition) {
		e.metrics.RouteTransitionsTotal.WithLabelValues(string(transition), "forbidden_transition").Inc()
		return nil, fmt.Errorf("%w: %s on %s step", ErrForbiddenTransition, transition, step.Type)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()
	txRoutes := e.routes.WithTx(tx)

	// CAS close: a concurrent validator that lost the race gets
	// ErrNoCurrentStep here, before any action has run.
	if err := txRoutes.CloseStep(ctx, step.ID, transition, comment, p.UserID); err != nil {
		if errors.Is(err, ErrNoCurrentStep) {
			e.metrics.RouteTransitionsTotal.WithLabelValues(string(transition), "lost_race").Inc()
		}
		return nil, err
	}

	txExecutor := e.executor.WithTags(e.tags.WithTx(tx))
	if err := txExecutor.ExecuteAll(ctx, documentID, step.ActionsFor(transition)); err != nil {
		return nil, err
	}

	if err := e.acls.WithTx(tx).Delete(ctx, documentID, acl.PermRead, step.TargetID, acl.KindRouting, p.UserID); err != nil {
		return nil, err
	}

	next, err := txRoutes.CurrentStep(ctx, route.ID)
	if err != nil && !errors.Is(err, ErrNoCurrentStep) {
		return nil, err
	}
	if next != nil {
		if err := e.grantWorkflowRead(ctx, tx, documentID, next, p.UserID); err != nil {
			return nil, err
		}
	}

	if err := e.audit.WithTx(tx).Record(ctx, route, audit.ChangeUpdate, p.UserID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	e.metrics.RouteTransitionsTotal.WithLabelValues(string(transition), "closed").Inc()
	closed, err := e.routes.Steps(ctx, route.ID)
	if err != nil {
		return nil, err
	}
	for i := range closed {
		if closed[i].ID == step.ID {
			return &closed[i], nil
		}
	}
	return nil, fmt.Errorf("failed to reload step %s", step.ID)
}

// Cancel soft-deletes a route and withdraws any workflow grant it holds.
// The caller needs WRITE on the document.
func (e *Engine) Cancel(ctx context.Context, routeID string, p *principal.Principal) error {
	route, err := e.routes.GetRoute(ctx, routeID)
	if err != nil {
		return err
	}
	targets, err := e.resolver.TargetIDSet(ctx, p)
	if err != nil {
		return err
	}
	canWrite, err := e.checker.CheckPermission(ctx, route.DocumentID, acl.PermWrite, targets)
	if err != nil {
		return err
	}
	if !canWrite {
		return fmt.Errorf("%w: document %s", ErrForbidden, route.DocumentID)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	step, err := e.routes.WithTx(tx).CurrentStep(ctx, routeID)
	if err != nil && !errors.Is(err, ErrNoCurrentStep) {
		return err
	}
	if step != nil {
		if err := e.acls.WithTx(tx).Delete(ctx, route.DocumentID, acl.PermRead, step.TargetID, acl.KindRouting, p.UserID); err != nil {
			return err
		}
	}
	if err := e.routes.WithTx(tx).DeleteRoute(ctx, routeID, p.UserID); err != nil {
		return err
	}
	return tx.Commit()
}

func (e *Engine) grantWorkflowRead(ctx context.Context, tx *sql.Tx, documentID string, step *RouteStep, actorID string) error {
	grant := &acl.ACL{
		SourceID:   documentID,
		Perm:       acl.PermRead,
		TargetID:   step.TargetID,
		TargetType: step.TargetType,
		Kind:       acl.KindRouting,
	}
	return e.acls.WithTx(tx).Create(ctx, grant, actorID)
}
