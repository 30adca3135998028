// Package routing implements sequential approval workflows over
// documents: reusable route models, the routes instantiated from them,
// and the engine that advances a route one validated step at a time.
package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/actions"
	"github.com/platinummonkey/docket/pkg/principal"
)

var (
	// ErrModelNotFound is returned when no active route model matches.
	ErrModelNotFound = errors.New("route model not found")

	// ErrRouteNotFound is returned when no active route matches.
	ErrRouteNotFound = errors.New("route not found")

	// ErrInvalidRouteModel is returned when a model's step definitions
	// are malformed or reference targets that do not resolve.
	ErrInvalidRouteModel = errors.New("invalid route model")

	// ErrRunningRoute is returned when starting a route on a document
	// that already has one in progress.
	ErrRunningRoute = errors.New("a route is already running on this document")

	// ErrNoCurrentStep is returned when a route has no open step left to
	// act on.
	ErrNoCurrentStep = errors.New("no current step")

	// ErrForbiddenTransition is returned when the chosen transition is
	// not legal for the current step's type.
	ErrForbiddenTransition = errors.New("transition not allowed for step type")

	// ErrForbidden is returned when the caller lacks the permission an
	// operation needs.
	ErrForbidden = errors.New("forbidden")
)

// StepType determines which transitions a step accepts.
type StepType string

const (
	// StepValidate is a single-outcome acknowledgement step.
	StepValidate StepType = "VALIDATE"
	// StepApprove is a binary decision step.
	StepApprove StepType = "APPROVE"
)

// Valid reports whether the step type is a known value.
func (t StepType) Valid() bool {
	return t == StepValidate || t == StepApprove
}

// Transition is the outcome recorded when a step is closed.
type Transition string

const (
	TransitionValidated Transition = "VALIDATED"
	TransitionApproved  Transition = "APPROVED"
	TransitionRejected  Transition = "REJECTED"
)

// Transitions returns the transitions legal for the step type.
func (t StepType) Transitions() []Transition {
	switch t {
	case StepValidate:
		return []Transition{TransitionValidated}
	case StepApprove:
		return []Transition{TransitionApproved, TransitionRejected}
	}
	return nil
}

// Allows reports whether the transition is legal for the step type.
func (t StepType) Allows(tr Transition) bool {
	for _, allowed := range t.Transitions() {
		if tr == allowed {
			return true
		}
	}
	return false
}

// StepTarget names the user or group a step is assigned to. Targets are
// stored by name in the model and resolved to IDs when a route starts.
type StepTarget struct {
	Name string               `json:"name" yaml:"name"`
	Type principal.TargetType `json:"type" yaml:"type"`
}

// TransitionDef binds a transition outcome to the actions it triggers.
type TransitionDef struct {
	Name    Transition       `json:"name" yaml:"name"`
	Actions []actions.Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// StepTemplate is one step definition inside a route model.
type StepTemplate struct {
	Type        StepType        `json:"type" yaml:"type"`
	Name        string          `json:"name" yaml:"name"`
	Target      StepTarget      `json:"target" yaml:"target"`
	Transitions []TransitionDef `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// ActionsFor returns the actions configured for the transition, or nil.
func (st *StepTemplate) ActionsFor(tr Transition) []actions.Action {
	for _, def := range st.Transitions {
		if def.Name == tr {
			return def.Actions
		}
	}
	return nil
}

// validate checks a step template at model-save time.
func (st *StepTemplate) validate() error {
	if st.Name == "" {
		return fmt.Errorf("%w: step has no name", ErrInvalidRouteModel)
	}
	if !st.Type.Valid() {
		return fmt.Errorf("%w: step %q has unknown type %q", ErrInvalidRouteModel, st.Name, st.Type)
	}
	if st.Target.Name == "" {
		return fmt.Errorf("%w: step %q has no target", ErrInvalidRouteModel, st.Name)
	}
	if !st.Target.Type.Valid() || st.Target.Type == principal.TargetShare {
		return fmt.Errorf("%w: step %q has invalid target type %q", ErrInvalidRouteModel, st.Name, st.Target.Type)
	}
	for _, def := range st.Transitions {
		if !st.Type.Allows(def.Name) {
			return fmt.Errorf("%w: step %q does not allow transition %q", ErrInvalidRouteModel, st.Name, def.Name)
		}
	}
	return nil
}

// RouteModel is a reusable workflow definition. Steps holds the ordered
// step templates, persisted as a JSON column.
type RouteModel struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Steps      []StepTemplate `json:"steps"`
	CreateDate time.Time      `json:"create_date"`
	DeleteDate *time.Time     `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (m *RouteModel) LogID() string { return m.ID }

// LogClass implements audit.Loggable.
func (m *RouteModel) LogClass() string { return "RouteModel" }

// LogMessage implements audit.Loggable.
func (m *RouteModel) LogMessage() string { return m.Name }

// Route is one instantiation of a model on a document.
type Route struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Name       string     `json:"name"`
	CreateDate time.Time  `json:"create_date"`
	DeleteDate *time.Time `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (r *Route) LogID() string { return r.ID }

// LogClass implements audit.Loggable.
func (r *Route) LogClass() string { return "Route" }

// LogMessage implements audit.Loggable.
func (r *Route) LogMessage() string { return r.Name }

// RouteStep is one concrete step of a started route. A nil EndDate marks
// it still open; the lowest-ordered open step is the route's current step.
type RouteStep struct {
	ID              string               `json:"id"`
	RouteID         string               `json:"route_id"`
	Name            string               `json:"name"`
	Type            StepType             `json:"type"`
	Order           int                  `json:"order"`
	TargetID        string               `json:"target_id"`
	TargetType      principal.TargetType `json:"target_type"`
	Transitions     []TransitionDef      `json:"transitions,omitempty"`
	Comment         string               `json:"comment,omitempty"`
	EndDate         *time.Time           `json:"end_date,omitempty"`
	Transition      *Transition          `json:"transition,omitempty"`
	ValidatorUserID *string              `json:"validator_user_id,omitempty"`
	CreateDate      time.Time            `json:"create_date"`
}

// ActionsFor returns the actions configured for the transition, or nil.
func (s *RouteStep) ActionsFor(tr Transition) []actions.Action {
	for _, def := range s.Transitions {
		if def.Name == tr {
			return def.Actions
		}
	}
	return nil
}
