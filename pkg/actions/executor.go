// Package actions executes the side effects attached to route step
// transitions.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/docket/pkg/observability"
)

// Type identifies an action kind. The set is closed: dispatch is an
// explicit switch and nothing outside it runs.
type Type string

const (
	TypeAddTag       Type = "ADD_TAG"
	TypeRemoveTag    Type = "REMOVE_TAG"
	TypeProcessFiles Type = "PROCESS_FILES"
)

// Valid reports whether the type is a known value.
func (t Type) Valid() bool {
	switch t {
	case TypeAddTag, TypeRemoveTag, TypeProcessFiles:
		return true
	}
	return false
}

// Action is one configured side effect on a transition.
type Action struct {
	Type Type   `json:"type" yaml:"type"`
	Tag  string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// ErrInvalidAction is returned by Validate for malformed action
// definitions.
var ErrInvalidAction = errors.New("invalid action")

// TagService is the slice of the tag store the executor needs.
type TagService interface {
	Exists(ctx context.Context, tagID string) (bool, error)
	Attach(ctx context.Context, documentID, tagID string) error
	Detach(ctx context.Context, documentID, tagID string) error
}

// FileReprocessor re-runs ingest processing on a document's files.
type FileReprocessor interface {
	Reprocess(ctx context.Context, documentID string) error
}

// Executor runs transition actions against a document.
type Executor struct {
	tags    TagService
	files   FileReprocessor
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewExecutor creates a new action executor. files may be nil when no file
// pipeline is wired; PROCESS_FILES is then a logged no-op.
func NewExecutor(tags TagService, files FileReprocessor, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{tags: tags, files: files, logger: logger, metrics: metrics}
}

// WithTags returns an executor whose tag service is replaced, used to bind
// the executor into a transaction.
func (e *Executor) WithTags(tags TagService) *Executor {
	return &Executor{tags: tags, files: e.files, logger: e.logger, metrics: e.metrics}
}

// Validate checks an action definition at model-save time. Unknown types
// and tag actions referencing a missing tag are rejected here, not at
// execution.
func (e *Executor) Validate(ctx context.Context, a Action) error {
	switch a.Type {
	case TypeAddTag, TypeRemoveTag:
		if a.Tag == "" {
			return fmt.Errorf("%w: %s requires a tag", ErrInvalidAction, a.Type)
		}
		ok, err := e.tags.Exists(ctx, a.Tag)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown tag %s", ErrInvalidAction, a.Tag)
		}
		return nil
	case TypeProcessFiles:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, a.Type)
	}
}

// Execute runs one action against a document. An unknown type is logged
// and skipped rather than failing the transition; a tag action whose tag
// has since been deleted is a no-op.
func (e *Executor) Execute(ctx context.Context, documentID string, a Action) error {
	var err error
	switch a.Type {
	case TypeAddTag:
		err = e.executeTag(ctx, documentID, a.Tag, e.tags.Attach)
	case TypeRemoveTag:
		err = e.executeTag(ctx, documentID, a.Tag, e.tags.Detach)
	case TypeProcessFiles:
		if e.files != nil {
			err = e.files.Reprocess(ctx, documentID)
		} else {
			e.logger.WithField("document_id", documentID).
				Debug("no file pipeline wired, skipping PROCESS_FILES")
		}
	default:
		e.logger.WithFields(map[string]interface{}{
			"document_id": documentID,
			"action_type": string(a.Type),
		}).Error("unknown action type, skipping")
		e.metrics.ActionExecutionsTotal.WithLabelValues(string(a.Type), "skipped").Inc()
		return nil
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	e.metrics.ActionExecutionsTotal.WithLabelValues(string(a.Type), status).Inc()
	return err
}

// ExecuteAll runs a transition's actions in order, stopping at the first
// error.
func (e *Executor) ExecuteAll(ctx context.Context, documentID string, actions []Action) error {
	for _, a := range actions {
		if err := e.Execute(ctx, documentID, a); err != nil {
			return fmt.Errorf("action %s failed: %w", a.Type, err)
		}
	}
	return nil
}

func (e *Executor) executeTag(ctx context.Context, documentID, tagID string, op func(context.Context, string, string) error) error {
	ok, err := e.tags.Exists(ctx, tagID)
	if err != nil {
		return err
	}
	if !ok {
		// Tag deleted since the model was saved.
		return nil
	}
	return op(ctx, documentID, tagID)
}
