package acl

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/principal"
)

// Checker answers "can this set of targets perform this permission on this
// source object". It is a pure read over freshly-queried data; nothing is
// cached between calls.
type Checker struct {
	q       dbtx
	metrics *observability.Metrics
}

// NewChecker creates a permission checker over the given database handle.
func NewChecker(db *sql.DB, metrics *observability.Metrics) *Checker {
	return &Checker{q: db, metrics: metrics}
}

// WithTx returns a checker bound to the transaction.
func (c *Checker) WithTx(tx *sql.Tx) *Checker {
	return &Checker{q: tx, metrics: c.metrics}
}

// CheckPermission reports whether any target in the set holds the
// permission on the source object. Two grant paths are considered: a direct
// ACL on the source, and for READ, an ACL on a tag actively attached to the
// document. Superusers pass without consulting the store.
func (c *Checker) CheckPermission(ctx context.Context, sourceID string, perm Permission, targets principal.TargetIDSet) (bool, error) {
	start := time.Now()
	allowed, err := c.checkPermission(ctx, sourceID, perm, targets)
	if err != nil {
		return false, err
	}

	if c.metrics != nil {
		c.metrics.ObservePermissionCheck(string(perm), allowed, time.Since(start))
	}
	return allowed, nil
}

func (c *Checker) checkPermission(ctx context.Context, sourceID string, perm Permission, targets principal.TargetIDSet) (bool, error) {
	ctx, span := observability.Tracer("acl").Start(ctx, "CheckPermission")
	defer span.End()
	span.SetAttributes(
		attribute.String("acl.source_id", sourceID),
		attribute.String("acl.perm", string(perm)),
	)

	if targets.Superuser {
		return true, nil
	}
	if targets.Empty() {
		return false, nil
	}

	placeholders := make([]string, len(targets.IDs))
	args := []interface{}{sourceID, string(perm)}
	for i, id := range targets.IDs {
		args = append(args, id)
		placeholders[i] = "$" + strconv.Itoa(len(args))
	}
	in := strings.Join(placeholders, ", ")

	// Direct grants on the source, plus grants inherited through a tag
	// actively attached to the document. Tag inheritance is deliberately
	// READ-only; WRITE never propagates through tags.
	query := `
		SELECT a.id FROM acls a
		WHERE a.source_id = $1 AND a.perm = $2 AND a.target_id IN (` + in + `) AND a.delete_date IS NULL`
	if perm == PermRead {
		query += `
		UNION ALL
		SELECT a.id FROM acls a
		JOIN document_tags dt ON a.source_id = dt.tag_id AND dt.delete_date IS NULL
		JOIN documents d ON dt.document_id = d.id AND d.delete_date IS NULL
		WHERE d.id = $1 AND a.perm = $2 AND a.target_id IN (` + in + `) AND a.delete_date IS NULL`
	}
	query += " LIMIT 1"

	var id string
	err := c.q.QueryRowContext(ctx, query, args...).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check permission on %s: %w", sourceID, err)
	}
	return true, nil
}
