package principal

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidTarget is returned when a target name does not resolve to an
// active user or group.
var ErrInvalidTarget = errors.New("invalid target")

// UserDirectory resolves usernames to active user IDs.
type UserDirectory interface {
	// ActiveUserIDByUsername returns "" when no active user matches.
	ActiveUserIDByUsername(ctx context.Context, username string) (string, error)
}

// GroupDirectory resolves group names and memberships.
type GroupDirectory interface {
	// ActiveGroupIDByName returns "" when no active group matches.
	ActiveGroupIDByName(ctx context.Context, name string) (string, error)
	// GroupIDsForUser returns the user's group IDs, including ancestor
	// groups when recursive is set.
	GroupIDsForUser(ctx context.Context, userID string, recursive bool) ([]string, error)
}

// Resolver turns names into grant target IDs and principals into the
// identity sets permission checks run against.
type Resolver struct {
	users  UserDirectory
	groups GroupDirectory
}

// NewResolver creates a new resolver.
func NewResolver(users UserDirectory, groups GroupDirectory) *Resolver {
	return &Resolver{users: users, groups: groups}
}

// ResolveTargetID resolves a user or group name to its ID.
func (r *Resolver) ResolveTargetID(ctx context.Context, name string, targetType TargetType) (string, error) {
	var id string
	var err error
	switch targetType {
	case TargetUser:
		id, err = r.users.ActiveUserIDByUsername(ctx, name)
	case TargetGroup:
		id, err = r.groups.ActiveGroupIDByName(ctx, name)
	default:
		return "", fmt.Errorf("%w: unsupported target type %q", ErrInvalidTarget, targetType)
	}
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s %q not found", ErrInvalidTarget, targetType, name)
	}
	return id, nil
}

// TargetIDSet flattens a principal into the IDs grants can match: the
// user's own ID plus every group in their recursive membership.
func (r *Resolver) TargetIDSet(ctx context.Context, p *Principal) (TargetIDSet, error) {
	groupIDs, err := r.groups.GroupIDsForUser(ctx, p.UserID, true)
	if err != nil {
		return TargetIDSet{}, err
	}
	ids := make([]string, 0, len(groupIDs)+1)
	ids = append(ids, p.UserID)
	ids = append(ids, groupIDs...)
	return TargetIDSet{IDs: ids, Superuser: p.Superuser}, nil
}
