package groups

import (
	"context"
	"database/sql"
	"fmt"
)

// maxAncestorDepth bounds the parent walk so a corrupted hierarchy can
// never loop forever.
const maxAncestorDepth = 10

// GroupIDsForUser implements principal.GroupDirectory. It returns the IDs
// of the active groups the user belongs to directly, plus every ancestor
// group when recursive is set. The walk keeps a visited set so shared
// ancestors appear once and cycles terminate, and it additionally stops at
// maxAncestorDepth levels above a direct membership.
func (s *Store) GroupIDsForUser(ctx context.Context, userID string, recursive bool) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT g.id, g.parent_id
		FROM user_groups ug
		JOIN groups g ON g.id = ug.group_id AND g.delete_date IS NULL
		WHERE ug.user_id = $1 AND ug.delete_date IS NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var ids []string
	visited := make(map[string]bool)
	type pending struct {
		parentID string
		depth    int
	}
	var walk []pending

	for rows.Next() {
		var id string
		var parentID *string
		if err := rows.Scan(&id, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		ids = append(ids, id)
		if recursive && parentID != nil {
			walk = append(walk, pending{parentID: *parentID, depth: 1})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	for len(walk) > 0 {
		p := walk[0]
		walk = walk[1:]
		if visited[p.parentID] || p.depth > maxAncestorDepth {
			continue
		}

		var id string
		var parentID *string
		err := s.q.QueryRowContext(ctx,
			"SELECT id, parent_id FROM groups WHERE id = $1 AND delete_date IS NULL",
			p.parentID,
		).Scan(&id, &parentID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk group hierarchy: %w", err)
		}

		visited[id] = true
		ids = append(ids, id)
		if parentID != nil {
			walk = append(walk, pending{parentID: *parentID, depth: p.depth + 1})
		}
	}

	return ids, nil
}

// MemberUserIDs returns the IDs of active users directly in the group.
func (s *Store) MemberUserIDs(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ug.user_id
		FROM user_groups ug
		JOIN users u ON u.id = ug.user_id AND u.delete_date IS NULL
		WHERE ug.group_id = $1 AND ug.delete_date IS NULL`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
