// Package principal defines who is acting: the authenticated caller and
// the set of identities grants are matched against.
package principal

// TargetType classifies what a grant or step assignment points at.
type TargetType string

const (
	TargetUser  TargetType = "USER"
	TargetGroup TargetType = "GROUP"
	TargetShare TargetType = "SHARE"
)

// Valid reports whether the target type is a known value.
func (t TargetType) Valid() bool {
	switch t {
	case TargetUser, TargetGroup, TargetShare:
		return true
	}
	return false
}

// Principal is the authenticated caller. Superuser is an explicit flag on
// the user record; no username or group name carries special meaning.
type Principal struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Superuser bool   `json:"superuser"`
}

// TargetIDSet is the flattened identity set of a principal: their user ID
// plus every group they belong to, direct or inherited. Permission checks
// match grants against this set.
type TargetIDSet struct {
	IDs       []string
	Superuser bool
}

// Contains reports whether the ID is in the set.
func (s TargetIDSet) Contains(id string) bool {
	for _, v := range s.IDs {
		if v == id {
			return true
		}
	}
	return false
}

// Empty reports whether the set carries no IDs.
func (s TargetIDSet) Empty() bool {
	return len(s.IDs) == 0
}
