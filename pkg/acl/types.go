package acl

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/docket/pkg/principal"
)

// Permission is an access level grantable on a source object.
type Permission string

const (
	PermRead  Permission = "READ"
	PermWrite Permission = "WRITE"
)

// Valid reports whether the permission is a known value.
func (p Permission) Valid() bool {
	return p == PermRead || p == PermWrite
}

// Kind distinguishes user-managed grants from the temporary grants the
// route engine maintains for the current step's target.
type Kind string

const (
	KindUser    Kind = "USER"
	KindRouting Kind = "ROUTING"
)

// ErrBaseACL is returned when deleting the creator's base grant on a
// document or tag, which would orphan the object.
var ErrBaseACL = errors.New("cannot delete base ACL")

// ACL represents one grant of a permission on a source object (document,
// tag or route model) to a target (user, group or share). A non-nil
// DeleteDate makes the row logically absent.
type ACL struct {
	ID         string               `json:"id"`
	SourceID   string               `json:"source_id"`
	Perm       Permission           `json:"perm"`
	TargetID   string               `json:"target_id"`
	TargetType principal.TargetType `json:"target_type"`
	Kind       Kind                 `json:"kind"`
	CreateDate time.Time            `json:"create_date"`
	DeleteDate *time.Time           `json:"delete_date,omitempty"`
}

// LogID implements audit.Loggable.
func (a *ACL) LogID() string { return a.ID }

// LogClass implements audit.Loggable.
func (a *ACL) LogClass() string { return "Acl" }

// LogMessage implements audit.Loggable.
func (a *ACL) LogMessage() string {
	return fmt.Sprintf("%s %s on %s for %s", a.Perm, a.Kind, a.SourceID, a.TargetID)
}
