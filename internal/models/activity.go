package models

import "time"

// Activity event names emitted by the authentication and account flows.
const (
	EventAuthCheckpoint    = "auth:checkpoint"
	EventAuthSuccess       = "auth:success"
	EventAuthFail          = "auth:fail"
	EventPasswordChanged   = "user:password-changed"
	EventTwoFactorEnabled  = "user:two-factor.enable"
	EventTwoFactorDisabled = "user:two-factor.disable"
	EventSubuserCreated    = "server:subuser.create"
	EventSubuserDeleted    = "server:subuser.delete"
)

// Activity is an audit-trail entry. Entries are fire-and-forget from the
// emitting flow's perspective; a write failure never alters control flow.
type Activity struct {
	ID        string
	Event     string
	SubjectID *string // Acting or affected user, when resolved
	IPAddress string
	UserAgent string
	Metadata  map[string]string
	CreatedAt time.Time
}
