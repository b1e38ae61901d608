package models

import "time"

// LoginAttempt is the persisted record of a single handshake attempt. The
// lockout decision itself runs on in-memory counters; these rows exist for
// audit trails and are pruned once ExpiresAt passes.
type LoginAttempt struct {
	ID            string
	Key           string // lockout key: lower(identifier)|client_ip
	Identifier    string
	IPAddress     string
	UserAgent     string
	AttemptTime   time.Time
	Success       bool
	FailureReason *string
	ExpiresAt     time.Time
}

// Attempt failure reasons recorded alongside failed handshakes.
const (
	FailureInvalidCredentials = "invalid_credentials"
	FailureLockedOut          = "locked_out"
	FailureSecondFactor       = "invalid_second_factor"
)
