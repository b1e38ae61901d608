package models

import (
	"time"
)

// User is a panel account. Username and email are each globally unique and
// either one may be submitted as the login identifier.
type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Language          string
	RootAdmin         bool
	UseTOTP           bool       // Second factor enrolled and verified
	TOTPSecret        []byte     // AES-256-GCM encrypted TOTP secret
	TOTPSecretNonce   []byte     // GCM nonce (12 bytes)
	TOTPAuthenticated *time.Time // Last successful checkpoint, for code replay prevention
	PasswordChangedAt *time.Time // Invalidates tokens issued before this time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
