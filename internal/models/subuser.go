package models

import "time"

// Subuser grants a panel user scoped access to a single server. Permissions
// are stored as a flat string array (e.g. "file.read", "user.create").
type Subuser struct {
	ID          string
	ServerID    string
	UserID      string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SubuserWithUser joins the subuser grant with the account it belongs to,
// for list views.
type SubuserWithUser struct {
	Subuser
	Username string
	Email    string
	UseTOTP  bool
}
