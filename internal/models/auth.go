package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the JWT claims carried by panel API access tokens.
type TokenClaims struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	RootAdmin bool   `json:"root_admin,omitempty"`
	jwt.RegisteredClaims
}
