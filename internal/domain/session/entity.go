// internal/domain/session/entity.go
package session

import (
	"errors"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// Session represents the current authenticated actor. The session
// manager is the sole owner; everyone else gets read-only copies.
type Session struct {
	UserID           string     `json:"user_id"`
	Role             Role       `json:"role"`
	AuthToken        string     `json:"token"`
	TokenExpiry      *time.Time `json:"token_expiry,omitempty"`
	ProviderLinked   bool       `json:"provider_linked"`
	ProviderUsername string     `json:"provider_username,omitempty"`
}

// Validate checks the invariants a durable record must satisfy before
// it can seed the authenticated state.
func (s *Session) Validate() error {
	if s.UserID == "" {
		return errors.New("session has no user id")
	}
	if s.AuthToken == "" {
		return errors.New("session has no auth token")
	}
	if s.ProviderLinked && s.ProviderUsername == "" {
		return errors.New("provider linked without a provider username")
	}
	return nil
}

// ExpiresWithin reports whether the token expiry is known and falls
// inside the given window from now.
func (s *Session) ExpiresWithin(window time.Duration) bool {
	if s.TokenExpiry == nil {
		return false
	}
	return time.Until(*s.TokenExpiry) <= window
}

// Clone returns an independent copy safe to hand to dependents.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.TokenExpiry != nil {
		t := *s.TokenExpiry
		cp.TokenExpiry = &t
	}
	return &cp
}
