// internal/store/store.go
package store

import (
	githubdomain "devsync-agent/internal/domain/github"
	sessiondomain "devsync-agent/internal/domain/session"
)

// Store is the durable client-local state slot: one session record and
// one transient link-request record. Every mutation writes the full
// record, never a partial field update.
type Store interface {
	LoadSession() (*sessiondomain.Session, error)
	SaveSession(s *sessiondomain.Session) error
	ClearSession() error

	LoadLinkRequest() (*githubdomain.LinkRequest, error)
	SaveLinkRequest(r *githubdomain.LinkRequest) error
	ClearLinkRequest() error
}
