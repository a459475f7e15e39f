// internal/domain/github/entity.go
package github

import "time"

// LinkRequest is the one-time handshake token for the OAuth linking
// flow. It is persisted durably because the provider redirect may
// reload the application before the callback is observed.
type LinkRequest struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	OwnerUserID string    `json:"owner_user_id"`
	IssuedAt    time.Time `json:"issued_at"`
	Consumed    bool      `json:"consumed"`
}

// IsExpired reports whether the request fell outside its validity
// window.
func (r *LinkRequest) IsExpired(ttl time.Duration) bool {
	return time.Since(r.IssuedAt) > ttl
}

// ReturnParams are the query/body parameters observed when control
// returns from the provider, via any of the supported paths.
type ReturnParams struct {
	Code     string `form:"code" json:"code"`
	State    string `form:"state" json:"state"`
	Error    string `form:"error" json:"error"`
	Success  string `form:"github_success" json:"github_success"`
	Username string `form:"github_username" json:"github_username"`
	UserID   string `form:"user_id" json:"user_id"`
}

// ExplicitSuccess reports whether the return carries the
// application-issued success parameters rather than a raw
// authorization code.
func (p *ReturnParams) ExplicitSuccess() bool {
	return p.Success == "true" && p.Username != ""
}

// LinkResult is the outcome of a completed handshake.
type LinkResult struct {
	Linked   bool   `json:"linked"`
	Username string `json:"username"`
}

// LinkStatus is the server-side view of the provider association.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	Username  string `json:"username"`
}
