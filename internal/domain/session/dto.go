// internal/domain/session/dto.go
package session

// DTOs for the backend auth endpoints.

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserInfo struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	ProviderLinked   bool   `json:"provider_linked"`
	ProviderUsername string `json:"provider_username,omitempty"`
}

type LoginResponse struct {
	User  UserInfo `json:"user"`
	Token string   `json:"token"`
}

type RefreshResponse struct {
	Token string `json:"token"`
}

// View is the read-only session shape exposed to UI components.
type View struct {
	State            string `json:"state"`
	UserID           string `json:"user_id,omitempty"`
	Role             Role   `json:"role,omitempty"`
	ProviderLinked   bool   `json:"provider_linked"`
	ProviderUsername string `json:"provider_username,omitempty"`
}
