// internal/handlers/session/session_handler.go
package session

import (
	"net/http"

	sessiondomain "devsync-agent/internal/domain/session"
	"devsync-agent/internal/pkg/response"
	"devsync-agent/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// Login authenticates against the backend and establishes the session.
func (h *SessionHandler) Login(c *gin.Context) {
	var req sessiondomain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid login payload", err)
		return
	}

	sess, err := h.sessions.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.FromError(c, "login failed", err)
		return
	}

	response.Success(c, http.StatusOK, "signed in", gin.H{
		"user_id":           sess.UserID,
		"role":              sess.Role,
		"provider_linked":   sess.ProviderLinked,
		"provider_username": sess.ProviderUsername,
	})
}

// Logout destroys the session. The local state is always cleared; a
// remote invalidation failure is reported but not treated as fatal.
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.sessions.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("remote logout failed", zap.Error(err))
		response.Success(c, http.StatusOK, "signed out locally, remote invalidation failed", nil)
		return
	}

	response.Success(c, http.StatusOK, "signed out", nil)
}

// Refresh forces a token refresh.
func (h *SessionHandler) Refresh(c *gin.Context) {
	sess, err := h.sessions.Refresh(c.Request.Context())
	if err != nil {
		response.FromError(c, "refresh failed", err)
		return
	}

	response.Success(c, http.StatusOK, "session refreshed", gin.H{
		"user_id": sess.UserID,
		"role":    sess.Role,
	})
}

// GetSession returns the current session view.
func (h *SessionHandler) GetSession(c *gin.Context) {
	response.Success(c, http.StatusOK, "session state", h.sessions.View())
}
