// internal/middleware/session_middleware.go
package middleware

import (
	"devsync-agent/internal/pkg/response"
	"devsync-agent/internal/session"

	"github.com/gin-gonic/gin"
)

// SessionMiddleware guards UI routes that require an authenticated
// session.
type SessionMiddleware struct {
	sessions *session.Manager
}

func NewSessionMiddleware(sessions *session.Manager) *SessionMiddleware {
	return &SessionMiddleware{sessions: sessions}
}

// RequireSession rejects requests while no session exists. The session
// snapshot is stored in the request context for the handlers.
func (m *SessionMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := m.sessions.Current()
		if sess == nil {
			response.Unauthorized(c, "not signed in")
			return
		}
		c.Set("session", sess)
		c.Next()
	}
}
