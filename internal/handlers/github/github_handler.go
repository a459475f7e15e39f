// internal/handlers/github/github_handler.go
package github

import (
	"net/http"

	githubdomain "devsync-agent/internal/domain/github"
	"devsync-agent/internal/oauth"
	"devsync-agent/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GitHubHandler struct {
	coordinator *oauth.Coordinator
	logger      *zap.Logger
}

func NewGitHubHandler(coordinator *oauth.Coordinator, logger *zap.Logger) *GitHubHandler {
	return &GitHubHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Connect starts the account-linking handshake and returns the
// authorization URL to navigate to.
func (h *GitHubHandler) Connect(c *gin.Context) {
	authURL, err := h.coordinator.InitiateLink(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to start account linking", err)
		return
	}

	response.Success(c, http.StatusOK, "linking started", gin.H{
		"authorization_url": authURL,
	})
}

// Callback reconciles the provider return. The provider may deliver
// either a code/state pair or explicit success parameters; both arrive
// here as query parameters.
func (h *GitHubHandler) Callback(c *gin.Context) {
	var params githubdomain.ReturnParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.ValidationError(c, "invalid callback parameters", err)
		return
	}

	result, err := h.coordinator.HandleReturn(c.Request.Context(), params)
	if err != nil {
		h.logger.Warn("link callback rejected", zap.Error(err))
		response.FromError(c, "account linking failed", err)
		return
	}

	response.Success(c, http.StatusOK, "account linked", result)
}

// Status reports the link status from the current session, after
// reconciling with the server.
func (h *GitHubHandler) Status(c *gin.Context) {
	if err := h.coordinator.SyncStatus(c.Request.Context()); err != nil {
		response.FromError(c, "failed to check link status", err)
		return
	}

	response.Success(c, http.StatusOK, "link status", gin.H{
		"connected": h.coordinator.Connected(),
	})
}

// Disconnect removes the provider association.
func (h *GitHubHandler) Disconnect(c *gin.Context) {
	if err := h.coordinator.Unlink(c.Request.Context()); err != nil {
		response.FromError(c, "failed to disconnect account", err)
		return
	}

	response.Success(c, http.StatusOK, "account disconnected", nil)
}
