package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proserveapp/proserve/internal/middleware"
	"github.com/proserveapp/proserve/internal/services"
	appErrors "github.com/proserveapp/proserve/pkg/errors"
	"github.com/proserveapp/proserve/pkg/metrics"
	"github.com/proserveapp/proserve/pkg/response"
)

// InvitationsHandler exposes the invitation arm of onboarding.
type InvitationsHandler struct {
	invitations *services.InvitationService
}

func NewInvitationsHandler(invitations *services.InvitationService) *InvitationsHandler {
	return &InvitationsHandler{invitations: invitations}
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=100"`
}

// POST /api/invitations
func (h *InvitationsHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	invitedBy := c.GetString(middleware.CtxUserIDKey)
	user, err := h.invitations.Invite(requestContext(c), req.Email, req.Name, invitedBy)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":     user.ID,
		"email":  user.Email,
		"status": user.Status,
	})
}

// GET /api/invitations/accept?token=...
func (h *InvitationsHandler) Accept(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("token is required"))
		return
	}

	user, err := h.invitations.Accept(requestContext(c), token)
	if err != nil {
		metrics.Activations.WithLabelValues("invitation", "error").Inc()
		response.Error(c, serviceError(err))
		return
	}

	metrics.Activations.WithLabelValues("invitation", "created").Inc()
	response.Success(c, http.StatusOK, gin.H{"status": user.Status})
}

// GET /api/invitations/reject?token=...
func (h *InvitationsHandler) Reject(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("token is required"))
		return
	}

	user, err := h.invitations.Reject(requestContext(c), token)
	if err != nil {
		response.Error(c, serviceError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": user.Status})
}
