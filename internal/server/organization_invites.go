package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
)

func inviteToken(c *gin.Context) (string, bool) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		var body struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&body); err == nil {
			token = strings.TrimSpace(body.Token)
		}
	}
	if token == "" {
		AbortWithError(c, newValidationError("token", "required", "token is required"))
		return "", false
	}
	return token, true
}

func (s *Server) ListOrganizationInvites(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	invites, err := s.invites.ListOrgInvites(c.Request.Context(), actor, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (s *Server) CreateOrganizationInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	var req invitedomain.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invites.CreateOrgInvite(c.Request.Context(), actor, orgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (s *Server) RevokeOrganizationInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	inviteID, ok := pathID(c, "inviteId")
	if !ok {
		return
	}

	if err := s.invites.RevokeOrgInvite(c.Request.Context(), actor, orgID, inviteID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (s *Server) ResendOrganizationInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	inviteID, ok := pathID(c, "inviteId")
	if !ok {
		return
	}

	inv, err := s.invites.ResendOrgInvite(c.Request.Context(), actor, orgID, inviteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (s *Server) PreviewOrganizationInvite(c *gin.Context) {
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	preview, err := s.invites.PreviewOrgInvite(c.Request.Context(), orgID, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

func (s *Server) AcceptOrganizationInvite(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	if err := s.invites.AcceptOrgInvite(c.Request.Context(), userID, orgID, token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) DeclineOrganizationInvite(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	if err := s.invites.DeclineOrgInvite(c.Request.Context(), userID, orgID, token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}
