package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
)

func (s *Server) ListWorkspaceInvites(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}

	invites, err := s.invites.ListWorkspaceInvites(c.Request.Context(), actor, ws.OrgID, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (s *Server) CreateWorkspaceInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}

	var req invitedomain.CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invites.CreateWorkspaceInvite(c.Request.Context(), actor, ws.OrgID, workspaceID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (s *Server) RevokeWorkspaceInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}
	inviteID, ok := pathID(c, "inviteId")
	if !ok {
		return
	}

	if err := s.invites.RevokeWorkspaceInvite(c.Request.Context(), actor, ws.OrgID, workspaceID, inviteID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (s *Server) ResendWorkspaceInvite(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}
	inviteID, ok := pathID(c, "inviteId")
	if !ok {
		return
	}

	inv, err := s.invites.ResendWorkspaceInvite(c.Request.Context(), actor, ws.OrgID, workspaceID, inviteID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (s *Server) PreviewWorkspaceInvite(c *gin.Context) {
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	preview, err := s.invites.PreviewWorkspaceInvite(c.Request.Context(), workspaceID, token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, preview)
}

func (s *Server) AcceptWorkspaceInvite(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	if err := s.invites.AcceptWorkspaceInvite(c.Request.Context(), userID, workspaceID, token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) DeclineWorkspaceInvite(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}
	token, ok := inviteToken(c)
	if !ok {
		return
	}

	if err := s.invites.DeclineWorkspaceInvite(c.Request.Context(), userID, workspaceID, token); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}
