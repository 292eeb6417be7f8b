package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
)

type AddWorkspaceMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// resolveWorkspace maps the path workspace id to its row so handlers can pass
// the owning org id into the membership and invite services.
func (s *Server) resolveWorkspace(c *gin.Context) (*workspacedomain.Workspace, snowflake.ID, bool) {
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return nil, 0, false
	}

	ws, err := s.workspaces.Resolve(c.Request.Context(), workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return nil, 0, false
	}
	return ws, workspaceID, true
}

func (s *Server) ListWorkspaceMembers(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}

	members, err := s.members.ListWorkspaceMembers(c.Request.Context(), actor, ws.OrgID, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) AddWorkspaceMember(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}

	var req AddWorkspaceMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := parseBodyID(req.UserID, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if err := s.members.AddWorkspaceMember(c.Request.Context(), actor, ws.OrgID, workspaceID, userID, role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "added"})
}

func (s *Server) UpdateWorkspaceMemberRole(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	var req UpdateMemberRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	if err := s.members.UpdateWorkspaceMemberRole(c.Request.Context(), actor, ws.OrgID, workspaceID, targetID, role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RemoveWorkspaceMember(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := s.members.RemoveWorkspaceMember(c.Request.Context(), actor, ws.OrgID, workspaceID, targetID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
