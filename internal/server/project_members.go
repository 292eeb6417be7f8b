package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type AddProjectMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// resolveProject walks project -> workspace -> org so the membership service
// receives the full scope chain.
func (s *Server) resolveProject(c *gin.Context) (orgID, workspaceID, projectID snowflake.ID, ok bool) {
	projectID, ok = pathID(c, "projectId")
	if !ok {
		return 0, 0, 0, false
	}

	project, err := s.workspaces.ResolveProject(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return 0, 0, 0, false
	}

	ws, err := s.workspaces.Resolve(c.Request.Context(), project.WorkspaceID)
	if err != nil {
		AbortWithError(c, err)
		return 0, 0, 0, false
	}

	return ws.OrgID, project.WorkspaceID, projectID, true
}

func (s *Server) ListProjectMembers(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, workspaceID, projectID, ok := s.resolveProject(c)
	if !ok {
		return
	}

	members, err := s.members.ListProjectMembers(c.Request.Context(), actor, orgID, workspaceID, projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) AddProjectMember(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, workspaceID, projectID, ok := s.resolveProject(c)
	if !ok {
		return
	}

	var req AddProjectMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	userID, err := parseBodyID(req.UserID, "user_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.members.AddProjectMember(c.Request.Context(), actor, orgID, workspaceID, projectID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "added"})
}

func (s *Server) RemoveProjectMember(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, workspaceID, projectID, ok := s.resolveProject(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := s.members.RemoveProjectMember(c.Request.Context(), actor, orgID, workspaceID, projectID, targetID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
