package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
)

func (s *Server) ListWorkspaces(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	workspaces, err := s.workspaces.List(c.Request.Context(), actor, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"workspaces": workspaces})
}

func (s *Server) CreateWorkspace(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	var req workspacedomain.CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ws, err := s.workspaces.Create(c.Request.Context(), actor, orgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ws)
}

func (s *Server) GetWorkspace(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}

	ws, err := s.workspaces.Get(c.Request.Context(), actor, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ws)
}

func (s *Server) UpdateWorkspace(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}

	var req workspacedomain.UpdateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ws, err := s.workspaces.Update(c.Request.Context(), actor, workspaceID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ws)
}

func (s *Server) DeleteWorkspace(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}

	if err := s.workspaces.SoftDelete(c.Request.Context(), actor, workspaceID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) ListProjects(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}

	projects, err := s.workspaces.ListProjects(c.Request.Context(), actor, workspaceID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (s *Server) CreateProject(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	workspaceID, ok := pathID(c, "workspaceId")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	project, err := s.workspaces.CreateProject(c.Request.Context(), actor, workspaceID, strings.TrimSpace(req.Name))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}
