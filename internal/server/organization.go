package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
)

func (s *Server) ListOrganizations(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}

	orgs, err := s.organizations.ListByUser(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"organizations": orgs})
}

func (s *Server) CreateOrganization(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}

	var req orgdomain.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizations.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, org)
}

func (s *Server) GetOrganization(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	org, err := s.organizations.Get(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	var req orgdomain.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.organizations.Update(c.Request.Context(), userID, orgID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, org)
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	if err := s.organizations.SoftDelete(c.Request.Context(), userID, orgID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
