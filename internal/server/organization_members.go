package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type UpdateMemberRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type TransferOwnershipRequest struct {
	NewOwnerID string `json:"new_owner_id" binding:"required"`
}

func (s *Server) ListOrganizationMembers(c *gin.Context) {
	userID, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	members, err := s.members.ListOrganizationMembers(c.Request.Context(), userID, orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

func (s *Server) UpdateOrganizationMemberRole(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
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
	if err := s.members.UpdateOrganizationMemberRole(c.Request.Context(), actor, orgID, targetID, role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) RemoveOrganizationMember(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}
	targetID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	if err := s.members.RemoveOrganizationMember(c.Request.Context(), actor, orgID, targetID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (s *Server) TransferOwnership(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	var req TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	newOwnerID, err := parseBodyID(req.NewOwnerID, "new_owner_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.members.TransferOwnership(c.Request.Context(), actor, orgID, newOwnerID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
