package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/authorization"
)

func (s *Server) ListOrganizationAuditLogs(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "orgId")
	if !ok {
		return
	}

	if err := s.authz.AuthorizeOrg(c.Request.Context(), actor, orgID, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	req, err := buildAuditListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.OrgID = orgID

	result, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListWorkspaceAuditLogs(c *gin.Context) {
	actor, ok := mustActorID(c)
	if !ok {
		return
	}
	ws, workspaceID, ok := s.resolveWorkspace(c)
	if !ok {
		return
	}

	if err := s.authz.AuthorizeWorkspace(c.Request.Context(), actor, ws.OrgID, workspaceID, authorization.ObjectAuditLog, authorization.ActionAuditLogView); err != nil {
		AbortWithError(c, err)
		return
	}

	req, err := buildAuditListRequest(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.OrgID = ws.OrgID
	req.WorkspaceID = &workspaceID

	result, err := s.auditSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func buildAuditListRequest(c *gin.Context) (auditdomain.ListAuditLogRequest, error) {
	var req auditdomain.ListAuditLogRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		return req, newValidationError("page_size", "invalid_page_size", "invalid page size")
	}

	req.Action = strings.TrimSpace(c.Query("action"))
	req.TargetType = strings.TrimSpace(c.Query("target_type"))
	req.TargetID = strings.TrimSpace(c.Query("target_id"))
	req.ActorType = strings.TrimSpace(c.Query("actor_type"))

	startAt, err := parseOptionalTime(c.Query("start"), false)
	if err != nil {
		return req, newValidationError("start", "invalid_time", "invalid start time")
	}
	endAt, err := parseOptionalTime(c.Query("end"), true)
	if err != nil {
		return req, newValidationError("end", "invalid_time", "invalid end time")
	}
	req.StartAt = startAt
	req.EndAt = endAt

	return req, nil
}
