package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trackline/trackline/internal/audit"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/auth"
	authdomain "github.com/trackline/trackline/internal/auth/domain"
	"github.com/trackline/trackline/internal/auth/session"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/config"
	"github.com/trackline/trackline/internal/identity"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	"github.com/trackline/trackline/internal/invite"
	invitedomain "github.com/trackline/trackline/internal/invite/domain"
	"github.com/trackline/trackline/internal/membership"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	"github.com/trackline/trackline/internal/observability"
	obslogger "github.com/trackline/trackline/internal/observability/logger"
	obsmetrics "github.com/trackline/trackline/internal/observability/metrics"
	obstracing "github.com/trackline/trackline/internal/observability/tracing"
	"github.com/trackline/trackline/internal/organization"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	"github.com/trackline/trackline/internal/providers/email"
	"github.com/trackline/trackline/internal/ratelimit"
	"github.com/trackline/trackline/internal/workspace"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	fx.Provide(NewEngine),
	identity.Module,
	auth.Module,
	authorization.Module,
	audit.Module,
	organization.Module,
	workspace.Module,
	membership.Module,
	email.Module,
	ratelimit.Module,
	invite.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	authsvc       authdomain.Service
	sessions      *session.Manager
	users         identitydomain.Repository
	authz         authorization.Service
	organizations orgdomain.Service
	workspaces    workspacedomain.Service
	members       membershipdomain.Service
	invites       invitedomain.Service
	auditSvc      auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Authsvc       authdomain.Service
	Sessions      *session.Manager
	Users         identitydomain.Repository
	Authz         authorization.Service
	Organizations orgdomain.Service
	Workspaces    workspacedomain.Service
	Members       membershipdomain.Service
	Invites       invitedomain.Service
	AuditSvc      auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authsvc:       p.Authsvc,
		sessions:      p.Sessions,
		users:         p.Users,
		authz:         p.Authz,
		organizations: p.Organizations,
		workspaces:    p.Workspaces,
		members:       p.Members,
		invites:       p.Invites,
		auditSvc:      p.AuditSvc,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerInviteRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.Register)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Organizations --------
	api.GET("/organizations", s.ListOrganizations)
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations/:orgId", s.GetOrganization)
	api.PATCH("/organizations/:orgId", s.UpdateOrganization)
	api.DELETE("/organizations/:orgId", s.DeleteOrganization)
	api.POST("/organizations/:orgId/transfer-ownership", s.TransferOwnership)

	// -------- Organization members --------
	api.GET("/organizations/:orgId/members", s.ListOrganizationMembers)
	api.PATCH("/organizations/:orgId/members/:userId", s.UpdateOrganizationMemberRole)
	api.DELETE("/organizations/:orgId/members/:userId", s.RemoveOrganizationMember)

	// -------- Organization invites --------
	api.GET("/organizations/:orgId/invites", s.ListOrganizationInvites)
	api.POST("/organizations/:orgId/invites", s.CreateOrganizationInvite)
	api.DELETE("/organizations/:orgId/invites/:inviteId", s.RevokeOrganizationInvite)
	api.POST("/organizations/:orgId/invites/:inviteId/resend", s.ResendOrganizationInvite)

	// -------- Audit trail --------
	api.GET("/organizations/:orgId/audit-logs", s.ListOrganizationAuditLogs)
	api.GET("/workspaces/:workspaceId/audit-logs", s.ListWorkspaceAuditLogs)

	// -------- Workspaces --------
	api.GET("/organizations/:orgId/workspaces", s.ListWorkspaces)
	api.POST("/organizations/:orgId/workspaces", s.CreateWorkspace)
	api.GET("/workspaces/:workspaceId", s.GetWorkspace)
	api.PATCH("/workspaces/:workspaceId", s.UpdateWorkspace)
	api.DELETE("/workspaces/:workspaceId", s.DeleteWorkspace)

	// -------- Workspace members --------
	api.GET("/workspaces/:workspaceId/members", s.ListWorkspaceMembers)
	api.POST("/workspaces/:workspaceId/members", s.AddWorkspaceMember)
	api.PATCH("/workspaces/:workspaceId/members/:userId", s.UpdateWorkspaceMemberRole)
	api.DELETE("/workspaces/:workspaceId/members/:userId", s.RemoveWorkspaceMember)

	// -------- Workspace invites --------
	api.GET("/workspaces/:workspaceId/invites", s.ListWorkspaceInvites)
	api.POST("/workspaces/:workspaceId/invites", s.CreateWorkspaceInvite)
	api.DELETE("/workspaces/:workspaceId/invites/:inviteId", s.RevokeWorkspaceInvite)
	api.POST("/workspaces/:workspaceId/invites/:inviteId/resend", s.ResendWorkspaceInvite)

	// -------- Projects --------
	api.GET("/workspaces/:workspaceId/projects", s.ListProjects)
	api.POST("/workspaces/:workspaceId/projects", s.CreateProject)
	api.GET("/projects/:projectId/members", s.ListProjectMembers)
	api.POST("/projects/:projectId/members", s.AddProjectMember)
	api.DELETE("/projects/:projectId/members/:userId", s.RemoveProjectMember)
}

// registerInviteRoutes exposes the token-bearing invite endpoints. Preview is
// unauthenticated; accept and decline identify the caller via session.
func (s *Server) registerInviteRoutes() {
	inv := s.engine.Group("/invite")

	inv.GET("/organizations/:orgId", s.PreviewOrganizationInvite)
	inv.POST("/organizations/:orgId/accept", s.AuthRequired(), s.AcceptOrganizationInvite)
	inv.POST("/organizations/:orgId/decline", s.AuthRequired(), s.DeclineOrganizationInvite)

	inv.GET("/workspaces/:workspaceId", s.PreviewWorkspaceInvite)
	inv.POST("/workspaces/:workspaceId/accept", s.AuthRequired(), s.AcceptWorkspaceInvite)
	inv.POST("/workspaces/:workspaceId/decline", s.AuthRequired(), s.DeclineWorkspaceInvite)
}
