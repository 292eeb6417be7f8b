package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Members  membershipdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	members  membershipdomain.Repository
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		members:  p.Members,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) AuthorizeOrg(ctx context.Context, actorID, orgID snowflake.ID, object, action string) error {
	if err := validateRequest(actorID, orgID, object, action); err != nil {
		return err
	}

	role, err := s.orgRole(ctx, orgID, actorID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNotAMember) {
			s.auditDenied(ctx, actorID, &orgID, nil, object, action, "not_a_member")
		}
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	return s.enforce(ctx, actorID, &orgID, nil, domain, role, object, action)
}

func (s *ServiceImpl) AuthorizeWorkspace(ctx context.Context, actorID, orgID, workspaceID snowflake.ID, object, action string) error {
	if err := validateRequest(actorID, orgID, object, action); err != nil {
		return err
	}
	if workspaceID == 0 {
		return ErrInvalidObject
	}

	role, err := s.workspaceRole(ctx, orgID, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrNotAMember) {
			s.auditDenied(ctx, actorID, &orgID, &workspaceID, object, action, "not_a_member")
		}
		return err
	}

	domain := fmt.Sprintf("workspace:%s", workspaceID)
	return s.enforce(ctx, actorID, &orgID, &workspaceID, domain, role, object, action)
}

func (s *ServiceImpl) enforce(ctx context.Context, actorID snowflake.ID, orgID, workspaceID *snowflake.ID, domain, role, object, action string) error {
	subject := fmt.Sprintf("user:%s", actorID)
	roleName := fmt.Sprintf("role:%s", strings.ToLower(role))

	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorID, orgID, workspaceID, object, action, "insufficient_role")
		return ErrInsufficientRole
	}
	return nil
}

// orgRole resolves the actor's organization role from the membership ledger.
func (s *ServiceImpl) orgRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	member, err := s.members.GetOrgMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, membershipdomain.ErrMemberNotFound) {
			return "", membershipdomain.ErrNotAMember
		}
		return "", err
	}
	return member.Role, nil
}

// workspaceRole resolves the actor's effective workspace role. An explicit
// workspace membership row wins; otherwise the organization role is the
// ceiling: org OWNER and ADMIN act as workspace ADMIN, org MEMBER as
// workspace MEMBER.
func (s *ServiceImpl) workspaceRole(ctx context.Context, orgID, workspaceID, userID snowflake.ID) (string, error) {
	member, err := s.members.GetWorkspaceMember(ctx, workspaceID, userID)
	if err == nil {
		return member.Role, nil
	}
	if !errors.Is(err, membershipdomain.ErrMemberNotFound) {
		return "", err
	}

	orgRole, err := s.orgRole(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	switch orgRole {
	case membershipdomain.RoleOwner, membershipdomain.RoleAdmin:
		return membershipdomain.RoleAdmin, nil
	default:
		return membershipdomain.RoleMember, nil
	}
}

func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorID snowflake.ID, orgID, workspaceID *snowflake.ID, object, action, reason string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		Action:      "authorization.denied",
		TargetType:  "authorization",
		TargetID:    object,
		Details: map[string]any{
			"object": object,
			"action": action,
			"reason": reason,
			"actor":  fmt.Sprintf("user:%s", actorID),
		},
	})
	if err != nil {
		s.log.Warn("record denial", zap.Error(err))
	}
}

func validateRequest(actorID, orgID snowflake.ID, object, action string) error {
	if actorID == 0 {
		return ErrInvalidActor
	}
	if orgID == 0 {
		return ErrInvalidOrganization
	}
	if strings.TrimSpace(object) == "" {
		return ErrInvalidObject
	}
	if strings.TrimSpace(action) == "" {
		return ErrInvalidAction
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions (read-only)
		{"role:member", ObjectOrganization, ActionOrganizationView},
		{"role:member", ObjectMember, ActionMemberView},
		{"role:member", ObjectWorkspace, ActionWorkspaceView},
		{"role:member", ObjectWorkspaceMember, ActionWorkspaceMemberView},
		{"role:member", ObjectProjectMember, ActionProjectMemberView},

		// Admin permissions
		{"role:admin", ObjectOrganization, ActionOrganizationView},
		{"role:admin", ObjectOrganization, ActionOrganizationUpdate},
		{"role:admin", ObjectMember, ActionMemberView},
		{"role:admin", ObjectMember, ActionMemberUpdateRole},
		{"role:admin", ObjectMember, ActionMemberRemove},
		{"role:admin", ObjectWorkspace, ActionWorkspaceCreate},
		{"role:admin", ObjectWorkspace, ActionWorkspaceView},
		{"role:admin", ObjectWorkspace, ActionWorkspaceUpdate},
		{"role:admin", ObjectWorkspace, ActionWorkspaceDelete},
		{"role:admin", ObjectWorkspaceMember, ActionWorkspaceMemberView},
		{"role:admin", ObjectWorkspaceMember, ActionWorkspaceMemberAdd},
		{"role:admin", ObjectWorkspaceMember, ActionWorkspaceMemberUpdateRole},
		{"role:admin", ObjectWorkspaceMember, ActionWorkspaceMemberRemove},
		{"role:admin", ObjectInvite, ActionInviteView},
		{"role:admin", ObjectInvite, ActionInviteCreate},
		{"role:admin", ObjectInvite, ActionInviteRevoke},
		{"role:admin", ObjectInvite, ActionInviteResend},
		{"role:admin", ObjectWorkspaceInvite, ActionWorkspaceInviteView},
		{"role:admin", ObjectWorkspaceInvite, ActionWorkspaceInviteCreate},
		{"role:admin", ObjectWorkspaceInvite, ActionWorkspaceInviteRevoke},
		{"role:admin", ObjectWorkspaceInvite, ActionWorkspaceInviteResend},
		{"role:admin", ObjectProjectMember, ActionProjectMemberView},
		{"role:admin", ObjectProjectMember, ActionProjectMemberAdd},
		{"role:admin", ObjectProjectMember, ActionProjectMemberRemove},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Owner permissions
		{"role:owner", ObjectOrganization, ActionOrganizationView},
		{"role:owner", ObjectOrganization, ActionOrganizationUpdate},
		{"role:owner", ObjectOrganization, ActionOrganizationDelete},
		{"role:owner", ObjectOrganization, ActionOrganizationTransferOwnership},
		{"role:owner", ObjectMember, ActionMemberView},
		{"role:owner", ObjectMember, ActionMemberUpdateRole},
		{"role:owner", ObjectMember, ActionMemberRemove},
		{"role:owner", ObjectWorkspace, ActionWorkspaceCreate},
		{"role:owner", ObjectWorkspace, ActionWorkspaceView},
		{"role:owner", ObjectWorkspace, ActionWorkspaceUpdate},
		{"role:owner", ObjectWorkspace, ActionWorkspaceDelete},
		{"role:owner", ObjectWorkspaceMember, ActionWorkspaceMemberView},
		{"role:owner", ObjectWorkspaceMember, ActionWorkspaceMemberAdd},
		{"role:owner", ObjectWorkspaceMember, ActionWorkspaceMemberUpdateRole},
		{"role:owner", ObjectWorkspaceMember, ActionWorkspaceMemberRemove},
		{"role:owner", ObjectInvite, ActionInviteView},
		{"role:owner", ObjectInvite, ActionInviteCreate},
		{"role:owner", ObjectInvite, ActionInviteRevoke},
		{"role:owner", ObjectInvite, ActionInviteResend},
		{"role:owner", ObjectWorkspaceInvite, ActionWorkspaceInviteView},
		{"role:owner", ObjectWorkspaceInvite, ActionWorkspaceInviteCreate},
		{"role:owner", ObjectWorkspaceInvite, ActionWorkspaceInviteRevoke},
		{"role:owner", ObjectWorkspaceInvite, ActionWorkspaceInviteResend},
		{"role:owner", ObjectProjectMember, ActionProjectMemberView},
		{"role:owner", ObjectProjectMember, ActionProjectMemberAdd},
		{"role:owner", ObjectProjectMember, ActionProjectMemberRemove},
		{"role:owner", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
