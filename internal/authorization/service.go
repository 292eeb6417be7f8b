// Package authorization decides whether an actor may perform an action on a
// resource. It is a pure read path: role resolution comes from the membership
// ledger and the per-role action policy is enforced with casbin. Decisions
// have no side effects beyond optional denial audit entries.
package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// Objects the policy knows about.
const (
	ObjectOrganization    = "organization"
	ObjectMember          = "member"
	ObjectWorkspace       = "workspace"
	ObjectWorkspaceMember = "workspace_member"
	ObjectInvite          = "invite"
	ObjectWorkspaceInvite = "workspace_invite"
	ObjectProjectMember   = "project_member"
	ObjectAuditLog        = "audit_log"
)

// Actions, one per privileged operation.
const (
	ActionOrganizationView              = "organization.view"
	ActionOrganizationUpdate            = "organization.update"
	ActionOrganizationDelete            = "organization.delete"
	ActionOrganizationTransferOwnership = "organization.transfer_ownership"

	ActionMemberView       = "member.view"
	ActionMemberUpdateRole = "member.update_role"
	ActionMemberRemove     = "member.remove"

	ActionWorkspaceCreate = "workspace.create"
	ActionWorkspaceView   = "workspace.view"
	ActionWorkspaceUpdate = "workspace.update"
	ActionWorkspaceDelete = "workspace.delete"

	ActionWorkspaceMemberView       = "workspace_member.view"
	ActionWorkspaceMemberAdd        = "workspace_member.add"
	ActionWorkspaceMemberUpdateRole = "workspace_member.update_role"
	ActionWorkspaceMemberRemove     = "workspace_member.remove"

	ActionInviteView   = "invite.view"
	ActionInviteCreate = "invite.create"
	ActionInviteRevoke = "invite.revoke"
	ActionInviteResend = "invite.resend"

	ActionWorkspaceInviteView   = "workspace_invite.view"
	ActionWorkspaceInviteCreate = "workspace_invite.create"
	ActionWorkspaceInviteRevoke = "workspace_invite.revoke"
	ActionWorkspaceInviteResend = "workspace_invite.resend"

	ActionProjectMemberView   = "project_member.view"
	ActionProjectMemberAdd    = "project_member.add"
	ActionProjectMemberRemove = "project_member.remove"

	ActionAuditLogView = "audit_log.view"
)

// Service answers allow/deny questions. AuthorizeWorkspace falls back to the
// actor's organization role when no workspace membership row exists, so org
// owners and admins hold implicit authority over every workspace beneath
// them.
type Service interface {
	AuthorizeOrg(ctx context.Context, actorID, orgID snowflake.ID, object, action string) error
	AuthorizeWorkspace(ctx context.Context, actorID, orgID, workspaceID snowflake.ID, object, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInsufficientRole    = errors.New("insufficient_role")
)

// Module wires the enforcer and decision service.
var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
