// Package domain contains the membership ledger models. Membership rows are
// the single source of truth for who belongs where with what role.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	"gorm.io/gorm"
)

// Organization-level roles. Exactly one OWNER exists per organization.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// OrganizationMember represents membership of a user in an organization.
type OrganizationMember struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID    snowflake.ID `gorm:"column:org_id;not null;index;uniqueIndex:ux_org_members_org_user,priority:1" json:"org_id"`
	UserID   snowflake.ID `gorm:"column:user_id;not null;index;uniqueIndex:ux_org_members_org_user,priority:2" json:"user_id"`
	Role     string       `gorm:"type:text;not null" json:"role"`
	JoinedAt time.Time    `gorm:"column:joined_at;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// WorkspaceMember represents membership of a user in a workspace. Workspaces
// have no OWNER tier; ownership is inherited from the organization. A row may
// exist only while the user is also a member of the owning organization.
type WorkspaceMember struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"column:workspace_id;not null;index;uniqueIndex:ux_ws_members_ws_user,priority:1" json:"workspace_id"`
	OrgID       snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	UserID      snowflake.ID `gorm:"column:user_id;not null;index;uniqueIndex:ux_ws_members_ws_user,priority:2" json:"user_id"`
	Role        string       `gorm:"type:text;not null" json:"role"`
	JoinedAt    time.Time    `gorm:"column:joined_at;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// TableName sets the database table name.
func (WorkspaceMember) TableName() string { return "workspace_members" }

// ProjectMember assigns a user to a project. Projects carry no role tier of
// their own.
type ProjectMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProjectID snowflake.ID `gorm:"column:project_id;not null;index;uniqueIndex:ux_proj_members_proj_user,priority:1" json:"project_id"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index;uniqueIndex:ux_proj_members_proj_user,priority:2" json:"user_id"`
	JoinedAt  time.Time    `gorm:"column:joined_at;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

// TableName sets the database table name.
func (ProjectMember) TableName() string { return "project_members" }

// MemberView is the member list item returned to clients.
type MemberView struct {
	ID       string                 `json:"id"`
	User     identitydomain.UserRef `json:"user"`
	Role     string                 `json:"role,omitempty"`
	JoinedAt time.Time              `json:"joined_at"`
}

// Repository is the ledger's persistence interface.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	GetOrgMember(ctx context.Context, orgID, userID snowflake.ID) (*OrganizationMember, error)
	ListOrgMembers(ctx context.Context, orgID snowflake.ID) ([]OrganizationMember, error)
	CreateOrgMember(ctx context.Context, member OrganizationMember) error
	UpdateOrgMemberRole(ctx context.Context, orgID, userID snowflake.ID, role string) error
	DeleteOrgMember(ctx context.Context, orgID, userID snowflake.ID) error

	GetWorkspaceMember(ctx context.Context, workspaceID, userID snowflake.ID) (*WorkspaceMember, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID snowflake.ID) ([]WorkspaceMember, error)
	CreateWorkspaceMember(ctx context.Context, member WorkspaceMember) error
	UpdateWorkspaceMemberRole(ctx context.Context, workspaceID, userID snowflake.ID, role string) error
	DeleteWorkspaceMember(ctx context.Context, workspaceID, userID snowflake.ID) error
	DeleteWorkspaceMembersByOrgUser(ctx context.Context, orgID, userID snowflake.ID) error

	GetProjectMember(ctx context.Context, projectID, userID snowflake.ID) (*ProjectMember, error)
	ListProjectMembers(ctx context.Context, projectID snowflake.ID) ([]ProjectMember, error)
	CreateProjectMember(ctx context.Context, member ProjectMember) error
	DeleteProjectMember(ctx context.Context, projectID, userID snowflake.ID) error
}

// Service is the ledger's mutation surface. Every mutation is authorized
// against the caller's role and mirrored into the audit trail.
type Service interface {
	ListOrganizationMembers(ctx context.Context, actorID, orgID snowflake.ID) ([]MemberView, error)
	UpdateOrganizationMemberRole(ctx context.Context, actorID, orgID, userID snowflake.ID, role string) error
	RemoveOrganizationMember(ctx context.Context, actorID, orgID, userID snowflake.ID) error
	TransferOwnership(ctx context.Context, actorID, orgID, newOwnerID snowflake.ID) error

	ListWorkspaceMembers(ctx context.Context, actorID, orgID, workspaceID snowflake.ID) ([]MemberView, error)
	AddWorkspaceMember(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID, role string) error
	UpdateWorkspaceMemberRole(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID, role string) error
	RemoveWorkspaceMember(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID) error

	ListProjectMembers(ctx context.Context, actorID, orgID, workspaceID, projectID snowflake.ID) ([]MemberView, error)
	AddProjectMember(ctx context.Context, actorID, orgID, workspaceID, projectID, userID snowflake.ID) error
	RemoveProjectMember(ctx context.Context, actorID, orgID, workspaceID, projectID, userID snowflake.ID) error
}

var (
	ErrMemberNotFound      = errors.New("member_not_found")
	ErrNotAMember          = errors.New("not_a_member")
	ErrDuplicateMembership = errors.New("duplicate_membership")
	ErrCannotModifyOwner   = errors.New("cannot_modify_owner")
	ErrInvalidRole         = errors.New("invalid_role")
)

// ValidOrgRole reports whether role is assignable at the organization level.
// OWNER is excluded: it is granted only at org creation or through ownership
// transfer.
func ValidOrgRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}

// ValidWorkspaceRole reports whether role is assignable at the workspace
// level.
func ValidWorkspaceRole(role string) bool {
	return role == RoleAdmin || role == RoleMember
}
