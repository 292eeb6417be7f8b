// Package domain contains the append-only audit trail types. Audit rows are
// never updated or deleted once written.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

// Audit actions, one per privileged mutation.
const (
	ActionOrganizationCreate            = "ORGANIZATION_CREATE"
	ActionOrganizationUpdate            = "ORGANIZATION_UPDATE"
	ActionOrganizationDelete            = "ORGANIZATION_DELETE"
	ActionOrganizationMemberAdd         = "ORGANIZATION_MEMBER_ADD"
	ActionOrganizationMemberRoleUpdate  = "ORGANIZATION_MEMBER_ROLE_UPDATE"
	ActionOrganizationMemberRemove      = "ORGANIZATION_MEMBER_REMOVE"
	ActionOrganizationOwnershipTransfer = "ORGANIZATION_OWNERSHIP_TRANSFER"
	ActionOrganizationInviteCreate      = "ORGANIZATION_INVITE_CREATE"
	ActionOrganizationInviteDecline     = "ORGANIZATION_INVITE_DECLINE"
	ActionOrganizationInviteRevoke      = "ORGANIZATION_INVITE_REVOKE"
	ActionOrganizationInviteResend      = "ORGANIZATION_INVITE_RESEND"
	ActionWorkspaceCreate               = "WORKSPACE_CREATE"
	ActionWorkspaceUpdate               = "WORKSPACE_UPDATE"
	ActionWorkspaceDelete               = "WORKSPACE_DELETE"
	ActionWorkspaceMemberAdd            = "WORKSPACE_MEMBER_ADD"
	ActionWorkspaceMemberRoleUpdate     = "WORKSPACE_MEMBER_ROLE_UPDATE"
	ActionWorkspaceMemberRemove         = "WORKSPACE_MEMBER_REMOVE"
	ActionWorkspaceInviteCreate         = "WORKSPACE_INVITE_CREATE"
	ActionWorkspaceInviteDecline        = "WORKSPACE_INVITE_DECLINE"
	ActionWorkspaceInviteRevoke         = "WORKSPACE_INVITE_REVOKE"
	ActionWorkspaceInviteResend         = "WORKSPACE_INVITE_RESEND"
	ActionProjectMemberAdd              = "PROJECT_MEMBER_ADD"
	ActionProjectMemberRemove           = "PROJECT_MEMBER_REMOVE"
)

// AuditLog is one immutable audit trail row.
type AuditLog struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID       *snowflake.ID     `gorm:"column:org_id;index" json:"org_id,omitempty"`
	WorkspaceID *snowflake.ID     `gorm:"column:workspace_id;index" json:"workspace_id,omitempty"`
	ActorType   string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID     *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action      string            `gorm:"type:text;not null;index" json:"action"`
	TargetType  string            `gorm:"type:text;not null" json:"target_type"`
	TargetID    *string           `gorm:"type:text" json:"target_id,omitempty"`
	Details     datatypes.JSONMap `gorm:"type:jsonb" json:"details"`
	IPAddress   *string           `gorm:"column:ip_address;type:text" json:"ip_address,omitempty"`
	UserAgent   *string           `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
