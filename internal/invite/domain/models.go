// Package domain contains the invite lifecycle types. An invite is a
// token-bearing offer of membership at a given role, single-use, with a
// bounded lifetime. Only the sha256 hash of a token is ever persisted.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Invite statuses. PENDING is the only live state; every other status is
// terminal.
const (
	StatusPending  = "PENDING"
	StatusAccepted = "ACCEPTED"
	StatusDeclined = "DECLINED"
	StatusRevoked  = "REVOKED"
	StatusExpired  = "EXPIRED"
)

// OrganizationInvite tracks an offer of organization membership.
type OrganizationInvite struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	Email     string       `gorm:"type:text;not null;index" json:"email"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	InvitedBy snowflake.ID `gorm:"column:invited_by;not null" json:"invited_by"`
	TokenHash string       `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	Status    string       `gorm:"type:text;not null;index" json:"status"`
	ExpiresAt time.Time    `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OrganizationInvite) TableName() string { return "organization_invites" }

// WorkspaceInvite tracks an offer of workspace membership.
type WorkspaceInvite struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"column:org_id;not null;index" json:"org_id"`
	WorkspaceID snowflake.ID `gorm:"column:workspace_id;not null;index" json:"workspace_id"`
	Email       string       `gorm:"type:text;not null;index" json:"email"`
	Role        string       `gorm:"type:text;not null" json:"role"`
	InvitedBy   snowflake.ID `gorm:"column:invited_by;not null" json:"invited_by"`
	TokenHash   string       `gorm:"column:token_hash;type:text;not null;uniqueIndex" json:"-"`
	Status      string       `gorm:"type:text;not null;index" json:"status"`
	ExpiresAt   time.Time    `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WorkspaceInvite) TableName() string { return "workspace_invites" }

type CreateInviteRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

// InviteResponse is the invite summary returned to administrators. It never
// carries the token.
type InviteResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	InvitedBy string    `json:"invited_by"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// InvitePreview is what an unauthenticated token holder may see before
// deciding to accept.
type InvitePreview struct {
	OrganizationName string    `json:"organization_name"`
	WorkspaceName    string    `json:"workspace_name,omitempty"`
	InviterName      string    `json:"inviter_name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Service drives the invite state machine for both invite kinds. Accept and
// Decline identify the invite by raw token; everything else by id.
type Service interface {
	CreateOrgInvite(ctx context.Context, actorID, orgID snowflake.ID, req CreateInviteRequest) (*InviteResponse, error)
	ListOrgInvites(ctx context.Context, actorID, orgID snowflake.ID) ([]InviteResponse, error)
	PreviewOrgInvite(ctx context.Context, orgID snowflake.ID, rawToken string) (*InvitePreview, error)
	AcceptOrgInvite(ctx context.Context, userID, orgID snowflake.ID, rawToken string) error
	DeclineOrgInvite(ctx context.Context, userID, orgID snowflake.ID, rawToken string) error
	RevokeOrgInvite(ctx context.Context, actorID, orgID, inviteID snowflake.ID) error
	ResendOrgInvite(ctx context.Context, actorID, orgID, inviteID snowflake.ID) (*InviteResponse, error)

	CreateWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID snowflake.ID, req CreateInviteRequest) (*InviteResponse, error)
	ListWorkspaceInvites(ctx context.Context, actorID, orgID, workspaceID snowflake.ID) ([]InviteResponse, error)
	PreviewWorkspaceInvite(ctx context.Context, workspaceID snowflake.ID, rawToken string) (*InvitePreview, error)
	AcceptWorkspaceInvite(ctx context.Context, userID, workspaceID snowflake.ID, rawToken string) error
	DeclineWorkspaceInvite(ctx context.Context, userID, workspaceID snowflake.ID, rawToken string) error
	RevokeWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID, inviteID snowflake.ID) error
	ResendWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID, inviteID snowflake.ID) (*InviteResponse, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrgInvite(ctx context.Context, invite OrganizationInvite) error
	GetOrgInviteByID(ctx context.Context, orgID, id snowflake.ID) (*OrganizationInvite, error)
	GetOrgInviteByTokenHash(ctx context.Context, orgID snowflake.ID, tokenHash string) (*OrganizationInvite, error)
	ListOrgInvitesByStatus(ctx context.Context, orgID snowflake.ID, status string) ([]OrganizationInvite, error)
	RevokePendingOrgInvitesByEmail(ctx context.Context, orgID snowflake.ID, email string, at time.Time) error
	// TransitionOrgInvite flips status from -> to for a single invite and
	// reports whether this caller won the transition.
	TransitionOrgInvite(ctx context.Context, id snowflake.ID, from, to string, at time.Time) (bool, error)
	RotateOrgInviteToken(ctx context.Context, id snowflake.ID, tokenHash string, expiresAt, at time.Time) (bool, error)

	CreateWorkspaceInvite(ctx context.Context, invite WorkspaceInvite) error
	GetWorkspaceInviteByID(ctx context.Context, workspaceID, id snowflake.ID) (*WorkspaceInvite, error)
	GetWorkspaceInviteByTokenHash(ctx context.Context, workspaceID snowflake.ID, tokenHash string) (*WorkspaceInvite, error)
	ListWorkspaceInvitesByStatus(ctx context.Context, workspaceID snowflake.ID, status string) ([]WorkspaceInvite, error)
	RevokePendingWorkspaceInvitesByEmail(ctx context.Context, workspaceID snowflake.ID, email string, at time.Time) error
	TransitionWorkspaceInvite(ctx context.Context, id snowflake.ID, from, to string, at time.Time) (bool, error)
	RotateWorkspaceInviteToken(ctx context.Context, id snowflake.ID, tokenHash string, expiresAt, at time.Time) (bool, error)
}

var (
	ErrInviteNotFound        = errors.New("invite_not_found")
	ErrInvalidToken          = errors.New("invalid_token")
	ErrInviteExpired         = errors.New("invite_expired")
	ErrInviteRevoked         = errors.New("invite_revoked")
	ErrInviteAlreadyResolved = errors.New("invite_already_resolved")
	ErrEmailMismatch         = errors.New("email_mismatch")
	// ErrInviteInvalid is the deliberately vague preview failure: it does not
	// distinguish an unknown token from a dead invite.
	ErrInviteInvalid = errors.New("invite_invalid")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrRateLimited   = errors.New("rate_limited")
)
