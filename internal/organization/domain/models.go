// Package domain contains the organization tenant model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Organization represents a tenant, the root of the Workspace → Project
// hierarchy. The slug is immutable after creation.
type Organization struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:text;not null" json:"name"`
	Slug        string         `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	LogoURL     string         `gorm:"column:logo_url;type:text" json:"logo_url"`
	WebsiteURL  string         `gorm:"column:website_url;type:text" json:"website_url"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

type CreateOrganizationRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	LogoURL     *string `json:"logo_url"`
	WebsiteURL  *string `json:"website_url"`
}

type OrganizationResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	WebsiteURL  string    `json:"website_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// OrganizationListItem is one row of the caller's organization list, joined
// with their membership role.
type OrganizationListItem struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Role      string       `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	Get(ctx context.Context, actorID, orgID snowflake.ID) (*OrganizationResponse, error)
	Update(ctx context.Context, actorID, orgID snowflake.ID, req UpdateOrganizationRequest) (*OrganizationResponse, error)
	SoftDelete(ctx context.Context, actorID, orgID snowflake.ID) error
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	Update(ctx context.Context, org *Organization) error
	SoftDelete(ctx context.Context, id snowflake.ID, at time.Time) error
	CountWorkspaces(ctx context.Context, orgID snowflake.ID) (int64, error)
}

var (
	ErrOrganizationNotFound      = errors.New("organization_not_found")
	ErrInvalidOrganization       = errors.New("invalid_organization")
	ErrInvalidName               = errors.New("invalid_name")
	ErrSlugTaken                 = errors.New("slug_taken")
	ErrOrganizationHasWorkspaces = errors.New("organization_has_workspaces")
)
