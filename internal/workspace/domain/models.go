// Package domain contains the workspace and project models. A workspace
// groups projects within an organization; projects exist here as membership
// referents.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Workspace is the project-grouping unit within an organization. The slug is
// unique per organization.
type Workspace struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID   `gorm:"column:org_id;not null;index;uniqueIndex:ux_workspaces_org_slug,priority:1" json:"org_id"`
	Name        string         `gorm:"type:text;not null" json:"name"`
	Slug        string         `gorm:"type:text;not null;uniqueIndex:ux_workspaces_org_slug,priority:2" json:"slug"`
	Description string         `gorm:"type:text" json:"description"`
	IconURL     string         `gorm:"column:icon_url;type:text" json:"icon_url"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName sets the database table name.
func (Workspace) TableName() string { return "workspaces" }

// Project lives under a workspace.
type Project struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	WorkspaceID snowflake.ID `gorm:"column:workspace_id;not null;index" json:"workspace_id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Project) TableName() string { return "projects" }

type CreateWorkspaceRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type UpdateWorkspaceRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IconURL     *string `json:"icon_url"`
}

type WorkspaceResponse struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	IconURL     string    `json:"icon_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Service interface {
	Create(ctx context.Context, actorID, orgID snowflake.ID, req CreateWorkspaceRequest) (*WorkspaceResponse, error)
	List(ctx context.Context, actorID, orgID snowflake.ID) ([]WorkspaceResponse, error)
	Get(ctx context.Context, actorID, workspaceID snowflake.ID) (*WorkspaceResponse, error)
	Update(ctx context.Context, actorID, workspaceID snowflake.ID, req UpdateWorkspaceRequest) (*WorkspaceResponse, error)
	SoftDelete(ctx context.Context, actorID, workspaceID snowflake.ID) error

	// Resolve maps a workspace id to its row without an authorization check.
	// Callers pass the resolved org id into the authorizing service they
	// invoke next.
	Resolve(ctx context.Context, workspaceID snowflake.ID) (*Workspace, error)

	CreateProject(ctx context.Context, actorID, workspaceID snowflake.ID, name string) (*Project, error)
	ListProjects(ctx context.Context, actorID, workspaceID snowflake.ID) ([]Project, error)
	ResolveProject(ctx context.Context, projectID snowflake.ID) (*Project, error)
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ws Workspace) error
	GetByID(ctx context.Context, id snowflake.ID) (*Workspace, error)
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Workspace, error)
	Update(ctx context.Context, ws *Workspace) error
	SoftDelete(ctx context.Context, id snowflake.ID, at time.Time) error

	CreateProject(ctx context.Context, project Project) error
	GetProjectByID(ctx context.Context, id snowflake.ID) (*Project, error)
	ListProjectsByWorkspace(ctx context.Context, workspaceID snowflake.ID) ([]Project, error)
}

var (
	ErrWorkspaceNotFound = errors.New("workspace_not_found")
	ErrProjectNotFound   = errors.New("project_not_found")
	ErrInvalidWorkspace  = errors.New("invalid_workspace")
	ErrInvalidName       = errors.New("invalid_name")
	ErrSlugTaken         = errors.New("slug_taken")
)
