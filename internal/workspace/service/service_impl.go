package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Repo  domain.Repository
	Authz authorization.Service
	Audit auditdomain.Service
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
	authz authorization.Service
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("workspace.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		authz: p.Authz,
		audit: p.Audit,
	}
}

func (s *service) Create(ctx context.Context, actorID, orgID snowflake.ID, req domain.CreateWorkspaceRequest) (*domain.WorkspaceResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectWorkspace, authorization.ActionWorkspaceCreate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	ws := domain.Workspace{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, ws); err != nil {
			if !errors.Is(err, domain.ErrSlugTaken) {
				return err
			}
			ws.Slug = fmt.Sprintf("%s-%s", ws.Slug, shortSuffix(ws.ID))
			if err := repo.Create(ctx, ws); err != nil {
				return err
			}
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &ws.ID,
			Action:      auditdomain.ActionWorkspaceCreate,
			TargetType:  "workspace",
			TargetID:    ws.ID.String(),
			Details:     map[string]any{"name": name, "slug": ws.Slug},
		})
	})
	if err != nil {
		return nil, err
	}
	return response(&ws), nil
}

func (s *service) List(ctx context.Context, actorID, orgID snowflake.ID) ([]domain.WorkspaceResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectWorkspace, authorization.ActionWorkspaceView); err != nil {
		return nil, err
	}
	workspaces, err := s.repo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.WorkspaceResponse, 0, len(workspaces))
	for i := range workspaces {
		out = append(out, *response(&workspaces[i]))
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, actorID, workspaceID snowflake.ID) (*domain.WorkspaceResponse, error) {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, ws.OrgID, workspaceID, authorization.ObjectWorkspace, authorization.ActionWorkspaceView); err != nil {
		return nil, err
	}
	return response(ws), nil
}

func (s *service) Update(ctx context.Context, actorID, workspaceID snowflake.ID, req domain.UpdateWorkspaceRequest) (*domain.WorkspaceResponse, error) {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, ws.OrgID, workspaceID, authorization.ObjectWorkspace, authorization.ActionWorkspaceUpdate); err != nil {
		return nil, err
	}

	changed := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		if name != ws.Name {
			ws.Name = name
			changed["name"] = name
		}
	}
	if req.Description != nil && *req.Description != ws.Description {
		ws.Description = *req.Description
		changed["description"] = *req.Description
	}
	if req.IconURL != nil && *req.IconURL != ws.IconURL {
		ws.IconURL = *req.IconURL
		changed["icon_url"] = *req.IconURL
	}
	if len(changed) == 0 {
		return response(ws), nil
	}
	ws.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, ws); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &ws.OrgID,
			WorkspaceID: &ws.ID,
			Action:      auditdomain.ActionWorkspaceUpdate,
			TargetType:  "workspace",
			TargetID:    ws.ID.String(),
			Details:     changed,
		})
	})
	if err != nil {
		return nil, err
	}
	return response(ws), nil
}

func (s *service) SoftDelete(ctx context.Context, actorID, workspaceID snowflake.ID) error {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, ws.OrgID, workspaceID, authorization.ObjectWorkspace, authorization.ActionWorkspaceDelete); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SoftDelete(ctx, workspaceID, s.clock.Now()); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &ws.OrgID,
			WorkspaceID: &ws.ID,
			Action:      auditdomain.ActionWorkspaceDelete,
			TargetType:  "workspace",
			TargetID:    ws.ID.String(),
		})
	})
}

func (s *service) Resolve(ctx context.Context, workspaceID snowflake.ID) (*domain.Workspace, error) {
	return s.repo.GetByID(ctx, workspaceID)
}

func (s *service) CreateProject(ctx context.Context, actorID, workspaceID snowflake.ID, name string) (*domain.Project, error) {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, ws.OrgID, workspaceID, authorization.ObjectWorkspace, authorization.ActionWorkspaceUpdate); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	project := domain.Project{
		ID:          s.genID.Generate(),
		WorkspaceID: workspaceID,
		Name:        name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *service) ListProjects(ctx context.Context, actorID, workspaceID snowflake.ID) ([]domain.Project, error) {
	ws, err := s.repo.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, ws.OrgID, workspaceID, authorization.ObjectWorkspace, authorization.ActionWorkspaceView); err != nil {
		return nil, err
	}
	return s.repo.ListProjectsByWorkspace(ctx, workspaceID)
}

func (s *service) ResolveProject(ctx context.Context, projectID snowflake.ID) (*domain.Project, error) {
	return s.repo.GetProjectByID(ctx, projectID)
}

func response(ws *domain.Workspace) *domain.WorkspaceResponse {
	return &domain.WorkspaceResponse{
		ID:          ws.ID.String(),
		OrgID:       ws.OrgID.String(),
		Name:        ws.Name,
		Slug:        ws.Slug,
		Description: ws.Description,
		IconURL:     ws.IconURL,
		CreatedAt:   ws.CreatedAt,
	}
}

func shortSuffix(id snowflake.ID) string {
	str := id.String()
	if len(str) <= 6 {
		return str
	}
	return str[len(str)-6:]
}
