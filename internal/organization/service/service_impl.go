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
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	"github.com/trackline/trackline/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Repo    domain.Repository
	Members membershipdomain.Repository
	Authz   authorization.Service
	Audit   auditdomain.Service
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	repo    domain.Repository
	members membershipdomain.Repository
	authz   authorization.Service
	audit   auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("organization.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		repo:    p.Repo,
		members: p.Members,
		authz:   p.Authz,
		audit:   p.Audit,
	}
}

// Create inserts the organization and its OWNER membership row in one
// transaction. The creator is the owner from the first observable moment.
func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:          orgID,
		Name:        name,
		Slug:        slug.Make(name),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, org); err != nil {
			if !errors.Is(err, domain.ErrSlugTaken) {
				return err
			}
			// Slug collision with another org: disambiguate with the id tail.
			org.Slug = fmt.Sprintf("%s-%s", org.Slug, shortSuffix(orgID))
			if err := repo.Create(ctx, org); err != nil {
				return err
			}
		}

		err := s.members.WithTx(tx).CreateOrgMember(ctx, membershipdomain.OrganizationMember{
			ID:       s.genID.Generate(),
			OrgID:    orgID,
			UserID:   userID,
			Role:     membershipdomain.RoleOwner,
			JoinedAt: now,
		})
		if err != nil {
			return err
		}

		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationCreate,
			TargetType: "organization",
			TargetID:   orgID.String(),
			Details:    map[string]any{"name": name, "slug": org.Slug},
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", orgID.String()),
		zap.String("slug", org.Slug),
	)
	return response(&org), nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Get(ctx context.Context, actorID, orgID snowflake.ID) (*domain.OrganizationResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationView); err != nil {
		return nil, err
	}
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return response(org), nil
}

func (s *service) Update(ctx context.Context, actorID, orgID snowflake.ID, req domain.UpdateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationUpdate); err != nil {
		return nil, err
	}

	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	changed := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		if name != org.Name {
			org.Name = name
			changed["name"] = name
		}
	}
	if req.Description != nil && *req.Description != org.Description {
		org.Description = *req.Description
		changed["description"] = *req.Description
	}
	if req.LogoURL != nil && *req.LogoURL != org.LogoURL {
		org.LogoURL = *req.LogoURL
		changed["logo_url"] = *req.LogoURL
	}
	if req.WebsiteURL != nil && *req.WebsiteURL != org.WebsiteURL {
		org.WebsiteURL = *req.WebsiteURL
		changed["website_url"] = *req.WebsiteURL
	}
	if len(changed) == 0 {
		return response(org), nil
	}
	org.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(ctx, org); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationUpdate,
			TargetType: "organization",
			TargetID:   orgID.String(),
			Details:    changed,
		})
	})
	if err != nil {
		return nil, err
	}
	return response(org), nil
}

// SoftDelete marks the organization deleted. It refuses while any live
// workspace remains beneath it.
func (s *service) SoftDelete(ctx context.Context, actorID, orgID snowflake.ID) error {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationDelete); err != nil {
		return err
	}

	count, err := s.repo.CountWorkspaces(ctx, orgID)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrOrganizationHasWorkspaces
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SoftDelete(ctx, orgID, s.clock.Now()); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationDelete,
			TargetType: "organization",
			TargetID:   orgID.String(),
		})
	})
}

func response(org *domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:          org.ID.String(),
		Name:        org.Name,
		Slug:        org.Slug,
		Description: org.Description,
		LogoURL:     org.LogoURL,
		WebsiteURL:  org.WebsiteURL,
		CreatedAt:   org.CreatedAt,
	}
}

func shortSuffix(id snowflake.ID) string {
	str := id.String()
	if len(str) <= 6 {
		return str
	}
	return str[len(str)-6:]
}
