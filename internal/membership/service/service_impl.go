package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/clock"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	"github.com/trackline/trackline/internal/membership/domain"
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
	Users identitydomain.Repository
	Authz authorization.Service
	Audit auditdomain.Service
}

type service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	repo  domain.Repository
	users identitydomain.Repository
	authz authorization.Service
	audit auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:    p.DB,
		log:   p.Log.Named("membership.service"),
		clock: p.Clock,
		genID: p.GenID,
		repo:  p.Repo,
		users: p.Users,
		authz: p.Authz,
		audit: p.Audit,
	}
}

func (s *service) ListOrganizationMembers(ctx context.Context, actorID, orgID snowflake.ID) ([]domain.MemberView, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectMember, authorization.ActionMemberView); err != nil {
		return nil, err
	}
	members, err := s.repo.ListOrgMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		view := domain.MemberView{ID: m.ID.String(), Role: m.Role, JoinedAt: m.JoinedAt}
		if user, err := s.users.GetByID(ctx, m.UserID); err == nil {
			view.User = user.Ref()
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *service) UpdateOrganizationMemberRole(ctx context.Context, actorID, orgID, userID snowflake.ID, role string) error {
	if !domain.ValidOrgRole(role) {
		return domain.ErrInvalidRole
	}
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectMember, authorization.ActionMemberUpdateRole); err != nil {
		return err
	}

	target, err := s.repo.GetOrgMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return domain.ErrCannotModifyOwner
	}
	if target.Role == role {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateOrgMemberRole(ctx, orgID, userID, role); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationMemberRoleUpdate,
			TargetType: "organization_member",
			TargetID:   userID.String(),
			Details:    map[string]any{"from": target.Role, "to": role},
		})
	})
}

// RemoveOrganizationMember deletes the org membership row and, in the same
// transaction, every workspace membership row the user holds under that org,
// so no workspace member survives without an org member backing it.
func (s *service) RemoveOrganizationMember(ctx context.Context, actorID, orgID, userID snowflake.ID) error {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectMember, authorization.ActionMemberRemove); err != nil {
		return err
	}

	target, err := s.repo.GetOrgMember(ctx, orgID, userID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return domain.ErrCannotModifyOwner
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteWorkspaceMembersByOrgUser(ctx, orgID, userID); err != nil {
			return err
		}
		if err := repo.DeleteOrgMember(ctx, orgID, userID); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationMemberRemove,
			TargetType: "organization_member",
			TargetID:   userID.String(),
			Details:    map[string]any{"role": target.Role},
		})
	})
}

// TransferOwnership demotes the current OWNER to ADMIN and promotes the
// target member to OWNER in one transaction, so exactly one OWNER exists at
// every observable point.
func (s *service) TransferOwnership(ctx context.Context, actorID, orgID, newOwnerID snowflake.ID) error {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectOrganization, authorization.ActionOrganizationTransferOwnership); err != nil {
		return err
	}

	current, err := s.repo.GetOrgMember(ctx, orgID, actorID)
	if err != nil {
		return err
	}
	if current.Role != domain.RoleOwner {
		return domain.ErrCannotModifyOwner
	}

	target, err := s.repo.GetOrgMember(ctx, orgID, newOwnerID)
	if err != nil {
		return err
	}
	if target.UserID == current.UserID {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// Demote before promote: the one-OWNER unique index would reject the
		// reverse order.
		if err := repo.UpdateOrgMemberRole(ctx, orgID, current.UserID, domain.RoleAdmin); err != nil {
			return err
		}
		if err := repo.UpdateOrgMemberRole(ctx, orgID, target.UserID, domain.RoleOwner); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationOwnershipTransfer,
			TargetType: "organization_member",
			TargetID:   target.UserID.String(),
			Details: map[string]any{
				"previous_owner": current.UserID.String(),
				"new_owner":      target.UserID.String(),
			},
		})
	})
}

func (s *service) ListWorkspaceMembers(ctx context.Context, actorID, orgID, workspaceID snowflake.ID) ([]domain.MemberView, error) {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceMember, authorization.ActionWorkspaceMemberView); err != nil {
		return nil, err
	}
	members, err := s.repo.ListWorkspaceMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		view := domain.MemberView{ID: m.ID.String(), Role: m.Role, JoinedAt: m.JoinedAt}
		if user, err := s.users.GetByID(ctx, m.UserID); err == nil {
			view.User = user.Ref()
		}
		views = append(views, view)
	}
	return views, nil
}

// AddWorkspaceMember adds an existing organization member to a workspace
// directly, without an invite.
func (s *service) AddWorkspaceMember(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID, role string) error {
	if !domain.ValidWorkspaceRole(role) {
		return domain.ErrInvalidRole
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceMember, authorization.ActionWorkspaceMemberAdd); err != nil {
		return err
	}

	// The target must already belong to the organization.
	if _, err := s.repo.GetOrgMember(ctx, orgID, userID); err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		err := s.repo.WithTx(tx).CreateWorkspaceMember(ctx, domain.WorkspaceMember{
			ID:          s.genID.Generate(),
			WorkspaceID: workspaceID,
			OrgID:       orgID,
			UserID:      userID,
			Role:        role,
			JoinedAt:    s.clock.Now(),
		})
		if err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceMemberAdd,
			TargetType:  "workspace_member",
			TargetID:    userID.String(),
			Details:     map[string]any{"role": role},
		})
	})
}

func (s *service) UpdateWorkspaceMemberRole(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID, role string) error {
	if !domain.ValidWorkspaceRole(role) {
		return domain.ErrInvalidRole
	}
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceMember, authorization.ActionWorkspaceMemberUpdateRole); err != nil {
		return err
	}

	target, err := s.repo.GetWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if target.Role == role {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateWorkspaceMemberRole(ctx, workspaceID, userID, role); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceMemberRoleUpdate,
			TargetType:  "workspace_member",
			TargetID:    userID.String(),
			Details:     map[string]any{"from": target.Role, "to": role},
		})
	})
}

func (s *service) RemoveWorkspaceMember(ctx context.Context, actorID, orgID, workspaceID, userID snowflake.ID) error {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceMember, authorization.ActionWorkspaceMemberRemove); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteWorkspaceMember(ctx, workspaceID, userID); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceMemberRemove,
			TargetType:  "workspace_member",
			TargetID:    userID.String(),
		})
	})
}

func (s *service) ListProjectMembers(ctx context.Context, actorID, orgID, workspaceID, projectID snowflake.ID) ([]domain.MemberView, error) {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectProjectMember, authorization.ActionProjectMemberView); err != nil {
		return nil, err
	}
	members, err := s.repo.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}

	views := make([]domain.MemberView, 0, len(members))
	for _, m := range members {
		view := domain.MemberView{ID: m.ID.String(), JoinedAt: m.JoinedAt}
		if user, err := s.users.GetByID(ctx, m.UserID); err == nil {
			view.User = user.Ref()
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *service) AddProjectMember(ctx context.Context, actorID, orgID, workspaceID, projectID, userID snowflake.ID) error {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectProjectMember, authorization.ActionProjectMemberAdd); err != nil {
		return err
	}

	if _, err := s.repo.GetOrgMember(ctx, orgID, userID); err != nil {
		if errors.Is(err, domain.ErrMemberNotFound) {
			return domain.ErrNotAMember
		}
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		err := s.repo.WithTx(tx).CreateProjectMember(ctx, domain.ProjectMember{
			ID:        s.genID.Generate(),
			ProjectID: projectID,
			UserID:    userID,
			JoinedAt:  s.clock.Now(),
		})
		if err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionProjectMemberAdd,
			TargetType:  "project_member",
			TargetID:    userID.String(),
			Details:     map[string]any{"project_id": projectID.String()},
		})
	})
}

func (s *service) RemoveProjectMember(ctx context.Context, actorID, orgID, workspaceID, projectID, userID snowflake.ID) error {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectProjectMember, authorization.ActionProjectMemberRemove); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).DeleteProjectMember(ctx, projectID, userID); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionProjectMemberRemove,
			TargetType:  "project_member",
			TargetID:    userID.String(),
			Details:     map[string]any{"project_id": projectID.String()},
		})
	})
}
