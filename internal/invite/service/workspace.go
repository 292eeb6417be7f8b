package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/invite/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (s *service) CreateWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID snowflake.ID, req domain.CreateInviteRequest) (*domain.InviteResponse, error) {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceInvite, authorization.ActionWorkspaceInviteCreate); err != nil {
		return nil, err
	}
	targetEmail, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !membershipdomain.ValidWorkspaceRole(req.Role) {
		return nil, domain.ErrInvalidRole
	}
	if err := s.checkRateLimit(ctx, actorID); err != nil {
		return nil, err
	}

	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	rawToken, err := domain.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invite := domain.WorkspaceInvite{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		Email:       targetEmail,
		Role:        req.Role,
		InvitedBy:   actorID,
		TokenHash:   domain.HashToken(rawToken),
		Status:      domain.StatusPending,
		ExpiresAt:   now.Add(s.cfg.InviteTTL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.RevokePendingWorkspaceInvitesByEmail(ctx, workspaceID, targetEmail, now); err != nil {
			return err
		}
		if err := repo.CreateWorkspaceInvite(ctx, invite); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceInviteCreate,
			TargetType:  "workspace_invite",
			TargetID:    invite.ID.String(),
			Details:     map[string]any{"email": targetEmail, "role": req.Role},
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatchInviteEmail(actorID, targetEmail, ws.Name, invite.Role, invite.ExpiresAt,
		fmt.Sprintf("%s/invite/workspaces/%s?token=%s", s.cfg.BaseURL, workspaceID, rawToken))

	return workspaceInviteResponse(&invite), nil
}

func (s *service) ListWorkspaceInvites(ctx context.Context, actorID, orgID, workspaceID snowflake.ID) ([]domain.InviteResponse, error) {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceInvite, authorization.ActionWorkspaceInviteView); err != nil {
		return nil, err
	}
	invites, err := s.repo.ListWorkspaceInvitesByStatus(ctx, workspaceID, domain.StatusPending)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]domain.InviteResponse, 0, len(invites))
	for i := range invites {
		if !now.Before(invites[i].ExpiresAt) {
			continue
		}
		out = append(out, *workspaceInviteResponse(&invites[i]))
	}
	return out, nil
}

func (s *service) PreviewWorkspaceInvite(ctx context.Context, workspaceID snowflake.ID, rawToken string) (*domain.InvitePreview, error) {
	invite, err := s.repo.GetWorkspaceInviteByTokenHash(ctx, workspaceID, domain.HashToken(rawToken))
	if err != nil {
		return nil, domain.ErrInviteInvalid
	}
	if invite.Status != domain.StatusPending {
		return nil, domain.ErrInviteInvalid
	}
	if !s.clock.Now().Before(invite.ExpiresAt) {
		s.lazyExpireWorkspace(ctx, invite.ID)
		return nil, domain.ErrInviteInvalid
	}

	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, domain.ErrInviteInvalid
	}
	org, err := s.orgs.GetByID(ctx, invite.OrgID)
	if err != nil {
		return nil, domain.ErrInviteInvalid
	}

	preview := &domain.InvitePreview{
		OrganizationName: org.Name,
		WorkspaceName:    ws.Name,
		Email:            invite.Email,
		Role:             invite.Role,
		ExpiresAt:        invite.ExpiresAt,
	}
	if inviter, err := s.users.GetByID(ctx, invite.InvitedBy); err == nil {
		preview.InviterName = inviter.Name
	}
	return preview, nil
}

// AcceptWorkspaceInvite closes the invite and creates the workspace
// membership in one transaction. When the acceptor is not yet an
// organization member, an org MEMBER row is provisioned in the same
// transaction, so the workspace-member-implies-org-member invariant holds at
// commit.
func (s *service) AcceptWorkspaceInvite(ctx context.Context, userID, workspaceID snowflake.ID, rawToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	invite, err := s.repo.GetWorkspaceInviteByTokenHash(ctx, workspaceID, domain.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrInviteNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}

	now := s.clock.Now()
	if !now.Before(invite.ExpiresAt) && invite.Status == domain.StatusPending {
		s.lazyExpireWorkspace(ctx, invite.ID)
		return domain.ErrInviteExpired
	}
	if invite.Status != domain.StatusPending {
		if invite.Status == domain.StatusAccepted && s.isWorkspaceMember(ctx, workspaceID, userID) {
			return nil
		}
		return statusError(invite.Status)
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return domain.ErrEmailMismatch
	}

	// Both the workspace and its organization may have been deleted after
	// issuance.
	if _, err := s.workspaces.GetByID(ctx, workspaceID); err != nil {
		return err
	}
	if _, err := s.orgs.GetByID(ctx, invite.OrgID); err != nil {
		return err
	}

	orgID := invite.OrgID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.TransitionWorkspaceInvite(ctx, invite.ID, domain.StatusPending, domain.StatusAccepted, now)
		if err != nil {
			return err
		}
		if !won {
			current, err := repo.GetWorkspaceInviteByTokenHash(ctx, workspaceID, invite.TokenHash)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusAccepted {
				return nil
			}
			return statusError(current.Status)
		}

		members := s.members.WithTx(tx)
		autoProvisioned := false
		if _, err := members.GetOrgMember(ctx, orgID, userID); err != nil {
			if !errors.Is(err, membershipdomain.ErrMemberNotFound) {
				return err
			}
			err = members.CreateOrgMember(ctx, membershipdomain.OrganizationMember{
				ID:       s.genID.Generate(),
				OrgID:    orgID,
				UserID:   userID,
				Role:     membershipdomain.RoleMember,
				JoinedAt: now,
			})
			if err != nil && !errors.Is(err, membershipdomain.ErrDuplicateMembership) {
				return err
			}
			autoProvisioned = err == nil
		}

		err = members.CreateWorkspaceMember(ctx, membershipdomain.WorkspaceMember{
			ID:          s.genID.Generate(),
			WorkspaceID: workspaceID,
			OrgID:       orgID,
			UserID:      userID,
			Role:        invite.Role,
			JoinedAt:    now,
		})
		if err != nil && !errors.Is(err, membershipdomain.ErrDuplicateMembership) {
			return err
		}

		details := map[string]any{"role": invite.Role, "invite_id": invite.ID.String()}
		if autoProvisioned {
			details["org_member_auto_provisioned"] = true
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceMemberAdd,
			TargetType:  "workspace_member",
			TargetID:    userID.String(),
			Details:     details,
		})
	})
}

func (s *service) DeclineWorkspaceInvite(ctx context.Context, userID, workspaceID snowflake.ID, rawToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	invite, err := s.repo.GetWorkspaceInviteByTokenHash(ctx, workspaceID, domain.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrInviteNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}

	now := s.clock.Now()
	if !now.Before(invite.ExpiresAt) && invite.Status == domain.StatusPending {
		s.lazyExpireWorkspace(ctx, invite.ID)
		return domain.ErrInviteExpired
	}
	if invite.Status != domain.StatusPending {
		return statusError(invite.Status)
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return domain.ErrEmailMismatch
	}

	orgID := invite.OrgID
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).TransitionWorkspaceInvite(ctx, invite.ID, domain.StatusPending, domain.StatusDeclined, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceInviteDecline,
			TargetType:  "workspace_invite",
			TargetID:    invite.ID.String(),
		})
	})
}

func (s *service) RevokeWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID, inviteID snowflake.ID) error {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceInvite, authorization.ActionWorkspaceInviteRevoke); err != nil {
		return err
	}

	invite, err := s.repo.GetWorkspaceInviteByID(ctx, workspaceID, inviteID)
	if err != nil {
		return err
	}
	if invite.Status != domain.StatusPending {
		return statusError(invite.Status)
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).TransitionWorkspaceInvite(ctx, inviteID, domain.StatusPending, domain.StatusRevoked, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceInviteRevoke,
			TargetType:  "workspace_invite",
			TargetID:    inviteID.String(),
			Details:     map[string]any{"email": invite.Email},
		})
	})
}

func (s *service) ResendWorkspaceInvite(ctx context.Context, actorID, orgID, workspaceID, inviteID snowflake.ID) (*domain.InviteResponse, error) {
	if err := s.authz.AuthorizeWorkspace(ctx, actorID, orgID, workspaceID, authorization.ObjectWorkspaceInvite, authorization.ActionWorkspaceInviteResend); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, actorID); err != nil {
		return nil, err
	}

	invite, err := s.repo.GetWorkspaceInviteByID(ctx, workspaceID, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != domain.StatusPending {
		return nil, statusError(invite.Status)
	}

	ws, err := s.workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	rawToken, err := domain.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.InviteTTL)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).RotateWorkspaceInviteToken(ctx, inviteID, domain.HashToken(rawToken), expiresAt, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:       &orgID,
			WorkspaceID: &workspaceID,
			Action:      auditdomain.ActionWorkspaceInviteResend,
			TargetType:  "workspace_invite",
			TargetID:    inviteID.String(),
			Details:     map[string]any{"email": invite.Email},
		})
	})
	if err != nil {
		return nil, err
	}

	invite.ExpiresAt = expiresAt
	invite.UpdatedAt = now
	s.dispatchInviteEmail(actorID, invite.Email, ws.Name, invite.Role, expiresAt,
		fmt.Sprintf("%s/invite/workspaces/%s?token=%s", s.cfg.BaseURL, workspaceID, rawToken))

	return workspaceInviteResponse(invite), nil
}

func (s *service) isWorkspaceMember(ctx context.Context, workspaceID, userID snowflake.ID) bool {
	_, err := s.members.GetWorkspaceMember(ctx, workspaceID, userID)
	return err == nil
}

func (s *service) lazyExpireWorkspace(ctx context.Context, inviteID snowflake.ID) {
	if _, err := s.repo.TransitionWorkspaceInvite(ctx, inviteID, domain.StatusPending, domain.StatusExpired, s.clock.Now()); err != nil {
		s.log.Warn("lazy expire invite", zap.Error(err))
	}
}

func workspaceInviteResponse(invite *domain.WorkspaceInvite) *domain.InviteResponse {
	return &domain.InviteResponse{
		ID:        invite.ID.String(),
		Email:     invite.Email,
		Role:      invite.Role,
		Status:    invite.Status,
		InvitedBy: invite.InvitedBy.String(),
		ExpiresAt: invite.ExpiresAt,
		CreatedAt: invite.CreatedAt,
	}
}
