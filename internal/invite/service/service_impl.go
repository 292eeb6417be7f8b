package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	"github.com/trackline/trackline/internal/invite/domain"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	"github.com/trackline/trackline/internal/providers/email"
	"github.com/trackline/trackline/internal/ratelimit"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	GenID      *snowflake.Node
	Repo       domain.Repository
	Users      identitydomain.Repository
	Members    membershipdomain.Repository
	Orgs       orgdomain.Repository
	Workspaces workspacedomain.Repository
	Authz      authorization.Service
	Audit      auditdomain.Service
	Limiter    *ratelimit.InviteLimiter `optional:"true"`
	Email      email.Provider
}

type service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	clock      clock.Clock
	genID      *snowflake.Node
	repo       domain.Repository
	users      identitydomain.Repository
	members    membershipdomain.Repository
	orgs       orgdomain.Repository
	workspaces workspacedomain.Repository
	authz      authorization.Service
	audit      auditdomain.Service
	limiter    *ratelimit.InviteLimiter
	email      email.Provider
}

func NewService(p Params) domain.Service {
	return &service{
		db:         p.DB,
		log:        p.Log.Named("invite.service"),
		cfg:        p.Config,
		clock:      p.Clock,
		genID:      p.GenID,
		repo:       p.Repo,
		users:      p.Users,
		members:    p.Members,
		orgs:       p.Orgs,
		workspaces: p.Workspaces,
		authz:      p.Authz,
		audit:      p.Audit,
		limiter:    p.Limiter,
		email:      p.Email,
	}
}

// CreateOrgInvite issues a fresh PENDING invite. Any prior PENDING invite for
// the same (org, email) is revoked in the same transaction, so at most one
// live token exists per grant.
func (s *service) CreateOrgInvite(ctx context.Context, actorID, orgID snowflake.ID, req domain.CreateInviteRequest) (*domain.InviteResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectInvite, authorization.ActionInviteCreate); err != nil {
		return nil, err
	}
	targetEmail, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if !membershipdomain.ValidOrgRole(req.Role) {
		return nil, domain.ErrInvalidRole
	}
	if err := s.checkRateLimit(ctx, actorID); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	rawToken, err := domain.NewToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invite := domain.OrganizationInvite{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		Email:     targetEmail,
		Role:      req.Role,
		InvitedBy: actorID,
		TokenHash: domain.HashToken(rawToken),
		Status:    domain.StatusPending,
		ExpiresAt: now.Add(s.cfg.InviteTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.RevokePendingOrgInvitesByEmail(ctx, orgID, targetEmail, now); err != nil {
			return err
		}
		if err := repo.CreateOrgInvite(ctx, invite); err != nil {
			return err
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationInviteCreate,
			TargetType: "organization_invite",
			TargetID:   invite.ID.String(),
			Details:    map[string]any{"email": targetEmail, "role": req.Role},
		})
	})
	if err != nil {
		return nil, err
	}

	s.dispatchInviteEmail(actorID, targetEmail, org.Name, invite.Role, invite.ExpiresAt,
		fmt.Sprintf("%s/invite/organizations/%s?token=%s", s.cfg.BaseURL, orgID, rawToken))

	return orgInviteResponse(&invite), nil
}

func (s *service) ListOrgInvites(ctx context.Context, actorID, orgID snowflake.ID) ([]domain.InviteResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectInvite, authorization.ActionInviteView); err != nil {
		return nil, err
	}
	invites, err := s.repo.ListOrgInvitesByStatus(ctx, orgID, domain.StatusPending)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]domain.InviteResponse, 0, len(invites))
	for i := range invites {
		if !now.Before(invites[i].ExpiresAt) {
			continue
		}
		out = append(out, *orgInviteResponse(&invites[i]))
	}
	return out, nil
}

// PreviewOrgInvite is the unauthenticated token-holder view. Every failure
// collapses into ErrInviteInvalid so the endpoint leaks nothing about which
// invites exist.
func (s *service) PreviewOrgInvite(ctx context.Context, orgID snowflake.ID, rawToken string) (*domain.InvitePreview, error) {
	invite, err := s.repo.GetOrgInviteByTokenHash(ctx, orgID, domain.HashToken(rawToken))
	if err != nil {
		return nil, domain.ErrInviteInvalid
	}
	if invite.Status != domain.StatusPending {
		return nil, domain.ErrInviteInvalid
	}
	if !s.clock.Now().Before(invite.ExpiresAt) {
		s.lazyExpireOrg(ctx, invite.ID)
		return nil, domain.ErrInviteInvalid
	}

	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, domain.ErrInviteInvalid
	}

	preview := &domain.InvitePreview{
		OrganizationName: org.Name,
		Email:            invite.Email,
		Role:             invite.Role,
		ExpiresAt:        invite.ExpiresAt,
	}
	if inviter, err := s.users.GetByID(ctx, invite.InvitedBy); err == nil {
		preview.InviterName = inviter.Name
	}
	return preview, nil
}

// AcceptOrgInvite closes the invite and creates the membership row in one
// transaction. The guarded status flip is the serialization point: under a
// double-submission exactly one caller wins and the loser observes ACCEPTED
// and returns success without a second membership row.
func (s *service) AcceptOrgInvite(ctx context.Context, userID, orgID snowflake.ID, rawToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	invite, err := s.repo.GetOrgInviteByTokenHash(ctx, orgID, domain.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrInviteNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}

	now := s.clock.Now()
	if !now.Before(invite.ExpiresAt) && invite.Status == domain.StatusPending {
		s.lazyExpireOrg(ctx, invite.ID)
		return domain.ErrInviteExpired
	}
	if invite.Status != domain.StatusPending {
		if invite.Status == domain.StatusAccepted && s.isOrgMember(ctx, orgID, userID) {
			return nil
		}
		return statusError(invite.Status)
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return domain.ErrEmailMismatch
	}

	// The organization may have been deleted after issuance.
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		won, err := repo.TransitionOrgInvite(ctx, invite.ID, domain.StatusPending, domain.StatusAccepted, now)
		if err != nil {
			return err
		}
		if !won {
			current, err := repo.GetOrgInviteByTokenHash(ctx, orgID, invite.TokenHash)
			if err != nil {
				return err
			}
			if current.Status == domain.StatusAccepted {
				return nil
			}
			return statusError(current.Status)
		}

		err = s.members.WithTx(tx).CreateOrgMember(ctx, membershipdomain.OrganizationMember{
			ID:       s.genID.Generate(),
			OrgID:    orgID,
			UserID:   userID,
			Role:     invite.Role,
			JoinedAt: now,
		})
		if err != nil && !errors.Is(err, membershipdomain.ErrDuplicateMembership) {
			return err
		}

		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationMemberAdd,
			TargetType: "organization_member",
			TargetID:   userID.String(),
			Details:    map[string]any{"role": invite.Role, "invite_id": invite.ID.String()},
		})
	})
}

func (s *service) DeclineOrgInvite(ctx context.Context, userID, orgID snowflake.ID, rawToken string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	invite, err := s.repo.GetOrgInviteByTokenHash(ctx, orgID, domain.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrInviteNotFound) {
			return domain.ErrInvalidToken
		}
		return err
	}

	now := s.clock.Now()
	if !now.Before(invite.ExpiresAt) && invite.Status == domain.StatusPending {
		s.lazyExpireOrg(ctx, invite.ID)
		return domain.ErrInviteExpired
	}
	if invite.Status != domain.StatusPending {
		return statusError(invite.Status)
	}
	if !strings.EqualFold(user.Email, invite.Email) {
		return domain.ErrEmailMismatch
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).TransitionOrgInvite(ctx, invite.ID, domain.StatusPending, domain.StatusDeclined, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationInviteDecline,
			TargetType: "organization_invite",
			TargetID:   invite.ID.String(),
		})
	})
}

func (s *service) RevokeOrgInvite(ctx context.Context, actorID, orgID, inviteID snowflake.ID) error {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectInvite, authorization.ActionInviteRevoke); err != nil {
		return err
	}

	invite, err := s.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	if err != nil {
		return err
	}
	if invite.Status != domain.StatusPending {
		return statusError(invite.Status)
	}

	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := s.repo.WithTx(tx).TransitionOrgInvite(ctx, inviteID, domain.StatusPending, domain.StatusRevoked, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationInviteRevoke,
			TargetType: "organization_invite",
			TargetID:   inviteID.String(),
			Details:    map[string]any{"email": invite.Email},
		})
	})
}

// ResendOrgInvite rotates the token and restarts the TTL. The old token is
// dead the moment the rotation commits.
func (s *service) ResendOrgInvite(ctx context.Context, actorID, orgID, inviteID snowflake.ID) (*domain.InviteResponse, error) {
	if err := s.authz.AuthorizeOrg(ctx, actorID, orgID, authorization.ObjectInvite, authorization.ActionInviteResend); err != nil {
		return nil, err
	}
	if err := s.checkRateLimit(ctx, actorID); err != nil {
		return nil, err
	}

	invite, err := s.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Status != domain.StatusPending {
		return nil, statusError(invite.Status)
	}

	org, err := s.orgs.GetByID(ctx, orgID)
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
		won, err := s.repo.WithTx(tx).RotateOrgInviteToken(ctx, inviteID, domain.HashToken(rawToken), expiresAt, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrInviteAlreadyResolved
		}
		return s.audit.RecordInTx(ctx, tx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationInviteResend,
			TargetType: "organization_invite",
			TargetID:   inviteID.String(),
			Details:    map[string]any{"email": invite.Email},
		})
	})
	if err != nil {
		return nil, err
	}

	invite.ExpiresAt = expiresAt
	invite.UpdatedAt = now
	s.dispatchInviteEmail(actorID, invite.Email, org.Name, invite.Role, expiresAt,
		fmt.Sprintf("%s/invite/organizations/%s?token=%s", s.cfg.BaseURL, orgID, rawToken))

	return orgInviteResponse(invite), nil
}

func (s *service) isOrgMember(ctx context.Context, orgID, userID snowflake.ID) bool {
	_, err := s.members.GetOrgMember(ctx, orgID, userID)
	return err == nil
}

// lazyExpireOrg best-effort flips an overdue PENDING invite to EXPIRED.
// Correctness never depends on the stored status; expiry is always decided
// against the clock.
func (s *service) lazyExpireOrg(ctx context.Context, inviteID snowflake.ID) {
	if _, err := s.repo.TransitionOrgInvite(ctx, inviteID, domain.StatusPending, domain.StatusExpired, s.clock.Now()); err != nil {
		s.log.Warn("lazy expire invite", zap.Error(err))
	}
}

func (s *service) checkRateLimit(ctx context.Context, actorID snowflake.ID) error {
	if s.limiter == nil || !s.limiter.Enabled() {
		return nil
	}
	allowed, err := s.limiter.AllowActor(ctx, actorID.String())
	if err != nil {
		// A broken limiter must not take invites down with it.
		s.log.Warn("invite rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *service) dispatchInviteEmail(inviterID snowflake.ID, to, resourceName, role string, expiresAt time.Time, inviteURL string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		inviterName := ""
		if inviter, err := s.users.GetByID(ctx, inviterID); err == nil {
			inviterName = inviter.Name
		}

		err := s.email.SendTemplate(ctx, []string{to}, "invite_member", map[string]interface{}{
			"inviter_name":  inviterName,
			"resource_name": resourceName,
			"role":          role,
			"expires_at":    expiresAt.Format("January 2, 2006"),
			"invite_url":    inviteURL,
		})
		if err != nil {
			s.log.Warn("send invite email", zap.String("to", to), zap.Error(err))
		}
	}()
}

func orgInviteResponse(invite *domain.OrganizationInvite) *domain.InviteResponse {
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

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", domain.ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", domain.ErrInvalidEmail
	}
	return trimmed, nil
}

func statusError(status string) error {
	switch status {
	case domain.StatusRevoked:
		return domain.ErrInviteRevoked
	case domain.StatusExpired:
		return domain.ErrInviteExpired
	default:
		return domain.ErrInviteAlreadyResolved
	}
}
