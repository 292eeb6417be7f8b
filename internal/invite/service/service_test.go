package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	auditrepo "github.com/trackline/trackline/internal/audit/repository"
	auditservice "github.com/trackline/trackline/internal/audit/service"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	identityrepo "github.com/trackline/trackline/internal/identity/repository"
	"github.com/trackline/trackline/internal/invite/domain"
	inviterepo "github.com/trackline/trackline/internal/invite/repository"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	membershiprepo "github.com/trackline/trackline/internal/membership/repository"
	orgdomain "github.com/trackline/trackline/internal/organization/domain"
	orgrepo "github.com/trackline/trackline/internal/organization/repository"
	"github.com/trackline/trackline/internal/providers/email"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	workspacerepo "github.com/trackline/trackline/internal/workspace/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type allowAllAuthz struct{}

func (allowAllAuthz) AuthorizeOrg(context.Context, snowflake.ID, snowflake.ID, string, string) error {
	return nil
}

func (allowAllAuthz) AuthorizeWorkspace(context.Context, snowflake.ID, snowflake.ID, snowflake.ID, string, string) error {
	return nil
}

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	repo    domain.Repository
	members membershipdomain.Repository
	clock   *clock.FakeClock
	node    *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDSN(t, "file::memory:?cache=shared")
}

func newFixtureWithDSN(t *testing.T, dsn string) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&identitydomain.User{},
		&orgdomain.Organization{},
		&workspacedomain.Workspace{},
		&membershipdomain.OrganizationMember{},
		&membershipdomain.WorkspaceMember{},
		&domain.OrganizationInvite{},
		&domain.WorkspaceInvite{},
	))
	require.NoError(t, gdb.Exec(`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY, org_id INTEGER, workspace_id INTEGER,
		actor_type TEXT, actor_id TEXT, action TEXT, target_type TEXT,
		target_id TEXT, details TEXT, ip_address TEXT, user_agent TEXT,
		created_at DATETIME)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{
		BaseURL:   "http://localhost:8080",
		InviteTTL: 7 * 24 * time.Hour,
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:     gdb,
		Log:    zap.NewNop(),
		Config: cfg,
		Clock:  clk,
		GenID:  node,
		Repo:   auditrepo.Provide(),
	})

	repo := inviterepo.NewRepository(gdb)
	members := membershiprepo.NewRepository(gdb)

	svc := NewService(Params{
		DB:         gdb,
		Log:        zap.NewNop(),
		Config:     cfg,
		Clock:      clk,
		GenID:      node,
		Repo:       repo,
		Users:      identityrepo.NewRepository(gdb),
		Members:    members,
		Orgs:       orgrepo.NewRepository(gdb),
		Workspaces: workspacerepo.NewRepository(gdb),
		Authz:      allowAllAuthz{},
		Audit:      auditSvc,
		Email:      &email.NoOpProvider{},
	})

	return &fixture{
		db:      gdb,
		svc:     svc,
		repo:    repo,
		members: members,
		clock:   clk,
		node:    node,
	}
}

func (f *fixture) createUser(t *testing.T, emailAddr string) snowflake.ID {
	t.Helper()
	user := identitydomain.User{
		ID:    f.node.Generate(),
		Name:  "User " + emailAddr,
		Email: emailAddr,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return user.ID
}

func (f *fixture) createOrg(t *testing.T, name string) snowflake.ID {
	t.Helper()
	org := orgdomain.Organization{
		ID:   f.node.Generate(),
		Name: name,
		Slug: "org-" + f.node.Generate().String(),
	}
	require.NoError(t, f.db.Create(&org).Error)
	return org.ID
}

func (f *fixture) createWorkspace(t *testing.T, orgID snowflake.ID, name string) snowflake.ID {
	t.Helper()
	ws := workspacedomain.Workspace{
		ID:    f.node.Generate(),
		OrgID: orgID,
		Name:  name,
		Slug:  "ws-" + f.node.Generate().String(),
	}
	require.NoError(t, f.db.Create(&ws).Error)
	return ws.ID
}

func (f *fixture) addOrgMember(t *testing.T, orgID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.members.CreateOrgMember(context.Background(), membershipdomain.OrganizationMember{
		ID:       f.node.Generate(),
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		JoinedAt: f.clock.Now(),
	}))
}

// seedOrgInvite creates a PENDING org invite directly and returns its raw
// token, the way the service would have issued it.
func (f *fixture) seedOrgInvite(t *testing.T, orgID, invitedBy snowflake.ID, emailAddr, role string) (snowflake.ID, string) {
	t.Helper()
	raw, err := domain.NewToken()
	require.NoError(t, err)

	now := f.clock.Now()
	invite := domain.OrganizationInvite{
		ID:        f.node.Generate(),
		OrgID:     orgID,
		Email:     emailAddr,
		Role:      role,
		InvitedBy: invitedBy,
		TokenHash: domain.HashToken(raw),
		Status:    domain.StatusPending,
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repo.CreateOrgInvite(context.Background(), invite))
	return invite.ID, raw
}

func (f *fixture) seedWorkspaceInvite(t *testing.T, orgID, workspaceID, invitedBy snowflake.ID, emailAddr, role string) (snowflake.ID, string) {
	t.Helper()
	raw, err := domain.NewToken()
	require.NoError(t, err)

	now := f.clock.Now()
	invite := domain.WorkspaceInvite{
		ID:          f.node.Generate(),
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		Email:       emailAddr,
		Role:        role,
		InvitedBy:   invitedBy,
		TokenHash:   domain.HashToken(raw),
		Status:      domain.StatusPending,
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.repo.CreateWorkspaceInvite(context.Background(), invite))
	return invite.ID, raw
}

func TestCreateOrgInviteSupersedesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin@example.com")
	orgID := f.createOrg(t, "Acme")
	f.addOrgMember(t, orgID, admin, membershipdomain.RoleAdmin)

	first, err := f.svc.CreateOrgInvite(ctx, admin, orgID, domain.CreateInviteRequest{
		Email: "new@example.com",
		Role:  membershipdomain.RoleMember,
	})
	require.NoError(t, err)

	second, err := f.svc.CreateOrgInvite(ctx, admin, orgID, domain.CreateInviteRequest{
		Email: "New@Example.com",
		Role:  membershipdomain.RoleMember,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	var invites []domain.OrganizationInvite
	require.NoError(t, f.db.Where("org_id = ? AND email = ?", orgID, "new@example.com").Find(&invites).Error)
	require.Len(t, invites, 2)

	byID := map[string]string{}
	for _, inv := range invites {
		byID[inv.ID.String()] = inv.Status
	}
	require.Equal(t, domain.StatusRevoked, byID[first.ID])
	require.Equal(t, domain.StatusPending, byID[second.ID])
}

func TestCreateOrgInviteRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "admin2@example.com")
	orgID := f.createOrg(t, "Acme Two")
	f.addOrgMember(t, orgID, admin, membershipdomain.RoleAdmin)

	_, err := f.svc.CreateOrgInvite(ctx, admin, orgID, domain.CreateInviteRequest{
		Email: "not-an-email",
		Role:  membershipdomain.RoleMember,
	})
	require.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.svc.CreateOrgInvite(ctx, admin, orgID, domain.CreateInviteRequest{
		Email: "someone@example.com",
		Role:  "OWNER",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestPreviewOrgInviteCollapsesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "inviter@example.com")
	orgID := f.createOrg(t, "Preview Org")
	_, raw := f.seedOrgInvite(t, orgID, inviter, "guest@example.com", membershipdomain.RoleMember)

	preview, err := f.svc.PreviewOrgInvite(ctx, orgID, raw)
	require.NoError(t, err)
	require.Equal(t, "Preview Org", preview.OrganizationName)
	require.Equal(t, "guest@example.com", preview.Email)

	// Unknown token and expired token yield the same vague error.
	_, err = f.svc.PreviewOrgInvite(ctx, orgID, "bogus-token")
	require.ErrorIs(t, err, domain.ErrInviteInvalid)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.svc.PreviewOrgInvite(ctx, orgID, raw)
	require.ErrorIs(t, err, domain.ErrInviteInvalid)
}

func TestAcceptOrgInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner@example.com")
	invitee := f.createUser(t, "joiner@example.com")
	orgID := f.createOrg(t, "Accept Org")
	f.addOrgMember(t, orgID, inviter, membershipdomain.RoleOwner)
	_, raw := f.seedOrgInvite(t, orgID, inviter, "joiner@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw))

	member, err := f.members.GetOrgMember(ctx, orgID, invitee)
	require.NoError(t, err)
	require.Equal(t, membershipdomain.RoleMember, member.Role)

	var count int64
	require.NoError(t, f.db.Table("audit_logs").
		Where("org_id = ? AND action = ?", orgID, "ORGANIZATION_MEMBER_ADD").
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAcceptOrgInviteIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner3@example.com")
	invitee := f.createUser(t, "repeat@example.com")
	orgID := f.createOrg(t, "Repeat Org")
	_, raw := f.seedOrgInvite(t, orgID, inviter, "repeat@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw))
	// A second submission of the same token succeeds without a second row.
	require.NoError(t, f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw))

	var count int64
	require.NoError(t, f.db.Model(&membershipdomain.OrganizationMember{}).
		Where("org_id = ? AND user_id = ?", orgID, invitee).
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAcceptOrgInviteConcurrent(t *testing.T) {
	// A file-backed database so the two accepts race through real
	// connections instead of a shared in-memory handle.
	dsn := filepath.Join(t.TempDir(), "invites.db") + "?_pragma=busy_timeout(10000)"
	f := newFixtureWithDSN(t, dsn)
	ctx := context.Background()

	inviter := f.createUser(t, "owner-race@example.com")
	invitee := f.createUser(t, "race@example.com")
	orgID := f.createOrg(t, "Race Org")
	_, raw := f.seedOrgInvite(t, orgID, inviter, "race@example.com", membershipdomain.RoleMember)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw)
		}()
	}
	wg.Wait()
	close(errs)

	// Whichever submission loses the guarded status flip still reports
	// success, and only one membership row exists.
	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, f.db.Model(&membershipdomain.OrganizationMember{}).
		Where("org_id = ? AND user_id = ?", orgID, invitee).
		Count(&count).Error)
	require.Equal(t, int64(1), count)

	var invite domain.OrganizationInvite
	require.NoError(t, f.db.Where("org_id = ? AND email = ?", orgID, "race@example.com").
		First(&invite).Error)
	require.Equal(t, domain.StatusAccepted, invite.Status)
}

func TestAcceptOrgInviteEmailMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner4@example.com")
	stranger := f.createUser(t, "stranger@example.com")
	orgID := f.createOrg(t, "Mismatch Org")
	_, raw := f.seedOrgInvite(t, orgID, inviter, "intended@example.com", membershipdomain.RoleMember)

	err := f.svc.AcceptOrgInvite(ctx, stranger, orgID, raw)
	require.ErrorIs(t, err, domain.ErrEmailMismatch)
}

func TestAcceptOrgInviteExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner5@example.com")
	invitee := f.createUser(t, "late@example.com")
	orgID := f.createOrg(t, "Expired Org")
	inviteID, raw := f.seedOrgInvite(t, orgID, inviter, "late@example.com", membershipdomain.RoleMember)

	f.clock.Advance(8 * 24 * time.Hour)

	err := f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw)
	require.ErrorIs(t, err, domain.ErrInviteExpired)

	// Lazy expiry flipped the stored status.
	stored, err := f.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, stored.Status)
}

func TestAcceptOrgInviteRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner6@example.com")
	invitee := f.createUser(t, "blocked@example.com")
	orgID := f.createOrg(t, "Revoked Org")
	f.addOrgMember(t, orgID, inviter, membershipdomain.RoleAdmin)
	inviteID, raw := f.seedOrgInvite(t, orgID, inviter, "blocked@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.RevokeOrgInvite(ctx, inviter, orgID, inviteID))

	err := f.svc.AcceptOrgInvite(ctx, invitee, orgID, raw)
	require.ErrorIs(t, err, domain.ErrInviteRevoked)
}

func TestDeclineOrgInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "owner7@example.com")
	invitee := f.createUser(t, "decliner@example.com")
	orgID := f.createOrg(t, "Decline Org")
	inviteID, raw := f.seedOrgInvite(t, orgID, inviter, "decliner@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.DeclineOrgInvite(ctx, invitee, orgID, raw))

	stored, err := f.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDeclined, stored.Status)

	// No membership was created.
	_, err = f.members.GetOrgMember(ctx, orgID, invitee)
	require.ErrorIs(t, err, membershipdomain.ErrMemberNotFound)
}

func TestResendOrgInviteRotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.createUser(t, "owner8@example.com")
	invitee := f.createUser(t, "resend@example.com")
	orgID := f.createOrg(t, "Resend Org")
	f.addOrgMember(t, orgID, admin, membershipdomain.RoleAdmin)
	inviteID, oldRaw := f.seedOrgInvite(t, orgID, admin, "resend@example.com", membershipdomain.RoleMember)

	before, err := f.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	resp, err := f.svc.ResendOrgInvite(ctx, admin, orgID, inviteID)
	require.NoError(t, err)
	require.True(t, resp.ExpiresAt.After(before.ExpiresAt))

	after, err := f.repo.GetOrgInviteByID(ctx, orgID, inviteID)
	require.NoError(t, err)
	require.NotEqual(t, before.TokenHash, after.TokenHash)

	// The superseded token is dead.
	err = f.svc.AcceptOrgInvite(ctx, invitee, orgID, oldRaw)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestAcceptWorkspaceInviteAutoProvisionsOrgMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "wsowner@example.com")
	invitee := f.createUser(t, "outsider@example.com")
	orgID := f.createOrg(t, "WS Org")
	wsID := f.createWorkspace(t, orgID, "Delivery")
	f.addOrgMember(t, orgID, inviter, membershipdomain.RoleOwner)
	_, raw := f.seedWorkspaceInvite(t, orgID, wsID, inviter, "outsider@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.AcceptWorkspaceInvite(ctx, invitee, wsID, raw))

	wsMember, err := f.members.GetWorkspaceMember(ctx, wsID, invitee)
	require.NoError(t, err)
	require.Equal(t, membershipdomain.RoleMember, wsMember.Role)

	// The invitee had no org membership, so accept provisioned MEMBER.
	orgMember, err := f.members.GetOrgMember(ctx, orgID, invitee)
	require.NoError(t, err)
	require.Equal(t, membershipdomain.RoleMember, orgMember.Role)
}

func TestAcceptWorkspaceInviteKeepsExistingOrgRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inviter := f.createUser(t, "wsowner2@example.com")
	invitee := f.createUser(t, "insider@example.com")
	orgID := f.createOrg(t, "WS Org Two")
	wsID := f.createWorkspace(t, orgID, "Platform")
	f.addOrgMember(t, orgID, invitee, membershipdomain.RoleAdmin)
	_, raw := f.seedWorkspaceInvite(t, orgID, wsID, inviter, "insider@example.com", membershipdomain.RoleMember)

	require.NoError(t, f.svc.AcceptWorkspaceInvite(ctx, invitee, wsID, raw))

	orgMember, err := f.members.GetOrgMember(ctx, orgID, invitee)
	require.NoError(t, err)
	require.Equal(t, membershipdomain.RoleAdmin, orgMember.Role)
}

func TestStatusErrorMapping(t *testing.T) {
	cases := map[string]error{
		domain.StatusRevoked:  domain.ErrInviteRevoked,
		domain.StatusExpired:  domain.ErrInviteExpired,
		domain.StatusAccepted: domain.ErrInviteAlreadyResolved,
		domain.StatusDeclined: domain.ErrInviteAlreadyResolved,
	}
	for status, want := range cases {
		if got := statusError(status); !errors.Is(got, want) {
			t.Fatalf("statusError(%s) = %v, want %v", status, got, want)
		}
	}
}
