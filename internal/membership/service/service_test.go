package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	auditrepo "github.com/trackline/trackline/internal/audit/repository"
	auditservice "github.com/trackline/trackline/internal/audit/service"
	"github.com/trackline/trackline/internal/authorization"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	identityrepo "github.com/trackline/trackline/internal/identity/repository"
	"github.com/trackline/trackline/internal/membership/domain"
	"github.com/trackline/trackline/internal/membership/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   domain.Service
	repo  domain.Repository
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&identitydomain.User{},
		&domain.OrganizationMember{},
		&domain.WorkspaceMember{},
		&domain.ProjectMember{},
	))
	require.NoError(t, gdb.Exec(`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY, org_id INTEGER, workspace_id INTEGER,
		actor_type TEXT, actor_id TEXT, action TEXT, target_type TEXT,
		target_id TEXT, details TEXT, ip_address TEXT, user_agent TEXT,
		created_at DATETIME)`).Error)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	enforcer, err := authorization.NewEnforcer(gdb)
	require.NoError(t, err)

	repo := repository.NewRepository(gdb)
	authz := authorization.NewService(authorization.Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Members:  repo,
	})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:     gdb,
		Log:    zap.NewNop(),
		Config: config.Config{},
		Clock:  clk,
		GenID:  node,
		Repo:   auditrepo.Provide(),
	})

	svc := NewService(Params{
		DB:    gdb,
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
		Repo:  repo,
		Users: identityrepo.NewRepository(gdb),
		Authz: authz,
		Audit: auditSvc,
	})

	return &fixture{db: gdb, svc: svc, repo: repo, clock: clk, node: node}
}

func (f *fixture) addOrgMember(t *testing.T, orgID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.repo.CreateOrgMember(context.Background(), domain.OrganizationMember{
		ID:       f.node.Generate(),
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		JoinedAt: f.clock.Now(),
	}))
}

func (f *fixture) addWorkspaceMember(t *testing.T, orgID, workspaceID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.repo.CreateWorkspaceMember(context.Background(), domain.WorkspaceMember{
		ID:          f.node.Generate(),
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    f.clock.Now(),
	}))
}

func TestUpdateOrganizationMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	member := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, member, domain.RoleMember)

	require.NoError(t, f.svc.UpdateOrganizationMemberRole(ctx, owner, orgID, member, domain.RoleAdmin))

	got, err := f.repo.GetOrgMember(ctx, orgID, member)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, got.Role)

	// OWNER is not an assignable role.
	err = f.svc.UpdateOrganizationMemberRole(ctx, owner, orgID, member, domain.RoleOwner)
	require.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestUpdateRoleCannotTouchOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	admin := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, admin, domain.RoleAdmin)

	err := f.svc.UpdateOrganizationMemberRole(ctx, admin, orgID, owner, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrCannotModifyOwner)

	err = f.svc.RemoveOrganizationMember(ctx, admin, orgID, owner)
	require.ErrorIs(t, err, domain.ErrCannotModifyOwner)
}

func TestRemoveOrganizationMemberCascadesWorkspaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	wsA := f.node.Generate()
	wsB := f.node.Generate()
	owner := f.node.Generate()
	member := f.node.Generate()

	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, member, domain.RoleMember)
	f.addWorkspaceMember(t, orgID, wsA, member, domain.RoleMember)
	f.addWorkspaceMember(t, orgID, wsB, member, domain.RoleAdmin)

	require.NoError(t, f.svc.RemoveOrganizationMember(ctx, owner, orgID, member))

	_, err := f.repo.GetOrgMember(ctx, orgID, member)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
	_, err = f.repo.GetWorkspaceMember(ctx, wsA, member)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
	_, err = f.repo.GetWorkspaceMember(ctx, wsB, member)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	admin := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, admin, domain.RoleAdmin)

	require.NoError(t, f.svc.TransferOwnership(ctx, owner, orgID, admin))

	prev, err := f.repo.GetOrgMember(ctx, orgID, owner)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, prev.Role)

	next, err := f.repo.GetOrgMember(ctx, orgID, admin)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, next.Role)

	var owners int64
	require.NoError(t, f.db.Model(&domain.OrganizationMember{}).
		Where("org_id = ? AND role = ?", orgID, domain.RoleOwner).
		Count(&owners).Error)
	require.Equal(t, int64(1), owners)
}

func TestTransferOwnershipRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	admin := f.node.Generate()
	other := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, admin, domain.RoleAdmin)
	f.addOrgMember(t, orgID, other, domain.RoleMember)

	err := f.svc.TransferOwnership(ctx, admin, orgID, other)
	require.Error(t, err)

	got, err := f.repo.GetOrgMember(ctx, orgID, owner)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, got.Role)
}

func TestTransferOwnershipToSelfIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)

	require.NoError(t, f.svc.TransferOwnership(ctx, owner, orgID, owner))

	got, err := f.repo.GetOrgMember(ctx, orgID, owner)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, got.Role)
}

func TestAddWorkspaceMemberRequiresOrgMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	wsID := f.node.Generate()
	owner := f.node.Generate()
	outsider := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)

	err := f.svc.AddWorkspaceMember(ctx, owner, orgID, wsID, outsider, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrNotAMember)
}

func TestAddWorkspaceMemberDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	wsID := f.node.Generate()
	owner := f.node.Generate()
	member := f.node.Generate()
	f.addOrgMember(t, orgID, owner, domain.RoleOwner)
	f.addOrgMember(t, orgID, member, domain.RoleMember)

	require.NoError(t, f.svc.AddWorkspaceMember(ctx, owner, orgID, wsID, member, domain.RoleMember))
	err := f.svc.AddWorkspaceMember(ctx, owner, orgID, wsID, member, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrDuplicateMembership)
}
