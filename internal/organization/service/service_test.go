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
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	membershiprepo "github.com/trackline/trackline/internal/membership/repository"
	"github.com/trackline/trackline/internal/organization/domain"
	"github.com/trackline/trackline/internal/organization/repository"
	workspacedomain "github.com/trackline/trackline/internal/workspace/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	svc     domain.Service
	members membershipdomain.Repository
	clock   *clock.FakeClock
	node    *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&identitydomain.User{},
		&domain.Organization{},
		&workspacedomain.Workspace{},
		&membershipdomain.OrganizationMember{},
		&membershipdomain.WorkspaceMember{},
	))
	require.NoError(t, gdb.Exec(`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY, org_id INTEGER, workspace_id INTEGER,
		actor_type TEXT, actor_id TEXT, action TEXT, target_type TEXT,
		target_id TEXT, details TEXT, ip_address TEXT, user_agent TEXT,
		created_at DATETIME)`).Error)

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))

	members := membershiprepo.NewRepository(gdb)
	enforcer, err := authorization.NewEnforcer(gdb)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Members:  members,
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
		DB:      gdb,
		Log:     zap.NewNop(),
		Clock:   clk,
		GenID:   node,
		Repo:    repository.NewRepository(gdb),
		Members: members,
		Authz:   authz,
		Audit:   auditSvc,
	})

	return &fixture{db: gdb, svc: svc, members: members, clock: clk, node: node}
}

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.node.Generate()

	org, err := f.svc.Create(ctx, creator, domain.CreateOrganizationRequest{Name: "Initech"})
	require.NoError(t, err)
	require.Equal(t, "Initech", org.Name)
	require.Equal(t, "initech", org.Slug)

	orgID, err := snowflake.ParseString(org.ID)
	require.NoError(t, err)

	member, err := f.members.GetOrgMember(ctx, orgID, creator)
	require.NoError(t, err)
	require.Equal(t, membershipdomain.RoleOwner, member.Role)

	var audits int64
	require.NoError(t, f.db.Table("audit_logs").
		Where("org_id = ? AND action = ?", orgID, "ORGANIZATION_CREATE").
		Count(&audits).Error)
	require.Equal(t, int64(1), audits)
}

func TestCreateOrganizationSlugCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, f.node.Generate(), domain.CreateOrganizationRequest{Name: "Globex Corp"})
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, f.node.Generate(), domain.CreateOrganizationRequest{Name: "Globex Corp"})
	require.NoError(t, err)
	require.NotEqual(t, first.Slug, second.Slug)
	require.Contains(t, second.Slug, "globex-corp-")
}

func TestCreateOrganizationRejectsEmptyName(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), f.node.Generate(), domain.CreateOrganizationRequest{Name: "   "})
	require.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestUpdateOrganizationNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.node.Generate()

	org, err := f.svc.Create(ctx, creator, domain.CreateOrganizationRequest{Name: "Stark"})
	require.NoError(t, err)
	orgID, _ := snowflake.ParseString(org.ID)

	same := org.Name
	updated, err := f.svc.Update(ctx, creator, orgID, domain.UpdateOrganizationRequest{Name: &same})
	require.NoError(t, err)
	require.Equal(t, org.Name, updated.Name)

	// A no-op update writes no audit row.
	var audits int64
	require.NoError(t, f.db.Table("audit_logs").
		Where("org_id = ? AND action = ?", orgID, "ORGANIZATION_UPDATE").
		Count(&audits).Error)
	require.Equal(t, int64(0), audits)
}

func TestSoftDeleteBlockedByWorkspaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator := f.node.Generate()

	org, err := f.svc.Create(ctx, creator, domain.CreateOrganizationRequest{Name: "Wayne"})
	require.NoError(t, err)
	orgID, _ := snowflake.ParseString(org.ID)

	ws := workspacedomain.Workspace{
		ID:    f.node.Generate(),
		OrgID: orgID,
		Name:  "R&D",
		Slug:  "r-d",
	}
	require.NoError(t, f.db.Create(&ws).Error)

	err = f.svc.SoftDelete(ctx, creator, orgID)
	require.ErrorIs(t, err, domain.ErrOrganizationHasWorkspaces)

	require.NoError(t, f.db.Delete(&ws).Error)
	require.NoError(t, f.svc.SoftDelete(ctx, creator, orgID))

	_, err = f.svc.Get(ctx, creator, orgID)
	require.Error(t, err)
}

func TestNonMemberCannotReadOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.svc.Create(ctx, f.node.Generate(), domain.CreateOrganizationRequest{Name: "Umbrella"})
	require.NoError(t, err)
	orgID, _ := snowflake.ParseString(org.ID)

	_, err = f.svc.Get(ctx, f.node.Generate(), orgID)
	require.ErrorIs(t, err, membershipdomain.ErrNotAMember)
}
