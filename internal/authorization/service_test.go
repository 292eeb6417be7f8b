package authorization

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	membershipdomain "github.com/trackline/trackline/internal/membership/domain"
	membershiprepo "github.com/trackline/trackline/internal/membership/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzFixture struct {
	svc     Service
	members membershipdomain.Repository
	node    *snowflake.Node
}

func newAuthzFixture(t *testing.T) *authzFixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&membershipdomain.OrganizationMember{},
		&membershipdomain.WorkspaceMember{},
	))

	enforcer, err := NewEnforcer(gdb)
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	members := membershiprepo.NewRepository(gdb)
	svc := NewService(Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Members:  members,
	})

	return &authzFixture{svc: svc, members: members, node: node}
}

func (f *authzFixture) addOrgMember(t *testing.T, orgID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.members.CreateOrgMember(context.Background(), membershipdomain.OrganizationMember{
		ID:       f.node.Generate(),
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}))
}

func (f *authzFixture) addWorkspaceMember(t *testing.T, orgID, workspaceID, userID snowflake.ID, role string) {
	t.Helper()
	require.NoError(t, f.members.CreateWorkspaceMember(context.Background(), membershipdomain.WorkspaceMember{
		ID:          f.node.Generate(),
		OrgID:       orgID,
		WorkspaceID: workspaceID,
		UserID:      userID,
		Role:        role,
		JoinedAt:    time.Now().UTC(),
	}))
}

func TestAuthorizeOrgNonMemberDenied(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	stranger := f.node.Generate()

	err := f.svc.AuthorizeOrg(ctx, stranger, orgID, ObjectOrganization, ActionOrganizationView)
	require.ErrorIs(t, err, membershipdomain.ErrNotAMember)
}

func TestAuthorizeOrgByRole(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	owner := f.node.Generate()
	admin := f.node.Generate()
	member := f.node.Generate()

	f.addOrgMember(t, orgID, owner, membershipdomain.RoleOwner)
	f.addOrgMember(t, orgID, admin, membershipdomain.RoleAdmin)
	f.addOrgMember(t, orgID, member, membershipdomain.RoleMember)

	// Everyone can view.
	require.NoError(t, f.svc.AuthorizeOrg(ctx, owner, orgID, ObjectOrganization, ActionOrganizationView))
	require.NoError(t, f.svc.AuthorizeOrg(ctx, admin, orgID, ObjectOrganization, ActionOrganizationView))
	require.NoError(t, f.svc.AuthorizeOrg(ctx, member, orgID, ObjectOrganization, ActionOrganizationView))

	// Admins manage invites; members do not.
	require.NoError(t, f.svc.AuthorizeOrg(ctx, admin, orgID, ObjectInvite, ActionInviteCreate))
	err := f.svc.AuthorizeOrg(ctx, member, orgID, ObjectInvite, ActionInviteCreate)
	require.ErrorIs(t, err, ErrInsufficientRole)

	// Delete and ownership transfer stay owner-only.
	require.NoError(t, f.svc.AuthorizeOrg(ctx, owner, orgID, ObjectOrganization, ActionOrganizationDelete))
	err = f.svc.AuthorizeOrg(ctx, admin, orgID, ObjectOrganization, ActionOrganizationDelete)
	require.ErrorIs(t, err, ErrInsufficientRole)
	err = f.svc.AuthorizeOrg(ctx, admin, orgID, ObjectOrganization, ActionOrganizationTransferOwnership)
	require.ErrorIs(t, err, ErrInsufficientRole)
}

func TestAuthorizeWorkspaceExplicitRoleWins(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	wsID := f.node.Generate()
	user := f.node.Generate()

	// Org MEMBER holding an explicit workspace ADMIN grant acts as ADMIN.
	f.addOrgMember(t, orgID, user, membershipdomain.RoleMember)
	f.addWorkspaceMember(t, orgID, wsID, user, membershipdomain.RoleAdmin)

	require.NoError(t, f.svc.AuthorizeWorkspace(ctx, user, orgID, wsID, ObjectWorkspaceInvite, ActionWorkspaceInviteCreate))
}

func TestAuthorizeWorkspaceOrgRoleFallback(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	orgID := f.node.Generate()
	wsID := f.node.Generate()
	orgAdmin := f.node.Generate()
	orgMember := f.node.Generate()
	outsider := f.node.Generate()

	f.addOrgMember(t, orgID, orgAdmin, membershipdomain.RoleAdmin)
	f.addOrgMember(t, orgID, orgMember, membershipdomain.RoleMember)

	// Org ADMIN falls back to workspace ADMIN without an explicit row.
	require.NoError(t, f.svc.AuthorizeWorkspace(ctx, orgAdmin, orgID, wsID, ObjectWorkspace, ActionWorkspaceUpdate))

	// Org MEMBER falls back to workspace MEMBER: view yes, manage no.
	require.NoError(t, f.svc.AuthorizeWorkspace(ctx, orgMember, orgID, wsID, ObjectWorkspace, ActionWorkspaceView))
	err := f.svc.AuthorizeWorkspace(ctx, orgMember, orgID, wsID, ObjectWorkspace, ActionWorkspaceUpdate)
	require.ErrorIs(t, err, ErrInsufficientRole)

	err = f.svc.AuthorizeWorkspace(ctx, outsider, orgID, wsID, ObjectWorkspace, ActionWorkspaceView)
	require.ErrorIs(t, err, membershipdomain.ErrNotAMember)
}

func TestAuthorizeRejectsZeroIDs(t *testing.T) {
	f := newAuthzFixture(t)
	ctx := context.Background()

	err := f.svc.AuthorizeOrg(ctx, 0, f.node.Generate(), ObjectOrganization, ActionOrganizationView)
	require.ErrorIs(t, err, ErrInvalidActor)

	err = f.svc.AuthorizeOrg(ctx, f.node.Generate(), 0, ObjectOrganization, ActionOrganizationView)
	require.ErrorIs(t, err, ErrInvalidOrganization)
}
