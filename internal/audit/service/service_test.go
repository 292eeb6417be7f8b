package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	auditdomain "github.com/trackline/trackline/internal/audit/domain"
	"github.com/trackline/trackline/internal/audit/repository"
	"github.com/trackline/trackline/internal/auditcontext"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	svc   auditdomain.Service
	clock *clock.FakeClock
	node  *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:     gdb,
		Log:    zap.NewNop(),
		Config: config.Config{},
		Clock:  clk,
		GenID:  node,
		Repo:   repository.Provide(),
	})

	return &fixture{db: gdb, svc: svc, clock: clk, node: node}
}

func TestRecordMasksSensitiveDetails(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()

	ctx := auditcontext.WithActor(context.Background(), auditdomain.ActorTypeUser, "12345")
	ctx = auditcontext.WithRequestID(ctx, "req-1")

	require.NoError(t, f.svc.Record(ctx, auditdomain.Entry{
		OrgID:      &orgID,
		Action:     auditdomain.ActionOrganizationInviteCreate,
		TargetType: "organization_invite",
		Details: map[string]any{
			"email":        "person@example.com",
			"invite_token": "super-secret-raw-token",
		},
	}))

	var row auditdomain.AuditLog
	require.NoError(t, f.db.Where("org_id = ?", orgID).First(&row).Error)
	require.Equal(t, auditdomain.ActorTypeUser, row.ActorType)
	require.NotNil(t, row.ActorID)
	require.Equal(t, "12345", *row.ActorID)
	require.Equal(t, "person@example.com", row.Details["email"])
	require.Equal(t, "req-1", row.Details["request_id"])

	masked, _ := row.Details["invite_token"].(string)
	require.NotEqual(t, "super-secret-raw-token", masked)
	require.NotContains(t, masked, "super-secret")
}

func TestRecordWithoutActorIsSystem(t *testing.T) {
	f := newFixture(t)
	orgID := f.node.Generate()

	require.NoError(t, f.svc.Record(context.Background(), auditdomain.Entry{
		OrgID:      &orgID,
		Action:     auditdomain.ActionOrganizationCreate,
		TargetType: "organization",
	}))

	var row auditdomain.AuditLog
	require.NoError(t, f.db.Where("org_id = ?", orgID).First(&row).Error)
	require.Equal(t, auditdomain.ActorTypeSystem, row.ActorType)
	require.Nil(t, row.ActorID)
}

func TestRecordRejectsEmptyAction(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Record(context.Background(), auditdomain.Entry{TargetType: "organization"})
	require.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()

	actions := []string{
		auditdomain.ActionOrganizationCreate,
		auditdomain.ActionOrganizationUpdate,
		auditdomain.ActionOrganizationMemberAdd,
	}
	for _, action := range actions {
		require.NoError(t, f.svc.Record(ctx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     action,
			TargetType: "organization",
		}))
		f.clock.Advance(time.Minute)
	}

	first, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 3)
	require.Equal(t, auditdomain.ActionOrganizationMemberAdd, first.AuditLogs[0].Action)
	require.False(t, first.HasMore)

	small := auditdomain.ListAuditLogRequest{OrgID: orgID}
	small.PageSize = 2
	firstPage, err := f.svc.List(ctx, small)
	require.NoError(t, err)
	require.Len(t, firstPage.AuditLogs, 2)
	require.True(t, firstPage.HasMore)
	require.NotEmpty(t, firstPage.NextPageToken)

	second := auditdomain.ListAuditLogRequest{OrgID: orgID}
	second.PageSize = 2
	second.PageToken = firstPage.NextPageToken
	secondPage, err := f.svc.List(ctx, second)
	require.NoError(t, err)
	require.Len(t, secondPage.AuditLogs, 1)
	require.Equal(t, auditdomain.ActionOrganizationCreate, secondPage.AuditLogs[0].Action)
}

func TestListPaginatesSubSecondRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()

	// Rows landing within the same wall-clock second must all remain
	// reachable when the page boundary falls between them.
	targets := []string{"t-1", "t-2", "t-3"}
	for _, target := range targets {
		require.NoError(t, f.svc.Record(ctx, auditdomain.Entry{
			OrgID:      &orgID,
			Action:     auditdomain.ActionOrganizationMemberAdd,
			TargetType: "organization_member",
			TargetID:   target,
		}))
		f.clock.Advance(300 * time.Millisecond)
	}

	seen := make(map[string]bool)
	req := auditdomain.ListAuditLogRequest{OrgID: orgID}
	req.PageSize = 1
	for pages := 0; pages < 5; pages++ {
		page, err := f.svc.List(ctx, req)
		require.NoError(t, err)
		for _, row := range page.AuditLogs {
			require.NotNil(t, row.TargetID)
			seen[*row.TargetID] = true
		}
		if !page.HasMore {
			break
		}
		req.PageToken = page.NextPageToken
	}
	require.Len(t, seen, len(targets))
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orgID := f.node.Generate()
	wsID := f.node.Generate()

	require.NoError(t, f.svc.Record(ctx, auditdomain.Entry{
		OrgID:      &orgID,
		Action:     auditdomain.ActionOrganizationMemberAdd,
		TargetType: "organization_member",
	}))
	require.NoError(t, f.svc.Record(ctx, auditdomain.Entry{
		OrgID:       &orgID,
		WorkspaceID: &wsID,
		Action:      auditdomain.ActionWorkspaceMemberAdd,
		TargetType:  "workspace_member",
	}))

	byAction, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		OrgID:  orgID,
		Action: auditdomain.ActionWorkspaceMemberAdd,
	})
	require.NoError(t, err)
	require.Len(t, byAction.AuditLogs, 1)

	byWorkspace, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		OrgID:       orgID,
		WorkspaceID: &wsID,
	})
	require.NoError(t, err)
	require.Len(t, byWorkspace.AuditLogs, 1)
	require.Equal(t, auditdomain.ActionWorkspaceMemberAdd, byWorkspace.AuditLogs[0].Action)
}

func TestListRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, auditdomain.ListAuditLogRequest{})
	require.ErrorIs(t, err, auditdomain.ErrInvalidOrganization)

	start := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = f.svc.List(ctx, auditdomain.ListAuditLogRequest{
		OrgID:   f.node.Generate(),
		StartAt: &start,
		EndAt:   &end,
	})
	require.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)

	bad := auditdomain.ListAuditLogRequest{OrgID: f.node.Generate()}
	bad.PageToken = "not-base64!"
	_, err = f.svc.List(ctx, bad)
	require.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)
}
