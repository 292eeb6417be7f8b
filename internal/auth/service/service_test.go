package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/trackline/trackline/internal/auth/domain"
	authrepo "github.com/trackline/trackline/internal/auth/repository"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	identityrepo "github.com/trackline/trackline/internal/identity/repository"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&identitydomain.User{}, &domain.Session{}))

	node, err := snowflake.NewNode(6)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:       gdb,
		Config:   config.Config{SessionTTL: 24 * time.Hour},
		Clock:    clk,
		Node:     node,
		Users:    identityrepo.NewRepository(gdb),
		Sessions: authrepo.NewSessionRepository(gdb),
	})
	return svc, clk
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "Ann", Email: "ann@example.com", Password: "short"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.Register(ctx, domain.RegisterRequest{Name: "", Email: "ann@example.com", Password: "long-enough"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	user, err := svc.Register(ctx, domain.RegisterRequest{Name: "Ann", Email: "Ann@Example.com", Password: "long-enough"})
	require.NoError(t, err)
	require.Equal(t, "ann@example.com", user.Email)
	require.NotNil(t, user.PasswordHash)
	require.NotEqual(t, "long-enough", *user.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "long-enough"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, domain.RegisterRequest{Name: "Bobby", Email: "bob@example.com", Password: "long-enough"})
	require.ErrorIs(t, err, identitydomain.ErrUserExists)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "Carol", Email: "carol@example.com", Password: "correct-password"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, domain.LoginRequest{Email: "carol@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	// Unknown accounts fail the same way.
	_, err = svc.Login(ctx, domain.LoginRequest{Email: "nobody@example.com", Password: "whatever-pass"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginAndAuthenticate(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, domain.RegisterRequest{Name: "Dave", Email: "dave@example.com", Password: "correct-password"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, domain.LoginRequest{Email: "Dave@Example.com", Password: "correct-password"})
	require.NoError(t, err)
	require.NotEmpty(t, result.RawToken)
	require.Equal(t, user.ID.String(), result.User.ID)

	session, err := svc.Authenticate(ctx, result.RawToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, session.UserID)

	clk.Advance(25 * time.Hour)
	_, err = svc.Authenticate(ctx, result.RawToken)
	require.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, domain.RegisterRequest{Name: "Eve", Email: "eve@example.com", Password: "correct-password"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, domain.LoginRequest{Email: "eve@example.com", Password: "correct-password"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.RawToken))

	_, err = svc.Authenticate(ctx, result.RawToken)
	require.ErrorIs(t, err, domain.ErrSessionRevoked)

	// Logging out an unknown token is not an error.
	require.NoError(t, svc.Logout(ctx, "unknown-token"))
}
