package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/trackline/trackline/internal/auth/domain"
	"github.com/trackline/trackline/internal/auth/password"
	"github.com/trackline/trackline/internal/clock"
	"github.com/trackline/trackline/internal/config"
	identitydomain "github.com/trackline/trackline/internal/identity/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Config   config.Config
	Clock    clock.Clock
	Node     *snowflake.Node
	Users    identitydomain.Repository
	Sessions domain.SessionRepository
}

type service struct {
	db       *gorm.DB
	cfg      config.Config
	clock    clock.Clock
	node     *snowflake.Node
	users    identitydomain.Repository
	sessions domain.SessionRepository
	log      *zap.Logger
}

func New(p Params) domain.Service {
	return &service{
		db:       p.DB,
		cfg:      p.Config,
		clock:    p.Clock,
		node:     p.Node,
		users:    p.Users,
		sessions: p.Sessions,
		log:      zap.L().Named("auth.service"),
	}
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*identitydomain.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || len(req.Password) < 8 {
		return nil, domain.ErrInvalidRequest
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := identitydomain.User{
		ID:           s.node.Generate(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: &hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, identitydomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	rawToken, err := newSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := domain.Session{
		ID:               s.node.Generate(),
		UserID:           user.ID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        req.UserAgent,
		IPAddress:        req.IPAddress,
		ExpiresAt:        now.Add(s.cfg.SessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.log.Info("session created",
		zap.String("user_id", user.ID.String()),
		zap.String("session_id", session.ID.String()),
	)

	return &domain.LoginResult{
		User:      user.Ref(),
		RawToken:  rawToken,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *service) Logout(ctx context.Context, rawToken string) error {
	session, err := s.sessions.GetSessionByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSession) {
			return nil
		}
		return err
	}
	return s.sessions.RevokeSession(ctx, session.ID, s.clock.Now())
}

func (s *service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	if rawToken == "" {
		return nil, domain.ErrInvalidSession
	}

	session, err := s.sessions.GetSessionByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	if err := s.sessions.TouchSession(ctx, session.ID, now); err != nil {
		s.log.Warn("touch session", zap.Error(err))
	}
	return session, nil
}

// newSessionToken returns a random bearer token. Only its hash is stored.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
