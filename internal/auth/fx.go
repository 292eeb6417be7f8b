package auth

import (
	"github.com/trackline/trackline/internal/auth/repository"
	"github.com/trackline/trackline/internal/auth/service"
	"github.com/trackline/trackline/internal/auth/session"
	"go.uber.org/fx"
)

// Module wires the auth session store, service and cookie manager.
var Module = fx.Module("auth",
	fx.Provide(
		repository.NewSessionRepository,
		service.New,
		session.NewManager,
	),
)
