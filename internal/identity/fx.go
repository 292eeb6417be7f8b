package identity

import (
	"github.com/trackline/trackline/internal/identity/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("identity",
	fx.Provide(repository.NewRepository),
)
