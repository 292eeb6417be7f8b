package membership

import (
	"github.com/trackline/trackline/internal/membership/repository"
	"github.com/trackline/trackline/internal/membership/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membership",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
