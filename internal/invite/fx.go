package invite

import (
	"github.com/trackline/trackline/internal/invite/repository"
	"github.com/trackline/trackline/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
