package organization

import (
	"github.com/trackline/trackline/internal/organization/repository"
	"github.com/trackline/trackline/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
