package workspace

import (
	"github.com/trackline/trackline/internal/workspace/repository"
	"github.com/trackline/trackline/internal/workspace/service"
	"go.uber.org/fx"
)

var Module = fx.Module("workspace",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
