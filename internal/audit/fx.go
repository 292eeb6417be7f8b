package audit

import (
	"github.com/trackline/trackline/internal/audit/repository"
	"github.com/trackline/trackline/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
