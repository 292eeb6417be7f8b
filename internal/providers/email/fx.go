package email

import (
	"strings"

	"github.com/trackline/trackline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		log.Named("providers.email").Info("smtp not configured, email delivery disabled")
		return &NoOpProvider{}
	}
	provider, err := NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		log.Named("providers.email").Warn("smtp provider unavailable", zap.Error(err))
		return &NoOpProvider{}
	}
	return provider
}
