package payoutrail

import (
	"github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payoutrail",
	fx.Provide(NewClient),
)

// NewClient selects the rail backing for this deployment.
func NewClient(cfg config.Config, log *zap.Logger) Client {
	if cfg.Rail.Mock || cfg.Rail.URL == "" {
		log.Named("payoutrail").Info("using mock payout rail client")
		return NewMock(cfg.Rail.PollInterval)
	}
	return NewHTTPClient(cfg, log)
}
