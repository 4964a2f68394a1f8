package treasury

import (
	"github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("treasury",
	fx.Provide(NewClient),
)

// NewClient selects the deployment's treasury backing: the deterministic
// mock for local and sandbox runs, the HTTP gateway otherwise.
func NewClient(cfg config.Config, log *zap.Logger) Client {
	if cfg.Treasury.Mock || cfg.Treasury.URL == "" {
		log.Named("treasury").Info("using mock treasury client")
		return NewMock(0)
	}
	return NewHTTPClient(cfg, log)
}
