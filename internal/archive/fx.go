package archive

import (
	"context"

	appconfig "github.com/smallbiznis/paygate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("archive",
	fx.Provide(New),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, cfg appconfig.Config, a *Archiver) {
	if !cfg.Archive.Enabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return a.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return a.Stop(ctx) },
	})
}
