package facilitator

import "go.uber.org/fx"

var Module = fx.Module("facilitator.client",
	fx.Provide(New),
)
