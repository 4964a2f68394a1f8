package meter

import (
	"github.com/smallbiznis/paygate/internal/meter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meter.service",
	fx.Provide(service.New),
)
