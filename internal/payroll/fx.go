package payroll

import (
	"github.com/smallbiznis/paygate/internal/payroll/repository"
	"github.com/smallbiznis/paygate/internal/payroll/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payroll",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
