package payment

import (
	"github.com/smallbiznis/paygate/internal/payment/repository"
	"github.com/smallbiznis/paygate/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
