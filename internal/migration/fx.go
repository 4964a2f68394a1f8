package migration

import (
	"github.com/smallbiznis/paygate/internal/config"
	paymentdomain "github.com/smallbiznis/paygate/internal/payment/domain"
	payrolldomain "github.com/smallbiznis/paygate/internal/payroll/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned migrations target postgres; sqlite deployments (dev,
		// tests) create the schema through gorm.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&payrolldomain.Payroll{},
				&payrolldomain.OutboundPayment{},
				&paymentdomain.Payment{},
				&paymentdomain.CompanyBalance{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
