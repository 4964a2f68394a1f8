package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/paygate/internal/config"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Catalog *config.MeterCatalogHolder
}

type Service struct {
	log     *zap.Logger
	catalog *config.MeterCatalogHolder
}

func New(p Params) meterdomain.Service {
	return &Service{
		log:     p.Log.Named("meter.service"),
		catalog: p.Catalog,
	}
}

func (s *Service) GetByResource(ctx context.Context, resource string) (*meterdomain.Meter, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil, meterdomain.ErrInvalidResource
	}

	for _, entry := range s.catalog.Current() {
		if entry.Resource == resource {
			m := toMeter(entry)
			return &m, nil
		}
	}
	return nil, meterdomain.ErrNotFound
}

func (s *Service) List(ctx context.Context) ([]meterdomain.Meter, error) {
	entries := s.catalog.Current()
	meters := make([]meterdomain.Meter, 0, len(entries))
	for _, entry := range entries {
		meters = append(meters, toMeter(entry))
	}
	return meters, nil
}

func toMeter(entry config.MeterEntry) meterdomain.Meter {
	return meterdomain.Meter{
		Resource:    entry.Resource,
		Price:       entry.Price,
		Asset:       entry.Asset,
		Chain:       entry.Chain,
		Description: entry.Description,
		Version:     entry.Version,
	}
}
