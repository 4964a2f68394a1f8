package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/paygate/internal/config"
	meterdomain "github.com/smallbiznis/paygate/internal/meter/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) meterdomain.Service {
	t.Helper()
	holder, err := config.NewMeterCatalogHolder()
	require.NoError(t, err)
	return New(Params{Log: zap.NewNop(), Catalog: holder})
}

func TestGetByResource_Default(t *testing.T) {
	svc := newTestService(t)

	m, err := svc.GetByResource(context.Background(), "payroll_execute")
	require.NoError(t, err)
	assert.Equal(t, "1", m.Price)
	assert.Equal(t, "USDC", m.Asset)
	assert.Equal(t, "avalanche", m.Chain)
	assert.Equal(t, "v1", m.Version)
}

func TestGetByResource_NotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetByResource(context.Background(), "no_such_meter")
	assert.ErrorIs(t, err, meterdomain.ErrNotFound)
}

func TestGetByResource_EmptyResource(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetByResource(context.Background(), "  ")
	assert.ErrorIs(t, err, meterdomain.ErrInvalidResource)
}

func TestList(t *testing.T) {
	svc := newTestService(t)

	meters, err := svc.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, meters)
	assert.Equal(t, "payroll_execute", meters[0].Resource)
}
