package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	challenges       metric.Int64Counter
	proofValidations metric.Int64Counter
	settlementSteps  metric.Int64Counter
	confirmations    metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "paygate"
	}
	meter := provider.Meter(name)

	challenges, err := meter.Int64Counter("paygate_payment_challenges_total")
	if err != nil {
		return nil, err
	}
	proofValidations, err := meter.Int64Counter("paygate_proof_validations_total")
	if err != nil {
		return nil, err
	}
	settlementSteps, err := meter.Int64Counter("paygate_settlement_steps_total")
	if err != nil {
		return nil, err
	}
	confirmations, err := meter.Int64Counter("paygate_payment_confirmations_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("paygate_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		challenges:       challenges,
		proofValidations: proofValidations,
		settlementSteps:  settlementSteps,
		confirmations:    confirmations,
		rateLimitDenied:  rateLimitDenied,
	}, nil
}

// RecordChallenge increments issued 402 challenge counts.
func (m *Metrics) RecordChallenge(ctx context.Context, meterID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("meter_id", strings.TrimSpace(meterID)))
	m.challenges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordProofValidation increments proof validation counts by outcome.
func (m *Metrics) RecordProofValidation(ctx context.Context, meterID, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("meter_id", strings.TrimSpace(meterID)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.proofValidations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSettlementStep increments settlement step counts by outcome.
func (m *Metrics) RecordSettlementStep(ctx context.Context, step, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.settlementSteps.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordConfirmation increments confirmation callback counts by outcome.
func (m *Metrics) RecordConfirmation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.confirmations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"meter_id":    {},
	"outcome":     {},
	"step":        {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
