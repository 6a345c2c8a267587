// Package telemetry reports the room state as OpenTelemetry gauges.
package telemetry

import (
	"context"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	MeterName = "codeberg.org/mutker/serverroom"

	serverIndexKey = attribute.Key("server.index")
)

// NewMeterProvider builds a provider that pushes to the configured OTLP endpoint.
// With no endpoint the provider has no reader and records nothing.
func NewMeterProvider(ctx context.Context, cfg Config, log logger.Logger) (*sdkmetric.MeterProvider, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	res := resource.NewWithAttributes(
		"",
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	if !cfg.Enabled() {
		log.Debug().Msg("OTLP export disabled")
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTimeout(cfg.Timeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, errFactory.Wrap(ErrExporterInit, err)
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Dur("interval", cfg.Interval).
		Bool("insecure", cfg.Insecure).
		Msg("OTLP metric export enabled")

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(cfg.Interval),
		)),
		sdkmetric.WithResource(res),
	), nil
}

// Gauges exposes the latest snapshot through observable instruments
type Gauges struct {
	repo repository
	reg  metric.Registration

	serverTemp  metric.Float64ObservableGauge
	serverCPU   metric.Float64ObservableGauge
	serverState metric.Int64ObservableGauge
	roomTemp    metric.Float64ObservableGauge
	mainTemp    metric.Float64ObservableGauge
	alarm       metric.Int64ObservableGauge
	events      metric.Int64ObservableGauge
}

func NewGauges(meter metric.Meter) (*Gauges, error) {
	errFactory := errors.New()
	g := &Gauges{}

	var err error
	wrap := func(name string, err error) error {
		return errFactory.WithData(ErrInstrumentCreate, struct {
			Instrument string
			Error      string
		}{
			Instrument: name,
			Error:      err.Error(),
		})
	}

	if g.serverTemp, err = meter.Float64ObservableGauge("serverroom.server.temperature",
		metric.WithDescription("Server temperature"), metric.WithUnit("Cel")); err != nil {
		return nil, wrap("serverroom.server.temperature", err)
	}
	if g.serverCPU, err = meter.Float64ObservableGauge("serverroom.server.cpu_load",
		metric.WithDescription("Server CPU load"), metric.WithUnit("%")); err != nil {
		return nil, wrap("serverroom.server.cpu_load", err)
	}
	if g.serverState, err = meter.Int64ObservableGauge("serverroom.server.status",
		metric.WithDescription("Server status: 0 normal, 1 warning, 2 critical")); err != nil {
		return nil, wrap("serverroom.server.status", err)
	}
	if g.roomTemp, err = meter.Float64ObservableGauge("serverroom.room.temperature",
		metric.WithDescription("Server room temperature"), metric.WithUnit("Cel")); err != nil {
		return nil, wrap("serverroom.room.temperature", err)
	}
	if g.mainTemp, err = meter.Float64ObservableGauge("serverroom.room.main_temperature",
		metric.WithDescription("Main room temperature"), metric.WithUnit("Cel")); err != nil {
		return nil, wrap("serverroom.room.main_temperature", err)
	}
	if g.alarm, err = meter.Int64ObservableGauge("serverroom.alarm.active",
		metric.WithDescription("1 while the critical alarm is raised")); err != nil {
		return nil, wrap("serverroom.alarm.active", err)
	}
	if g.events, err = meter.Int64ObservableGauge("serverroom.eventlog.count",
		metric.WithDescription("Records held by the event log")); err != nil {
		return nil, wrap("serverroom.eventlog.count", err)
	}

	g.reg, err = meter.RegisterCallback(g.observe,
		g.serverTemp, g.serverCPU, g.serverState, g.roomTemp, g.mainTemp, g.alarm, g.events)
	if err != nil {
		return nil, errFactory.Wrap(ErrCallbackRegister, err)
	}

	return g, nil
}

// Update replaces the values reported at the next collection
func (g *Gauges) Update(s Snapshot) {
	g.repo.Store(s)
}

func (g *Gauges) observe(_ context.Context, o metric.Observer) error {
	s, ok := g.repo.Load()
	if !ok {
		return nil
	}

	for _, sv := range s.Servers {
		attrs := metric.WithAttributes(serverIndexKey.Int(sv.Index))
		o.ObserveFloat64(g.serverTemp, sv.Temperature, attrs)
		o.ObserveFloat64(g.serverCPU, sv.CPULoad, attrs)
		o.ObserveInt64(g.serverState, int64(sv.Status), attrs)
	}

	o.ObserveFloat64(g.roomTemp, s.RoomTemperature)
	o.ObserveFloat64(g.mainTemp, s.MainRoomTemperature)

	var alarm int64
	if s.AlarmActive {
		alarm = 1
	}
	o.ObserveInt64(g.alarm, alarm)
	o.ObserveInt64(g.events, int64(s.EventCount))

	return nil
}

// Close unregisters the collection callback
func (g *Gauges) Close() error {
	if err := g.reg.Unregister(); err != nil {
		return errors.New().Wrap(ErrCallbackUnregister, err)
	}
	return nil
}

// Shutdown flushes pending exports and stops the provider
func Shutdown(ctx context.Context, mp *sdkmetric.MeterProvider) error {
	if err := mp.Shutdown(ctx); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}
