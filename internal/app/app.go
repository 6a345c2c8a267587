// Package app wires the simulation, its observers and the operator surfaces together.
package app

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/serverroom/internal/alarm"
	"codeberg.org/mutker/serverroom/internal/api"
	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/config"
	"codeberg.org/mutker/serverroom/internal/dashboard"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/incident"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/metrics"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"codeberg.org/mutker/serverroom/internal/noise"
	"codeberg.org/mutker/serverroom/internal/publisher"
	"codeberg.org/mutker/serverroom/internal/scheduler"
	"codeberg.org/mutker/serverroom/internal/telemetry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	schedulerResolution = 50 * time.Millisecond
	closeTimeout        = 5 * time.Second
)

// Version is reported as the telemetry service version
var Version = "dev"

type App struct {
	cfg *config.Config
	log logger.Logger
	ctx context.Context

	sched     *scheduler.Scheduler
	engine    *monitoring.Engine
	events    *eventlog.Store
	alarm     *alarm.Machine
	incidents *incident.Store

	collector metrics.Collector
	provider  *sdkmetric.MeterProvider
	gauges    *telemetry.Gauges
	publisher *publisher.Publisher

	tickTask  *scheduler.Task
	subs      bus.Group
	startOnce sync.Once
	startErr  error
	closeOnce sync.Once
}

// Option configures an App
type Option func(*options)

type options struct {
	src        noise.Source
	timeOffset *float64
}

// WithNoiseSource replaces the Perlin source seeded from the configuration
func WithNoiseSource(src noise.Source) Option {
	return func(o *options) {
		o.src = src
	}
}

// WithTimeOffset fixes the engine's noise phase
func WithTimeOffset(offset float64) Option {
	return func(o *options) {
		o.timeOffset = &offset
	}
}

// New builds every component. Nothing runs until Start or Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	errFactory := errors.New()

	if cfg == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:   cfg,
		log:   logger.Component("app"),
		ctx:   ctx,
		sched: scheduler.New(),
	}

	if err := a.initCore(o); err != nil {
		a.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	if err := a.initSinks(ctx); err != nil {
		a.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return a, nil
}

func (a *App) initCore(o options) error {
	src := o.src
	if src == nil {
		seed := a.cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		a.log.Debug().Int64("seed", seed).Msg("Using Perlin noise")
		src = noise.NewPerlin(seed)
	}

	engineOpts := []monitoring.Option{monitoring.WithLogger(logger.Component("engine"))}
	if o.timeOffset != nil {
		engineOpts = append(engineOpts, monitoring.WithTimeOffset(*o.timeOffset))
	}

	var err error
	a.engine, err = monitoring.New(monitoringConfig(a.cfg), src, a.sched, engineOpts...)
	if err != nil {
		return err
	}

	a.events = eventlog.NewStore(a.cfg.EventLogCapacity, eventlog.WithLogger(logger.Component("eventlog")))
	a.subs.Add(a.events.ObserveStatus(a.engine))
	a.events.SystemStarted()

	a.alarm, err = alarm.New(a.engine, a.sched,
		alarm.WithBlinkInterval(a.cfg.BlinkInterval),
		alarm.WithLogger(logger.Component("alarm")),
	)
	if err != nil {
		return err
	}
	a.subs.Add(a.events.ObserveAlarm(a.alarm))

	a.incidents, err = incident.New(a.engine,
		incident.WithHistoryHorizon(a.cfg.HistoryHorizon),
		incident.WithLogger(logger.Component("incident")),
	)
	return err
}

func (a *App) initSinks(ctx context.Context) error {
	var err error

	a.collector, err = metrics.NewService(metrics.Config{
		Enabled:      a.cfg.Metrics,
		DBPath:       a.cfg.MetricsDB,
		BatchSize:    a.cfg.MetricsBatchSize,
		BatchTimeout: a.cfg.MetricsBatchTimeout,
	}, logger.Component("metrics"))
	if err != nil {
		return err
	}

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Endpoint = a.cfg.OTLPEndpoint
	telemetryCfg.Insecure = a.cfg.OTLPInsecure
	telemetryCfg.ServiceVersion = Version

	a.provider, err = telemetry.NewMeterProvider(ctx, telemetryCfg, logger.Component("telemetry"))
	if err != nil {
		return err
	}
	a.gauges, err = telemetry.NewGauges(a.provider.Meter(telemetry.MeterName))
	if err != nil {
		return err
	}

	if len(a.cfg.KafkaBrokers) > 0 {
		a.publisher, err = publisher.New(ctx, publisher.Config{
			Brokers: a.cfg.KafkaBrokers,
			Topic:   a.cfg.KafkaTopic,
		}, publisher.WithLogger(logger.Component("publisher")))
		if err != nil {
			return err
		}
		a.publisher.ObserveStatus(a.engine)
		a.publisher.ObserveAlarm(a.alarm, a.engine)
	}

	a.updateGauges()
	a.subs.Add(a.engine.OnDataUpdated(a.onDataUpdated))

	return nil
}

func (a *App) onDataUpdated() {
	a.updateGauges()

	sample := metrics.NewSample(a.engine, a.alarm.IsActive(), time.Now())
	if err := a.collector.Record(a.ctx, sample); err != nil {
		a.log.Error().Err(err).Msg("Failed to record sample")
	}
}

func (a *App) updateGauges() {
	a.gauges.Update(telemetry.NewSnapshot(a.engine, a.alarm.IsActive(), a.events.Count()))
}

func monitoringConfig(cfg *config.Config) monitoring.Config {
	return monitoring.Config{
		ServerTempMin: cfg.ServerTempMin,
		ServerTempMax: cfg.ServerTempMax,
		RoomTempMin:   cfg.RoomTempMin,
		RoomTempMax:   cfg.RoomTempMax,
		CPULoadMin:    cfg.CPULoadMin,
		CPULoadMax:    cfg.CPULoadMax,
		Thresholds: monitoring.Thresholds{
			WarningTemp:  cfg.WarningTemp,
			CriticalTemp: cfg.CriticalTemp,
			WarningCPU:   cfg.WarningCPU,
			CriticalCPU:  cfg.CriticalCPU,
		},
	}
}

// Start runs the first tick and schedules the following ones. It is idempotent.
func (a *App) Start() error {
	a.startOnce.Do(func() {
		a.sched.Do(func() {
			a.engine.Tick()
			a.tickTask, a.startErr = a.sched.Every(a.cfg.Interval, a.engine.Tick)
		})
		if a.startErr == nil {
			a.log.Info().
				Float64("interval", a.cfg.Interval).
				Msg("Simulation started")
		}
	})
	return a.startErr
}

// Run starts the simulation and the enabled surfaces and blocks until ctx is
// cancelled or the dashboard is closed.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	spawn := func(name string, fn func(context.Context) error, stopAll bool) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				a.log.Error().Err(err).Str("component", name).Msg("Component stopped with error")
				errCh <- err
				cancel()
				return
			}
			if stopAll {
				cancel()
			}
		}()
	}

	spawn("scheduler", func(ctx context.Context) error {
		return a.sched.Run(ctx, schedulerResolution)
	}, false)

	if a.cfg.APIListen != "" {
		h := api.NewHandler(api.Deps{
			Engine:    a.engine,
			Events:    a.events,
			Alarm:     a.alarm,
			Incidents: a.incidents,
			Executor:  a.sched,
			Logger:    logger.Component("api"),
		})
		srv := api.NewServer(a.cfg.APIListen, h)
		spawn("api", srv.Run, false)
	}

	if a.cfg.Dashboard {
		deps := dashboard.Deps{
			Engine:    a.engine,
			Events:    a.events,
			Alarm:     a.alarm,
			Incidents: a.incidents,
			Executor:  a.sched,
			Logger:    logger.Component("dashboard"),
		}
		spawn("dashboard", func(ctx context.Context) error {
			return dashboard.Run(ctx, deps)
		}, true)
	}

	<-ctx.Done()
	wg.Wait()
	close(errCh)

	return <-errCh
}

// Close stops the simulation and releases every sink. It is idempotent.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.closeOnce.Do(func() {
		a.sched.Do(func() {
			a.tickTask.Stop()
			a.subs.Unsubscribe()
			if a.alarm != nil {
				a.alarm.Close()
			}
			if a.incidents != nil {
				a.incidents.Close()
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		if a.publisher != nil {
			keep(a.publisher.Close(ctx))
		}
		if a.collector != nil {
			keep(a.collector.Close())
		}
		if a.gauges != nil {
			keep(a.gauges.Close())
		}
		if a.provider != nil {
			keep(telemetry.Shutdown(ctx, a.provider))
		}

		a.log.Info().Msg("Simulation stopped")
	})

	return firstErr
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Engine() *monitoring.Engine      { return a.engine }
func (a *App) Events() *eventlog.Store         { return a.events }
func (a *App) Alarm() *alarm.Machine           { return a.alarm }
func (a *App) Incidents() *incident.Store      { return a.incidents }
