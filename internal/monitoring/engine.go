// Package monitoring simulates the server room telemetry and derives server health.
package monitoring

import (
	"math"
	"math/rand"

	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/noise"
)

const (
	temperatureTimeScale     = 0.1
	temperatureChannelStride = 10
	cpuTimeScale             = 0.15
	cpuChannelBase           = 500
	cpuChannelStride         = 15
	mainRoomTimeScale        = 0.05
	mainRoomChannel          = 100

	roomLerpHeadroom  = 10
	roomClampHeadroom = 15

	maxTimeOffset = 1000
)

// Clock supplies the simulation time in seconds
type Clock interface {
	Now() float64
}

// Engine owns the simulated servers. It is not safe for concurrent use: all
// calls, including the subscriber callbacks it triggers, must be serialized by
// the caller (see scheduler.Scheduler.Do).
type Engine struct {
	cfg        Config
	src        noise.Source
	clock      Clock
	log        logger.Logger
	timeOffset float64

	servers             [ServerCount]ServerReading
	roomTemperature     float64
	mainRoomTemperature float64

	dataUpdated   bus.Topic[struct{}]
	statusChanged bus.Topic[StatusChange]
}

// Option configures an Engine
type Option func(*Engine)

// WithTimeOffset fixes the phase offset added to the clock before sampling noise
func WithTimeOffset(offset float64) Option {
	return func(e *Engine) {
		e.timeOffset = offset
	}
}

// WithLogger sets the engine logger
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates the engine and computes the initial state without notifying anyone
func New(cfg Config, src noise.Source, clock Clock, opts ...Option) (*Engine, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if src == nil || clock == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "noise source and clock are required")
	}

	e := &Engine{
		cfg:        cfg,
		src:        src,
		clock:      clock,
		log:        logger.Component("engine"),
		timeOffset: rand.Float64() * maxTimeOffset,
	}
	for _, opt := range opts {
		opt(e)
	}

	for i := range e.servers {
		e.servers[i] = ServerReading{Index: i}
	}

	e.recompute()

	e.log.Debug().
		Float64("time_offset", e.timeOffset).
		Float64("room_temperature", e.roomTemperature).
		Msg("Engine initialized")

	return e, nil
}

// Tick advances the simulation one step and notifies subscribers. Status
// changes are delivered first, then exactly one data-updated notification.
func (e *Engine) Tick() {
	e.publish(e.recompute())
}

func (e *Engine) recompute() []StatusChange {
	t := e.clock.Now() + e.timeOffset
	th := e.cfg.Thresholds

	var changes []StatusChange
	var sum float64

	for i := range e.servers {
		s := &e.servers[i]
		old := s.Status

		tempNoise := e.src.Sample(float64(i)*temperatureChannelStride, t*temperatureTimeScale)
		s.Temperature = lerp(e.cfg.ServerTempMin, e.cfg.ServerTempMax, tempNoise)

		cpuNoise := e.src.Sample(cpuChannelBase+float64(i)*cpuChannelStride, t*cpuTimeScale)
		s.CPULoad = lerp(e.cfg.CPULoadMin, e.cfg.CPULoadMax, cpuNoise)
		if s.CPUOverride.Enabled {
			s.CPULoad = clamp(s.CPUOverride.Value, e.cfg.CPULoadMin, e.cfg.CPULoadMax)
		}

		s.Status = th.Classify(s.Temperature, s.CPULoad)
		if s.StatusOverride.Enabled {
			s.Status = s.StatusOverride.Value
		}

		if s.Status != old {
			changes = append(changes, StatusChange{Index: i, Old: old, New: s.Status})
		}

		sum += s.Temperature
	}

	e.roomTemperature = e.roomTemperatureFor(sum / ServerCount)

	mainNoise := e.src.Sample(mainRoomChannel, t*mainRoomTimeScale)
	e.mainRoomTemperature = lerp(e.cfg.RoomTempMin, e.cfg.RoomTempMax, mainNoise)

	return changes
}

func (e *Engine) roomTemperatureFor(meanServerTemp float64) float64 {
	var norm float64
	if span := e.cfg.ServerTempMax - e.cfg.ServerTempMin; span != 0 {
		norm = (meanServerTemp - e.cfg.ServerTempMin) / span
	}

	room := lerp(e.cfg.RoomTempMin, e.cfg.RoomTempMax+roomLerpHeadroom, norm)

	return clamp(room, e.cfg.RoomTempMin, e.cfg.RoomTempMax+roomClampHeadroom)
}

func (e *Engine) publish(changes []StatusChange) {
	for _, c := range changes {
		e.log.Info().
			Int("server", c.Index).
			Str("old", c.Old.String()).
			Str("new", c.New.String()).
			Msg("Server status changed")
		e.statusChanged.Publish(c)
	}

	e.log.Debug().
		Float64("room_temperature", e.roomTemperature).
		Float64("main_room_temperature", e.mainRoomTemperature).
		Int("status_changes", len(changes)).
		Msg("Data updated")
	e.dataUpdated.Publish(struct{}{})
}

// OnDataUpdated subscribes fn to the once-per-tick notification
func (e *Engine) OnDataUpdated(fn func()) bus.Subscription {
	return e.dataUpdated.Subscribe(func(struct{}) { fn() })
}

// OnServerStatusChanged subscribes fn to per-server status transitions
func (e *Engine) OnServerStatusChanged(fn func(StatusChange)) bus.Subscription {
	return e.statusChanged.Subscribe(fn)
}

// ServerReading returns a copy of the reading at index
func (e *Engine) ServerReading(index int) (ServerReading, bool) {
	if !validIndex(index) {
		return ServerReading{}, false
	}
	return e.servers[index], true
}

// ServerReadings returns copies of all readings in index order
func (e *Engine) ServerReadings() []ServerReading {
	out := make([]ServerReading, ServerCount)
	copy(out, e.servers[:])
	return out
}

// RoomTemperature returns the server room temperature derived from the servers
func (e *Engine) RoomTemperature() float64 {
	return e.roomTemperature
}

// MainRoomTemperature returns the slowly varying temperature of the adjoining room
func (e *Engine) MainRoomTemperature() float64 {
	return e.mainRoomTemperature
}

// HasCritical reports whether any server is currently Critical
func (e *Engine) HasCritical() bool {
	for i := range e.servers {
		if e.servers[i].Status == StatusCritical {
			return true
		}
	}
	return false
}

// Now returns the simulation time of the engine clock
func (e *Engine) Now() float64 {
	return e.clock.Now()
}

// SetDisplayName renames a server. Readings are not recomputed.
func (e *Engine) SetDisplayName(index int, name string) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}

	e.servers[index].DisplayName = name
	e.dataUpdated.Publish(struct{}{})

	return nil
}

// SetManualStatus pins (or releases) a server's status and recomputes the whole state
func (e *Engine) SetManualStatus(index int, enabled bool, status Status) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if !status.Valid() {
		return errors.New().WithData(errors.ErrInvalidStatus, int(status))
	}

	e.servers[index].StatusOverride = StatusOverride{Enabled: enabled, Value: status}
	e.log.Info().
		Int("server", index).
		Bool("enabled", enabled).
		Str("status", status.String()).
		Msg("Manual status override")

	e.Tick()

	return nil
}

// SetManualCPULoad pins (or releases) a server's CPU load and recomputes the whole state
func (e *Engine) SetManualCPULoad(index int, enabled bool, value float64) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.New().WithData(errors.ErrInvalidArgument, value)
	}

	e.servers[index].CPUOverride = CPUOverride{Enabled: enabled, Value: value}
	e.log.Info().
		Int("server", index).
		Bool("enabled", enabled).
		Float64("cpu_load", value).
		Msg("Manual CPU override")

	e.Tick()

	return nil
}

func (e *Engine) checkIndex(index int) error {
	if validIndex(index) {
		return nil
	}

	err := errors.New().WithData(errors.ErrInvalidServerIndex, index)
	e.log.Warn().Int("server", index).Msg("Ignoring call for unknown server")

	return err
}

func validIndex(index int) bool {
	return index >= 0 && index < ServerCount
}

// lerp interpolates between a and b with t clamped to [0,1]
func lerp(a, b, t float64) float64 {
	return a + (b-a)*noise.Clamp01(t)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
