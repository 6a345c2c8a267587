// Package incident captures snapshots of the room when a server turns critical.
package incident

import (
	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
)

const DefaultHistoryHorizon = 600.0

// Snapshot is a deep copy of the room state at CaptureTime
type Snapshot struct {
	CaptureTime     float64
	RoomTemperature float64
	Servers         []monitoring.ServerReading
}

// Clone returns a copy that shares no memory with s
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Servers != nil {
		out.Servers = make([]monitoring.ServerReading, len(s.Servers))
		copy(out.Servers, s.Servers)
	}
	return out
}

// Source is the part of the engine the store reads from
type Source interface {
	Now() float64
	RoomTemperature() float64
	ServerReadings() []monitoring.ServerReading
	OnDataUpdated(fn func()) bus.Subscription
	OnServerStatusChanged(fn func(monitoring.StatusChange)) bus.Subscription
}

// Store keeps the last incident and a rolling history of recent snapshots
type Store struct {
	src     Source
	horizon float64
	log     logger.Logger

	hasIncident bool
	showing     bool
	last        Snapshot
	history     []Snapshot

	subs bus.Group
}

// Option configures a Store
type Option func(*Store)

// WithHistoryHorizon sets how far back, in seconds, the rolling history reaches
func WithHistoryHorizon(horizon float64) Option {
	return func(s *Store) {
		s.horizon = horizon
	}
}

// WithLogger sets the store logger
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

func New(src Source, opts ...Option) (*Store, error) {
	errFactory := errors.New()

	if src == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "incident source is required")
	}

	s := &Store{
		src:     src,
		horizon: DefaultHistoryHorizon,
		log:     logger.Component("incident"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.horizon <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidRange, s.horizon)
	}

	s.subs.Add(
		src.OnServerStatusChanged(s.onStatusChanged),
		src.OnDataUpdated(s.record),
	)

	return s, nil
}

func (s *Store) capture() Snapshot {
	return Snapshot{
		CaptureTime:     s.src.Now(),
		RoomTemperature: s.src.RoomTemperature(),
		Servers:         s.src.ServerReadings(),
	}
}

func (s *Store) onStatusChanged(c monitoring.StatusChange) {
	if c.New != monitoring.StatusCritical {
		return
	}

	s.last = s.capture()
	s.hasIncident = true

	s.log.Info().
		Int("server", c.Index).
		Float64("capture_time", s.last.CaptureTime).
		Float64("room_temperature", s.last.RoomTemperature).
		Msg("Incident snapshot captured")
}

func (s *Store) record() {
	snap := s.capture()

	cut := 0
	for cut < len(s.history) && snap.CaptureTime-s.history[cut].CaptureTime > s.horizon {
		cut++
	}
	if cut > 0 {
		s.history = append(s.history[:0], s.history[cut:]...)
	}

	s.history = append(s.history, snap)
}

// HasIncident reports whether a snapshot has ever been captured
func (s *Store) HasIncident() bool {
	return s.hasIncident
}

// ToggleShowIncident flips between the live and the last incident view.
// Without an incident it does nothing and returns ErrNoIncident.
func (s *Store) ToggleShowIncident() error {
	if !s.hasIncident {
		s.log.Warn().Msg("No incident to show")
		return errors.New().New(errors.ErrNoIncident)
	}

	s.showing = !s.showing
	s.log.Debug().Bool("showing", s.showing).Msg("Incident view toggled")

	return nil
}

// IsShowingIncident reports whether displays should show the last incident
func (s *Store) IsShowingIncident() bool {
	return s.showing
}

// IncidentSnapshot returns a copy of the last incident, if any
func (s *Store) IncidentSnapshot() (Snapshot, bool) {
	if !s.hasIncident {
		return Snapshot{}, false
	}
	return s.last.Clone(), true
}

// History returns copies of the snapshots within the horizon, oldest first
func (s *Store) History() []Snapshot {
	out := make([]Snapshot, len(s.history))
	for i, snap := range s.history {
		out[i] = snap.Clone()
	}
	return out
}

// Close stops following the source
func (s *Store) Close() {
	s.subs.Unsubscribe()
}
