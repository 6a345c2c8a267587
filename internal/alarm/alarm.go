// Package alarm drives the room-wide critical alarm and its blinking indicator.
package alarm

import (
	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/scheduler"
)

const DefaultBlinkInterval = 0.5

// Source reports whether any server is critical and when that may have changed
type Source interface {
	HasCritical() bool
	OnDataUpdated(fn func()) bus.Subscription
}

// Timer schedules the blink task
type Timer interface {
	Every(interval float64, fn func()) (*scheduler.Task, error)
}

// Machine tracks the alarm state. Callers serialize access the same way they do for the engine.
type Machine struct {
	src           Source
	timer         Timer
	blinkInterval float64
	log           logger.Logger

	active bool
	visual bool
	blink  *scheduler.Task
	sub    bus.Subscription

	changed       bus.Topic[bool]
	visualChanged bus.Topic[bool]
}

// Option configures a Machine
type Option func(*Machine)

// WithBlinkInterval sets the time in seconds between indicator toggles
func WithBlinkInterval(interval float64) Option {
	return func(m *Machine) {
		m.blinkInterval = interval
	}
}

// WithLogger sets the alarm logger
func WithLogger(log logger.Logger) Option {
	return func(m *Machine) {
		m.log = log
	}
}

// New creates the machine, evaluates the current state and follows every data update
func New(src Source, timer Timer, opts ...Option) (*Machine, error) {
	errFactory := errors.New()

	if src == nil || timer == nil {
		return nil, errFactory.WithMessage(errors.ErrInvalidArgument, "alarm source and timer are required")
	}

	m := &Machine{
		src:           src,
		timer:         timer,
		blinkInterval: DefaultBlinkInterval,
		log:           logger.Component("alarm"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.blinkInterval <= 0 {
		return nil, errFactory.WithData(errors.ErrInvalidInterval, m.blinkInterval)
	}

	if err := m.Evaluate(); err != nil {
		return nil, err
	}
	m.sub = src.OnDataUpdated(func() {
		if err := m.Evaluate(); err != nil {
			m.log.Error().Err(err).Msg("Failed to evaluate alarm")
		}
	})

	return m, nil
}

// Evaluate synchronizes the alarm with the current critical state
func (m *Machine) Evaluate() error {
	critical := m.src.HasCritical()
	if critical == m.active {
		return nil
	}

	if critical {
		task, err := m.timer.Every(m.blinkInterval, m.toggle)
		if err != nil {
			return errors.New().Wrap(errors.ErrOperationFailed, err)
		}
		m.blink = task
		m.active = true
		m.log.Warn().Msg("Critical alarm raised")
		m.setVisual(true)
	} else {
		m.blink.Stop()
		m.blink = nil
		m.active = false
		m.log.Info().Msg("Critical alarm cleared")
		m.setVisual(false)
	}

	m.changed.Publish(m.active)

	return nil
}

func (m *Machine) toggle() {
	m.setVisual(!m.visual)
}

func (m *Machine) setVisual(on bool) {
	if m.visual == on {
		return
	}
	m.visual = on
	m.visualChanged.Publish(on)
}

// IsActive reports whether the alarm is raised
func (m *Machine) IsActive() bool {
	return m.active
}

// IsVisualOn reports whether the blinking indicator is currently lit
func (m *Machine) IsVisualOn() bool {
	return m.visual
}

// OnAlarmStateChanged subscribes fn to alarm transitions
func (m *Machine) OnAlarmStateChanged(fn func(active bool)) bus.Subscription {
	return m.changed.Subscribe(fn)
}

// OnVisualChanged subscribes fn to indicator toggles
func (m *Machine) OnVisualChanged(fn func(on bool)) bus.Subscription {
	return m.visualChanged.Subscribe(fn)
}

// Close stops following the source and halts blinking
func (m *Machine) Close() {
	if m.sub != nil {
		m.sub.Unsubscribe()
		m.sub = nil
	}
	m.blink.Stop()
	m.blink = nil
}
