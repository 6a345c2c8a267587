// Package eventlog keeps a bounded, in-memory journal of operator-facing events.
package eventlog

import (
	"fmt"
	"time"

	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
)

const (
	DefaultCapacity = 100

	TimestampFormat = "2006-01-02 15:04:05"

	systemStartMessage = "Система мониторинга запущена"
	alarmOnMessage     = "Аварийная сигнализация включена"
	alarmOffMessage    = "Аварийная сигнализация выключена"
)

// Category classifies a Record
type Category int

const (
	CategoryStatusChange Category = iota
	CategoryTemperatureAlert
	CategorySystemStart
	CategoryDataUpdate
)

func (c Category) String() string {
	switch c {
	case CategoryStatusChange:
		return "status_change"
	case CategoryTemperatureAlert:
		return "temperature_alert"
	case CategorySystemStart:
		return "system_start"
	case CategoryDataUpdate:
		return "data_update"
	default:
		return "unknown"
	}
}

// Record is an immutable log entry
type Record struct {
	Timestamp time.Time
	Category  Category
	Message   string
}

func (r Record) String() string {
	return fmt.Sprintf("[%s] %s", r.Timestamp.Format(TimestampFormat), r.Message)
}

// StatusNotifier is the part of the engine the store listens to
type StatusNotifier interface {
	OnServerStatusChanged(fn func(monitoring.StatusChange)) bus.Subscription
}

// AlarmNotifier is the part of the alarm the store listens to
type AlarmNotifier interface {
	OnAlarmStateChanged(fn func(active bool)) bus.Subscription
}

// Store is a fixed-capacity ring buffer of records; the oldest record is evicted first
type Store struct {
	buf   []Record
	start int
	count int

	now   func() time.Time
	log   logger.Logger
	added bus.Topic[Record]
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the wall clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLogger sets the store logger
func WithLogger(log logger.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a store holding at most capacity records.
// A non-positive capacity falls back to DefaultCapacity.
func NewStore(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	s := &Store{
		buf: make([]Record, capacity),
		now: time.Now,
		log: logger.Component("eventlog"),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Append adds a record, evicting the oldest one when full, and notifies subscribers
func (s *Store) Append(category Category, message string) Record {
	rec := Record{
		Timestamp: s.now(),
		Category:  category,
		Message:   message,
	}

	capacity := len(s.buf)
	if s.count < capacity {
		s.buf[(s.start+s.count)%capacity] = rec
		s.count++
	} else {
		s.buf[s.start] = rec
		s.start = (s.start + 1) % capacity
	}

	s.log.Debug().
		Str("category", category.String()).
		Str("message", message).
		Msg("Event added")

	s.added.Publish(rec)

	return rec
}

// Recent returns up to n of the newest records, oldest first
func (s *Store) Recent(n int) []Record {
	if n <= 0 {
		return []Record{}
	}
	if n > s.count {
		n = s.count
	}

	out := make([]Record, n)
	skip := s.count - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.start+skip+i)%len(s.buf)]
	}

	return out
}

// All returns every stored record, oldest first
func (s *Store) All() []Record {
	return s.Recent(s.count)
}

// Count returns the number of stored records
func (s *Store) Count() int {
	return s.count
}

// Capacity returns the maximum number of records kept
func (s *Store) Capacity() int {
	return len(s.buf)
}

// OnEventAdded subscribes fn to new records
func (s *Store) OnEventAdded(fn func(Record)) bus.Subscription {
	return s.added.Subscribe(fn)
}

// SystemStarted records the start of the monitoring system
func (s *Store) SystemStarted() Record {
	return s.Append(CategorySystemStart, systemStartMessage)
}

// ObserveStatus appends a record for every server status transition
func (s *Store) ObserveStatus(n StatusNotifier) bus.Subscription {
	return n.OnServerStatusChanged(func(c monitoring.StatusChange) {
		s.Append(CategoryStatusChange, StatusChangeMessage(c))
	})
}

// ObserveAlarm appends a record whenever the alarm switches on or off
func (s *Store) ObserveAlarm(n AlarmNotifier) bus.Subscription {
	return n.OnAlarmStateChanged(func(active bool) {
		msg := alarmOffMessage
		if active {
			msg = alarmOnMessage
		}
		s.Append(CategoryTemperatureAlert, msg)
	})
}

// StatusChangeMessage formats a transition as "Сервер N: old → new" with a 1-based N
func StatusChangeMessage(c monitoring.StatusChange) string {
	return fmt.Sprintf("Сервер %d: %s → %s", c.Index+1, c.Old.Label(), c.New.Label())
}
