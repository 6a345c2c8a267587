// Package publisher streams status and alarm events to a Kafka-compatible broker.
package publisher

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	DefaultTopic = "serverroom-events"

	clientID = "serverroom"
	alarmKey = "alarm"

	EventStatusChange = "status_change"
	EventAlarm        = "alarm"
)

type Config struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether any broker is configured
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// Producer is the subset of *kgo.Client the publisher needs. TryProduce never
// blocks, so a slow broker cannot stall the tick that triggered the event.
type Producer interface {
	TryProduce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Source is the part of the engine status events are enriched from
type Source interface {
	Now() float64
	ServerReading(index int) (monitoring.ServerReading, bool)
	OnServerStatusChanged(fn func(monitoring.StatusChange)) bus.Subscription
}

// AlarmNotifier is the part of the alarm the publisher listens to
type AlarmNotifier interface {
	OnAlarmStateChanged(fn func(active bool)) bus.Subscription
}

// StatusEvent is the JSON payload for a server status transition
type StatusEvent struct {
	Type        string    `json:"type"`
	ServerIndex int       `json:"server_index"`
	ServerName  string    `json:"server_name"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	Temperature float64   `json:"temperature"`
	CPULoad     float64   `json:"cpu_load"`
	SimTime     float64   `json:"sim_time"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlarmEvent is the JSON payload for an alarm transition
type AlarmEvent struct {
	Type      string    `json:"type"`
	Active    bool      `json:"active"`
	SimTime   float64   `json:"sim_time"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher struct {
	ctx      context.Context
	producer Producer
	topic    string
	log      logger.Logger
	now      func() time.Time
	subs     bus.Group
}

// Option configures a Publisher
type Option func(*Publisher)

// WithClock overrides the wall clock used for event timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// WithLogger sets the publisher logger
func WithLogger(log logger.Logger) Option {
	return func(p *Publisher) {
		p.log = log
	}
}

// New connects a franz-go client to the configured brokers
func New(ctx context.Context, cfg Config, opts ...Option) (*Publisher, error) {
	errFactory := errors.New()

	if !cfg.Enabled() {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "no kafka brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID(clientID),
		kgo.RetryTimeout(30*time.Second),
		kgo.RetryBackoffFn(func(attempts int) time.Duration {
			return time.Duration(attempts) * time.Second
		}),
	)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	p := NewWithProducer(ctx, client, cfg.Topic, opts...)
	p.log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Event publisher initialized")

	return p, nil
}

// NewWithProducer wraps an existing producer
func NewWithProducer(ctx context.Context, producer Producer, topic string, opts ...Option) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}

	p := &Publisher{
		ctx:      ctx,
		producer: producer,
		topic:    topic,
		log:      logger.Component("publisher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ObserveStatus publishes every server status transition of src
func (p *Publisher) ObserveStatus(src Source) {
	p.subs.Add(src.OnServerStatusChanged(func(c monitoring.StatusChange) {
		reading, _ := src.ServerReading(c.Index)
		event := StatusEvent{
			Type:        EventStatusChange,
			ServerIndex: c.Index,
			ServerName:  reading.Name(),
			OldStatus:   c.Old.String(),
			NewStatus:   c.New.String(),
			Temperature: reading.Temperature,
			CPULoad:     reading.CPULoad,
			SimTime:     src.Now(),
			Timestamp:   p.now(),
		}
		p.publish(strconv.Itoa(c.Index), event)
	}))
}

// ObserveAlarm publishes every alarm transition of n, stamped with src's time
func (p *Publisher) ObserveAlarm(n AlarmNotifier, src Source) {
	p.subs.Add(n.OnAlarmStateChanged(func(active bool) {
		p.publish(alarmKey, AlarmEvent{
			Type:      EventAlarm,
			Active:    active,
			SimTime:   src.Now(),
			Timestamp: p.now(),
		})
	}))
}

func (p *Publisher) publish(key string, event any) {
	value, err := json.Marshal(event)
	if err != nil {
		p.log.ErrorWithCode(errors.New().Wrap(errors.ErrPublish, err)).Msg("Failed to encode event")
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
	}

	p.producer.TryProduce(p.ctx, record, func(r *kgo.Record, err error) {
		if errors.Is(err, kgo.ErrMaxBuffered) {
			p.log.Warn().
				Str("key", string(r.Key)).
				Msg("Producer buffer full, event dropped")
			return
		}
		if err != nil {
			p.log.ErrorWithCode(errors.New().Wrap(errors.ErrPublish, err)).
				Str("key", string(r.Key)).
				Msg("Failed to publish event")
			return
		}
		p.log.Debug().
			Str("key", string(r.Key)).
			Int32("partition", r.Partition).
			Int64("offset", r.Offset).
			Msg("Event published")
	})
}

// Close stops observing, flushes buffered records and closes the producer
func (p *Publisher) Close(ctx context.Context) error {
	p.subs.Unsubscribe()

	var flushErr error
	if err := p.producer.Flush(ctx); err != nil {
		flushErr = errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	p.producer.Close()

	return flushErr
}
