package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"codeberg.org/mutker/serverroom/internal/bus"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"codeberg.org/mutker/serverroom/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	records  []*kgo.Record
	limit    int
	fail     error
	flushed  bool
	closed   bool
	flushErr error
}

func (f *fakeProducer) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	if f.limit > 0 && len(f.records) >= f.limit {
		promise(r, kgo.ErrMaxBuffered)
		return
	}
	f.records = append(f.records, r)
	promise(r, f.fail)
}

func (f *fakeProducer) Flush(context.Context) error {
	f.flushed = true
	return f.flushErr
}

func (f *fakeProducer) Close() {
	f.closed = true
}

type fakeSource struct {
	now     float64
	reading monitoring.ServerReading
	changed bus.Topic[monitoring.StatusChange]
	alarm   bus.Topic[bool]
}

func (f *fakeSource) Now() float64 { return f.now }

func (f *fakeSource) ServerReading(int) (monitoring.ServerReading, bool) {
	return f.reading, true
}

func (f *fakeSource) OnServerStatusChanged(fn func(monitoring.StatusChange)) bus.Subscription {
	return f.changed.Subscribe(fn)
}

func (f *fakeSource) OnAlarmStateChanged(fn func(bool)) bus.Subscription {
	return f.alarm.Subscribe(fn)
}

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newPublisher(p *fakeProducer, topic string) *publisher.Publisher {
	return publisher.NewWithProducer(context.Background(), p, topic,
		publisher.WithLogger(logger.Nop()),
		publisher.WithClock(func() time.Time { return fixedTime }),
	)
}

func TestPublishesStatusChanges(t *testing.T) {
	prod := &fakeProducer{}
	pub := newPublisher(prod, "")

	src := &fakeSource{
		now: 42,
		reading: monitoring.ServerReading{
			Index:       1,
			DisplayName: "db-01",
			Temperature: 88,
			CPULoad:     64,
			Status:      monitoring.StatusCritical,
		},
	}
	pub.ObserveStatus(src)

	src.changed.Publish(monitoring.StatusChange{Index: 1, Old: monitoring.StatusWarning, New: monitoring.StatusCritical})

	require.Len(t, prod.records, 1)
	rec := prod.records[0]
	assert.Equal(t, publisher.DefaultTopic, rec.Topic)
	assert.Equal(t, "1", string(rec.Key))

	var event publisher.StatusEvent
	require.NoError(t, json.Unmarshal(rec.Value, &event))
	assert.True(t, event.Timestamp.Equal(fixedTime))
	event.Timestamp = fixedTime
	assert.Equal(t, publisher.StatusEvent{
		Type:        publisher.EventStatusChange,
		ServerIndex: 1,
		ServerName:  "db-01",
		OldStatus:   "warning",
		NewStatus:   "critical",
		Temperature: 88,
		CPULoad:     64,
		SimTime:     42,
		Timestamp:   fixedTime,
	}, event)
}

func TestPublishesAlarmChanges(t *testing.T) {
	prod := &fakeProducer{}
	pub := newPublisher(prod, "room-a")

	src := &fakeSource{now: 3.5}
	pub.ObserveAlarm(src, src)

	src.alarm.Publish(true)
	src.alarm.Publish(false)

	require.Len(t, prod.records, 2)
	for _, rec := range prod.records {
		assert.Equal(t, "room-a", rec.Topic)
		assert.Equal(t, "alarm", string(rec.Key))
	}

	var event map[string]any
	require.NoError(t, json.Unmarshal(prod.records[0].Value, &event))
	assert.Equal(t, "alarm", event["type"])
	assert.Equal(t, true, event["active"])
	assert.Equal(t, 3.5, event["sim_time"])
}

func TestProduceFailureIsLogged(t *testing.T) {
	prod := &fakeProducer{fail: errors.New("broker down")}
	pub := newPublisher(prod, "")

	src := &fakeSource{}
	pub.ObserveAlarm(src, src)

	assert.NotPanics(t, func() { src.alarm.Publish(true) })
	assert.Len(t, prod.records, 1)
}

func TestCloseStopsObserving(t *testing.T) {
	prod := &fakeProducer{}
	pub := newPublisher(prod, "")

	src := &fakeSource{}
	pub.ObserveStatus(src)
	pub.ObserveAlarm(src, src)

	require.NoError(t, pub.Close(context.Background()))
	assert.True(t, prod.flushed)
	assert.True(t, prod.closed)

	src.alarm.Publish(true)
	src.changed.Publish(monitoring.StatusChange{Index: 0, New: monitoring.StatusCritical})
	assert.Empty(t, prod.records)
}

func TestCloseReportsFlushError(t *testing.T) {
	prod := &fakeProducer{flushErr: errors.New("timeout")}
	pub := newPublisher(prod, "")

	assert.Error(t, pub.Close(context.Background()))
	assert.True(t, prod.closed)
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := publisher.New(context.Background(), publisher.Config{})
	assert.Error(t, err)
	assert.False(t, publisher.Config{}.Enabled())
	assert.True(t, publisher.Config{Brokers: []string{"localhost:9092"}}.Enabled())
}

func TestFullBufferDropsEvents(t *testing.T) {
	prod := &fakeProducer{limit: 1}
	pub := newPublisher(prod, "")

	src := &fakeSource{reading: monitoring.ServerReading{Index: 0}}
	pub.ObserveStatus(src)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			src.changed.Publish(monitoring.StatusChange{Index: 0, Old: monitoring.StatusNormal, New: monitoring.StatusCritical})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing blocked on a full producer buffer")
	}
	assert.Len(t, prod.records, 1)
}
