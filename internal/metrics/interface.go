package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/serverroom/internal/monitoring"
)

// Collector exports per-tick samples
type Collector interface {
	Record(ctx context.Context, sample *Sample) error
	Close() error
}

// Repository defines the interface for sample storage
type Repository interface {
	Record(sample *Sample) error
	Close() error
}

// Source is the part of the engine a sample is taken from
type Source interface {
	Now() float64
	RoomTemperature() float64
	MainRoomTemperature() float64
	ServerReadings() []monitoring.ServerReading
}

// Sample is one row of room state plus one row per server
type Sample struct {
	Timestamp           time.Time
	SimTime             float64
	RoomTemperature     float64
	MainRoomTemperature float64
	AlarmActive         bool
	Servers             []ServerSample
}

type ServerSample struct {
	Index       int
	Name        string
	Temperature float64
	CPULoad     float64
	Status      string
}

// NewSample captures the current state of src
func NewSample(src Source, alarmActive bool, at time.Time) *Sample {
	readings := src.ServerReadings()

	s := &Sample{
		Timestamp:           at,
		SimTime:             src.Now(),
		RoomTemperature:     src.RoomTemperature(),
		MainRoomTemperature: src.MainRoomTemperature(),
		AlarmActive:         alarmActive,
		Servers:             make([]ServerSample, len(readings)),
	}
	for i, r := range readings {
		s.Servers[i] = ServerSample{
			Index:       r.Index,
			Name:        r.Name(),
			Temperature: r.Temperature,
			CPULoad:     r.CPULoad,
			Status:      r.Status.String(),
		}
	}

	return s
}
