package api

import (
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/incident"
	"codeberg.org/mutker/serverroom/internal/monitoring"
)

// Engine is the part of the telemetry engine the API reads and overrides
type Engine interface {
	Now() float64
	ServerReading(index int) (monitoring.ServerReading, bool)
	ServerReadings() []monitoring.ServerReading
	RoomTemperature() float64
	MainRoomTemperature() float64
	SetDisplayName(index int, name string) error
	SetManualStatus(index int, enabled bool, status monitoring.Status) error
	SetManualCPULoad(index int, enabled bool, value float64) error
}

type EventLog interface {
	Recent(n int) []eventlog.Record
	Count() int
}

type Alarm interface {
	IsActive() bool
	IsVisualOn() bool
}

type Incidents interface {
	HasIncident() bool
	IsShowingIncident() bool
	IncidentSnapshot() (incident.Snapshot, bool)
	ToggleShowIncident() error
}

// Executor serializes handler work with the simulation
type Executor interface {
	Do(fn func())
}
