package dashboard

import (
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/incident"
	"codeberg.org/mutker/serverroom/internal/monitoring"
)

type Engine interface {
	Now() float64
	RoomTemperature() float64
	MainRoomTemperature() float64
	ServerReadings() []monitoring.ServerReading
}

type EventLog interface {
	Recent(n int) []eventlog.Record
}

type Alarm interface {
	IsActive() bool
	IsVisualOn() bool
}

type Incidents interface {
	IsShowingIncident() bool
	IncidentSnapshot() (incident.Snapshot, bool)
	ToggleShowIncident() error
}

// Executor serializes reads with the simulation
type Executor interface {
	Do(fn func())
}
