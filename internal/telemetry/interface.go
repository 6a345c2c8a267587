package telemetry

import "codeberg.org/mutker/serverroom/internal/monitoring"

// Source is the part of the engine the gauges are read from
type Source interface {
	RoomTemperature() float64
	MainRoomTemperature() float64
	ServerReadings() []monitoring.ServerReading
}

// Snapshot holds the values reported at the next collection
type Snapshot struct {
	Servers             []ServerValues
	RoomTemperature     float64
	MainRoomTemperature float64
	AlarmActive         bool
	EventCount          int
}

type ServerValues struct {
	Index       int
	Temperature float64
	CPULoad     float64
	Status      monitoring.Status
}

// NewSnapshot copies the current values out of src
func NewSnapshot(src Source, alarmActive bool, eventCount int) Snapshot {
	readings := src.ServerReadings()

	s := Snapshot{
		Servers:             make([]ServerValues, len(readings)),
		RoomTemperature:     src.RoomTemperature(),
		MainRoomTemperature: src.MainRoomTemperature(),
		AlarmActive:         alarmActive,
		EventCount:          eventCount,
	}
	for i, r := range readings {
		s.Servers[i] = ServerValues{
			Index:       r.Index,
			Temperature: r.Temperature,
			CPULoad:     r.CPULoad,
			Status:      r.Status,
		}
	}

	return s
}
