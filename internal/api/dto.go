package api

import (
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/incident"
	"codeberg.org/mutker/serverroom/internal/monitoring"
)

type manualStatusDTO struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
}

type manualCPUDTO struct {
	Enabled bool    `json:"enabled"`
	Value   float64 `json:"value"`
}

type serverDTO struct {
	Index        int             `json:"index"`
	Name         string          `json:"name"`
	Temperature  float64         `json:"temperature"`
	CPULoad      float64         `json:"cpu_load"`
	Status       string          `json:"status"`
	StatusLabel  string          `json:"status_label"`
	Summary      string          `json:"summary"`
	ManualStatus manualStatusDTO `json:"manual_status"`
	ManualCPU    manualCPUDTO    `json:"manual_cpu"`
}

type roomDTO struct {
	Time                float64 `json:"time"`
	Temperature         float64 `json:"temperature"`
	MainRoomTemperature float64 `json:"main_room_temperature"`
}

type eventDTO struct {
	Timestamp string `json:"timestamp"`
	Category  string `json:"category"`
	Message   string `json:"message"`
}

type alarmDTO struct {
	Active   bool `json:"active"`
	VisualOn bool `json:"visual_on"`
}

type snapshotDTO struct {
	CaptureTime     float64     `json:"capture_time"`
	RoomTemperature float64     `json:"room_temperature"`
	Servers         []serverDTO `json:"servers"`
}

type incidentDTO struct {
	Showing  bool        `json:"showing"`
	Snapshot snapshotDTO `json:"snapshot"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type statusRequest struct {
	Enabled *bool  `json:"enabled" binding:"required"`
	Status  string `json:"status"`
}

type cpuRequest struct {
	Enabled *bool   `json:"enabled" binding:"required"`
	Value   float64 `json:"value"`
}

func newServerDTO(r monitoring.ServerReading) serverDTO {
	return serverDTO{
		Index:       r.Index,
		Name:        r.Name(),
		Temperature: r.Temperature,
		CPULoad:     r.CPULoad,
		Status:      r.Status.String(),
		StatusLabel: r.Status.Label(),
		Summary:     r.Summary(),
		ManualStatus: manualStatusDTO{
			Enabled: r.StatusOverride.Enabled,
			Status:  r.StatusOverride.Value.String(),
		},
		ManualCPU: manualCPUDTO{
			Enabled: r.CPUOverride.Enabled,
			Value:   r.CPUOverride.Value,
		},
	}
}

func newServerDTOs(readings []monitoring.ServerReading) []serverDTO {
	out := make([]serverDTO, len(readings))
	for i, r := range readings {
		out[i] = newServerDTO(r)
	}
	return out
}

func newEventDTOs(records []eventlog.Record) []eventDTO {
	out := make([]eventDTO, len(records))
	for i, r := range records {
		out[i] = eventDTO{
			Timestamp: r.Timestamp.Format(eventlog.TimestampFormat),
			Category:  r.Category.String(),
			Message:   r.Message,
		}
	}
	return out
}

func newSnapshotDTO(s incident.Snapshot) snapshotDTO {
	return snapshotDTO{
		CaptureTime:     s.CaptureTime,
		RoomTemperature: s.RoomTemperature,
		Servers:         newServerDTOs(s.Servers),
	}
}
