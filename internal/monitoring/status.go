package monitoring

import (
	"strings"

	"codeberg.org/mutker/serverroom/internal/errors"
)

// Status is the discrete health classification of a server, ordered by severity
type Status int

const (
	StatusNormal Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Label returns the operator-facing text for the status
func (s Status) Label() string {
	switch s {
	case StatusNormal:
		return "Норма"
	case StatusWarning:
		return "Предупреждение"
	case StatusCritical:
		return "Критично"
	default:
		return "Неизвестно"
	}
}

// Valid reports whether s is one of the defined statuses
func (s Status) Valid() bool {
	return s >= StatusNormal && s <= StatusCritical
}

// ParseStatus accepts the names produced by String
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "normal":
		return StatusNormal, nil
	case "warning":
		return StatusWarning, nil
	case "critical":
		return StatusCritical, nil
	default:
		return StatusNormal, errors.New().WithData(errors.ErrInvalidStatus, v)
	}
}

// MaxStatus returns the more severe of a and b
func MaxStatus(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Thresholds are the lower bounds of the Warning and Critical bands
type Thresholds struct {
	WarningTemp  float64
	CriticalTemp float64
	WarningCPU   float64
	CriticalCPU  float64
}

// TemperatureStatus classifies a temperature reading
func (th Thresholds) TemperatureStatus(temperature float64) Status {
	switch {
	case temperature >= th.CriticalTemp:
		return StatusCritical
	case temperature >= th.WarningTemp:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// CPUStatus classifies a CPU load reading
func (th Thresholds) CPUStatus(cpuLoad float64) Status {
	switch {
	case cpuLoad >= th.CriticalCPU:
		return StatusCritical
	case cpuLoad >= th.WarningCPU:
		return StatusWarning
	default:
		return StatusNormal
	}
}

// Classify derives the automatic status; whichever signal is worse wins
func (th Thresholds) Classify(temperature, cpuLoad float64) Status {
	return MaxStatus(th.TemperatureStatus(temperature), th.CPUStatus(cpuLoad))
}
