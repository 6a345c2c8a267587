package monitoring

import "codeberg.org/mutker/serverroom/internal/errors"

const (
	defaultServerTempMin = 35
	defaultServerTempMax = 90
	defaultRoomTempMin   = 20
	defaultRoomTempMax   = 30
	defaultCPULoadMin    = 20
	defaultCPULoadMax    = 100

	defaultWarningTemp  = 70
	defaultCriticalTemp = 85
	defaultWarningCPU   = 70
	defaultCriticalCPU  = 90
)

// Config holds the simulation ranges and classification thresholds
type Config struct {
	ServerTempMin float64
	ServerTempMax float64
	RoomTempMin   float64
	RoomTempMax   float64
	CPULoadMin    float64
	CPULoadMax    float64
	Thresholds    Thresholds
}

func DefaultConfig() Config {
	return Config{
		ServerTempMin: defaultServerTempMin,
		ServerTempMax: defaultServerTempMax,
		RoomTempMin:   defaultRoomTempMin,
		RoomTempMax:   defaultRoomTempMax,
		CPULoadMin:    defaultCPULoadMin,
		CPULoadMax:    defaultCPULoadMax,
		Thresholds: Thresholds{
			WarningTemp:  defaultWarningTemp,
			CriticalTemp: defaultCriticalTemp,
			WarningCPU:   defaultWarningCPU,
			CriticalCPU:  defaultCriticalCPU,
		},
	}
}

// Validate rejects inverted ranges. Equal bounds are allowed.
func (c Config) Validate() error {
	errFactory := errors.New()

	ranges := []struct {
		name     string
		min, max float64
	}{
		{"server_temp", c.ServerTempMin, c.ServerTempMax},
		{"room_temp", c.RoomTempMin, c.RoomTempMax},
		{"cpu_load", c.CPULoadMin, c.CPULoadMax},
		{"temp_thresholds", c.Thresholds.WarningTemp, c.Thresholds.CriticalTemp},
		{"cpu_thresholds", c.Thresholds.WarningCPU, c.Thresholds.CriticalCPU},
	}

	for _, r := range ranges {
		if r.min > r.max {
			return errFactory.WithData(errors.ErrInvalidRange, struct {
				Range    string
				Min, Max float64
			}{r.name, r.min, r.max})
		}
	}

	return nil
}
