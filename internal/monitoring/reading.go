package monitoring

import "fmt"

// ServerCount is the fixed number of simulated servers
const ServerCount = 4

// StatusOverride pins a server's status regardless of its readings
type StatusOverride struct {
	Enabled bool
	Value   Status
}

// CPUOverride pins a server's CPU load
type CPUOverride struct {
	Enabled bool
	Value   float64
}

// ServerReading is a point-in-time view of one server slot. It holds no
// references into engine state, so copies are independent.
type ServerReading struct {
	Index          int
	DisplayName    string
	Temperature    float64
	CPULoad        float64
	Status         Status
	StatusOverride StatusOverride
	CPUOverride    CPUOverride
}

// Name returns the display name, falling back to a 1-based default
func (r ServerReading) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return fmt.Sprintf("Сервер %d", r.Index+1)
}

// Summary formats the reading for in-world displays
func (r ServerReading) Summary() string {
	return fmt.Sprintf("%s: %.1f°C | CPU: %.0f%% | %s", r.Name(), r.Temperature, r.CPULoad, r.Status.Label())
}

// StatusChange is published when a server's final status differs from the previous one
type StatusChange struct {
	Index int
	Old   Status
	New   Status
}
