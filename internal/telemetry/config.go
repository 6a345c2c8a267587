package telemetry

import (
	"time"

	"codeberg.org/mutker/serverroom/internal/errors"
)

const (
	defaultServiceName    = "serverroom"
	defaultExportInterval = 15 * time.Second
	defaultExportTimeout  = 10 * time.Second
)

type Config struct {
	Endpoint       string // OTLP gRPC endpoint; empty disables export
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Interval       time.Duration
	Timeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		Interval:    defaultExportInterval,
		Timeout:     defaultExportTimeout,
	}
}

// Enabled reports whether metrics are exported over OTLP
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled() {
		return nil
	}
	if c.Interval <= 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value time.Duration
		}{
			Field: "interval",
			Value: c.Interval,
		})
	}
	if c.Timeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value time.Duration
		}{
			Field: "timeout",
			Value: c.Timeout,
		})
	}
	return nil
}
