package telemetry

import "codeberg.org/mutker/serverroom/internal/errors"

const (
	ErrInvalidConfig      = errors.ErrInvalidConfig
	ErrInstrumentCreate   = errors.ErrorCode("telemetry_instrument_create_failed")
	ErrCallbackRegister   = errors.ErrorCode("telemetry_callback_register_failed")
	ErrCallbackUnregister = errors.ErrorCode("telemetry_callback_unregister_failed")
	ErrExporterInit       = errors.ErrorCode("telemetry_exporter_init_failed")
	ErrServiceShutdown    = errors.ErrShutdownFailed
)
