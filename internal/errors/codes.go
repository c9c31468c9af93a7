package errors

// Error codes shared across the power-control packages. The message
// table below is part of the public contract: ErrorMessage exposes
// these strings verbatim.
const (
	Success ErrorCode = "power_ok"

	ErrArchUnsupported    ErrorCode = "power_arch_unsupported"
	ErrNotImplemented     ErrorCode = "power_not_implemented"
	ErrUninitialized      ErrorCode = "power_uninitialized"
	ErrGeneral            ErrorCode = "power_general_error"
	ErrUnavailable        ErrorCode = "power_unavailable"
	ErrRequestDenied      ErrorCode = "power_request_denied"
	ErrInitFailed         ErrorCode = "power_init_failed"
	ErrFinalizeFailed     ErrorCode = "power_finalize_failed"
	ErrAlreadyInitialized ErrorCode = "power_already_initialized"
	ErrIO                 ErrorCode = "power_io_error"

	// DVFS errors
	ErrUnsupportedSpeedLevel ErrorCode = "power_unsupported_speed_level"
	ErrUnsupportedVoltage    ErrorCode = "power_unsupported_voltage"
	ErrAlreadyMinMax         ErrorCode = "power_already_min_max"
	ErrInvalidIsland         ErrorCode = "power_invalid_island"
	ErrDVFS                  ErrorCode = "power_dvfs_error"

	// Budget errors, surfaced by no operation yet
	ErrOverEnergyBudget  ErrorCode = "power_over_energy_budget"
	ErrOverPowerBudget   ErrorCode = "power_over_power_budget"
	ErrOverThermalBudget ErrorCode = "power_over_thermal_budget"
)

// Ambient error codes shared across packages
const (
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"
)

var errorMessages = map[ErrorCode]string{
	Success:               "Success",
	ErrArchUnsupported:    "Unsupported architecture",
	ErrNotImplemented:     "Feature not implemented",
	ErrUninitialized:      "Non-initialized context",
	ErrGeneral:            "General error",
	ErrUnavailable:        "The requested feature is not available",
	ErrRequestDenied:      "The last request was denied",
	ErrInitFailed:         "Initialization error",
	ErrFinalizeFailed:     "Finalization error",
	ErrAlreadyInitialized: "Already initialized",
	ErrIO:                 "I/O error",

	ErrUnsupportedSpeedLevel: "Unsupported speed level",
	ErrUnsupportedVoltage:    "Unsupported voltage",
	ErrAlreadyMinMax:         "Already at min/max speed",
	ErrInvalidIsland:         "Invalid island identifier",
	ErrDVFS:                  "Generic DVFS error",

	ErrOverEnergyBudget:  "Over energy budget",
	ErrOverPowerBudget:   "Over power budget",
	ErrOverThermalBudget: "Over thermal budget",

	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrInvalidLogLevel: "Invalid log level",
	ErrInvalidArgument: "Invalid argument provided",
	ErrAlreadyRunning:  "Another instance is already running",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return "Unknown error"
}
