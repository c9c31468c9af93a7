package powerctl

import "codeberg.org/mutker/powerctl/internal/errors"

// ErrorCode identifies one library error condition
type ErrorCode = errors.ErrorCode

// Error is the typed error returned by every failing operation
type Error = errors.Error

// Error codes recorded by operations and reported by LastError. The voltage
// and budget codes are reserved and surfaced by no operation today.
const (
	Success = errors.Success

	ErrArchUnsupported    = errors.ErrArchUnsupported
	ErrNotImplemented     = errors.ErrNotImplemented
	ErrUninitialized      = errors.ErrUninitialized
	ErrGeneral            = errors.ErrGeneral
	ErrUnavailable        = errors.ErrUnavailable
	ErrRequestDenied      = errors.ErrRequestDenied
	ErrInitFailed         = errors.ErrInitFailed
	ErrFinalizeFailed     = errors.ErrFinalizeFailed
	ErrAlreadyInitialized = errors.ErrAlreadyInitialized
	ErrIO                 = errors.ErrIO

	ErrUnsupportedSpeedLevel = errors.ErrUnsupportedSpeedLevel
	ErrUnsupportedVoltage    = errors.ErrUnsupportedVoltage
	ErrAlreadyMinMax         = errors.ErrAlreadyMinMax
	ErrInvalidIsland         = errors.ErrInvalidIsland
	ErrDVFS                  = errors.ErrDVFS

	ErrOverEnergyBudget  = errors.ErrOverEnergyBudget
	ErrOverPowerBudget   = errors.ErrOverPowerBudget
	ErrOverThermalBudget = errors.ErrOverThermalBudget
)

// IsCode reports whether err carries the given error code
func IsCode(err error, code ErrorCode) bool {
	return errors.IsCode(err, code)
}
