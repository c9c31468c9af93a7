// Package gpu reads GPU board power through NVML, as a companion reading
// next to the CPU energy counters.
package gpu

import (
	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// PowerSampler reads the board power draw of one GPU
type PowerSampler struct {
	nvml   nvmlController
	device nvml.Device
	name   string
	logger logger.Logger
}

// NewPowerSampler initializes NVML and binds to the first GPU
func NewPowerSampler(log logger.Logger) (*PowerSampler, error) {
	s := &PowerSampler{
		nvml:   &nvmlWrapper{},
		logger: log,
	}

	if err := s.nvml.Initialize(); err != nil {
		return nil, err
	}

	device, err := s.nvml.GetDevice(0)
	if err != nil {
		s.nvml.Shutdown()
		return nil, err
	}
	s.device = device

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		s.name = name
		log.Debug().Str("gpu", name).Msg("GPU power sampler initialized")
	}

	return s, nil
}

// Name returns the device name, or an empty string if it could not be read
func (s *PowerSampler) Name() string {
	return s.name
}

// PowerDraw returns the current board power draw in milliwatts
func (s *PowerSampler) PowerDraw() (uint32, error) {
	errFactory := errors.New()

	power, ret := s.device.GetPowerUsage()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrPowerReadFailed, newNVMLError(ret))
	}

	return power, nil
}

// Close shuts NVML down
func (s *PowerSampler) Close() error {
	return s.nvml.Shutdown()
}
