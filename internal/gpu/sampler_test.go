package gpu

import (
	"os"
	"testing"

	"codeberg.org/mutker/powerctl/internal/errors"
	"codeberg.org/mutker/powerctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init("error", false)
	os.Exit(m.Run())
}

type fakeDevice struct {
	nvml.Device
	power   uint32
	readRet nvml.Return
}

func (d fakeDevice) GetPowerUsage() (uint32, nvml.Return) {
	if d.readRet != nvml.SUCCESS {
		return 0, d.readRet
	}
	return d.power, nvml.SUCCESS
}

func (d fakeDevice) GetName() (string, nvml.Return) {
	return "Fake GPU", nvml.SUCCESS
}

type fakeController struct {
	device    nvml.Device
	shutdowns int
}

func (c *fakeController) Initialize() error { return nil }

func (c *fakeController) Shutdown() error {
	c.shutdowns++
	return nil
}

func (c *fakeController) GetDevice(index int) (nvml.Device, error) {
	return c.device, nil
}

func TestPowerDraw(t *testing.T) {
	s := &PowerSampler{
		nvml:   &fakeController{},
		device: fakeDevice{power: 55000},
	}

	power, err := s.PowerDraw()
	require.NoError(t, err)
	assert.Equal(t, uint32(55000), power)
}

func TestPowerDrawFailure(t *testing.T) {
	s := &PowerSampler{
		nvml:   &fakeController{},
		device: fakeDevice{readRet: nvml.ERROR_UNKNOWN},
	}

	_, err := s.PowerDraw()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, ErrPowerReadFailed), "got %v", err)
}

func TestCloseShutsDownNVML(t *testing.T) {
	ctrl := &fakeController{}
	s := &PowerSampler{nvml: ctrl, device: fakeDevice{}}

	require.NoError(t, s.Close())
	assert.Equal(t, 1, ctrl.shutdowns)
}

func TestName(t *testing.T) {
	s := &PowerSampler{name: "Fake GPU"}
	assert.Equal(t, "Fake GPU", s.Name())
}

func TestNVMLErrorMapping(t *testing.T) {
	assert.NoError(t, newNVMLError(nvml.SUCCESS))

	err := newNVMLError(nvml.ERROR_UNKNOWN)
	require.Error(t, err)
	assert.NotEmpty(t, err.Error())
}
