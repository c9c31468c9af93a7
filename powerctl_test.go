package powerctl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"codeberg.org/mutker/powerctl/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init("error", false)
	os.Exit(m.Run())
}

func writeSysfs(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fakeCPU(t *testing.T, root string, cpu int, domain string) {
	t.Helper()
	files := map[string]string{
		"freqdomain_cpus":               domain + "\n",
		"cpuinfo_transition_latency":    "10000\n",
		"scaling_governor":              "userspace\n",
		"scaling_available_frequencies": "1600000 800000 2400000\n",
		"scaling_cur_freq":              "1600000\n",
		"scaling_setspeed":              "",
	}
	for name, content := range files {
		writeSysfs(t, root, fmt.Sprintf("devices/system/cpu/cpu%d/cpufreq/%s", cpu, name), content)
	}
}

func writeRaplZone(t *testing.T, root, dir, name string, energy uint64) {
	t.Helper()
	base := filepath.Join(root, "class/powercap", dir)
	require.NoError(t, os.MkdirAll(base, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "name"), []byte(name+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "energy_uj"),
		[]byte(strconv.FormatUint(energy, 10)+"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(base, "max_energy_range_uj"),
		[]byte("262143328850\n"), 0o644))
}

func setRaplEnergy(t *testing.T, root, dir string, energy uint64) {
	t.Helper()
	path := filepath.Join(root, "class/powercap", dir, "energy_uj")
	require.NoError(t, os.WriteFile(path, []byte(strconv.FormatUint(energy, 10)+"\n"), 0o644))
}

// fakeMachine builds a dual-socket box: 4 CPUs in 2 islands of 2, three
// speed levels, userspace governor, one RAPL package zone per socket.
func fakeMachine(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeSysfs(t, root, "devices/system/cpu/online", "0-3\n")
	for cpu := 0; cpu < 4; cpu++ {
		domain := "0 1"
		if cpu >= 2 {
			domain = "2 3"
		}
		fakeCPU(t, root, cpu, domain)
	}
	writeRaplZone(t, root, "intel-rapl:0", "package-0", 1000)
	writeRaplZone(t, root, "intel-rapl:1", "package-1", 2000)
	return root
}

func newContext(t *testing.T) (string, *Context) {
	t.Helper()
	root := fakeMachine(t)
	ctx, err := Initialize(nil, nil, nil, WithSysfsRoot(root))
	require.NoError(t, err)
	require.NotNil(t, ctx)
	t.Cleanup(func() { ctx.Finalize() })
	return root, ctx
}

func TestInitializeAllModules(t *testing.T) {
	_, ctx := newContext(t)

	assert.True(t, ctx.IsInitialized(ModuleStructure))
	assert.True(t, ctx.IsInitialized(ModuleDVFS))
	assert.True(t, ctx.IsInitialized(ModuleEnergy))
	assert.False(t, ctx.IsInitialized(ModuleHighLevel), "the high-level module never comes up")

	assert.Equal(t, Success, ctx.LastError())
	assert.Equal(t, "Success", ctx.ErrorMessage())
}

func TestInitializeStructureFailure(t *testing.T) {
	ctx, err := Initialize(nil, nil, nil, WithSysfsRoot(t.TempDir()))
	require.Error(t, err)
	assert.Nil(t, ctx, "no context without hardware structure")
	assert.True(t, IsCode(err, ErrArchUnsupported), "got %v", err)
}

func TestInitializeWithoutUserspaceGovernor(t *testing.T) {
	root := fakeMachine(t)
	writeSysfs(t, root, "devices/system/cpu/cpu3/cpufreq/scaling_governor", "performance\n")

	ctx, err := Initialize(nil, nil, nil, WithSysfsRoot(root))
	require.NoError(t, err, "a failed speed module must not fail initialization")
	require.NotNil(t, ctx)
	defer ctx.Finalize()

	assert.True(t, ctx.IsInitialized(ModuleStructure))
	assert.False(t, ctx.IsInitialized(ModuleDVFS))
	assert.True(t, ctx.IsInitialized(ModuleEnergy))
	assert.Equal(t, Success, ctx.LastError(), "the energy module initialized after the speed failure")

	_, err = ctx.NumSpeedLevels(0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)
	assert.Equal(t, ErrUninitialized, ctx.LastError())

	// Structure accessors stay usable.
	n, err := ctx.NumCPUs()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestInitializeWithoutPowercap(t *testing.T) {
	root := fakeMachine(t)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "class")))

	ctx, err := Initialize(nil, nil, nil, WithSysfsRoot(root))
	require.NoError(t, err, "a failed energy module must not fail initialization")
	require.NotNil(t, ctx)
	defer ctx.Finalize()

	assert.True(t, ctx.IsInitialized(ModuleDVFS))
	assert.False(t, ctx.IsInitialized(ModuleEnergy))
	assert.Equal(t, ErrArchUnsupported, ctx.LastError(), "the energy failure is the last recorded error")

	err = ctx.StartEnergyCount()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	m, err := ctx.StopEnergyCount()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)
	require.NotNil(t, m, "a failed stop still yields a measurement sentinel")
	assert.Empty(t, m.Counters)
}

// captureLogger routes diagnostics into a caller-owned zerolog instance.
type captureLogger struct {
	zl zerolog.Logger
}

func (l captureLogger) Debug() *logger.LogEvent { return &logger.LogEvent{Event: l.zl.Debug()} }
func (l captureLogger) Info() *logger.LogEvent  { return &logger.LogEvent{Event: l.zl.Info()} }
func (l captureLogger) Warn() *logger.LogEvent  { return &logger.LogEvent{Event: l.zl.Warn()} }
func (l captureLogger) Error() *logger.LogEvent { return &logger.LogEvent{Event: l.zl.Error()} }

func (l captureLogger) ErrorWithCode(err Error) *logger.LogEvent {
	return &logger.LogEvent{Event: l.zl.Error().Str("error_code", string(err.Code()))}
}

func (l captureLogger) ErrorWithContext(err error, component, operation string) *logger.LogEvent {
	return &logger.LogEvent{Event: l.zl.Error().Str("component", component).Str("operation", operation).Err(err)}
}

func TestInitializeWithCustomLogger(t *testing.T) {
	root := fakeMachine(t)
	require.NoError(t, os.RemoveAll(filepath.Join(root, "class")))

	var buf bytes.Buffer
	ctx, err := Initialize(nil, nil, nil,
		WithSysfsRoot(root), WithLogger(captureLogger{zl: zerolog.New(&buf)}))
	require.NoError(t, err)
	defer ctx.Finalize()

	assert.Contains(t, buf.String(), "Energy measurement unavailable",
		"the degraded-module warning goes to the supplied logger")
}

func TestStructureAccessors(t *testing.T) {
	_, ctx := newContext(t)

	n, err := ctx.NumCPUs()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = ctx.NumIslands()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for cpu, want := range map[int]int{0: 0, 1: 0, 2: 1, 3: 1} {
		island, err := ctx.IslandOfCPU(cpu)
		require.NoError(t, err)
		assert.Equal(t, want, island, "island of CPU %d", cpu)
	}

	cpus, err := ctx.IslandCPUs(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, cpus)

	// The returned slice is the caller's to mutate.
	cpus[0] = 99
	again, err := ctx.IslandCPUs(1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, again)
}

func TestStructureAccessorErrors(t *testing.T) {
	_, ctx := newContext(t)

	_, err := ctx.IslandOfCPU(4)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrRequestDenied), "out-of-range id is denied, got %v", err)
	assert.Equal(t, ErrRequestDenied, ctx.LastError())
	assert.Equal(t, "The last request was denied", ctx.ErrorMessage())

	_, err = ctx.IslandCPUs(2)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidIsland), "got %v", err)

	_, err = ctx.IslandCPUs(-1)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidIsland), "got %v", err)
}

func TestSpeedOperations(t *testing.T) {
	_, ctx := newContext(t)

	n, err := ctx.NumSpeedLevels(0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	level, err := ctx.CurrentSpeedLevel(0)
	require.NoError(t, err)
	assert.Equal(t, 2, level, "initial operating point is the maximum level")

	for level, want := range []int{800000, 1600000, 2400000} {
		freq, err := ctx.SpeedLevelFrequency(0, level)
		require.NoError(t, err)
		assert.Equal(t, want, freq)
	}

	require.NoError(t, ctx.RequestSpeedLevel(0, 1))
	level, err = ctx.CurrentSpeedLevel(0)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.Equal(t, Success, ctx.LastError())

	require.NoError(t, ctx.ModifySpeedLevel(0, -1))
	level, err = ctx.CurrentSpeedLevel(0)
	require.NoError(t, err)
	assert.Equal(t, 0, level)

	// The other island keeps its own operating point.
	level, err = ctx.CurrentSpeedLevel(1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	agility, err := ctx.Agility(0, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Microsecond, agility)
}

func TestSpeedOperationErrors(t *testing.T) {
	_, ctx := newContext(t)

	err := ctx.RequestSpeedLevel(0, 5)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUnsupportedSpeedLevel), "got %v", err)
	assert.Equal(t, ErrUnsupportedSpeedLevel, ctx.LastError())
	assert.Equal(t, "Unsupported speed level", ctx.ErrorMessage())

	err = ctx.RequestSpeedLevel(0, 2)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrAlreadyMinMax), "already at the maximum, got %v", err)
	assert.Equal(t, "Already at min/max speed", ctx.ErrorMessage())

	err = ctx.RequestSpeedLevel(9, 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidIsland), "got %v", err)

	_, err = ctx.Agility(9, 0, 0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrInvalidIsland), "got %v", err)

	_, err = ctx.Agility(0, 0, 3)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUnsupportedSpeedLevel), "got %v", err)
}

func TestModifyVoltageUnimplemented(t *testing.T) {
	_, ctx := newContext(t)

	err := ctx.ModifyVoltage(0, 1)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNotImplemented), "got %v", err)
	assert.Equal(t, ErrNotImplemented, ctx.LastError())
	assert.Equal(t, "Feature not implemented", ctx.ErrorMessage())
}

func TestHighLevelStubs(t *testing.T) {
	_, ctx := newContext(t)

	_, err := ctx.Efficiency(0)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNotImplemented), "got %v", err)

	err = ctx.SetPowerPriority(nil, 50)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNotImplemented), "got %v", err)

	err = ctx.SetSpeedPriority(nil, 50)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrNotImplemented), "got %v", err)
	assert.Equal(t, ErrNotImplemented, ctx.LastError())
}

func TestEnergyWindow(t *testing.T) {
	root, ctx := newContext(t)

	require.NoError(t, ctx.StartEnergyCount())

	setRaplEnergy(t, root, "intel-rapl:0", 4000)
	setRaplEnergy(t, root, "intel-rapl:1", 2500)
	time.Sleep(10 * time.Millisecond)

	m, err := ctx.StopEnergyCount()
	require.NoError(t, err)
	require.Len(t, m.Counters, 2)

	assert.Equal(t, "PACKAGE_ENERGY:PACKAGE0", m.Counters[0].Name)
	assert.Equal(t, "PACKAGE_ENERGY:PACKAGE1", m.Counters[1].Name)
	assert.Equal(t, uint64(3000), m.Counters[0].Value)
	assert.Equal(t, uint64(500), m.Counters[1].Value)
	assert.Equal(t, "uJ", m.Counters[0].Unit)
	assert.Greater(t, m.Elapsed, time.Duration(0))
	assert.Less(t, m.Elapsed, time.Minute)
	assert.Equal(t, Success, ctx.LastError())

	counters, err := ctx.EnergyCounters()
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, uint64(3000), counters[0].Value, "counters carry the last completed window")
}

func TestStopWithoutStart(t *testing.T) {
	_, ctx := newContext(t)

	m, err := ctx.StopEnergyCount()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUnavailable), "got %v", err)
	assert.Equal(t, ErrUnavailable, ctx.LastError())
	require.NotNil(t, m)
	assert.Empty(t, m.Counters)
}

func TestNilContext(t *testing.T) {
	var ctx *Context

	assert.False(t, ctx.IsInitialized(ModuleStructure))
	assert.Equal(t, ErrUninitialized, ctx.LastError())
	assert.Equal(t, "Invalid context", ctx.ErrorMessage())

	_, err := ctx.NumCPUs()
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	err = ctx.RequestSpeedLevel(0, 0)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	err = ctx.StartEnergyCount()
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	m, err := ctx.StopEnergyCount()
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)
	assert.NotNil(t, m)

	err = ctx.ModifyVoltage(0, 1)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	_, err = ctx.Efficiency(0)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	err = ctx.Finalize()
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)
}

func TestIsInitializedBounds(t *testing.T) {
	_, ctx := newContext(t)

	assert.False(t, ctx.IsInitialized(Module(-1)))
	assert.False(t, ctx.IsInitialized(Module(99)))
}

func TestLastErrorTracksOperations(t *testing.T) {
	_, ctx := newContext(t)

	_, err := ctx.IslandOfCPU(99)
	require.Error(t, err)
	assert.Equal(t, ErrRequestDenied, ctx.LastError())

	// The next clean operation resets the record.
	_, err = ctx.NumIslands()
	require.NoError(t, err)
	assert.Equal(t, Success, ctx.LastError())
	assert.Equal(t, "Success", ctx.ErrorMessage())
}

func TestFinalize(t *testing.T) {
	root := fakeMachine(t)
	ctx, err := Initialize(nil, nil, nil, WithSysfsRoot(root))
	require.NoError(t, err)

	// A running measurement window is discarded on teardown.
	require.NoError(t, ctx.StartEnergyCount())

	require.NoError(t, ctx.Finalize())
	assert.Equal(t, Success, ctx.LastError())

	for _, m := range []Module{ModuleStructure, ModuleDVFS, ModuleEnergy, ModuleHighLevel} {
		assert.False(t, ctx.IsInitialized(m), "module %s after finalize", m)
	}

	_, err = ctx.NumCPUs()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrUninitialized), "got %v", err)

	err = ctx.Finalize()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrFinalizeFailed), "second finalize, got %v", err)
	assert.Equal(t, "Finalization error", ctx.ErrorMessage())
}

func TestDoubleModuleInit(t *testing.T) {
	_, ctx := newContext(t)

	err := ctx.initDVFS()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrAlreadyInitialized), "got %v", err)

	err = ctx.initEnergy()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrAlreadyInitialized), "got %v", err)
}
