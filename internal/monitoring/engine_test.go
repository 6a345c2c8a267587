package monitoring

import (
	"math/rand"
	"testing"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	now float64
}

func (c *manualClock) Now() float64 { return c.now }

// fakeSource returns fixed noise per server and signal
type fakeSource struct {
	temp [ServerCount]float64
	cpu  [ServerCount]float64
	main float64
}

func (f *fakeSource) Sample(channel, _ float64) float64 {
	switch {
	case channel == mainRoomChannel:
		return f.main
	case channel >= cpuChannelBase:
		return f.cpu[int((channel-cpuChannelBase)/cpuChannelStride)]
	default:
		return f.temp[int(channel/temperatureChannelStride)]
	}
}

// tempNoise returns the noise value that maps to the given temperature under the default config
func tempNoise(celsius float64) float64 {
	return (celsius - defaultServerTempMin) / (defaultServerTempMax - defaultServerTempMin)
}

func cpuNoise(load float64) float64 {
	return (load - defaultCPULoadMin) / (defaultCPULoadMax - defaultCPULoadMin)
}

func newTestEngine(t *testing.T, src noise.Source) (*Engine, *manualClock) {
	t.Helper()

	clock := &manualClock{}
	e, err := New(DefaultConfig(), src, clock, WithTimeOffset(0), WithLogger(logger.Nop()))
	require.NoError(t, err)

	return e, clock
}

func calmSource() *fakeSource {
	src := &fakeSource{main: 0.5}
	for i := 0; i < ServerCount; i++ {
		src.temp[i] = tempNoise(50)
		src.cpu[i] = cpuNoise(30)
	}
	return src
}

func TestClassify(t *testing.T) {
	th := DefaultConfig().Thresholds

	tests := []struct {
		name string
		temp float64
		cpu  float64
		want Status
	}{
		{"all normal", 50, 30, StatusNormal},
		{"warm", 70, 30, StatusWarning},
		{"hot", 85, 30, StatusCritical},
		{"busy", 50, 70, StatusWarning},
		{"overloaded", 50, 90, StatusCritical},
		{"hot and busy keeps critical", 86, 75, StatusCritical},
		{"warm and overloaded", 72, 95, StatusCritical},
		{"just below bands", 69.9, 69.9, StatusNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.Classify(tt.temp, tt.cpu))
		})
	}
}

func TestStatusParseAndLabel(t *testing.T) {
	for _, s := range []Status{StatusNormal, StatusWarning, StatusCritical} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStatus("melting")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidStatus))

	assert.Equal(t, "Критично", StatusCritical.Label())
	assert.Equal(t, "Предупреждение", StatusWarning.Label())
	assert.Equal(t, "Норма", StatusNormal.Label())
	assert.Equal(t, StatusCritical, MaxStatus(StatusWarning, StatusCritical))
	assert.Equal(t, StatusWarning, MaxStatus(StatusWarning, StatusNormal))
}

func TestStatusFollowsOverrideOrClassification(t *testing.T) {
	e, clock := newTestEngine(t, noise.NewPerlin(99))
	rnd := rand.New(rand.NewSource(1))
	th := DefaultConfig().Thresholds

	for tick := 0; tick < 300; tick++ {
		clock.now += 2

		if tick%7 == 0 {
			idx := rnd.Intn(ServerCount)
			require.NoError(t, e.SetManualStatus(idx, rnd.Intn(2) == 0, Status(rnd.Intn(3))))
		}
		if tick%11 == 0 {
			idx := rnd.Intn(ServerCount)
			require.NoError(t, e.SetManualCPULoad(idx, rnd.Intn(2) == 0, rnd.Float64()*120))
		}

		e.Tick()

		for _, r := range e.ServerReadings() {
			if r.StatusOverride.Enabled {
				assert.Equal(t, r.StatusOverride.Value, r.Status)
				continue
			}
			assert.Equal(t, th.Classify(r.Temperature, r.CPULoad), r.Status)
			assert.GreaterOrEqual(t, r.Temperature, 35.0)
			assert.LessOrEqual(t, r.Temperature, 90.0)
			assert.GreaterOrEqual(t, r.CPULoad, 20.0)
			assert.LessOrEqual(t, r.CPULoad, 100.0)
		}
	}
}

func TestTemperatureRiseEmitsStatusChangeBeforeDataUpdated(t *testing.T) {
	src := calmSource()
	src.temp[0] = tempNoise(75)
	e, _ := newTestEngine(t, src)

	r, ok := e.ServerReading(0)
	require.True(t, ok)
	require.Equal(t, StatusWarning, r.Status)

	var events []string
	var changes []StatusChange
	e.OnServerStatusChanged(func(c StatusChange) {
		events = append(events, "status")
		changes = append(changes, c)
	})
	e.OnDataUpdated(func() { events = append(events, "data") })

	src.temp[0] = tempNoise(90)
	e.Tick()

	assert.Equal(t, []string{"status", "data"}, events)
	assert.Equal(t, []StatusChange{{Index: 0, Old: StatusWarning, New: StatusCritical}}, changes)

	r, _ = e.ServerReading(0)
	assert.InDelta(t, 90, r.Temperature, 1e-9)
	assert.True(t, e.HasCritical())
}

func TestDataUpdatedFiresEveryTick(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	updates, changes := 0, 0
	e.OnDataUpdated(func() { updates++ })
	e.OnServerStatusChanged(func(StatusChange) { changes++ })

	for i := 0; i < 5; i++ {
		e.Tick()
	}

	assert.Equal(t, 5, updates)
	assert.Zero(t, changes)
}

func TestManualCPULoadEscalatesImmediately(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	var changes []StatusChange
	updates := 0
	e.OnServerStatusChanged(func(c StatusChange) { changes = append(changes, c) })
	e.OnDataUpdated(func() { updates++ })

	require.NoError(t, e.SetManualCPULoad(2, true, 95))

	r, _ := e.ServerReading(2)
	assert.Equal(t, StatusCritical, r.Status)
	assert.InDelta(t, 95, r.CPULoad, 1e-9)
	assert.Equal(t, []StatusChange{{Index: 2, Old: StatusNormal, New: StatusCritical}}, changes)
	assert.Equal(t, 1, updates)

	require.NoError(t, e.SetManualCPULoad(2, false, 95))
	r, _ = e.ServerReading(2)
	assert.Equal(t, StatusNormal, r.Status)
	assert.InDelta(t, 30, r.CPULoad, 1e-9)
}

func TestManualCPULoadIsClamped(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	require.NoError(t, e.SetManualCPULoad(1, true, 150))
	r, _ := e.ServerReading(1)
	assert.InDelta(t, 100, r.CPULoad, 1e-9)

	require.NoError(t, e.SetManualCPULoad(1, true, -5))
	r, _ = e.ServerReading(1)
	assert.InDelta(t, 20, r.CPULoad, 1e-9)
}

func TestManualStatusTakesPrecedence(t *testing.T) {
	src := calmSource()
	src.temp[3] = tempNoise(90)
	e, _ := newTestEngine(t, src)

	require.NoError(t, e.SetManualStatus(3, true, StatusNormal))
	r, _ := e.ServerReading(3)
	assert.Equal(t, StatusNormal, r.Status)
	assert.False(t, e.HasCritical())

	e.Tick()
	r, _ = e.ServerReading(3)
	assert.Equal(t, StatusNormal, r.Status, "override has no expiry")

	require.NoError(t, e.SetManualStatus(3, false, StatusNormal))
	r, _ = e.ServerReading(3)
	assert.Equal(t, StatusCritical, r.Status)
}

func TestManualStatusRejectsUnknownStatus(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	err := e.SetManualStatus(0, true, Status(9))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidStatus))

	r, _ := e.ServerReading(0)
	assert.False(t, r.StatusOverride.Enabled)
}

func TestRoomTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want float64
	}{
		{"all at minimum", 35, 20},
		{"all at maximum", 90, 40},
		{"midpoint", 62.5, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := calmSource()
			for i := range src.temp {
				src.temp[i] = tempNoise(tt.temp)
			}
			e, _ := newTestEngine(t, src)
			assert.InDelta(t, tt.want, e.RoomTemperature(), 1e-9)
		})
	}
}

func TestRoomTemperatureDegenerateRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerTempMin = 50
	cfg.ServerTempMax = 50

	e, err := New(cfg, noise.Constant(0.7), &manualClock{}, WithTimeOffset(0), WithLogger(logger.Nop()))
	require.NoError(t, err)

	assert.InDelta(t, cfg.RoomTempMin, e.RoomTemperature(), 1e-9)
	for _, r := range e.ServerReadings() {
		assert.InDelta(t, 50, r.Temperature, 1e-9)
	}
}

func TestMainRoomTemperature(t *testing.T) {
	src := calmSource()
	src.main = 0.25
	e, _ := newTestEngine(t, src)

	assert.InDelta(t, 22.5, e.MainRoomTemperature(), 1e-9)
}

func TestStateIsConsistentInsideStatusCallback(t *testing.T) {
	src := calmSource()
	e, _ := newTestEngine(t, src)

	var roomSeen float64
	e.OnServerStatusChanged(func(StatusChange) { roomSeen = e.RoomTemperature() })

	for i := range src.temp {
		src.temp[i] = tempNoise(90)
	}
	e.Tick()

	assert.InDelta(t, 40, roomSeen, 1e-9)
}

func TestInvalidIndex(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	updates := 0
	e.OnDataUpdated(func() { updates++ })

	_, ok := e.ServerReading(-1)
	assert.False(t, ok)
	_, ok = e.ServerReading(ServerCount)
	assert.False(t, ok)

	assert.True(t, errors.HasCode(e.SetDisplayName(4, "x"), errors.ErrInvalidServerIndex))
	assert.True(t, errors.HasCode(e.SetManualStatus(-1, true, StatusCritical), errors.ErrInvalidServerIndex))
	assert.True(t, errors.HasCode(e.SetManualCPULoad(7, true, 95), errors.ErrInvalidServerIndex))
	assert.Zero(t, updates)
	assert.False(t, e.HasCritical())
}

func TestReadingsAreCopies(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	readings := e.ServerReadings()
	readings[0].Temperature = 1000
	readings[0].DisplayName = "mutated"

	r, _ := e.ServerReading(0)
	assert.InDelta(t, 50, r.Temperature, 1e-9)
	assert.Empty(t, r.DisplayName)
}

func TestSetDisplayName(t *testing.T) {
	e, _ := newTestEngine(t, calmSource())

	updates := 0
	e.OnDataUpdated(func() { updates++ })

	require.NoError(t, e.SetDisplayName(1, "DB-01"))
	r, _ := e.ServerReading(1)
	assert.Equal(t, "DB-01", r.Name())
	assert.Equal(t, 1, updates)

	r, _ = e.ServerReading(2)
	assert.Equal(t, "Сервер 3", r.Name())
	assert.Equal(t, "Сервер 3: 50.0°C | CPU: 30% | Норма", r.Summary())
}

func TestNewRejectsInvertedRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CPULoadMin = 100
	cfg.CPULoadMax = 20

	_, err := New(cfg, calmSource(), &manualClock{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig))
	assert.True(t, errors.HasCode(err, errors.ErrInvalidRange))

	_, err = New(DefaultConfig(), nil, &manualClock{})
	assert.True(t, errors.HasCode(err, errors.ErrInvalidArgument))
}
