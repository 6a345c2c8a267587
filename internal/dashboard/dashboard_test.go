package dashboard

import (
	"testing"

	"codeberg.org/mutker/serverroom/internal/alarm"
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/incident"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"codeberg.org/mutker/serverroom/internal/noise"
	"codeberg.org/mutker/serverroom/internal/scheduler"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	model  Model
	engine *monitoring.Engine
	sched  *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sched := scheduler.New()
	engine, err := monitoring.New(monitoring.DefaultConfig(), noise.Constant(0.5), sched,
		monitoring.WithTimeOffset(0), monitoring.WithLogger(logger.Nop()))
	require.NoError(t, err)

	events := eventlog.NewStore(eventlog.DefaultCapacity, eventlog.WithLogger(logger.Nop()))
	events.ObserveStatus(engine)
	events.SystemStarted()

	machine, err := alarm.New(engine, sched, alarm.WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(machine.Close)

	incidents, err := incident.New(engine, incident.WithLogger(logger.Nop()))
	require.NoError(t, err)
	t.Cleanup(incidents.Close)

	m := New(Deps{
		Engine:    engine,
		Events:    events,
		Alarm:     machine,
		Incidents: incidents,
		Executor:  sched,
		Logger:    logger.Nop(),
	})

	return &fixture{model: m, engine: engine, sched: sched}
}

// run executes cmd and feeds its message back into the model
func (f *fixture) run(t *testing.T, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	next, _ := f.model.Update(cmd())
	f.model = next.(Model)
}

func (f *fixture) refresh(t *testing.T) {
	f.run(t, f.model.fetch())
}

func (f *fixture) press(r rune) tea.Cmd {
	next, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	f.model = next.(Model)
	return cmd
}

func TestViewBeforeFirstFrame(t *testing.T) {
	f := newFixture(t)
	assert.Contains(t, f.model.View(), "Загрузка")
}

func TestLiveView(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	view := f.model.View()
	assert.Contains(t, view, "Серверная: 30.0°C")
	assert.Contains(t, view, "Основной зал: 25.0°C")
	assert.Contains(t, view, "Сервер 1: 62.5°C | CPU: 60% | Норма")
	assert.Contains(t, view, "Аварий нет")
	assert.Contains(t, view, "Система мониторинга запущена")
	assert.NotContains(t, view, "ИНЦИДЕНТ")
}

func TestAlarmBlinkInView(t *testing.T) {
	f := newFixture(t)
	f.sched.Do(func() {
		require.NoError(t, f.engine.SetManualStatus(2, true, monitoring.StatusCritical))
	})
	f.refresh(t)

	view := f.model.View()
	assert.Contains(t, view, "▲ АВАРИЯ ▲")
	assert.Contains(t, view, "Сервер 3: Норма → Критично")

	f.sched.Advance(0.5)
	f.refresh(t)
	assert.Contains(t, f.model.View(), "△ АВАРИЯ △")
}

func TestIncidentToggle(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	f.run(t, f.press('i'))
	assert.Contains(t, f.model.View(), "No incident snapshot captured yet")

	f.sched.Do(func() {
		require.NoError(t, f.engine.SetManualCPULoad(0, true, 95))
	})
	f.sched.Advance(10)
	f.sched.Do(func() {
		require.NoError(t, f.engine.SetManualCPULoad(0, false, 0))
	})

	f.run(t, f.press('i'))
	f.refresh(t)
	view := f.model.View()
	assert.Contains(t, view, "ИНЦИДЕНТ t=0.0s")
	assert.Contains(t, view, "Сервер 1: 62.5°C | CPU: 95% | Критично")
	assert.NotContains(t, view, "No incident")

	f.run(t, f.press('i'))
	f.refresh(t)
	view = f.model.View()
	assert.NotContains(t, view, "ИНЦИДЕНТ")
	assert.Contains(t, view, "Сервер 1: 62.5°C | CPU: 60% | Норма")
}

func TestQuit(t *testing.T) {
	f := newFixture(t)

	cmd := f.press('q')
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}
