// Package dashboard renders the server room in the terminal.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/eventlog"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	refreshInterval = 250 * time.Millisecond
	eventLines      = 8
)

type Deps struct {
	Engine    Engine
	Events    EventLog
	Alarm     Alarm
	Incidents Incidents
	Executor  Executor
	Logger    logger.Logger
}

// frame is everything a single render needs, copied out under the executor
type frame struct {
	time            float64
	roomTemperature float64
	mainRoom        float64
	servers         []monitoring.ServerReading
	alarmActive     bool
	visualOn        bool
	events          []eventlog.Record
	showing         bool
	captureTime     float64
}

type frameMsg frame
type tickMsg struct{}
type noticeMsg string

type Model struct {
	deps  Deps
	log   logger.Logger
	table table.Model

	frame  frame
	loaded bool
	notice string
	width  int
}

func New(d Deps) Model {
	log := d.Logger
	if log == nil {
		log = logger.Component("dashboard")
	}

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Сервер", Width: 16},
			{Title: "Темп.", Width: 8},
			{Title: "CPU", Width: 6},
			{Title: "Статус", Width: 16},
			{Title: "Ручн.", Width: 6},
		}),
		table.WithHeight(monitoring.ServerCount),
	)

	return Model{deps: d, log: log, table: t}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		var f frame
		m.deps.Executor.Do(func() {
			f = frame{
				time:            m.deps.Engine.Now(),
				roomTemperature: m.deps.Engine.RoomTemperature(),
				mainRoom:        m.deps.Engine.MainRoomTemperature(),
				servers:         m.deps.Engine.ServerReadings(),
				alarmActive:     m.deps.Alarm.IsActive(),
				visualOn:        m.deps.Alarm.IsVisualOn(),
				events:          m.deps.Events.Recent(eventLines),
			}
			if !m.deps.Incidents.IsShowingIncident() {
				return
			}
			if snap, ok := m.deps.Incidents.IncidentSnapshot(); ok {
				f.showing = true
				f.captureTime = snap.CaptureTime
				f.roomTemperature = snap.RoomTemperature
				f.servers = snap.Servers
			}
		})
		return frameMsg(f)
	}
}

func (m Model) toggleIncident() tea.Cmd {
	return func() tea.Msg {
		var err error
		m.deps.Executor.Do(func() {
			err = m.deps.Incidents.ToggleShowIncident()
		})
		if errors.HasCode(err, errors.ErrNoIncident) {
			return noticeMsg(errors.GetErrorMessage(errors.ErrNoIncident))
		}
		if err != nil {
			m.log.Error().Err(err).Msg("Failed to toggle incident view")
			return noticeMsg(err.Error())
		}
		return noticeMsg("")
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case frameMsg:
		m.frame = frame(msg)
		m.loaded = true
		m.table.SetRows(serverRows(m.frame.servers))
		return m, nil

	case noticeMsg:
		m.notice = string(msg)
		return m, m.fetch()

	case tickMsg:
		return m, tea.Batch(m.fetch(), tick())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Incident):
			return m, m.toggleIncident()
		}
	}

	return m, nil
}

func serverRows(servers []monitoring.ServerReading) []table.Row {
	rows := make([]table.Row, len(servers))
	for i, s := range servers {
		manual := ""
		if s.StatusOverride.Enabled {
			manual += "S"
		}
		if s.CPUOverride.Enabled {
			manual += "C"
		}
		rows[i] = table.Row{
			s.Name(),
			fmt.Sprintf("%.1f°C", s.Temperature),
			fmt.Sprintf("%.0f%%", s.CPULoad),
			s.Status.Label(),
			manual,
		}
	}
	return rows
}

func statusStyle(s monitoring.Status) lipgloss.Style {
	switch s {
	case monitoring.StatusCritical:
		return dangerStyle
	case monitoring.StatusWarning:
		return warnStyle
	default:
		return goodStyle
	}
}

func (m Model) View() string {
	if !m.loaded {
		return faintStyle.Render("Загрузка…")
	}

	var b strings.Builder
	f := m.frame

	b.WriteString(titleStyle.Render("Серверная"))
	b.WriteString("  ")
	b.WriteString(headerStyle.Render(fmt.Sprintf("t=%.1fs", f.time)))
	b.WriteString("\n")

	if f.showing {
		b.WriteString(incidentStyle.Render(fmt.Sprintf("ИНЦИДЕНТ t=%.1fs", f.captureTime)))
		b.WriteString("\n")
	}

	b.WriteString(fmt.Sprintf("Серверная: %.1f°C   Основной зал: %.1f°C\n", f.roomTemperature, f.mainRoom))

	switch {
	case f.alarmActive && f.visualOn:
		b.WriteString(dangerStyle.Render("▲ АВАРИЯ ▲"))
	case f.alarmActive:
		b.WriteString(faintStyle.Render("△ АВАРИЯ △"))
	default:
		b.WriteString(goodStyle.Render("Аварий нет"))
	}
	b.WriteString("\n")

	b.WriteString(boxStyle.Render(m.table.View()))
	b.WriteString("\n")

	for _, s := range f.servers {
		b.WriteString(statusStyle(s.Status).Render(s.Summary()))
		b.WriteString("\n")
	}

	b.WriteString(headerStyle.Render("События"))
	b.WriteString("\n")
	if len(f.events) == 0 {
		b.WriteString(faintStyle.Render("—"))
		b.WriteString("\n")
	}
	for _, e := range f.events {
		b.WriteString(e.String())
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString(warnStyle.Render(m.notice))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render(keys.help()))

	return b.String()
}

// Run shows the dashboard until the user quits or ctx is cancelled
func Run(ctx context.Context, d Deps) error {
	p := tea.NewProgram(New(d), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return errors.New().Wrap(errors.ErrMainLoop, err)
	}
	return nil
}
