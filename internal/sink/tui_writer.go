package sink

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"starcam-link/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a telemetry line for the viewport.
type logMsg struct{ line string }

// eventMsg carries an event line.
type eventMsg struct{ line string }

type telemetryMsg struct{ telemetry.TelemetryRow }

type frameMsg struct{ telemetry.FrameRow }

type stateMsg struct{ telemetry.LinkStateRow }

const (
	maxLogLines         = 1000
	maxSectionHeightPct = 0.2
)

// TUIWriter renders the link using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter. When the user
// quits the UI the process receives an interrupt.
func NewTUIWriter(camera string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(camera), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Write implements TelemetryWriter.
func (w *TUIWriter) Write(row telemetry.TelemetryRow) error {
	line := fmt.Sprintf("%s[%s]%s %sra=%.5f%s %sdec=%.5f%s %sfr=%.3f%s %sps=%.3f%s %salt=%.3f%s %saz=%.3f%s %sfocus=%d%s %sf/%.1f%s",
		colorGray, row.Timestamp.Format(time.RFC3339), colorReset,
		colorGreen, row.RA, colorReset,
		colorYellow, row.Dec, colorReset,
		colorCyan, row.FieldRotation, colorReset,
		colorBlue, row.PixelScale, colorReset,
		colorMagenta, row.Altitude, colorReset,
		colorMagenta, row.Azimuth, colorReset,
		colorBlue, row.FocusPosition, colorReset,
		colorCyan, row.Aperture, colorReset,
	)
	if row.AutoFocusActive {
		line += fmt.Sprintf(" %sautofocus flux=%d%s", colorRed, row.AutoFocusFlux, colorReset)
	}
	w.program.Send(logMsg{line: line})
	w.program.Send(telemetryMsg{row})
	return nil
}

// WriteBatch implements batch telemetry writes.
func (w *TUIWriter) WriteBatch(rows []telemetry.TelemetryRow) error {
	for _, r := range rows {
		_ = w.Write(r)
	}
	return nil
}

// WriteFrame implements FrameWriter.
func (w *TUIWriter) WriteFrame(row telemetry.FrameRow) error {
	w.program.Send(frameMsg{row})
	return nil
}

// WriteEvent implements EventWriter.
func (w *TUIWriter) WriteEvent(row telemetry.EventRow) error {
	color := colorBlue
	switch row.EventType {
	case telemetry.EventDisconnected:
		color = colorRed
	case telemetry.EventSettingChanged:
		color = colorYellow
	case telemetry.EventCommandSent:
		color = colorGreen
	}
	line := fmt.Sprintf("%s[%s]%s %s%s%s %s", colorGray, row.Timestamp.Format(time.RFC3339), colorReset, color, row.EventType, colorReset, row.Detail)
	w.program.Send(eventMsg{line: line})
	return nil
}

// WriteState implements StateWriter.
func (w *TUIWriter) WriteState(row telemetry.LinkStateRow) error {
	w.program.Send(stateMsg{row})
	return nil
}

// Close stops the UI without signalling the process.
func (w *TUIWriter) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

type tuiModel struct {
	camera       string
	table        table.Model
	vp           viewport.Model
	eventVP      viewport.Model
	logs         []string
	eventLogs    []string
	last         telemetry.TelemetryRow
	haveLast     bool
	frames       uint64
	lastFrame    telemetry.FrameRow
	state        telemetry.LinkStateRow
	wrap         bool
	autoscroll   bool
	help         bool
	header       string
	headerHeight int
	height       int
}

func newTUIModel(camera string) tuiModel {
	cols := []table.Column{
		{Title: "Pointing", Width: 14},
		{Title: "Value", Width: 14},
		{Title: "Camera", Width: 14},
		{Title: "Value", Width: 14},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(pointingRows(telemetry.TelemetryRow{}, false, telemetry.FrameRow{})), table.WithHeight(5))
	return tuiModel{
		camera:     camera,
		table:      t,
		vp:         viewport.New(0, 0),
		eventVP:    viewport.New(0, 0),
		autoscroll: true,
	}
}

func pointingRows(r telemetry.TelemetryRow, have bool, f telemetry.FrameRow) []table.Row {
	if !have {
		return []table.Row{
			{"RA (deg)", "-", "Focus", "-"},
			{"DEC (deg)", "-", "Aperture", "-"},
			{"FR (deg)", "-", "Exposure", "-"},
			{"ALT/AZ (deg)", "-", "Frame mean", "-"},
		}
	}
	return []table.Row{
		{"RA (deg)", fmt.Sprintf("%.5f", r.RA), "Focus", fmt.Sprintf("%d", r.FocusPosition)},
		{"DEC (deg)", fmt.Sprintf("%.5f", r.Dec), "Aperture", fmt.Sprintf("f/%.1f", r.Aperture)},
		{"FR (deg)", fmt.Sprintf("%.3f", r.FieldRotation), "Exposure", fmt.Sprintf("%.0f ms", r.Exposure)},
		{"ALT/AZ (deg)", fmt.Sprintf("%.2f/%.2f", r.Altitude, r.Azimuth), "Frame mean", fmt.Sprintf("%.1f", f.Mean)},
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.eventVP.Width = msg.Width
		m.height = msg.Height
		m.header = m.renderHeader()
		m.headerHeight = lipgloss.Height(m.header)
		m.updateViewportHeight()
		m.refreshViewport()
		m.refreshEvents()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
				m.updateViewportHeight()
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
			return m, nil
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
				m.eventVP.GotoBottom()
			}
			return m, nil
		case "h", "?":
			m.help = !m.help
			return m, nil
		}
		if !m.autoscroll {
			switch msg.String() {
			case "j", "down":
				m.vp.LineDown(1)
			case "k", "up":
				m.vp.LineUp(1)
			case "pgdown", "ctrl+n":
				m.vp.LineDown(10)
			case "pgup", "ctrl+p":
				m.vp.LineUp(10)
			default:
				var cmd tea.Cmd
				m.vp, cmd = m.vp.Update(msg)
				return m, cmd
			}
		}
		return m, nil
	case logMsg:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		m.refreshViewport()
	case eventMsg:
		m.eventLogs = append(m.eventLogs, msg.line)
		if len(m.eventLogs) > maxLogLines {
			m.eventLogs = m.eventLogs[len(m.eventLogs)-maxLogLines:]
		}
		m.updateViewportHeight()
		m.refreshEvents()
		m.refreshViewport()
	case telemetryMsg:
		m.last = msg.TelemetryRow
		m.haveLast = true
		m.table.SetRows(pointingRows(m.last, true, m.lastFrame))
		m.header = m.renderHeader()
	case frameMsg:
		m.frames++
		m.lastFrame = msg.FrameRow
		m.table.SetRows(pointingRows(m.last, m.haveLast, m.lastFrame))
		m.header = m.renderHeader()
	case stateMsg:
		m.state = msg.LinkStateRow
	}
	return m, nil
}

func (m *tuiModel) updateViewportHeight() {
	bottomHeight := lipgloss.Height(m.renderBottom())
	maxLines := m.maxSectionLines()

	eventLines := len(m.eventLogs)
	if eventLines == 0 {
		eventLines = 1
	}
	if eventLines > maxLines {
		eventLines = maxLines
	}
	m.eventVP.Height = eventLines

	h := m.height - m.headerHeight - bottomHeight - (1 + m.eventVP.Height) - 3
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.eventVP.GotoBottom()
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshEvents() {
	content := "none"
	if len(m.eventLogs) > 0 {
		content = strings.Join(m.eventLogs, "\n")
	}
	m.eventVP.SetContent(content)
	if m.autoscroll {
		m.eventVP.GotoBottom()
	}
}

func (m tuiModel) maxSectionLines() int {
	h := int(float64(m.height) * maxSectionHeightPct)
	if h < 1 {
		h = 1
	}
	return h
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	sections := []string{
		m.header,
		divider,
		m.vp.View(),
		divider,
		"Events:",
		m.eventVP.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m tuiModel) renderHeader() string {
	title := lipgloss.NewStyle().Bold(true).Render("Star camera " + m.camera)
	return lipgloss.JoinVertical(lipgloss.Left, title, m.table.View())
}

func (m tuiModel) renderBottom() string {
	indicator := func(on bool) string {
		c := lipgloss.Color("9")
		if on {
			c = lipgloss.Color("10")
		}
		return lipgloss.NewStyle().Foreground(c).Render("●")
	}
	state := fmt.Sprintf("%sLINK%s %sreceiver=%s%s %srecords=%d%s %sframes=%d%s %smalformed=%d%s %swaiting=%.0fs%s",
		colorBlue, colorReset,
		colorGreen, m.state.Receiver, colorReset,
		colorCyan, m.state.Records, colorReset,
		colorMagenta, m.state.Frames, colorReset,
		colorRed, m.state.Malformed, colorReset,
		colorYellow, m.state.SinceTelemetry, colorReset)
	return fmt.Sprintf("%s | Wrap %s | Scroll %s | Help %s", state, indicator(m.wrap), indicator(m.autoscroll), indicator(m.help))
}

func (m tuiModel) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" q  quit",
		" w  toggle wrap for telemetry lines",
		" s  toggle auto-scroll",
		" h/? toggle this help view",
		"",
		"When auto-scroll is disabled:",
		" j/k or up/down    scroll one line",
		" pgdown/pgup       scroll a page",
	}
	return strings.Join(lines, "\n")
}
