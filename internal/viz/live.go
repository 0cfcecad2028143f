package viz

import (
	"context"
	"fmt"
	"image"
	"image/gif"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/rigidsim/internal/experiment"
)

const (
	canvasWidth     = 72
	canvasHeight    = 24
	historyCapacity = 600
	frameInterval   = time.Second / 60
	// wall time beyond this per frame is dropped, e.g. after a suspend
	maxFrameTime = 0.25
)

// Builder constructs a fresh App. The viewer calls it on start, on reset
// and after a hot reload.
type Builder func() (*experiment.App, error)

type TickMsg time.Time

// ReloadMsg swaps the running scene for a newly built one.
type ReloadMsg struct {
	Build Builder
}

// Model is the live viewer for one App.
type Model struct {
	ctx    context.Context
	build  Builder
	app    *experiment.App
	theme  Theme
	st     styles
	canvas *Canvas
	camera *Camera

	last     time.Time
	heights  []float64
	contacts []float64

	recording bool
	frames    []*image.Paletted
	gifPath   string

	showHelp bool
	message  string
	err      error
}

func NewModel(ctx context.Context, build Builder, theme string) (Model, error) {
	app, err := build()
	if err != nil {
		return Model{}, err
	}
	t := GetTheme(theme)
	return Model{
		ctx:     ctx,
		build:   build,
		app:     app,
		theme:   t,
		st:      newStyles(t),
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		camera:  NewCamera(),
		gifPath: "rigidsim.gif",
	}, nil
}

func (m Model) App() *experiment.App { return m.app }
func (m Model) Err() error           { return m.err }
func (m Model) Message() string      { return m.message }

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case TickMsg:
		m.advance(time.Time(msg))
		if m.recording {
			m.draw()
			m.frames = append(m.frames, m.canvas.Image(8, 16))
		}
		return m, tick()
	case ReloadMsg:
		m.swap(msg.Build, "reloaded")
	case tea.WindowSizeMsg:
		w := max(20, msg.Width-50)
		h := max(8, msg.Height-4)
		m.canvas = NewCanvas(w, h)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "q", "ctrl+c", "esc":
		m.stopRecording()
		return m, tea.Quit
	case " ":
		m.app.TogglePause()
		m.last = time.Time{}
	case "r":
		m.swap(m.build, "reset")
	case "+", "=":
		m.setSpeed(m.app.Speed() * 2)
	case "-", "_":
		m.setSpeed(m.app.Speed() / 2)
	case "t":
		m.theme = NextTheme(m.theme)
		m.st = newStyles(m.theme)
	case "left":
		m.camera.Orbit(-0.1, 0)
	case "right":
		m.camera.Orbit(0.1, 0)
	case "up":
		m.camera.Orbit(0, 0.1)
	case "down":
		m.camera.Orbit(0, -0.1)
	case "[":
		m.camera.ZoomOut()
	case "]":
		m.camera.ZoomIn()
	case "g":
		if m.recording {
			m.stopRecording()
		} else {
			m.recording = true
			m.frames = m.frames[:0]
			m.message = "recording"
		}
	case "?":
		m.showHelp = !m.showHelp
	default:
		handled, err := m.app.Press(key)
		if err != nil {
			m.message = err.Error()
		} else if handled {
			m.message = "pressed " + key
		}
	}
	return m, nil
}

func (m *Model) setSpeed(speed float64) {
	speed = min(max(speed, 1.0/64), 64)
	if err := m.app.SetSpeed(speed); err != nil {
		m.message = err.Error()
	}
}

// advance feeds the wall time since the previous frame to the App.
func (m *Model) advance(now time.Time) {
	if m.err != nil {
		return
	}
	if m.last.IsZero() {
		m.last = now
		return
	}
	elapsed := min(now.Sub(m.last).Seconds(), maxFrameTime)
	m.last = now

	n, err := m.app.Advance(m.ctx, elapsed)
	if err != nil {
		m.err = err
		m.message = err.Error()
		return
	}
	if n > 0 {
		m.sample()
	}
}

func (m *Model) sample() {
	if track := m.app.Scene().Track; track != "" {
		if h, err := m.app.Handle(track); err == nil {
			m.heights = appendCapped(m.heights, m.app.Bodies().Position(h).Y())
		}
	}
	m.contacts = appendCapped(m.contacts, float64(m.app.System().Stats().Contacts))
}

func appendCapped(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

// swap replaces the App. A failed build keeps the current one.
func (m *Model) swap(build Builder, what string) {
	app, err := build()
	if err != nil {
		m.message = fmt.Sprintf("%s failed: %v", what, err)
		return
	}
	m.app.Close()
	m.app = app
	m.build = build
	m.heights = m.heights[:0]
	m.contacts = m.contacts[:0]
	m.last = time.Time{}
	m.err = nil
	m.message = what
}

func (m *Model) stopRecording() {
	if !m.recording {
		return
	}
	m.recording = false
	if err := writeGIF(m.gifPath, m.frames); err != nil {
		m.message = err.Error()
	} else if len(m.frames) > 0 {
		m.message = fmt.Sprintf("saved %d frames to %s", len(m.frames), m.gifPath)
	}
	m.frames = nil
}

func writeGIF(path string, frames []*image.Paletted) error {
	if len(frames) == 0 {
		return nil
	}
	anim := gif.GIF{}
	for _, f := range frames {
		anim.Image = append(anim.Image, f)
		anim.Delay = append(anim.Delay, 2)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gif.EncodeAll(f, &anim)
}

// draw renders every added body as a wireframe, centred on the tracked body.
func (m *Model) draw() {
	m.canvas.Clear()
	if track := m.app.Scene().Track; track != "" {
		if h, err := m.app.Handle(track); err == nil {
			m.camera.Target = m.app.Bodies().Position(h)
		}
	}
	for _, v := range m.app.Views() {
		if !v.Added {
			continue
		}
		b, err := m.app.Bodies().Get(v.Handle)
		if err != nil {
			continue
		}
		Render(m.canvas, m.camera, Wireframe(b))
	}
}

func (m Model) View() string {
	m.draw()
	canvasView := m.st.canvas.Render(m.canvas.String())
	panel := m.st.panel.Render(m.panel())
	main := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, panel)
	if m.showHelp {
		return m.help() + "\n\n" + main
	}
	return main
}

func (m Model) panel() string {
	var s strings.Builder
	sc := m.app.Scene()
	s.WriteString(m.st.header.Render(strings.ToUpper(sc.Name)) + "\n")
	if sc.Description != "" {
		s.WriteString(m.st.label.Width(0).Render(sc.Description) + "\n\n")
	}

	switch {
	case m.err != nil:
		s.WriteString(m.st.failed.Render("STOPPED") + "\n")
	case m.app.Paused():
		s.WriteString(m.st.paused.Render("PAUSED") + "\n")
	default:
		s.WriteString(m.st.running.Render("RUNNING") + "\n")
	}
	if status := m.app.Status(); status != "" {
		s.WriteString(m.st.value.Render(status) + "\n")
	}
	s.WriteString("\n")

	row := func(label, value string) {
		s.WriteString(m.st.label.Render(label) + m.st.value.Render(value) + "\n")
	}
	stats := m.app.System().Stats()
	row("Time", fmt.Sprintf("%.2fs", m.app.Time()))
	row("Steps", fmt.Sprintf("%d", m.app.System().StepCount()))
	row("Speed", fmt.Sprintf("%gx", m.app.Speed()))
	row("Contacts", fmt.Sprintf("%d", stats.Contacts))
	row("Active", fmt.Sprintf("%d/%d", stats.Active, m.app.Bodies().Len()))
	row("Workers", fmt.Sprintf("%d", m.app.System().Workers()))

	if len(m.heights) > 1 {
		chart := asciigraph.Plot(m.heights,
			asciigraph.Height(5),
			asciigraph.Width(30),
			asciigraph.Caption(m.app.Scene().Track+" height"))
		s.WriteString("\n" + m.st.graph.Render(chart) + "\n")
	}
	if len(m.contacts) > 0 {
		s.WriteString(m.st.label.Render("contacts") + m.st.graph.Render(Sparkline(m.contacts, 28)) + "\n")
	}

	s.WriteString("\nBODIES\n")
	for _, v := range m.app.Views() {
		style, state := m.st.active, "active"
		switch {
		case !v.Added:
			style, state = m.st.label, "removed"
		case v.Sensor:
			style, state = m.st.sensor, "sensor"
		case !v.Active:
			style, state = m.st.asleep, "inactive"
		}
		line := fmt.Sprintf("%-12s %-9s y=%6.2f %s", v.Name, v.Motion, v.Position.Y(), state)
		s.WriteString(style.Render(line) + "\n")
	}

	if m.message != "" {
		s.WriteString("\n" + m.st.value.Render(m.message) + "\n")
	}
	hint := "SP:Pause R:Reset Q:Quit T:Theme ?:Help"
	if keys := m.app.KeyNames(); len(keys) > 0 {
		hint += "\nScene keys: " + strings.Join(keys, " ")
	}
	s.WriteString(m.st.help.Render(hint))
	return s.String()
}

func (m Model) help() string {
	lines := [][2]string{
		{"Space", "pause / resume"},
		{"R", "rebuild the scene"},
		{"+ / -", "double / halve speed"},
		{"Arrows", "orbit the camera"},
		{"[ / ]", "zoom out / in"},
		{"G", "toggle GIF recording"},
		{"T", "cycle themes"},
		{"Q", "quit"},
	}
	var s strings.Builder
	for _, l := range lines {
		s.WriteString(m.st.key.Render(fmt.Sprintf("%-8s", l[0])) + " " + m.st.value.Render(l[1]) + "\n")
	}
	return m.st.panel.Render(s.String())
}

// Run starts the viewer on the terminal. Builders received on reload
// replace the running scene.
func Run(ctx context.Context, build Builder, theme string, reload <-chan Builder) error {
	m, err := NewModel(ctx, build, theme)
	if err != nil {
		return err
	}
	defer func() { m.app.Close() }()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if reload != nil {
		go func() {
			for b := range reload {
				p.Send(ReloadMsg{Build: b})
			}
		}()
	}
	final, err := p.Run()
	if fm, ok := final.(Model); ok {
		m = fm
	}
	return err
}
