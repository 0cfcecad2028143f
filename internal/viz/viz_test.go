package viz

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/shape"
)

func TestCanvasSetAndLine(t *testing.T) {
	c := NewCanvas(4, 2)
	if w, h := c.Dots(); w != 8 || h != 8 {
		t.Fatalf("expected 8x8 dots, got %dx%d", w, h)
	}
	c.Set(0, 0)
	c.Set(-1, 3)
	c.Set(100, 100)
	if !c.IsSet(0, 0) || c.IsSet(1, 0) {
		t.Error("only (0,0) should be set")
	}
	if []rune(c.String())[0] != 0x2801 {
		t.Errorf("expected dot 1 in first cell, got %q", []rune(c.String())[0])
	}

	c.Clear()
	c.Line(0, 0, 7, 7)
	for i := 0; i < 8; i++ {
		if !c.IsSet(i, i) {
			t.Errorf("diagonal dot (%d,%d) not set", i, i)
		}
	}
	if lines := strings.Split(c.String(), "\n"); len(lines) != 2 {
		t.Errorf("expected 2 rows, got %d", len(lines))
	}

	img := c.Image(8, 16)
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("unexpected image size %v", b)
	}
	if img.ColorIndexAt(0, 0) != 1 || img.ColorIndexAt(31, 0) != 0 {
		t.Error("image should mirror lit dots")
	}
}

func TestCameraProjectsTargetToCentre(t *testing.T) {
	cam := NewCamera()
	cam.Target = mgl64.Vec3{3, 2, 1}
	x, y, ok := cam.Project(cam.Target, 100, 80)
	if !ok || x != 50 || y != 40 {
		t.Errorf("target should project to the centre, got %d,%d %v", x, y, ok)
	}

	cam.Pitch = 0
	_, above, _ := cam.Project(cam.Target.Add(mgl64.Vec3{0, 1, 0}), 100, 80)
	if above >= 40 {
		t.Errorf("a point above the target should be drawn higher, got y=%d", above)
	}

	cam.Orbit(0, 10)
	if cam.Pitch >= 1.5708 {
		t.Errorf("pitch should be clamped, got %f", cam.Pitch)
	}
}

func TestWireframe(t *testing.T) {
	sph, _ := shape.NewSphere(1)
	box, _ := shape.NewBox(mgl64.Vec3{1, 2, 3})
	plane, _ := shape.NewPlane(mgl64.Vec3{0, 1, 0}, -1)

	tests := []struct {
		name  string
		shape shape.Shape
		edges int
	}{
		{"sphere", sph, 3 * circleSegments},
		{"box", box, 12},
		{"plane", plane, 2 * planeGridLines},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &body.Body{Shape: tt.shape, Transform: dynamo.Identity()}
			segs := Wireframe(b)
			if len(segs) != tt.edges {
				t.Errorf("expected %d edges, got %d", tt.edges, len(segs))
			}
		})
	}

	b := &body.Body{Shape: plane, Transform: dynamo.Identity()}
	for _, s := range Wireframe(b) {
		if s.A.Y() != -1 || s.B.Y() != -1 {
			t.Fatalf("plane grid should lie at y=-1, got %v %v", s.A, s.B)
		}
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 4); got != "────" {
		t.Errorf("empty sparkline: %q", got)
	}
	got := []rune(Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8))
	if got[0] != '▁' || got[7] != '█' {
		t.Errorf("unexpected sparkline %q", string(got))
	}
	if n := len([]rune(Sparkline(make([]float64, 50), 10))); n != 10 {
		t.Errorf("expected width 10, got %d", n)
	}
}

func TestThemes(t *testing.T) {
	if GetTheme("nope").Name != ThemeLab.Name {
		t.Error("unknown theme should fall back to lab")
	}
	seen := map[string]bool{}
	th := ThemeLab
	for range Themes {
		seen[th.Name] = true
		th = NextTheme(th)
	}
	if len(seen) != len(Themes) || th.Name != ThemeLab.Name {
		t.Error("NextTheme should cycle through every theme")
	}
}

func sceneModel(t *testing.T, name string) Model {
	t.Helper()
	opts := experiment.Options{Workers: 1, Logger: log.New(io.Discard)}
	m, err := NewModel(context.Background(), SceneBuilder(experiment.NewRegistry(), name, opts), "lab")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.App().Close() })
	return m
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModelAdvancesOnTicks(t *testing.T) {
	m := sceneModel(t, "sport")
	start := time.Now()

	m = update(m, TickMsg(start))
	if m.App().System().StepCount() != 0 {
		t.Fatal("the first tick only starts the clock")
	}
	m = update(m, TickMsg(start.Add(50*time.Millisecond)))
	if got := m.App().System().StepCount(); got != 2 {
		t.Errorf("50 ms should run 2 steps, ran %d", got)
	}
	if len(m.heights) != 1 {
		t.Errorf("expected one height sample, got %d", len(m.heights))
	}

	m = update(m, tea.KeyMsg{Type: tea.KeySpace})
	if !m.App().Paused() {
		t.Fatal("space should pause")
	}
	m = update(m, TickMsg(start.Add(time.Second)))
	m = update(m, TickMsg(start.Add(2*time.Second)))
	if got := m.App().System().StepCount(); got != 2 {
		t.Errorf("paused viewer should not step, count %d", got)
	}

	if view := m.View(); !strings.Contains(view, "SPORT") || !strings.Contains(view, "PAUSED") {
		t.Errorf("view should show scene name and pause state:\n%s", view)
	}
}

func TestModelForwardsSceneKeys(t *testing.T) {
	m := sceneModel(t, "contact_response")
	ball := m.App().MustHandle("ball")

	m = update(m, runes("e"))
	if !m.App().Bodies().IsSensor(ball) {
		t.Error("e should reach the scene")
	}
	if m.Message() != "pressed e" {
		t.Errorf("unexpected message %q", m.Message())
	}

	m = update(m, runes("+"))
	if m.App().Speed() != 2 {
		t.Errorf("+ should double speed, got %f", m.App().Speed())
	}
}

func TestModelReset(t *testing.T) {
	m := sceneModel(t, "sport")
	old := m.App()
	m = update(m, TickMsg(time.Now()))
	m = update(m, TickMsg(time.Now().Add(100*time.Millisecond)))

	m = update(m, runes("r"))
	if m.App() == old {
		t.Fatal("reset should build a new app")
	}
	if m.App().System().StepCount() != 0 {
		t.Error("reset app should start at step 0")
	}

	failing := func() (*experiment.App, error) { return nil, errors.New("bad scene") }
	current := m.App()
	m = update(m, ReloadMsg{Build: failing})
	if m.App() != current {
		t.Error("a failed reload should keep the running app")
	}
	if !strings.Contains(m.Message(), "bad scene") {
		t.Errorf("expected the reload error, got %q", m.Message())
	}
}
