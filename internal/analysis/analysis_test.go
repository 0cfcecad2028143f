package analysis

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/automation"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
	"github.com/san-kum/rigidsim/internal/storage"
)

func TestDominantFrequency(t *testing.T) {
	const dt = 0.01
	tests := []struct {
		name string
		f    float64
	}{
		{"2 Hz", 2},
		{"5 Hz", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]float64, 100)
			for i := range data {
				data[i] = 3 + math.Sin(2*math.Pi*tt.f*float64(i)*dt)
			}
			if got := DominantFrequency(data, dt); math.Abs(got-tt.f) > 1e-9 {
				t.Errorf("expected %f Hz, got %f", tt.f, got)
			}
		})
	}

	if got := DominantFrequency([]float64{1, 1, 1, 1}, dt); got != 0 {
		t.Errorf("constant signal should have no dominant frequency, got %f", got)
	}
	if PowerSpectrum([]float64{1}) != nil {
		t.Error("a single sample has no spectrum")
	}
}

// ballTrajectory holds a body with the given vertical velocities, one
// sample per step.
func ballTrajectory(vys ...float64) *storage.Trajectory {
	traj := &storage.Trajectory{}
	y := 1.0
	for i, vy := range vys {
		traj.Samples = append(traj.Samples, storage.Sample{
			Step:     i,
			Time:     float64(i) * 0.02,
			Body:     "ball",
			Position: mgl64.Vec3{0, y, 0},
			Velocity: mgl64.Vec3{0, vy, 0},
		})
		y += vy * 0.02
	}
	return traj
}

func TestFindBounces(t *testing.T) {
	traj := ballTrajectory(0, -1, -2, 1.5, 1, 0, -1, -1.6, 0.8, 0.2)

	bounces, err := FindBounces(traj, "ball", 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if len(bounces) != 2 {
		t.Fatalf("expected 2 bounces, got %d", len(bounces))
	}
	if bounces[0].Step != 3 || bounces[0].Before != 2 || bounces[0].After != 1.5 {
		t.Errorf("unexpected first bounce %+v", bounces[0])
	}
	if got := Restitution(bounces); math.Abs(got-(0.75+0.5)/2) > 1e-12 {
		t.Errorf("expected restitution 0.625, got %f", got)
	}
	if Restitution(nil) != 0 {
		t.Error("no bounces should give 0")
	}

	if _, err := FindBounces(traj, "ghost", 0.1); !errors.Is(err, dynamo.ErrUsage) {
		t.Errorf("expected ErrUsage for an unknown body, got %v", err)
	}
}

func TestPhasePortraitASCII(t *testing.T) {
	p, err := NewPhasePortrait(ballTrajectory(-1, -2, 1.5, 1), "ball")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(p.Points))
	}
	art := p.ASCII(20, 10)
	lines := strings.Split(strings.TrimSuffix(art, "\n"), "\n")
	if len(lines) != 10 {
		t.Errorf("expected 10 rows, got %d", len(lines))
	}
	if strings.Count(art, "•") == 0 || !strings.Contains(art, "─") {
		t.Errorf("expected points and a velocity axis:\n%s", art)
	}
	if (*PhasePortrait)(nil).ASCII(20, 10) != "" {
		t.Error("nil portrait should render empty")
	}
}

func TestDivergence(t *testing.T) {
	a := ballTrajectory(-1, -2, 1.5)
	b := ballTrajectory(-1, -2, 1.5)
	r, err := Divergence(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if r.Max != 0 || r.Compared != 3 {
		t.Errorf("identical runs: %+v", r)
	}

	b.Samples[2].Position = b.Samples[2].Position.Add(mgl64.Vec3{0.3, 0, 0.4})
	r, _ = Divergence(a, b)
	if math.Abs(r.Max-0.5) > 1e-12 || r.Step != 2 || r.Body != "ball" {
		t.Errorf("expected 0.5 at step 2, got %+v", r)
	}

	b.Samples[1].Body = "floor"
	if _, err := Divergence(a, b); !errors.Is(err, dynamo.ErrUsage) {
		t.Errorf("expected ErrUsage for mismatched layout, got %v", err)
	}
}

func TestWorkerCountDoesNotDiverge(t *testing.T) {
	record := func(workers int) *storage.Trajectory {
		sc, err := experiment.NewRegistry().Get("rigid_body")
		if err != nil {
			t.Fatal(err)
		}
		app, err := experiment.New(sc, experiment.Options{Workers: workers, Logger: log.New(io.Discard)})
		if err != nil {
			t.Fatal(err)
		}
		defer app.Close()
		res, err := automation.Record(context.Background(), app, 60, nil)
		if err != nil {
			t.Fatal(err)
		}
		return res.Trajectory
	}

	r, err := Divergence(record(1), record(4))
	if err != nil {
		t.Fatal(err)
	}
	if r.Max != 0 {
		t.Errorf("1 and 4 workers diverged by %g at %s step %d", r.Max, r.Body, r.Step)
	}
}
