package analysis

import (
	"math"
	"strings"

	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/storage"
)

type Point struct{ X, Y float64 }

// PhasePortrait holds one body's height (X) against vertical velocity (Y).
type PhasePortrait struct {
	Body   string
	Points []Point
}

func samplesOf(traj *storage.Trajectory, body string) ([]storage.Sample, error) {
	var out []storage.Sample
	for _, s := range traj.Samples {
		if s.Body == body {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, dynamo.Usagef("no samples for body %q", body)
	}
	return out, nil
}

func NewPhasePortrait(traj *storage.Trajectory, body string) (*PhasePortrait, error) {
	samples, err := samplesOf(traj, body)
	if err != nil {
		return nil, err
	}
	p := &PhasePortrait{Body: body, Points: make([]Point, len(samples))}
	for i, s := range samples {
		p.Points[i] = Point{X: s.Position.Y(), Y: s.Velocity.Y()}
	}
	return p, nil
}

// ASCII plots the portrait on a width x height grid, with axes where they
// cross the visible area.
func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}

	minX, maxX := p.Points[0].X, p.Points[0].X
	minY, maxY := p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}

	rangeX := maxX - minX
	rangeY := maxY - minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	minX -= rangeX * 0.1
	maxX += rangeX * 0.1
	minY -= rangeY * 0.1
	maxY += rangeY * 0.1
	rangeX = maxX - minX
	rangeY = maxY - minY

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", width))
	}

	for _, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row >= 0 && row < height && col >= 0 && col < width {
			grid[row][col] = '•'
		}
	}

	if minX <= 0 && maxX >= 0 {
		col := int((0 - minX) / rangeX * float64(width-1))
		for row := 0; row < height; row++ {
			if grid[row][col] == ' ' {
				grid[row][col] = '│'
			}
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int((0-minY)/rangeY*float64(height-1))
		for col := 0; col < width; col++ {
			if grid[row][col] == ' ' {
				grid[row][col] = '─'
			}
		}
	}

	var sb strings.Builder
	for _, row := range grid {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Bounce is one impact: the sample where vertical velocity turned from
// falling to rising.
type Bounce struct {
	Step   int
	Time   float64
	Height float64
	// Before and After are the vertical speeds either side of the impact.
	Before, After float64
}

// FindBounces scans one body's samples for falling-to-rising velocity
// changes larger than minSpeed.
func FindBounces(traj *storage.Trajectory, body string, minSpeed float64) ([]Bounce, error) {
	samples, err := samplesOf(traj, body)
	if err != nil {
		return nil, err
	}

	var out []Bounce
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1].Velocity.Y(), samples[i].Velocity.Y()
		if prev < -minSpeed && cur > minSpeed {
			out = append(out, Bounce{
				Step:   samples[i].Step,
				Time:   samples[i].Time,
				Height: samples[i].Position.Y(),
				Before: -prev,
				After:  cur,
			})
		}
	}
	return out, nil
}

// Restitution is the mean After/Before ratio over bounces, or 0 without
// any.
func Restitution(bounces []Bounce) float64 {
	if len(bounces) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bounces {
		sum += b.After / b.Before
	}
	return sum / float64(len(bounces))
}
