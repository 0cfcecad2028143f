package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/storage"
	"github.com/san-kum/rigidsim/internal/viz"
)

// Palette cycles through these stroke colours, one per body.
var Palette = []string{"#00ff9f", "#ff6ac1", "#57c7ff", "#f3f99d", "#ff5c57", "#9aedfe"}

// Projection picks the two world axes a path is drawn in.
type Projection int

const (
	// SideView plots x against y.
	SideView Projection = iota
	// TopView plots x against z.
	TopView
)

func (p Projection) axes(v mgl64.Vec3) (float64, float64) {
	if p == TopView {
		return v.X(), -v.Z()
	}
	return v.X(), v.Y()
}

// CanvasSVG writes a Braille canvas as one circle per lit dot.
func CanvasSVG(w io.Writer, canvas *viz.Canvas, scale float64) error {
	if canvas == nil {
		return nil
	}
	dw, dh := canvas.Dots()
	width := float64(dw) * scale
	height := float64(dh) * scale

	var sb strings.Builder
	header(&sb, width, height)
	sb.WriteString("<g fill=\"#00ff00\">\n")
	r := scale * 0.4
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			if !canvas.IsSet(x, y) {
				continue
			}
			fmt.Fprintf(&sb, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"%.1f\"/>\n",
				float64(x)*scale+scale/2, float64(y)*scale+scale/2, r)
		}
	}
	sb.WriteString("</g>\n</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// TrajectorySVG draws every body that moved during the run as a polyline,
// all sharing one set of bounds.
func TrajectorySVG(w io.Writer, traj *storage.Trajectory, proj Projection, width, height int) error {
	type path struct {
		name string
		pts  [][2]float64
	}
	var paths []path
	minX, maxX := 0.0, 0.0
	minY, maxY := 0.0, 0.0
	first := true
	for _, name := range traj.Bodies() {
		_, positions := traj.Series(name)
		if len(positions) < 2 || positions[0] == positions[len(positions)-1] {
			continue
		}
		p := path{name: name, pts: make([][2]float64, len(positions))}
		for i, pos := range positions {
			x, y := proj.axes(pos)
			p.pts[i] = [2]float64{x, y}
			if first {
				minX, maxX, minY, maxY = x, x, y, y
				first = false
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
		paths = append(paths, p)
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
	minY -= rangeY * 0.1
	rangeX *= 1.2
	rangeY *= 1.2

	var sb strings.Builder
	header(&sb, float64(width), float64(height))
	for i, p := range paths {
		color := Palette[i%len(Palette)]
		fmt.Fprintf(&sb, "<path id=%q fill=\"none\" stroke=\"%s\" stroke-width=\"1.5\" d=\"M", p.name, color)
		for j, pt := range p.pts {
			x := (pt[0] - minX) / rangeX * float64(width)
			y := float64(height) - (pt[1]-minY)/rangeY*float64(height)
			if j == 0 {
				fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
			} else {
				fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
			}
		}
		sb.WriteString("\"/>\n")
		fmt.Fprintf(&sb, "<text x=\"8\" y=\"%d\" fill=\"%s\" font-family=\"monospace\" font-size=\"12\">%s</text>\n",
			16*(i+1), color, p.name)
	}
	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func header(sb *strings.Builder, width, height float64) {
	fmt.Fprintf(sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.0f %.0f">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
`, width, height, width, height)
}
