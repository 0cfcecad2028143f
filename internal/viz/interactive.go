package viz

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/rigidsim/internal/experiment"
)

// picker lists registered scenes and hands the chosen one to the live
// viewer.
type picker struct {
	ctx    context.Context
	reg    *experiment.Registry
	opts   experiment.Options
	theme  string
	names  []string
	descs  map[string]string
	cursor int
	live   *Model
	err    error
}

func newPicker(ctx context.Context, reg *experiment.Registry, opts experiment.Options, theme string) picker {
	p := picker{
		ctx:   ctx,
		reg:   reg,
		opts:  opts,
		theme: theme,
		names: reg.List(),
		descs: make(map[string]string),
	}
	for _, name := range p.names {
		if sc, err := reg.Get(name); err == nil {
			p.descs[name] = sc.Description
		}
	}
	return p
}

// SceneBuilder builds the named registry scene with opts.
func SceneBuilder(reg *experiment.Registry, name string, opts experiment.Options) Builder {
	return func() (*experiment.App, error) {
		sc, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		return experiment.New(sc, opts)
	}
}

func (p picker) Init() tea.Cmd { return nil }

func (p picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.live != nil {
		next, cmd := p.live.Update(msg)
		m := next.(Model)
		p.live = &m
		return p, cmd
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.names)-1 {
			p.cursor++
		}
	case "enter":
		if len(p.names) == 0 {
			return p, nil
		}
		m, err := NewModel(p.ctx, SceneBuilder(p.reg, p.names[p.cursor], p.opts), p.theme)
		if err != nil {
			p.err = err
			return p, nil
		}
		p.err = nil
		p.live = &m
		return p, m.Init()
	}
	return p, nil
}

func (p picker) View() string {
	if p.live != nil {
		return p.live.View()
	}
	t := GetTheme(p.theme)
	title := lipgloss.NewStyle().Foreground(t.Primary).Bold(true)
	sub := lipgloss.NewStyle().Foreground(t.Muted)
	sel := lipgloss.NewStyle().Foreground(t.Text).Bold(true)
	desc := lipgloss.NewStyle().Foreground(t.Accent)
	errStyle := lipgloss.NewStyle().Foreground(t.Error)

	var b strings.Builder
	b.WriteString("\n    " + title.Render("RIGIDSIM") + "\n")
	b.WriteString("    " + sub.Render("layered rigid body scenes") + "\n\n")
	for i, name := range p.names {
		if i == p.cursor {
			b.WriteString(fmt.Sprintf("    %s %s  %s\n", title.Render("▸"), sel.Render(fmt.Sprintf("%-18s", name)), desc.Render(p.descs[name])))
		} else {
			b.WriteString(fmt.Sprintf("      %s  %s\n", sub.Render(fmt.Sprintf("%-18s", name)), sub.Render(p.descs[name])))
		}
	}
	if p.err != nil {
		b.WriteString("\n    " + errStyle.Render(p.err.Error()) + "\n")
	}
	b.WriteString("\n    " + sub.Render("j/k navigate  enter select  q quit") + "\n")
	return b.String()
}

// RunInteractive shows the scene picker, then the live viewer.
func RunInteractive(ctx context.Context, reg *experiment.Registry, opts experiment.Options, theme string) error {
	final, err := tea.NewProgram(newPicker(ctx, reg, opts, theme), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if p, ok := final.(picker); ok && p.live != nil {
		p.live.App().Close()
	}
	return err
}
