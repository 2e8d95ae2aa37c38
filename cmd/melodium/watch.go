package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/melodium/internal/designdoc"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	portStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	countStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	waitStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

// portCountMsg reports one more value having crossed a named port, sent by
// the run command's feeder/drainer goroutines.
type portCountMsg struct {
	port string
	in   bool
}

// dashboard is a bubbletea model driven by Send from the feeder and
// drainer goroutines, with a bubbles/spinner.Model per output port that
// ticks until the port sees its first batch.
type dashboard struct {
	ports   []string
	fed     map[string]int
	recvd   map[string]int
	waiting map[string]spinner.Model
}

func newDashboard(inputs, outputs []designdoc.IODef) dashboard {
	d := dashboard{fed: map[string]int{}, recvd: map[string]int{}, waiting: map[string]spinner.Model{}}
	for _, i := range inputs {
		d.ports = append(d.ports, i.Name)
		d.fed[i.Name] = 0
	}
	for _, o := range outputs {
		d.recvd[o.Name] = 0
		d.waiting[o.Name] = spinner.New(spinner.WithSpinner(spinner.Dot))
	}
	sort.Strings(d.ports)
	return d
}

func (d dashboard) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(d.waiting))
	for _, sp := range d.waiting {
		cmds = append(cmds, sp.Tick)
	}
	return tea.Batch(cmds...)
}

func (d dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case portCountMsg:
		if m.in {
			d.fed[m.port]++
		} else {
			d.recvd[m.port]++
		}
		return d, nil
	case spinner.TickMsg:
		var cmds []tea.Cmd
		for name, sp := range d.waiting {
			if d.recvd[name] > 0 {
				continue
			}
			updated, cmd := sp.Update(m)
			d.waiting[name] = updated
			cmds = append(cmds, cmd)
		}
		return d, tea.Batch(cmds...)
	case tea.KeyMsg:
		if m.String() == "ctrl+c" || m.String() == "q" {
			return d, tea.Quit
		}
	}
	return d, nil
}

func (d dashboard) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("melodium run — live track 0") + "\n\n")
	names := make([]string, 0, len(d.fed)+len(d.recvd))
	for n := range d.fed {
		names = append(names, n)
	}
	for n := range d.recvd {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if c, ok := d.fed[n]; ok {
			fmt.Fprintf(&b, "%s %s\n", portStyle.Render("-> "+n), countStyle.Render(fmt.Sprintf("%d fed", c)))
		}
		if c, ok := d.recvd[n]; ok {
			if c == 0 {
				fmt.Fprintf(&b, "%s %s\n", portStyle.Render("<- "+n), waitStyle.Render(d.waiting[n].View()+" waiting"))
			} else {
				fmt.Fprintf(&b, "%s %s\n", portStyle.Render("<- "+n), countStyle.Render(fmt.Sprintf("%d received", c)))
			}
		}
	}
	b.WriteString("\n(q to detach)\n")
	return b.String()
}

// watchProgram wraps a running tea.Program so the run command's worker
// goroutines can push counter updates without depending on bubbletea types
// directly.
type watchProgram struct {
	p *tea.Program
}

func startDashboard(d dashboard) *watchProgram {
	p := tea.NewProgram(d)
	go func() { _, _ = p.Run() }()
	return &watchProgram{p: p}
}

func (w *watchProgram) fed(port string)      { w.p.Send(portCountMsg{port: port, in: true}) }
func (w *watchProgram) received(port string) { w.p.Send(portCountMsg{port: port, in: false}) }
func (w *watchProgram) stop()                { w.p.Quit() }
