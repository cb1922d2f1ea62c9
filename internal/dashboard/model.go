// Package dashboard renders a live telemetry view of one remote host. It is
// a Bubble Tea program: the model polls a snapshot on a timer and redraws
// per-core CPU load, per-interface throughput, and per-disk activity.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/beacon/internal/telemetry"
)

// Snapshotter is the telemetry surface the dashboard polls. *remote.Host
// satisfies it.
type Snapshotter interface {
	Snapshot(ctx context.Context) (*telemetry.Snapshot, error)
}

// tickMsg signals a periodic refresh.
type tickMsg time.Time

// snapshotMsg carries one completed poll.
type snapshotMsg struct {
	snap *telemetry.Snapshot
	err  error
}

// Model is the Bubble Tea model for the telemetry dashboard.
type Model struct {
	host     Snapshotter
	hostName string
	interval time.Duration

	spinner    spinner.Model
	ifaceTable table.Model
	diskTable  table.Model

	snap     *telemetry.Snapshot
	pollErr  string
	width    int
	height   int
	quitting bool
}

// NewModel creates a dashboard model polling host every interval.
func NewModel(host Snapshotter, hostName string, interval time.Duration) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorAccent)

	ifaces := table.New(
		table.WithColumns([]table.Column{
			{Title: "Interface", Width: 12},
			{Title: "In", Width: 12},
			{Title: "Out", Width: 12},
		}),
		table.WithHeight(4),
	)
	disks := table.New(
		table.WithColumns([]table.Column{
			{Title: "Disk", Width: 12},
			{Title: "Read", Width: 12},
			{Title: "Write", Width: 12},
		}),
		table.WithHeight(4),
	)

	return Model{
		host:       host,
		hostName:   hostName,
		interval:   interval,
		spinner:    sp,
		ifaceTable: ifaces,
		diskTable:  disks,
	}
}

// Init starts the spinner, the first poll, and the refresh timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// poll fetches one snapshot off the Update loop.
func (m Model) poll() tea.Cmd {
	host := m.host
	interval := m.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*interval)
		defer cancel()
		snap, err := host.Snapshot(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

// Update handles key presses, resize, timer ticks, and finished polls.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.poll()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.poll(), m.tick())

	case snapshotMsg:
		if msg.err != nil {
			m.pollErr = msg.err.Error()
			return m, nil
		}
		m.pollErr = ""
		m.snap = msg.snap
		m.ifaceTable.SetRows(interfaceRows(msg.snap))
		m.diskTable.SetRows(diskRows(msg.snap))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func interfaceRows(snap *telemetry.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Interfaces))
	for _, iface := range snap.Interfaces {
		rows = append(rows, table.Row{
			iface.Name,
			telemetry.FormatRate(iface.InBps),
			telemetry.FormatRate(iface.OutBps),
		})
	}
	return rows
}

func diskRows(snap *telemetry.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Disks))
	for _, d := range snap.Disks {
		rows = append(rows, table.Row{
			d.Name,
			fmt.Sprintf("%.1f KB/s", d.ReadKBps),
			fmt.Sprintf("%.1f KB/s", d.WriteKBps),
		})
	}
	return rows
}
