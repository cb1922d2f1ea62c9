package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const cpuBarWidth = 20

// View renders the full dashboard frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("beacon monitor — %s", m.hostName)
	if m.snap != nil {
		header += MutedStyle.Render(fmt.Sprintf("  (updated %s)", m.snap.Taken.Format("15:04:05")))
	}
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n\n")

	if m.snap == nil {
		if m.pollErr != "" {
			b.WriteString(ErrStyle.Render("poll failed: " + m.pollErr))
		} else {
			b.WriteString(m.spinner.View() + " collecting first sample...")
		}
		b.WriteString("\n\n")
		b.WriteString(FooterStyle.Render("q quit · r refresh"))
		return b.String()
	}

	b.WriteString(m.cpuSection())
	b.WriteString("\n")
	b.WriteString(m.tableSection("Network", m.snap.NetErr, m.ifaceTable.View()))
	b.WriteString("\n")
	b.WriteString(m.tableSection("Disk", m.snap.DiskErr, m.diskTable.View()))
	b.WriteString("\n")

	if m.pollErr != "" {
		b.WriteString(ErrStyle.Render("last poll failed: "+m.pollErr) + "\n")
	}
	b.WriteString(FooterStyle.Render("q quit · r refresh"))
	return b.String()
}

// cpuSection renders one usage bar per core.
func (m Model) cpuSection() string {
	var lines []string
	lines = append(lines, SectionTitleStyle.Render("CPU"))

	if m.snap.CPUErr != "" {
		lines = append(lines, ErrStyle.Render(m.snap.CPUErr))
	} else if len(m.snap.CPUCores) == 0 {
		lines = append(lines, MutedStyle.Render("no data"))
	} else {
		for i, pct := range m.snap.CPUCores {
			lines = append(lines, fmt.Sprintf("core %-2d %s %5.1f%%",
				i, renderBar(pct, cpuBarWidth), pct))
		}
	}

	return CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

// tableSection renders a titled table card, or the family's error when the
// poll partially failed.
func (m Model) tableSection(title, familyErr, tableView string) string {
	var body string
	if familyErr != "" {
		body = ErrStyle.Render(familyErr)
	} else {
		body = tableView
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		SectionTitleStyle.Render(title), body)
	return CardStyle.Render(content) + "\n"
}
