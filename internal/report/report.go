// Package report renders run summaries and persisted project state as
// styled terminal tables.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/amin-amout/agentpro/internal/pipeline"
	"github.com/amin-amout/agentpro/internal/state"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)

	statusStyles = map[string]lipgloss.Style{
		"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71")),
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		"skipped":   lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")),
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		"pending":   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
	}
)

func styleStatus(status string) string {
	if style, ok := statusStyles[status]; ok {
		return style.Render(status)
	}
	return status
}

// Run renders the end-of-run table: one row per stage in execution order
// with status, duration, artifact names, and the failure reason if any.
func Run(summary pipeline.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Run %s · %s", summary.RunID, summary.Project)))
	b.WriteString("\n")

	var rows []string
	rows = append(rows, headerStyle.Render(fmt.Sprintf("%-16s %-10s %-10s %s", "STAGE", "STATUS", "DURATION", "DETAIL")))
	for _, name := range summary.Order {
		result, ok := summary.Stages[name]
		if !ok {
			continue
		}
		rows = append(rows, fmt.Sprintf("%-16s %-10s %-10s %s",
			name,
			padStatus(string(result.Status)),
			formatDuration(result.Duration),
			detail(result),
		))
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))

	counts := summary.Counts()
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(fmt.Sprintf(
		"%d completed · %d failed · %d skipped · %d pending · took %s",
		counts[pipeline.RunCompleted],
		counts[pipeline.RunFailed],
		counts[pipeline.RunSkipped],
		counts[pipeline.RunPending],
		formatDuration(summary.Finished.Sub(summary.Started)),
	)))
	return b.String()
}

// padStatus styles the status while keeping column alignment: lipgloss
// color codes have zero display width but confuse %-10s padding, so the
// plain text is padded first.
func padStatus(status string) string {
	padded := fmt.Sprintf("%-10s", status)
	return strings.Replace(padded, status, styleStatus(status), 1)
}

func detail(result pipeline.StageResult) string {
	switch result.Status {
	case pipeline.RunCompleted:
		parts := []string{}
		if result.Reused {
			parts = append(parts, "reused previous result")
		}
		if len(result.Artifacts) > 0 {
			parts = append(parts, strings.Join(result.Artifacts, ", "))
		}
		if result.Summary != "" {
			parts = append(parts, result.Summary)
		}
		return strings.Join(parts, " · ")
	case pipeline.RunFailed:
		if result.Err != nil {
			return fmt.Sprintf("[%s] %v", result.ErrorKind, result.Err)
		}
	case pipeline.RunSkipped:
		return result.SkipReason
	}
	return ""
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

// State renders the persisted view for the status command. Stages are
// listed in pipeline order; ones that never ran show as pending.
func State(ps state.ProjectState, order []string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Project %s", ps.Project)))
	b.WriteString("\n")

	var rows []string
	rows = append(rows, headerStyle.Render(fmt.Sprintf("%-16s %-10s %-20s %s", "STAGE", "STATUS", "UPDATED", "DETAIL")))
	listed := map[string]struct{}{}
	appendRow := func(name string) {
		listed[name] = struct{}{}
		record, ok := ps.Latest(name)
		if !ok {
			rows = append(rows, fmt.Sprintf("%-16s %-10s %-20s %s", name, padStatus("pending"), "-", ""))
			return
		}
		var detail string
		switch record.Status {
		case state.StatusCompleted:
			detail = strings.Join(record.Artifacts, ", ")
		case state.StatusFailed:
			detail = record.Error
		}
		rows = append(rows, fmt.Sprintf("%-16s %-10s %-20s %s",
			name,
			padStatus(string(record.Status)),
			record.Timestamp.Format("2006-01-02 15:04:05"),
			detail,
		))
	}
	for _, name := range order {
		appendRow(name)
	}
	// stages recorded under names outside the current pipeline still show
	for _, name := range ps.StageNames() {
		if _, ok := listed[name]; !ok {
			appendRow(name)
		}
	}
	b.WriteString(boxStyle.Render(strings.Join(rows, "\n")))
	return b.String()
}
