// Package tui implements a terminal segment browser for a completed
// engine.MetricInsight: a paginated, key-dimension-highlighted table of
// driftlens/engine.SegmentInfo rows, built with bubbletea and lipgloss
// the way llm-verifier's tui package builds its dashboard screens.
package tui

import (
	"fmt"
	"math"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"driftlens/engine"
)

const pageSize = 15

type segmentRow struct {
	key      string
	isDriver bool
	info     *engine.SegmentInfo
}

// App is the bubbletea model for the segment browser.
type App struct {
	insight  *engine.MetricInsight
	rows     []segmentRow
	cursor   int
	page     int
	width    int
	height   int
}

// NewApp builds a browser over insight's ranked segments, top drivers first
// and otherwise ordered by descending absolute contribution.
func NewApp(insight *engine.MetricInsight) *App {
	drivers := make(map[string]bool, len(insight.TopDriverSliceKeys))
	for _, k := range insight.TopDriverSliceKeys {
		drivers[k] = true
	}

	rows := make([]segmentRow, 0, len(insight.DimensionSliceInfo))
	for k, info := range insight.DimensionSliceInfo {
		rows = append(rows, segmentRow{key: k, isDriver: drivers[k], info: info})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].isDriver != rows[j].isDriver {
			return rows[i].isDriver
		}
		return math.Abs(rows[i].info.AbsoluteContribution) > math.Abs(rows[j].info.AbsoluteContribution)
	})

	return &App{insight: insight, rows: rows}
}

func (a *App) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit
		case "up", "k":
			if a.cursor > 0 {
				a.cursor--
			}
		case "down", "j":
			if a.cursor < len(a.rows)-1 {
				a.cursor++
			}
		case "right", "l", "n", "pgdown":
			if (a.page+1)*pageSize < len(a.rows) {
				a.page++
				a.cursor = a.page * pageSize
			}
		case "left", "h", "p", "pgup":
			if a.page > 0 {
				a.page--
				a.cursor = a.page * pageSize
			}
		}
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
	}
	return a, nil
}

func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	header := a.renderHeader()
	footer := a.renderFooter()
	content := a.renderTable()

	return lipgloss.JoinVertical(lipgloss.Top, header, content, footer)
}

func (a *App) renderHeader() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Padding(0, 1).
		Render(fmt.Sprintf("driftlens: %s", a.insight.Name))

	summary := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf("baseline=%.4f  comparison=%.4f  key dimensions=%v",
			a.insight.BaselineValue, a.insight.ComparisonValue, a.insight.KeyDimensions))

	style := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(a.width - 2)

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, summary))
}

func (a *App) renderFooter() string {
	totalPages := (len(a.rows) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}
	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(fmt.Sprintf("↑/↓: select | ←/→: page (%d/%d) | q: quit", a.page+1, totalPages))

	style := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1).
		Width(a.width - 2)

	return style.Render(help)
}

func (a *App) renderTable() string {
	start := a.page * pageSize
	end := start + pageSize
	if end > len(a.rows) {
		end = len(a.rows)
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Width(48)
	driverStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle := lipgloss.NewStyle().Background(lipgloss.Color("236"))

	lines := make([]string, 0, end-start+1)
	lines = append(lines, headerStyle.Render(fmt.Sprintf("%-48s %10s %10s %9s %6s", "segment", "baseline", "comparison", "change", "drv")))

	for i := start; i < end; i++ {
		r := a.rows[i]
		marker := ""
		if r.isDriver {
			marker = "*"
		}
		line := fmt.Sprintf("%-48s %10.2f %10.2f %8.1f%% %6s",
			truncate(r.key, 48), r.info.Baseline.Value, r.info.Comparison.Value, r.info.Change*100, marker)

		style := lipgloss.NewStyle()
		if r.isDriver {
			style = driverStyle
		}
		if i == a.cursor {
			style = selectedStyle
		}
		lines = append(lines, style.Render(line))
	}

	contentStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(a.width - 4).
		Height(a.height - 8)

	return contentStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// Run starts the bubbletea program over insight until the user quits.
func Run(insight *engine.MetricInsight) error {
	p := tea.NewProgram(NewApp(insight), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}
	return nil
}
