package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/service"
	"github.com/Ning0612/ipmtool/internal/state"
)

type styles struct {
	title  lipgloss.Style
	ok     lipgloss.Style
	warn   lipgloss.Style
	err    lipgloss.Style
	dim    lipgloss.Style
	header lipgloss.Style
	cell   lipgloss.Style
	border lipgloss.Style
}

func (a *App) styles() styles {
	if a.flags.NoColor {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain, plain.Padding(0, 1), plain}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true),
		ok:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		err:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1),
		cell:   lipgloss.NewStyle().Padding(0, 1),
		border: lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
	}
}

// newTable builds a bordered table with the shared header style
func (s styles) newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		})
}

func (a *App) renderConflicts(groups []domain.ConflictGroup) {
	s := a.styles()
	if len(groups) == 0 {
		fmt.Fprintln(a.out, s.ok.Render("No conflicts detected"))
		return
	}

	fmt.Fprintln(a.out, s.title.Render(fmt.Sprintf("%d conflicting items", len(groups))))
	t := s.newTable("Item", "Mod", "Preset", "Count", "Amount", "Value")
	for _, g := range groups {
		for i, m := range g.Mods {
			item := g.ItemName
			if i > 0 {
				item = ""
			}
			t.Row(item, m.ModID, m.ParentPreset, dash(m.Count), dash(m.Amount), dash(m.Value))
		}
	}
	fmt.Fprintln(a.out, t.Render())
}

func (a *App) renderModDetails(details []domain.ModDetail) {
	if len(details) == 0 {
		return
	}
	s := a.styles()
	t := s.newTable("Mod", "Priority", "Items", "Path")
	for _, d := range details {
		t.Row(d.ID, priority(d.Priority), strconv.Itoa(len(d.PresetItems)), d.Path)
	}
	fmt.Fprintln(a.out, t.Render())
}

func (a *App) renderPackages(packages []domain.Package) {
	s := a.styles()
	t := s.newTable("Mod", "Priority", "Archive")
	for _, p := range packages {
		t.Row(p.ModID, priority(p.Priority), p.ArchivePath)
	}
	fmt.Fprintln(a.out, t.Render())
}

func (a *App) renderHistory(runs []state.RunRecord) {
	s := a.styles()
	if len(runs) == 0 {
		fmt.Fprintln(a.out, s.dim.Render("No runs recorded"))
		return
	}

	t := s.newTable("Started", "Status", "Strategy", "Conflicts", "Presets", "Duration", "Root")
	for _, r := range runs {
		status := r.Status
		switch r.Status {
		case state.StatusSuccess:
			status = s.ok.Render(status)
		case state.StatusFailed:
			status = s.err.Render(status)
		case state.StatusCancelled:
			status = s.warn.Render(status)
		}
		t.Row(
			r.StartTime.Local().Format(time.DateTime),
			status,
			r.Strategy,
			strconv.Itoa(r.Conflicts),
			strconv.Itoa(r.Presets),
			r.Duration().Round(time.Millisecond).String(),
			r.Root,
		)
	}
	fmt.Fprintln(a.out, t.Render())
}

func (a *App) renderCompleted(c *service.Completed) {
	s := a.styles()
	fmt.Fprintln(a.out, s.ok.Render(service.MsgCompleted))
	fmt.Fprintf(a.out, "%s %s\n", s.dim.Render("Archive:"), c.Output.ArchivePath)
	if c.LogPath != "" {
		fmt.Fprintf(a.out, "%s %s\n", s.dim.Render("Log:    "), c.LogPath)
	}
	if len(c.Merge.ContributingMods) > 0 {
		fmt.Fprintf(a.out, "%s %s\n", s.dim.Render("Mods:   "), strings.Join(c.Merge.ContributingMods, ", "))
	}
	if a.flags.Verbose {
		a.renderSummary(c.Summary)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func priority(p int) string {
	if p == domain.NoPriority {
		return "-"
	}
	return strconv.Itoa(p)
}
