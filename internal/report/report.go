// Package report accumulates the user-facing run log.
package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/logger"
)

// Level is the severity of a report entry
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// TimeFormat is the timestamp layout used throughout the report
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Entry is one PROCESS LOG line
type Entry struct {
	Level   Level     `yaml:"level"`
	Time    time.Time `yaml:"time"`
	Message string    `yaml:"message"`
}

// CombinedMod is a mod whose content made it into the output
type CombinedMod struct {
	ID       string   `yaml:"id"`
	Priority int      `yaml:"priority"`
	Files    []string `yaml:"files"`
}

// Snapshot is the serializable state of a Report
type Snapshot struct {
	Started     time.Time              `yaml:"started"`
	Entries     []Entry                `yaml:"entries"`
	Archives    []string               `yaml:"archives"`
	Documents   []string               `yaml:"documents"`
	Combined    []CombinedMod          `yaml:"combined,omitempty"`
	Conflicts   []domain.ConflictGroup `yaml:"conflicts,omitempty"`
	ManualOrder []string               `yaml:"manual_order,omitempty"`
	UsedManual  bool                   `yaml:"used_manual"`
}

// Report is created when a run starts and frozen by Finish
type Report struct {
	mu       sync.Mutex
	s        Snapshot
	ended    time.Time
	finished bool
	now      func() time.Time
}

// New starts a report
func New() *Report {
	r := &Report{now: time.Now}
	r.s.Started = r.now()
	return r
}

// Restore continues a report from a snapshot
func Restore(s Snapshot) *Report {
	r := &Report{s: s, now: time.Now}
	if r.s.Started.IsZero() {
		r.s.Started = r.now()
	}
	return r
}

// Snapshot returns a copy of the current state
func (r *Report) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.s
	s.Entries = append([]Entry(nil), r.s.Entries...)
	s.Archives = append([]string(nil), r.s.Archives...)
	s.Documents = append([]string(nil), r.s.Documents...)
	s.Combined = append([]CombinedMod(nil), r.s.Combined...)
	s.Conflicts = append([]domain.ConflictGroup(nil), r.s.Conflicts...)
	s.ManualOrder = append([]string(nil), r.s.ManualOrder...)
	return s
}

func (r *Report) Debug(format string, args ...any) { r.add(LevelDebug, format, args...) }
func (r *Report) Info(format string, args ...any)  { r.add(LevelInfo, format, args...) }
func (r *Report) Warn(format string, args ...any)  { r.add(LevelWarn, format, args...) }
func (r *Report) Error(format string, args ...any) { r.add(LevelError, format, args...) }

func (r *Report) add(level Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}

	log := logger.Get()
	switch level {
	case LevelDebug:
		log.Debug(msg)
	case LevelWarn:
		log.Warn(msg)
	case LevelError:
		log.Error(msg)
	default:
		log.Info(msg)
	}

	r.mutate(func(s *Snapshot) {
		s.Entries = append(s.Entries, Entry{Level: level, Time: r.now(), Message: msg})
	})
}

// AddArchive records a scanned archive path
func (r *Report) AddArchive(path string) {
	r.mutate(func(s *Snapshot) { s.Archives = append(s.Archives, path) })
}

// AddDocument records a processed document label
func (r *Report) AddDocument(label string) {
	r.mutate(func(s *Snapshot) { s.Documents = append(s.Documents, label) })
}

// AddCombined records that file from modID was merged with the given priority
func (r *Report) AddCombined(modID string, priority int, file string) {
	r.mutate(func(s *Snapshot) {
		for i := range s.Combined {
			if s.Combined[i].ID == modID {
				s.Combined[i].Files = append(s.Combined[i].Files, file)
				return
			}
		}
		s.Combined = append(s.Combined, CombinedMod{ID: modID, Priority: priority, Files: []string{file}})
	})
}

// SetConflicts records the detected conflict groups
func (r *Report) SetConflicts(groups []domain.ConflictGroup) {
	r.mutate(func(s *Snapshot) { s.Conflicts = append([]domain.ConflictGroup(nil), groups...) })
}

// SetManualOrder records that a caller-supplied order was used
func (r *Report) SetManualOrder(order []string) {
	r.mutate(func(s *Snapshot) {
		s.UsedManual = true
		s.ManualOrder = append([]string(nil), order...)
	})
}

// Finish freezes the report. Later calls to mutators are ignored.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.finished = true
		r.ended = r.now()
	}
}

func (r *Report) mutate(fn func(s *Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	fn(&r.s)
}

func (r *Report) endTime() time.Time {
	if r.finished {
		return r.ended
	}
	return r.now()
}

// String renders the plain-text log written next to the output
func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.s
	end := r.endTime()

	var b strings.Builder
	section := func(title string) {
		b.WriteString(title + "\n" + strings.Repeat("-", len(title)) + "\n")
	}

	b.WriteString("IPM TOOL LOG\n=============\n\n")
	fmt.Fprintf(&b, "Process started: %s\n", stamp(s.Started))
	fmt.Fprintf(&b, "Process ended: %s\n", stamp(end))
	fmt.Fprintf(&b, "Duration: %.2f seconds\n\n", end.Sub(s.Started).Seconds())

	if s.UsedManual {
		section("MANUAL MOD ORDER")
		if len(s.ManualOrder) > 0 {
			b.WriteString("The following manual order was used (highest priority first):\n")
			for i, id := range s.ManualOrder {
				if i > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "%d. %s", i+1, id)
			}
		} else {
			b.WriteString("Manual ordering was enabled but no order was specified.")
		}
		b.WriteString("\n\n")
	}

	if len(s.Conflicts) > 0 {
		section("CONFLICTS DETECTED")
		for i, g := range s.Conflicts {
			fmt.Fprintf(&b, "Conflict Group %d: Item %q\n", i+1, g.ItemName)
			for _, m := range g.Mods {
				fmt.Fprintf(&b, "  - %s (%s)\n", m.ModID, describeValues(m.ItemValues))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	section("PAK FILES PROCESSED")
	writeList(&b, s.Archives, "No PAK files were processed.")

	section("XML FILES PROCESSED")
	writeList(&b, s.Documents, "No XML files were processed.")

	section("MODS COMBINED")
	if len(s.Combined) > 0 {
		for _, m := range s.Combined {
			fmt.Fprintf(&b, "- %s (Priority: %d)\n", m.ID, m.Priority)
			fmt.Fprintf(&b, "  Files: %d\n", len(m.Files))
		}
	} else {
		b.WriteString("No mods were combined.")
	}
	b.WriteString("\n\n")

	section("PROCESS LOG")
	if len(s.Entries) > 0 {
		for i, e := range s.Entries {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "[%s] [%s] %s", e.Level, stamp(e.Time), e.Message)
		}
	} else {
		b.WriteString("No log entries.")
	}
	return b.String()
}

// Markdown renders a summary suitable for terminal markdown renderers
func (r *Report) Markdown() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.s
	end := r.endTime()

	var b strings.Builder
	b.WriteString("# IPM Tool run\n\n")
	fmt.Fprintf(&b, "Started **%s**, took **%.2fs**. ", stamp(s.Started), end.Sub(s.Started).Seconds())
	fmt.Fprintf(&b, "%d archives, %d documents.\n\n", len(s.Archives), len(s.Documents))

	if s.UsedManual && len(s.ManualOrder) > 0 {
		b.WriteString("## Manual order\n\n")
		for i, id := range s.ManualOrder {
			fmt.Fprintf(&b, "%d. `%s`\n", i+1, id)
		}
		b.WriteString("\n")
	}

	if len(s.Conflicts) > 0 {
		b.WriteString("## Conflicts\n\n| Item | Mod | Preset | Count | Amount | Value |\n|---|---|---|---|---|---|\n")
		for _, g := range s.Conflicts {
			for _, m := range g.Mods {
				fmt.Fprintf(&b, "| %s | `%s` | %s | %s | %s | %s |\n",
					escapeCell(g.ItemName), m.ModID, escapeCell(m.ParentPreset),
					orDash(m.Count), orDash(m.Amount), orDash(m.Value))
			}
		}
		b.WriteString("\n")
	}

	if len(s.Combined) > 0 {
		b.WriteString("## Mods combined\n\n| Mod | Priority | Files |\n|---|---|---|\n")
		for _, m := range s.Combined {
			fmt.Fprintf(&b, "| `%s` | %d | %d |\n", m.ID, m.Priority, len(m.Files))
		}
		b.WriteString("\n")
	}

	var problems []Entry
	for _, e := range s.Entries {
		if e.Level == LevelWarn || e.Level == LevelError {
			problems = append(problems, e)
		}
	}
	if len(problems) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, e := range problems {
			fmt.Fprintf(&b, "- **%s** %s\n", e.Level, e.Message)
		}
	}
	return b.String()
}

func stamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// describeValues lists the defined scalars as "Count: x, Value: y, Amount: z"
func describeValues(v domain.ItemValues) string {
	var parts []string
	if v.Count != "" {
		parts = append(parts, "Count: "+v.Count)
	}
	if v.Value != "" {
		parts = append(parts, "Value: "+v.Value)
	}
	if v.Amount != "" {
		parts = append(parts, "Amount: "+v.Amount)
	}
	return strings.Join(parts, ", ")
}

func writeList(b *strings.Builder, items []string, empty string) {
	if len(items) == 0 {
		b.WriteString(empty)
	} else {
		for i, it := range items {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("- " + it)
		}
	}
	b.WriteString("\n\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
