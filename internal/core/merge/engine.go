// Package merge combines same-named presets from several packages into one table.
package merge

import (
	"fmt"
	"slices"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/identity"
)

// Options controls one merge
type Options struct {
	Strategy domain.Strategy

	// ManualOrder lists mod ids highest priority first. Only honored by the manual strategy.
	ManualOrder []string

	// CombineOnlyConflicts keeps only preset groups with two or more contributing mods
	CombineOnlyConflicts bool
}

// Result is the merged table plus bookkeeping for the report
type Result struct {
	Presets []domain.Preset

	// ContributingMods lists the mods whose content survived, in first-contribution order
	ContributingMods []string

	// Priorities is the effective priority of every merged mod
	Priorities map[string]int

	// Groups is the number of preset groups before filtering
	Groups int

	// Dropped is the number of single-mod groups removed by CombineOnlyConflicts
	Dropped int
}

// Merger merges parsed documents
type Merger interface {
	Merge(docs []domain.ParsedDocument, opts Options) (*Result, error)
}

// Contribution is one mod's version of a preset
type Contribution struct {
	ModID    string
	Priority int
	Preset   domain.Preset
}

// Group is every contribution sharing a preset name
type Group struct {
	Name          string
	Contributions []Contribution
}

// ModCount returns the number of distinct mods in the group
func (g Group) ModCount() int {
	seen := make(map[string]struct{}, len(g.Contributions))
	for _, c := range g.Contributions {
		seen[c.ModID] = struct{}{}
	}
	return len(seen)
}

// DefaultEngine implements Merger
type DefaultEngine struct{}

// NewDefaultEngine creates a new DefaultEngine
func NewDefaultEngine() *DefaultEngine {
	return &DefaultEngine{}
}

// Merge implements the Merger interface.
//
// Documents are ordered by priority, highest first; equal priorities keep
// their input order. Presets are grouped by Name in first-appearance order
// and each group is folded with the item rule of the chosen strategy.
func (e *DefaultEngine) Merge(docs []domain.ParsedDocument, opts Options) (*Result, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = domain.StrategyManual
	}
	fold, err := itemRuleFor(strategy)
	if err != nil {
		return nil, err
	}

	if strategy == domain.StrategyManual && len(opts.ManualOrder) > 0 {
		docs = ApplyManualOrder(docs, opts.ManualOrder)
	}
	sorted := SortByPriority(docs)
	groups := GroupPresets(sorted)

	res := &Result{
		Presets:    make([]domain.Preset, 0, len(groups)),
		Priorities: make(map[string]int),
		Groups:     len(groups),
	}

	contributed := make(map[string]bool)
	for _, g := range groups {
		if opts.CombineOnlyConflicts && g.ModCount() < 2 {
			res.Dropped++
			continue
		}
		preset, mods := mergeGroup(g, fold)
		res.Presets = append(res.Presets, preset)
		for _, id := range mods {
			contributed[id] = true
		}
	}

	// 依合併順序列出實際有貢獻的 mod
	for _, d := range sorted {
		if contributed[d.ModID] && !slices.Contains(res.ContributingMods, d.ModID) {
			res.ContributingMods = append(res.ContributingMods, d.ModID)
			res.Priorities[d.ModID] = d.Priority
		}
	}
	return res, nil
}

// ApplyManualOrder returns a copy of docs whose listed mods take the priority
// len(order)-index. Mods missing from order keep their priority.
func ApplyManualOrder(docs []domain.ParsedDocument, order []string) []domain.ParsedDocument {
	out := make([]domain.ParsedDocument, len(docs))
	for i, d := range docs {
		if p := identity.PriorityIn(order, d.ModID); p != domain.NoPriority {
			d.Priority = p
		}
		out[i] = d
	}
	return out
}

// SortByPriority returns docs ordered by descending priority. The sort is stable.
func SortByPriority(docs []domain.ParsedDocument) []domain.ParsedDocument {
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(a, b domain.ParsedDocument) int {
		return b.Priority - a.Priority
	})
	return out
}

// GroupPresets collects presets by Name in first-appearance order.
// Presets without a Name cannot be matched and are skipped.
func GroupPresets(docs []domain.ParsedDocument) []Group {
	var groups []Group
	index := make(map[string]int)
	for _, d := range docs {
		for _, p := range d.Presets {
			name := p.Name()
			if name == "" {
				continue
			}
			i, ok := index[name]
			if !ok {
				i = len(groups)
				index[name] = i
				groups = append(groups, Group{Name: name})
			}
			groups[i].Contributions = append(groups[i].Contributions, Contribution{
				ModID:    d.ModID,
				Priority: d.Priority,
				Preset:   p,
			})
		}
	}
	return groups
}

// mergeGroup folds a group whose contributions are already ordered by priority.
// It returns the merged preset and the mods that supplied any surviving value.
func mergeGroup(g Group, fold itemRule) (domain.Preset, []string) {
	header := g.Contributions[0]
	preset := domain.Preset{Attrs: header.Preset.Attrs.Clone()}
	mods := []string{header.ModID}

	var items []*trackedItem
	byName := make(map[string]*trackedItem)
	for _, c := range g.Contributions {
		for _, it := range c.Preset.Items {
			name := it.Name()
			if name == "" {
				continue
			}
			acc, ok := byName[name]
			if !ok {
				acc = newTrackedItem(it, c.ModID)
				byName[name] = acc
				items = append(items, acc)
				continue
			}
			fold(acc, it, c.ModID)
		}
	}

	preset.Items = make([]domain.Item, 0, len(items))
	for _, acc := range items {
		preset.Items = append(preset.Items, acc.item)
		for _, a := range acc.item.Attrs {
			if id := acc.owner[a.Key]; !slices.Contains(mods, id) {
				mods = append(mods, id)
			}
		}
	}
	return preset, mods
}

// trackedItem is an accumulating item that remembers which mod supplied each attribute
type trackedItem struct {
	item  domain.Item
	owner map[string]string
}

func newTrackedItem(it domain.Item, modID string) *trackedItem {
	t := &trackedItem{item: it.Clone(), owner: make(map[string]string, len(it.Attrs))}
	for _, a := range it.Attrs {
		t.owner[a.Key] = modID
	}
	return t
}

func (t *trackedItem) set(key, value, modID string) {
	t.item.Attrs.Set(key, value)
	t.owner[key] = modID
}

// fillMissing copies attributes of next absent on the accumulator, except those in skip
func (t *trackedItem) fillMissing(next domain.Item, modID string, skip []string) {
	for _, a := range next.Attrs {
		if a.Key == domain.AttrName || slices.Contains(skip, a.Key) {
			continue
		}
		if _, ok := t.item.Attrs.Get(a.Key); !ok {
			t.set(a.Key, a.Value, modID)
		}
	}
}

// String is used in log output
func (r *Result) String() string {
	return fmt.Sprintf("%d presets from %d mods (%d groups, %d dropped)",
		len(r.Presets), len(r.ContributingMods), r.Groups, r.Dropped)
}
