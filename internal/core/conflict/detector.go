// Package conflict finds items whose values disagree across packages.
package conflict

import (
	"github.com/Ning0612/ipmtool/internal/domain"
)

// Detector finds conflicting item definitions across documents
type Detector interface {
	// Detect inspects every document; the input order defines the output order
	Detect(docs []domain.ParsedDocument) *Result
}

// Result is the outcome of one detection pass
type Result struct {
	// Conflicts holds one group per item name with diverging values
	Conflicts []domain.ConflictGroup

	// Values maps an item name to one entry per contributing mod
	Values map[string][]domain.ConflictEntry

	// itemOrder is the first-appearance order of item names
	itemOrder []string

	// firstSeen holds the first occurrence of each item per mod
	firstSeen map[string][]domain.PresetItemDetail
}

// HasConflicts reports whether any group was found
func (r *Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// ItemNames returns every recorded item name in first-appearance order
func (r *Result) ItemNames() []string {
	return append([]string(nil), r.itemOrder...)
}

// ModDetails summarizes each package for conflict review.
// Packages sharing an id are reported once, at their first position.
func (r *Result) ModDetails(packages []domain.Package) []domain.ModDetail {
	seen := make(map[string]bool, len(packages))
	details := make([]domain.ModDetail, 0, len(packages))
	for _, p := range packages {
		if seen[p.ModID] {
			continue
		}
		seen[p.ModID] = true

		items := r.firstSeen[p.ModID]
		if items == nil {
			items = []domain.PresetItemDetail{}
		}
		details = append(details, domain.ModDetail{
			ID:          p.ModID,
			Path:        p.ModFolder,
			Priority:    p.Priority,
			PresetItems: items,
		})
	}
	return details
}

// DefaultDetector groups items by name and compares their Count/Amount/Value tuples
type DefaultDetector struct{}

// NewDefaultDetector creates a new DefaultDetector
func NewDefaultDetector() *DefaultDetector {
	return &DefaultDetector{}
}

// Detect implements the Detector interface
func (d *DefaultDetector) Detect(docs []domain.ParsedDocument) *Result {
	res := &Result{
		Values:    make(map[string][]domain.ConflictEntry),
		firstSeen: make(map[string][]domain.PresetItemDetail),
	}
	// modId -> item names already noted in firstSeen
	noted := make(map[string]map[string]bool)

	for _, doc := range docs {
		for _, preset := range doc.Presets {
			presetName := preset.Name()
			if presetName == "" {
				continue
			}
			for _, item := range preset.Items {
				itemName := item.Name()
				if itemName == "" {
					continue
				}
				values := item.Values()

				if noted[doc.ModID] == nil {
					noted[doc.ModID] = make(map[string]bool)
				}
				if !noted[doc.ModID][itemName] {
					noted[doc.ModID][itemName] = true
					res.firstSeen[doc.ModID] = append(res.firstSeen[doc.ModID], domain.PresetItemDetail{
						Item:         itemName,
						ItemValues:   values,
						ParentPreset: presetName,
					})
				}

				res.record(itemName, domain.ConflictEntry{
					ModID:        doc.ModID,
					ItemValues:   values,
					ParentPreset: presetName,
				})
			}
		}
	}

	for _, name := range res.itemOrder {
		entries := res.Values[name]
		if len(entries) < 2 {
			continue
		}
		keys := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			keys[e.Key()] = struct{}{}
		}
		if len(keys) > 1 {
			res.Conflicts = append(res.Conflicts, domain.ConflictGroup{
				ItemName: name,
				Mods:     append([]domain.ConflictEntry(nil), entries...),
			})
		}
	}
	return res
}

// record stores entry under name. A mod that repeats an item keeps its
// original slot but takes the later values.
func (r *Result) record(name string, entry domain.ConflictEntry) {
	entries, ok := r.Values[name]
	if !ok {
		r.itemOrder = append(r.itemOrder, name)
	}
	for i := range entries {
		if entries[i].ModID == entry.ModID {
			entries[i] = entry
			return
		}
	}
	r.Values[name] = append(entries, entry)
}
