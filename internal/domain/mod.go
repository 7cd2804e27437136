package domain

// NoPriority marks a package that is absent from the explicit order list
const NoPriority = -1

// Package is one discovered mod archive
type Package struct {
	// ArchivePath is the absolute path of the .pak file
	ArchivePath string `json:"archivePath" yaml:"archive_path"`

	// ModFolder is the mod's folder, two levels above the archive
	ModFolder string `json:"modFolder" yaml:"mod_folder"`

	// ModID is the normalized package identifier
	ModID string `json:"modId" yaml:"mod_id"`

	// Priority is higher for packages applied later; NoPriority when unlisted
	Priority int `json:"priority" yaml:"priority"`
}

// ExtractedDocument is one decoded inventory document taken from an archive entry
type ExtractedDocument struct {
	ModID    string `yaml:"mod_id"`
	Priority int    `yaml:"priority"`
	Archive  string `yaml:"archive"`
	Entry    string `yaml:"entry"`
	Content  string `yaml:"content"`
}

// Label returns the "<modId> - <entry>" form used for progress and reports
func (d ExtractedDocument) Label() string {
	return d.ModID + " - " + d.Entry
}

// ConflictEntry is one package's view of a conflicting item
type ConflictEntry struct {
	ModID        string `json:"modId" yaml:"mod_id"`
	ItemValues   `yaml:",inline"`
	ParentPreset string `json:"parentPreset" yaml:"parent_preset"`
}

// ConflictGroup is a detected disagreement about one item's values across packages
type ConflictGroup struct {
	ItemName string          `json:"itemName" yaml:"item_name"`
	Mods     []ConflictEntry `json:"mods" yaml:"mods"`
}

// ModIDs returns the contributing mod ids in order
func (g ConflictGroup) ModIDs() []string {
	ids := make([]string, 0, len(g.Mods))
	for _, m := range g.Mods {
		ids = append(ids, m.ModID)
	}
	return ids
}

// PresetItemDetail records the first occurrence of an item within one mod
type PresetItemDetail struct {
	Item         string `json:"item" yaml:"item"`
	ItemValues   `yaml:",inline"`
	ParentPreset string `json:"parentPreset" yaml:"parent_preset"`
}

// ModDetail summarizes what a mod contributes, for conflict review
type ModDetail struct {
	ID          string             `json:"id" yaml:"id"`
	Path        string             `json:"path" yaml:"path"`
	Priority    int                `json:"priority" yaml:"priority"`
	PresetItems []PresetItemDetail `json:"presetItems" yaml:"preset_items"`
}

// ParsedDocument is an ExtractedDocument after its presets were decoded
type ParsedDocument struct {
	ModID    string
	Priority int
	Entry    string
	Presets  []Preset
}
