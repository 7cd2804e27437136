// Package identity derives stable mod identifiers and reads the explicit load order.
package identity

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/Ning0612/ipmtool/internal/core/inventory"
	"github.com/Ning0612/ipmtool/internal/logger"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	workshopID    = regexp.MustCompile(`^\d+$`)
	modIDAttr     = regexp.MustCompile(`(?i)modid="([^"]+)"`)
	nameAttr      = regexp.MustCompile(`(?i)name="([^"]+)"`)
)

// Normalize lowercases s and collapses whitespace runs into a single underscore
func Normalize(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

// Options configures a Resolver
type Options struct {
	// ManifestFile is the descriptor name inside a mod folder
	ManifestFile string
	// WorkshopPrefix prefixes ids synthesized from workshop archive names
	WorkshopPrefix string
	// ArchiveExtension is stripped from archive names when synthesizing ids
	ArchiveExtension string
	// SiblingExtension selects files scanned for an id when a workshop manifest is missing
	SiblingExtension string
}

// DefaultOptions returns the KCD layout defaults
func DefaultOptions() Options {
	return Options{
		ManifestFile:     "mod.manifest",
		WorkshopPrefix:   "steam_",
		ArchiveExtension: ".pak",
		SiblingExtension: ".xml",
	}
}

// Resolver maps archive paths to mod ids
type Resolver struct {
	opts Options
}

// NewResolver creates a Resolver; zero fields in opts take the defaults
func NewResolver(opts Options) *Resolver {
	def := DefaultOptions()
	if opts.ManifestFile == "" {
		opts.ManifestFile = def.ManifestFile
	}
	if opts.WorkshopPrefix == "" {
		opts.WorkshopPrefix = def.WorkshopPrefix
	}
	if opts.ArchiveExtension == "" {
		opts.ArchiveExtension = def.ArchiveExtension
	}
	if opts.SiblingExtension == "" {
		opts.SiblingExtension = def.SiblingExtension
	}
	return &Resolver{opts: opts}
}

// ModFolder returns the mod folder owning an archive: <mod>/Data/<name>.pak -> <mod>
func ModFolder(archivePath string) string {
	return filepath.Dir(filepath.Dir(archivePath))
}

// ResolveModID derives the id of the mod owning archivePath.
//
// The manifest one level above the archive's folder wins (modid, then name).
// Without a readable manifest, a numeric workshop folder is searched for an
// id in sibling xml files and otherwise named after the archive; any other
// folder is named after itself. Failures never surface, they only fall through.
func (r *Resolver) ResolveModID(archivePath string) string {
	modFolder := ModFolder(archivePath)
	folderName := filepath.Base(modFolder)
	isWorkshop := workshopID.MatchString(folderName)

	id, err := r.readManifest(filepath.Join(modFolder, r.opts.ManifestFile))
	if err == nil && id != "" {
		return id
	}
	if err != nil && isWorkshop {
		if id := r.scanSiblings(modFolder); id != "" {
			return id
		}
	}

	if isWorkshop {
		base := strings.TrimSuffix(filepath.Base(archivePath), r.opts.ArchiveExtension)
		return Normalize(r.opts.WorkshopPrefix + base)
	}
	return Normalize(folderName)
}

// readManifest returns the normalized id from a kcd_mod manifest.
// The id is read from the info element's modid (attribute or child), then name.
// A readable manifest without either yields "", nil.
func (r *Resolver) readManifest(path string) (string, error) {
	doc := inventory.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return "", err
	}

	root := doc.SelectElement("kcd_mod")
	if root == nil {
		return "", nil
	}
	info := root.SelectElement("info")
	if info == nil {
		return "", nil
	}

	for _, field := range []string{"modid", "name"} {
		if v := strings.TrimSpace(info.SelectAttrValue(field, "")); v != "" {
			return Normalize(v), nil
		}
		if el := info.SelectElement(field); el != nil {
			if v := strings.TrimSpace(el.Text()); v != "" {
				return Normalize(v), nil
			}
		}
	}
	return "", nil
}

// scanSiblings looks for modid="..." or name="..." in xml files next to the manifest
func (r *Resolver) scanSiblings(modFolder string) string {
	entries, err := os.ReadDir(modFolder)
	if err != nil {
		return ""
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), r.opts.SiblingExtension) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(modFolder, name))
		if err != nil {
			continue
		}
		content := string(data)
		for _, re := range []*regexp.Regexp{modIDAttr, nameAttr} {
			if m := re.FindStringSubmatch(content); m != nil && strings.TrimSpace(m[1]) != "" {
				logger.Get().Debug("mod id recovered from sibling file", "folder", modFolder, "file", name)
				return Normalize(m[1])
			}
		}
	}
	return ""
}
