package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/report"
)

// PendingVersion is bumped whenever the PendingRun layout changes
const PendingVersion = 1

// PendingRun is everything Resume needs to finish a paused merge without
// scanning or extracting again.
type PendingRun struct {
	Version   int       `yaml:"version"`
	RunID     string    `yaml:"run_id"`
	CreatedAt time.Time `yaml:"created_at"`
	Request   Request   `yaml:"request"`

	Packages    []domain.Package           `yaml:"packages"`
	Documents   []domain.ExtractedDocument `yaml:"documents"`
	Fingerprint string                     `yaml:"fingerprint"`

	Conflicts  []domain.ConflictGroup `yaml:"conflicts"`
	ModDetails []domain.ModDetail     `yaml:"mod_details"`

	Report report.Snapshot `yaml:"report"`
}

// ModIDs returns the distinct package ids in scan order
func (p *PendingRun) ModIDs() []string {
	seen := make(map[string]bool, len(p.Packages))
	var ids []string
	for _, pkg := range p.Packages {
		if !seen[pkg.ModID] {
			seen[pkg.ModID] = true
			ids = append(ids, pkg.ModID)
		}
	}
	return ids
}

// Validate checks that the pending run can be resumed
func (p *PendingRun) Validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: no pending run", domain.ErrPendingState)
	case p.Version != PendingVersion:
		return fmt.Errorf("%w: unsupported version %d", domain.ErrPendingState, p.Version)
	case p.RunID == "":
		return fmt.Errorf("%w: missing run id", domain.ErrPendingState)
	case p.Request.Root == "":
		return fmt.Errorf("%w: missing mods root", domain.ErrPendingState)
	case len(p.Documents) == 0:
		return fmt.Errorf("%w: no documents", domain.ErrPendingState)
	}
	return nil
}

// SavePending writes p to path as YAML. The file is replaced atomically.
func SavePending(path string, p *PendingRun) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode pending run: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".pending-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write pending run: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close pending run: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("save pending run: %w", err)
	}
	return nil
}

// LoadPending reads and validates a pending run written by SavePending
func LoadPending(path string) (*PendingRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPendingState, err)
	}

	var p PendingRun
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPendingState, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
