package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Ning0612/ipmtool/internal/assemble"
	"github.com/Ning0612/ipmtool/internal/core/checksum"
	"github.com/Ning0612/ipmtool/internal/core/inventory"
	"github.com/Ning0612/ipmtool/internal/domain"
	"github.com/Ning0612/ipmtool/internal/extract"
	"github.com/Ning0612/ipmtool/internal/identity"
	"github.com/Ning0612/ipmtool/internal/logger"
	"github.com/Ning0612/ipmtool/internal/scan"
)

// Config represents the complete configuration for ipmtool
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Mod     ModConfig     `mapstructure:"mod"`
	Merge   MergeConfig   `mapstructure:"merge"`
	Logging LoggingConfig `mapstructure:"logging"`
	History HistoryConfig `mapstructure:"history"`
}

// PathsConfig names the files written under the mods root
type PathsConfig struct {
	OutputFolder   string `mapstructure:"output_folder"`
	DataDir        string `mapstructure:"data_dir"`
	OrderFile      string `mapstructure:"order_file"`
	LogFile        string `mapstructure:"log_file"`
	DescriptorFile string `mapstructure:"descriptor_file"`
}

// ArchiveConfig selects entries to read and names the generated archive
type ArchiveConfig struct {
	Extension         string        `mapstructure:"extension"`
	SearchPrefix      string        `mapstructure:"search_prefix"`
	NameMarker        string        `mapstructure:"name_marker"`
	DocumentExtension string        `mapstructure:"document_extension"`
	OutputName        string        `mapstructure:"output_name"`
	OutputDocument    string        `mapstructure:"output_document"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxEntries        int           `mapstructure:"max_entries"`
	MaxEntryBytes     int64         `mapstructure:"max_entry_bytes"`
}

// ModConfig is written into the generated mod descriptor
type ModConfig struct {
	ID             string `mapstructure:"id"`
	Name           string `mapstructure:"name"`
	Description    string `mapstructure:"description"`
	Author         string `mapstructure:"author"`
	Version        string `mapstructure:"version"`
	ModifiesLevel  bool   `mapstructure:"modifies_level"`
	WorkshopPrefix string `mapstructure:"workshop_prefix"`
}

// MergeConfig holds the defaults of a merge run; flags override them
type MergeConfig struct {
	Strategy             string `mapstructure:"strategy"`
	CombineOnlyConflicts bool   `mapstructure:"combine_only_conflicts"`
	WorkshopRoot         string `mapstructure:"workshop_root"`
	// LockStaleTimeout: a lock taken on another host is ignored after this long
	LockStaleTimeout time.Duration `mapstructure:"lock_stale_timeout"`
}

// LoggingConfig configures the operator log
type LoggingConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"`
	Console bool          `mapstructure:"console"`
	File    LogFileConfig `mapstructure:"file"`
	// Redact lists extra regular expressions masked in every log line
	Redact []string `mapstructure:"redact"`
}

// LogFileConfig configures the rotated operator log file
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// HistoryConfig configures the run history database
type HistoryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Dir      string `mapstructure:"dir"`
	Checksum string `mapstructure:"checksum"` // md5 or sha256
}

// Default returns the configuration matching the game's mod layout
func Default() *Config {
	ext := extract.DefaultOptions()
	asm := assemble.DefaultOptions()
	id := identity.DefaultOptions()

	return &Config{
		Paths: PathsConfig{
			OutputFolder:   asm.OutputFolder,
			DataDir:        asm.DataDir,
			OrderFile:      asm.OrderFile,
			LogFile:        asm.LogFile,
			DescriptorFile: asm.DescriptorFile,
		},
		Archive: ArchiveConfig{
			Extension:         id.ArchiveExtension,
			SearchPrefix:      ext.EntryPrefix,
			NameMarker:        ext.EntryMarker,
			DocumentExtension: ext.EntrySuffix,
			OutputName:        asm.ArchiveName,
			OutputDocument:    asm.DocumentPath,
			Timeout:           ext.Timeout,
			MaxEntries:        ext.MaxEntries,
			MaxEntryBytes:     ext.MaxEntrySize,
		},
		Mod: ModConfig{
			ID:             asm.Manifest.ModID,
			Name:           asm.Manifest.Name,
			Description:    asm.Manifest.Description,
			Author:         asm.Manifest.Author,
			Version:        asm.Manifest.Version,
			ModifiesLevel:  asm.Manifest.ModifiesLevel,
			WorkshopPrefix: id.WorkshopPrefix,
		},
		Merge: MergeConfig{
			Strategy:         string(domain.StrategyManual),
			LockStaleTimeout: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:   "warn",
			Format:  "text",
			Console: true,
			File: LogFileConfig{
				MaxSizeMB:  10,
				MaxAgeDays: 30,
				MaxBackups: 3,
				Compress:   true,
			},
		},
		History: HistoryConfig{
			Enabled:  true,
			Checksum: string(checksum.SHA256),
		},
	}
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	required := map[string]string{
		"paths.output_folder":        c.Paths.OutputFolder,
		"paths.data_dir":             c.Paths.DataDir,
		"paths.order_file":           c.Paths.OrderFile,
		"paths.log_file":             c.Paths.LogFile,
		"paths.descriptor_file":      c.Paths.DescriptorFile,
		"archive.extension":          c.Archive.Extension,
		"archive.search_prefix":      c.Archive.SearchPrefix,
		"archive.document_extension": c.Archive.DocumentExtension,
		"archive.output_name":        c.Archive.OutputName,
		"archive.output_document":    c.Archive.OutputDocument,
		"mod.id":                     c.Mod.ID,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s cannot be empty", domain.ErrConfigInvalid, key)
		}
	}

	// 輸出資料夾必須是 root 底下的單層目錄，掃描時才能正確略過
	if strings.ContainsAny(c.Paths.OutputFolder, `/\`) || c.Paths.OutputFolder == "." || c.Paths.OutputFolder == ".." {
		return fmt.Errorf("%w: paths.output_folder must be a single folder name: %q", domain.ErrConfigInvalid, c.Paths.OutputFolder)
	}
	if !strings.HasPrefix(c.Archive.Extension, ".") {
		return fmt.Errorf("%w: archive.extension must start with '.': %q", domain.ErrConfigInvalid, c.Archive.Extension)
	}
	if identity.Normalize(c.Mod.ID) != c.Mod.ID {
		return fmt.Errorf("%w: mod.id must be lowercase without spaces: %q", domain.ErrConfigInvalid, c.Mod.ID)
	}
	if c.Archive.Timeout <= 0 {
		return fmt.Errorf("%w: archive.timeout must be positive, got %s", domain.ErrConfigInvalid, c.Archive.Timeout)
	}
	if c.Archive.MaxEntries <= 0 {
		return fmt.Errorf("%w: archive.max_entries must be positive, got %d", domain.ErrConfigInvalid, c.Archive.MaxEntries)
	}
	if c.Archive.MaxEntryBytes <= 0 {
		return fmt.Errorf("%w: archive.max_entry_bytes must be positive, got %d", domain.ErrConfigInvalid, c.Archive.MaxEntryBytes)
	}

	if _, err := domain.ParseStrategy(c.Merge.Strategy); err != nil {
		return fmt.Errorf("%w: merge.strategy: %v", domain.ErrConfigInvalid, err)
	}

	if c.Merge.LockStaleTimeout <= 0 {
		return fmt.Errorf("%w: merge.lock_stale_timeout must be positive, got %s", domain.ErrConfigInvalid, c.Merge.LockStaleTimeout)
	}
	if !checksum.IsSupported(checksum.Algorithm(c.History.Checksum)) {
		return fmt.Errorf("%w: history.checksum: unsupported algorithm %q", domain.ErrConfigInvalid, c.History.Checksum)
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", domain.ErrConfigInvalid, err)
	}
	if _, err := logger.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("%w: logging.format: %v", domain.ErrConfigInvalid, err)
	}
	if c.Logging.File.Enabled && c.Logging.File.Path == "" {
		return fmt.Errorf("%w: logging.file.path is required when file logging is enabled", domain.ErrConfigInvalid)
	}
	for _, pattern := range c.Logging.Redact {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("%w: logging.redact %q: %v", domain.ErrConfigInvalid, pattern, err)
		}
	}

	return nil
}

// Strategy returns the configured default strategy
func (c *Config) Strategy() domain.Strategy {
	s, err := domain.ParseStrategy(c.Merge.Strategy)
	if err != nil {
		return domain.StrategyManual
	}
	return s
}

// ScanOptions returns the scanner settings
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Extension: c.Archive.Extension,
		SkipDir:   c.Paths.OutputFolder,
	}
}

// IdentityOptions returns the identity resolver settings
func (c *Config) IdentityOptions() identity.Options {
	return identity.Options{
		ManifestFile:     c.Paths.DescriptorFile,
		WorkshopPrefix:   c.Mod.WorkshopPrefix,
		ArchiveExtension: c.Archive.Extension,
		SiblingExtension: c.Archive.DocumentExtension,
	}
}

// ExtractOptions returns the extractor settings
func (c *Config) ExtractOptions() extract.Options {
	return extract.Options{
		EntryPrefix:  c.Archive.SearchPrefix,
		EntryMarker:  c.Archive.NameMarker,
		EntrySuffix:  c.Archive.DocumentExtension,
		Timeout:      c.Archive.Timeout,
		MaxEntries:   c.Archive.MaxEntries,
		MaxEntrySize: c.Archive.MaxEntryBytes,
	}
}

// AssembleOptions returns the output layout
func (c *Config) AssembleOptions() assemble.Options {
	return assemble.Options{
		OutputFolder:   c.Paths.OutputFolder,
		DataDir:        c.Paths.DataDir,
		ArchiveName:    c.Archive.OutputName,
		DocumentPath:   c.Archive.OutputDocument,
		DescriptorFile: c.Paths.DescriptorFile,
		OrderFile:      c.Paths.OrderFile,
		LogFile:        c.Paths.LogFile,
		Manifest: assemble.Manifest{
			Name:          c.Mod.Name,
			ModID:         c.Mod.ID,
			Description:   c.Mod.Description,
			Author:        c.Mod.Author,
			Version:       c.Mod.Version,
			ModifiesLevel: c.Mod.ModifiesLevel,
		},
		Layout: inventory.DefaultLayout(),
	}
}

// LoggerConfig returns the operator log settings, writing to stderr
func (c *Config) LoggerConfig() logger.Config {
	// Validate already rejected unknown names
	level, _ := logger.ParseLevel(c.Logging.Level)
	format, _ := logger.ParseFormat(c.Logging.Format)

	cfg := logger.Config{
		Level:   level,
		Format:  format,
		Console: c.Logging.Console,
		Redact:  c.Logging.Redact,
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
	}
	if c.Logging.File.Enabled {
		cfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       ExpandPath(c.Logging.File.Path),
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			MaxBackups: c.Logging.File.MaxBackups,
			Compress:   c.Logging.File.Compress,
		}
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
	}
	return cfg
}

// ChecksumAlgorithm returns the hash recorded for generated archives
func (c *Config) ChecksumAlgorithm() checksum.Algorithm {
	return checksum.Algorithm(c.History.Checksum)
}

// HistoryDir returns the directory of the run history database
func (c *Config) HistoryDir() string {
	if c.History.Dir != "" {
		return ExpandPath(c.History.Dir)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ipmtool")
	}
	return ExpandPath("~/.ipmtool")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
