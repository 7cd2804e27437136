package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Ning0612/ipmtool/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. IPMTOOL_MERGE_STRATEGY
const EnvPrefix = "IPMTOOL"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "ipmtool"))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "ipmtool"))
		paths = append(paths, filepath.Join(homeDir, ".ipmtool"))
	}

	return paths
}

// newViper returns a viper instance seeded with every default key, so that
// environment overrides apply even when no file sets the key.
func newViper() *viper.Viper {
	v := viper.New()
	d := Default()

	defaults := map[string]any{
		"paths.output_folder":          d.Paths.OutputFolder,
		"paths.data_dir":               d.Paths.DataDir,
		"paths.order_file":             d.Paths.OrderFile,
		"paths.log_file":               d.Paths.LogFile,
		"paths.descriptor_file":        d.Paths.DescriptorFile,
		"archive.extension":            d.Archive.Extension,
		"archive.search_prefix":        d.Archive.SearchPrefix,
		"archive.name_marker":          d.Archive.NameMarker,
		"archive.document_extension":   d.Archive.DocumentExtension,
		"archive.output_name":          d.Archive.OutputName,
		"archive.output_document":      d.Archive.OutputDocument,
		"archive.timeout":              d.Archive.Timeout,
		"archive.max_entries":          d.Archive.MaxEntries,
		"archive.max_entry_bytes":      d.Archive.MaxEntryBytes,
		"mod.id":                       d.Mod.ID,
		"mod.name":                     d.Mod.Name,
		"mod.description":              d.Mod.Description,
		"mod.author":                   d.Mod.Author,
		"mod.version":                  d.Mod.Version,
		"mod.modifies_level":           d.Mod.ModifiesLevel,
		"mod.workshop_prefix":          d.Mod.WorkshopPrefix,
		"merge.strategy":               d.Merge.Strategy,
		"merge.combine_only_conflicts": d.Merge.CombineOnlyConflicts,
		"merge.workshop_root":          d.Merge.WorkshopRoot,
		"merge.lock_stale_timeout":     d.Merge.LockStaleTimeout,
		"logging.level":                d.Logging.Level,
		"logging.format":               d.Logging.Format,
		"logging.console":              d.Logging.Console,
		"logging.file.enabled":         d.Logging.File.Enabled,
		"logging.file.path":            d.Logging.File.Path,
		"logging.file.max_size_mb":     d.Logging.File.MaxSizeMB,
		"logging.file.max_age_days":    d.Logging.File.MaxAgeDays,
		"logging.file.max_backups":     d.Logging.File.MaxBackups,
		"logging.file.compress":        d.Logging.File.Compress,
		"history.enabled":              d.History.Enabled,
		"history.dir":                  d.History.Dir,
		"history.checksum":             d.History.Checksum,
		"logging.redact":               d.Logging.Redact,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads and parses a configuration file.
// If path is empty, searches default locations for config.yaml and falls back
// to the defaults when none exists. An explicit path that does not exist
// returns domain.ErrConfigNotFound.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(ExpandPath(path))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		switch {
		case missing && path != "":
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		case missing:
			// 沒有設定檔時使用預設值（仍套用環境變數）
		default:
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file Load would read for path, empty when none
func ConfigFileUsed(path string) string {
	if path != "" {
		return ExpandPath(path)
	}
	for _, dir := range DefaultConfigPaths() {
		for _, ext := range viper.SupportedExts {
			candidate := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
