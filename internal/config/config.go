package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/kriansa/pam-mount-users/internal/conffile"
	"github.com/kriansa/pam-mount-users/internal/rules"
)

const (
	// DefaultConfigPath is the default location for the tool's own config file
	DefaultConfigPath = "/etc/pam-mount-users.conf"
	// DefaultOutput is the default output format for list
	DefaultOutput = "text"
)

// OutputFormats are the accepted values for Output
var OutputFormats = []string{"text", "json", "yaml"}

// Config holds the tool configuration
type Config struct {
	// File is the pam_mount configuration file to edit
	File string `toml:"file"`
	// AdapterFSTypes are filesystem types stored as a "type#path" prefix
	AdapterFSTypes []string `toml:"adapter_fstypes"`
	// AdapterMarker is the fstype attribute written for adapter filesystems
	AdapterMarker string `toml:"adapter_marker"`
	// Backup keeps a copy of the previous file before saving
	Backup *bool `toml:"backup"`
	// Output is the list output format: "text", "json" or "yaml"
	Output string `toml:"output"`
}

// Load loads configuration from a TOML file
// Returns an empty config if the file doesn't exist
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Merge merges CLI flags into the config, with CLI flags taking precedence
// over config file values. Empty CLI values are ignored; noBackup only
// ever disables backups.
func (c *Config) Merge(file, output string, noBackup bool) {
	if file != "" {
		c.File = file
	}
	if output != "" {
		c.Output = output
	}
	if noBackup {
		backup := false
		c.Backup = &backup
	}
}

// ApplyDefaults applies default values for any unset fields
func (c *Config) ApplyDefaults() {
	if c.File == "" {
		c.File = conffile.DefaultPath
	}
	if len(c.AdapterFSTypes) == 0 {
		c.AdapterFSTypes = slices.Clone(rules.DefaultAdapterFSTypes)
	}
	if c.AdapterMarker == "" {
		c.AdapterMarker = rules.DefaultAdapterMarker
	}
	if c.Backup == nil {
		backup := true
		c.Backup = &backup
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("configuration file path is required (use --file or set 'file' in config file)")
	}

	if !slices.Contains(OutputFormats, c.Output) {
		return fmt.Errorf("output must be one of %v, got %q", OutputFormats, c.Output)
	}

	if slices.Contains(c.AdapterFSTypes, rules.DefaultFSType) {
		return fmt.Errorf("adapter_fstypes cannot contain %q", rules.DefaultFSType)
	}

	return nil
}

// Translator builds the rule translator described by the config
func (c *Config) Translator() *rules.Translator {
	return rules.NewTranslator(
		rules.WithAdapterFSTypes(c.AdapterFSTypes...),
		rules.WithAdapterMarker(c.AdapterMarker),
	)
}

// Store builds the file store described by the config
func (c *Config) Store() *conffile.Store {
	return conffile.NewStore(conffile.WithBackup(c.Backup != nil && *c.Backup))
}
