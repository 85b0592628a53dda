// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Register RegisterSection `toml:"register"`
	Identify IdentifySection `toml:"identify"`
	Capture  CaptureSection  `toml:"capture"`
	Log      LogSection      `toml:"log"`
}

// RegisterSection maps registration settings.
type RegisterSection struct {
	Samples       *int     `toml:"samples"`
	MinSimilarity *float64 `toml:"min-similarity"`
}

// IdentifySection maps identification settings.
type IdentifySection struct {
	Matcher       *string  `toml:"matcher"`
	TiePolicy     *string  `toml:"tie-policy"`
	MinConfidence *float64 `toml:"min-confidence"`
	MinSimilarity *float64 `toml:"min-similarity"`
}

// CaptureSection maps key capture settings. Timeout is a Go duration string.
type CaptureSection struct {
	Source  *string `toml:"source"`
	Device  *string `toml:"device"`
	Text    *string `toml:"text"`
	Timeout *string `toml:"timeout"`
}

// LogSection maps logger settings.
type LogSection struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
	Output *string `toml:"output"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
