// Package project locates and parses the optional cgen.toml manifest
// that supplies per-project compilation defaults. Command-line flags
// always win over manifest values.
package project

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// BuildConfig is the [build] section of cgen.toml.
type BuildConfig struct {
	// Target is the default target name; empty means the native target.
	Target string `toml:"target"`
	// EmitIR turns on IR dumps before and after optimization.
	EmitIR bool `toml:"emit-ir"`
	// Bits dumps the patched code-object bytes when materializing.
	Bits bool `toml:"bits"`
}

// Config is a parsed cgen.toml.
type Config struct {
	Build BuildConfig `toml:"build"`
}

// LoadConfig parses a cgen.toml file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	return &cfg, nil
}

// DiscoverConfig walks up from startDir and parses the nearest
// cgen.toml. It returns a zero Config when no manifest exists.
func DiscoverConfig(startDir string) (*Config, error) {
	path, ok, err := FindCgenToml(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Config{}, nil
	}
	return LoadConfig(path)
}
