// Package config loads the TOML file consumed by the xproc CLI: the
// control root, optional launch-history store, supervisor log settings,
// and declarative process definitions.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xprocd/xproc/internal/logger"
	"github.com/xprocd/xproc/internal/ready"
)

// FileConfig is the top-level TOML structure.
type FileConfig struct {
	Root      string        `toml:"root" mapstructure:"root"`
	StoreDSN  string        `toml:"store" mapstructure:"store"`
	Env       []string      `toml:"env" mapstructure:"env"`
	Log       logger.Config `toml:"log" mapstructure:"log"`
	Processes []ProcDef     `toml:"processes" mapstructure:"processes"`
}

// ProcDef declares one named process and its pattern-based readiness.
type ProcDef struct {
	Name         string        `toml:"name" mapstructure:"name"`
	Args         []string      `toml:"args" mapstructure:"args"`
	Env          []string      `toml:"env" mapstructure:"env"`
	ReadyPattern string        `toml:"ready_pattern" mapstructure:"ready_pattern"`
	ReadyTimeout time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	ReadyLines   int           `toml:"ready_lines" mapstructure:"ready_lines"`
}

// Starter builds the readiness strategy for this definition.
func (d ProcDef) Starter() *ready.PatternStarter {
	return &ready.PatternStarter{
		Args:     d.Args,
		Env:      d.Env,
		Pattern:  d.ReadyPattern,
		Timeout:  d.ReadyTimeout,
		MaxLines: d.ReadyLines,
	}
}

// Load reads and validates a TOML config file.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, err
	}
	if err := fc.validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Find returns the definition for name.
func (c *FileConfig) Find(name string) (ProcDef, bool) {
	for _, d := range c.Processes {
		if d.Name == name {
			return d, true
		}
	}
	return ProcDef{}, false
}

func (c *FileConfig) validate() error {
	seen := make(map[string]struct{}, len(c.Processes))
	for i, d := range c.Processes {
		if d.Name == "" {
			return fmt.Errorf("processes[%d]: missing name", i)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("duplicate process name %q", d.Name)
		}
		seen[d.Name] = struct{}{}
		if len(d.Args) == 0 {
			return fmt.Errorf("process %q: missing args", d.Name)
		}
		if d.ReadyPattern == "" {
			return fmt.Errorf("process %q: missing ready_pattern", d.Name)
		}
		if err := d.Starter().Validate(); err != nil {
			return fmt.Errorf("process %q: %w", d.Name, err)
		}
	}
	return nil
}
