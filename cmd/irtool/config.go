package main

import (
	"strings"

	"github.com/BurntSushi/toml"
	"tlog.app/go/errors"

	"github.com/lowlevel01/ir"
)

// Config is the irtool configuration file.
//
//	[simplifier]
//	passes = ["cmp"]
//	max_iterations = 1000
//	jobs = 4
type Config struct {
	Simplifier SimplifierConfig `toml:"simplifier"`
}

// SimplifierConfig configures the simplifier used by the simplify command.
type SimplifierConfig struct {
	Passes        []string `toml:"passes"`
	MaxIterations int      `toml:"max_iterations"`
	Jobs          int      `toml:"jobs"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Simplifier: SimplifierConfig{
			MaxIterations: ir.DefaultMaxIterations,
		},
	}
}

// LoadConfig reads a configuration file. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrap(err, "read config %v", path)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		a := make([]string, len(keys))
		for i, k := range keys {
			a[i] = k.String()
		}
		return nil, errors.New("%v: unknown keys: %v", path, strings.Join(a, ", "))
	}
	if meta.IsDefined("simplifier", "max_iterations") && c.Simplifier.MaxIterations <= 0 {
		return nil, errors.New("%v: simplifier.max_iterations must be positive", path)
	}
	if c.Simplifier.Jobs < 0 {
		return nil, errors.New("%v: simplifier.jobs must not be negative", path)
	}
	return c, nil
}

// NewSimplifier returns a simplifier with the built-in passes registered and
// the configured ones enabled.
func (c *SimplifierConfig) NewSimplifier() (*ir.Simplifier, error) {
	s := ir.NewStandardSimplifier()
	s.MaxIterations = c.MaxIterations
	for _, name := range c.Passes {
		if err := s.EnablePass(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}
