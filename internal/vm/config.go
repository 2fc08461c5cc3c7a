package vm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds the VM tunables spec.md leaves as "part of the VM's
// configuration": linear memory capacity and the depth limits of the two
// internal stacks. Defaults match the invariants spec.md §3 requires
// (call-return stack depth of at least 1024).
type Config struct {
	MemSize        int `yaml:"mem_size"`
	CallStackLimit int `yaml:"call_stack_limit"`
	TryStackLimit  int `yaml:"try_stack_limit"`
}

// DefaultConfig returns the configuration used when no override file is
// given on the command line.
func DefaultConfig() Config {
	return Config{
		MemSize:        256 << 20, // 256 MiB, within the 16 MiB-2 GiB range spec.md §3 allows.
		CallStackLimit: 8192,
		TryStackLimit:  1024,
	}
}

// LoadConfig reads YAML overrides from path and merges them onto
// DefaultConfig. Zero fields in the file leave the default in place.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("vm: reading config %s: %w", path, err)
	}
	var overrides Config
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return cfg, fmt.Errorf("vm: parsing config %s: %w", path, err)
	}
	if overrides.MemSize != 0 {
		cfg.MemSize = overrides.MemSize
	}
	if overrides.CallStackLimit != 0 {
		cfg.CallStackLimit = overrides.CallStackLimit
	}
	if overrides.TryStackLimit != 0 {
		cfg.TryStackLimit = overrides.TryStackLimit
	}
	return cfg, nil
}
