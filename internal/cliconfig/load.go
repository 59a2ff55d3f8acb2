package cliconfig

import (
	"fmt"

	pflag "github.com/spf13/pflag"
)

// ChangedFlags returns the names of flags explicitly set on the command line.
func ChangedFlags(flags *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Load layers the config file and SESAME_* environment over cfg, leaving
// explicitly set flags untouched. An empty path means DefaultConfigPath;
// a missing default file is not an error, a missing explicit one is.
// It returns the config file path that was used, if any.
func Load(cfg *Config, path string, flags *pflag.FlagSet) (string, error) {
	changed := ChangedFlags(flags)

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	used := ""
	if path != "" && (explicit || FileExists(path)) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
		used = path
	}

	// Environment overrides file config but is overridden by flags.
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}

	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return used, nil
}
