package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Options controls where Load looks.
type Options struct {
	// File is an explicit config path. Empty searches DefaultConfigFile in the
	// working directory.
	File string
	// Flags are applied last; only flags the user set are read.
	Flags *pflag.FlagSet
	// EnvPrefix defaults to DefaultEnvPrefix.
	EnvPrefix string

	NoFile bool
	NoEnv  bool
}

// flagKeys maps flag names to config keys where they differ from the
// kebab-to-snake conversion.
var flagKeys = map[string]string{
	"metrics-backend": "metrics.backend",
	"metrics-tags":    "metrics.tags",
	"warehouse-kind":  "warehouse.kind",
	"warehouse-dsn":   "warehouse.dsn",
	"rules":           "rules_file",
}

// Load builds a Config from defaults, file, environment and flags.
//
// Environment variables map PBIETL_OUTPUT_DIR to output_dir and use a double
// underscore for nesting: PBIETL_SOURCES__KPI_API__URL sets sources.kpi_api.url.
//
// Errors:
//   - An explicit File that does not exist.
//   - YAML syntax errors or values that do not decode into Config.
func Load(opt Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	var used string
	if !opt.NoFile {
		path, err := findConfigFile(opt.File)
		if err != nil {
			return nil, err
		}
		if path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", path, err)
			}
			used = path
		}
	}

	if !opt.NoEnv {
		prefix := opt.EnvPrefix
		if prefix == "" {
			prefix = DefaultEnvPrefix
		}
		if err := k.Load(env.Provider(prefix, ".", func(s string) string {
			s = strings.ToLower(strings.TrimPrefix(s, prefix))
			return strings.ReplaceAll(s, "__", ".")
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}

	if opt.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opt.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(opt.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	cfg.Warehouse.DSN = os.ExpandEnv(cfg.Warehouse.DSN)
	for name, s := range cfg.Sources {
		s.Name = name
		cfg.Sources[name] = s
	}
	return &cfg, nil
}

func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, name := range []string{DefaultConfigFile, "pbietl.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", name, err)
		}
	}
	return "", nil
}

// InputPath resolves p against InputDir.
func (c *Config) InputPath(p string) string { return resolve(c.InputDir, p) }

// OutputPath resolves p against OutputDir.
func (c *Config) OutputPath(p string) string { return resolve(c.OutputDir, p) }

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
