package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	envPrefix     = "RECAP_"
	envConfigPath = "RECAP_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RECAP_CONFIG is set
//  3. env (prefix RECAP_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(envConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %v", ErrLoadConfig, path, err)
		}
	}

	// RECAP_DB_PATH -> db_path; underscores are kept to match the flat koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}
	// The path to the file itself is not a config key.
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.Season <= 0:
		return fmt.Errorf("%w: season must be positive", ErrInvalidConfig)
	case c.Week < 0:
		return fmt.Errorf("%w: week must not be negative", ErrInvalidConfig)
	case c.ScoreStubPenalty >= 0:
		return fmt.Errorf("%w: score_stub_penalty must be negative", ErrInvalidConfig)
	case c.ScoreRichnessCap < 0:
		return fmt.Errorf("%w: score_richness_cap must not be negative", ErrInvalidConfig)
	case strings.TrimSpace(c.ArtifactType) == "":
		return fmt.Errorf("%w: artifact_type must not be empty", ErrInvalidConfig)
	}
	return nil
}
