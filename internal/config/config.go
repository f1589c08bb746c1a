// Package config loads ChainFlow configuration from defaults, an optional
// YAML file and CHAINFLOW_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/chainflow-labs/chainflow/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHAINFLOW_"

// Load builds the configuration. Later sources win:
//
//	tier defaults (community or pro) < YAML file at path < environment
//
// path may be empty. A missing file is not an error.
func Load(path string) (*domain.Config, error) {
	overrides := koanf.New(".")

	if path != "" {
		if err := overrides.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := overrides.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	defaults := domain.DefaultConfig()
	if domain.Tier(overrides.String("tier")) == domain.TierPro {
		defaults = domain.ProConfig()
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if err := k.Merge(overrides); err != nil {
		return nil, fmt.Errorf("merging overrides: %w", err)
	}

	var cfg domain.Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps CHAINFLOW_SERVER_RATE_LIMIT to server.rate_limit. Only the
// first underscore separates the section, so keys keep their underscores.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints on a loaded configuration.
func Validate(cfg *domain.Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
