// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads and validates the palace workspace configuration
// (config.toml and invariants.toml), mirroring the per-rule override shape
// the teacher's contract package validates at the CLI boundary.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	palerr "github.com/kraklabs/palace/internal/errors"
)

// IngestConfig controls file discovery during ingestion.
type IngestConfig struct {
	IgnorePatterns []string `toml:"ignore_patterns"`
	MaxFileSizeMB  int      `toml:"max_file_size_mb"`
}

// EmbeddingsConfig names the optional semantic encoder.
type EmbeddingsConfig struct {
	Model string `toml:"model"`
	Dim   int    `toml:"dim"`
}

// ActivationConfig parameterizes spreading activation (§4.10).
type ActivationConfig struct {
	MaxDepth        int     `toml:"max_depth"`
	EnergyThreshold float64 `toml:"energy_threshold"`
	DecayFactor     float64 `toml:"decay_factor"`
}

// SleepConfig parameterizes the sleep/consolidation cycle (§4.12).
type SleepConfig struct {
	LambdaDecay         float64 `toml:"lambda_decay"`
	PruneThreshold      float64 `toml:"prune_threshold"`
	ConsolidationHours  int     `toml:"consolidation_hours"`
	ConsolidateDefault  bool    `toml:"consolidate"`
	DetectCommunitiesOn bool    `toml:"detect_communities"`
	CronSchedule        string  `toml:"cron_schedule"`
}

// RemoteCacheConfig controls the optional Redis-backed context-bundle cache
// sitting in front of the per-process spreading-activation computation.
// Disabled by default: a workspace works standalone with no Redis reachable.
type RemoteCacheConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Config is the root of config.toml.
type Config struct {
	Ingest      IngestConfig      `toml:"ingest"`
	Embeddings  EmbeddingsConfig  `toml:"embeddings"`
	Activation  ActivationConfig  `toml:"activation"`
	Sleep       SleepConfig       `toml:"sleep"`
	RemoteCache RemoteCacheConfig `toml:"remote_cache"`
}

// Default returns the documented default configuration (spec §6).
func Default() *Config {
	return &Config{
		Ingest: IngestConfig{
			IgnorePatterns: []string{"node_modules", ".git", "__pycache__", "dist", "build", ".venv"},
			MaxFileSizeMB:  10,
		},
		Embeddings: EmbeddingsConfig{
			Model: "all-MiniLM-L6-v2",
			Dim:   384,
		},
		Activation: ActivationConfig{
			MaxDepth:        3,
			EnergyThreshold: 0.3,
			DecayFactor:     0.8,
		},
		Sleep: SleepConfig{
			LambdaDecay:         0.05,
			PruneThreshold:      0.1,
			ConsolidationHours:  24,
			ConsolidateDefault:  true,
			DetectCommunitiesOn: true,
			CronSchedule:        "0 3 * * *",
		},
		RemoteCache: RemoteCacheConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			TTLSeconds: 300,
		},
	}
}

// Load reads config.toml from dir, falling back to defaults if absent.
// A malformed file is a fatal ConfigError (spec §7).
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, "config.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, palerr.NewConfigError(
			"cannot read config.toml",
			err.Error(),
			"check file permissions on "+path,
			err,
		)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, palerr.NewConfigError(
			"config.toml is malformed",
			err.Error(),
			"fix the TOML syntax or run palace init --force to regenerate defaults",
			err,
		)
	}
	return cfg, nil
}

// Save writes the configuration to config.toml inside dir, pretty-printed.
func Save(dir string, cfg *Config) error {
	path := filepath.Join(dir, "config.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config.toml: %w", err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// RuleOverride is one [rules.<id>] entry of invariants.toml.
type RuleOverride struct {
	Enabled   *bool    `toml:"enabled"`
	Severity  string   `toml:"severity"`
	Threshold *int     `toml:"threshold"`
	Patterns  []string `toml:"patterns"`
}

// InvariantsConfig is the root of invariants.toml: rule id -> override.
type InvariantsConfig struct {
	Rules map[string]RuleOverride `toml:"rules"`
}

// LoadInvariants reads invariants.toml, returning an empty config (no
// overrides) if the file is absent. Unknown rule keys are accepted here and
// filtered with a warning by the invariant registry, per spec §4.9.
func LoadInvariants(dir string) (*InvariantsConfig, error) {
	cfg := &InvariantsConfig{Rules: map[string]RuleOverride{}}
	path := filepath.Join(dir, "invariants.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, palerr.NewConfigError(
			"cannot read invariants.toml",
			err.Error(),
			"check file permissions on "+path,
			err,
		)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, palerr.NewConfigError(
			"invariants.toml is malformed",
			err.Error(),
			"fix the TOML syntax",
			err,
		)
	}
	return cfg, nil
}
