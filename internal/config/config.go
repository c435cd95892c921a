// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package config loads and validates the CivGrid configuration.
// Defaults live in the Config struct; a YAML file and command-line
// flags are layered on top via koanf. Reload swaps the whole structure
// atomically so readers never observe a half-applied config.
package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// StorageConfig selects and parameterizes the persistence provider.
type StorageConfig struct {
	// Type is one of "json", "sqlite", "postgres".
	Type string `koanf:"type"`
	// DatabaseURL is the postgres connection string. The DATABASE_URL
	// environment variable takes precedence when set.
	DatabaseURL string `koanf:"database_url"`
	// BackupRetain is how many timestamped backups to keep per collection.
	BackupRetain int `koanf:"backup_retain"`
}

// CivilizationConfig bounds civilization shape and naming.
type CivilizationConfig struct {
	MinNameLength int `koanf:"min_name_length"`
	MaxNameLength int `koanf:"max_name_length"`
	MaxMembers    int `koanf:"max_members"`
}

// EconomyConfig prices the core operations.
type EconomyConfig struct {
	CreateCost float64 `koanf:"create_cost"`
	ClaimCost  float64 `koanf:"claim_cost"`

	TaxEnabled  bool          `koanf:"tax_enabled"`
	TaxBase     float64       `koanf:"tax_base"`
	TaxPerClaim float64       `koanf:"tax_per_claim"`
	TaxInterval time.Duration `koanf:"tax_interval"`
}

// ClaimsConfig sets territory policy.
type ClaimsConfig struct {
	// RequireAdjacency forces every claim after the first to share an
	// edge with an existing claim of the same civilization.
	RequireAdjacency bool `koanf:"require_adjacency"`
	// WildernessAllow is the permission fallback for unclaimed chunks.
	WildernessAllow bool `koanf:"wilderness_allow"`
	// ClaimableWorlds are glob patterns naming worlds where claiming is
	// enabled. An empty list means every world is claimable.
	ClaimableWorlds []string `koanf:"claimable_worlds"`
}

// WarConfig tunes the conflict engine.
type WarConfig struct {
	Enabled bool          `koanf:"enabled"`
	Warmup  time.Duration `koanf:"warmup"`
}

// AllianceConfig tunes the alliance relation.
type AllianceConfig struct {
	Enabled   bool `koanf:"enabled"`
	MaxPerCiv int  `koanf:"max_per_civ"`
}

// InviteConfig tunes invitations.
type InviteConfig struct {
	Expiry time.Duration `koanf:"expiry"`
}

// HomeConfig tunes the home-teleport warmup and cooldown.
type HomeConfig struct {
	Warmup   time.Duration `koanf:"warmup"`
	Cooldown time.Duration `koanf:"cooldown"`
}

// UpgradeLevel is one row of the level table: the claim ceiling a level
// grants and what upgrading into it costs.
type UpgradeLevel struct {
	ClaimsMax int     `koanf:"claims_max"`
	Cost      float64 `koanf:"cost"`
}

// Config is the whole CivGrid configuration.
type Config struct {
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`
	DataDir     string `koanf:"data_dir"`

	AutosaveInterval time.Duration `koanf:"autosave_interval"`

	Storage      StorageConfig        `koanf:"storage"`
	Civilization CivilizationConfig   `koanf:"civilization"`
	Economy      EconomyConfig        `koanf:"economy"`
	Claims       ClaimsConfig         `koanf:"claims"`
	War          WarConfig            `koanf:"war"`
	Alliance     AllianceConfig       `koanf:"alliance"`
	Invite       InviteConfig         `koanf:"invite"`
	Home         HomeConfig           `koanf:"home"`
	Upgrades     map[int]UpgradeLevel `koanf:"upgrades"`

	// compiled from Claims.ClaimableWorlds at validation time
	claimableGlobs []glob.Glob
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		LogFormat:        "json",
		MetricsAddr:      "127.0.0.1:9100",
		AutosaveInterval: 10 * time.Minute,
		Storage: StorageConfig{
			Type:         "json",
			BackupRetain: 5,
		},
		Civilization: CivilizationConfig{
			MinNameLength: 3,
			MaxNameLength: 20,
			MaxMembers:    50,
		},
		Economy: EconomyConfig{
			CreateCost:  1000,
			ClaimCost:   100,
			TaxBase:     10,
			TaxPerClaim: 1,
			TaxInterval: 24 * time.Hour,
		},
		Claims: ClaimsConfig{
			RequireAdjacency: true,
			WildernessAllow:  true,
		},
		War:      WarConfig{Enabled: true},
		Alliance: AllianceConfig{Enabled: true, MaxPerCiv: 3},
		Invite:   InviteConfig{Expiry: 5 * time.Minute},
		Home:     HomeConfig{Warmup: 5 * time.Second, Cooldown: 5 * time.Minute},
		Upgrades: map[int]UpgradeLevel{
			1: {ClaimsMax: 5, Cost: 0},
			2: {ClaimsMax: 10, Cost: 500},
			3: {ClaimsMax: 20, Cost: 1000},
			4: {ClaimsMax: 35, Cost: 2500},
			5: {ClaimsMax: 55, Cost: 5000},
			6: {ClaimsMax: 80, Cost: 10000},
			7: {ClaimsMax: 115, Cost: 17500},
			8: {ClaimsMax: 150, Cost: 25000},
		},
	}
}

// Load reads the config file (if path is non-empty) and flag overrides
// over the defaults, then validates the result.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("load flag overrides: %w", err)
		}
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Storage.DatabaseURL = url
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and compiles the world glob patterns.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	switch c.Storage.Type {
	case "json", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.type must be json, sqlite or postgres, got %q", c.Storage.Type)
	}
	if c.Storage.BackupRetain < 1 {
		return fmt.Errorf("storage.backup_retain must be >= 1, got %d", c.Storage.BackupRetain)
	}
	if c.Civilization.MinNameLength < 1 || c.Civilization.MaxNameLength < c.Civilization.MinNameLength {
		return fmt.Errorf("civilization name length bounds invalid: min=%d max=%d",
			c.Civilization.MinNameLength, c.Civilization.MaxNameLength)
	}
	if c.Civilization.MaxMembers < 1 {
		return fmt.Errorf("civilization.max_members must be >= 1, got %d", c.Civilization.MaxMembers)
	}
	if c.Economy.CreateCost < 0 || c.Economy.ClaimCost < 0 {
		return fmt.Errorf("economy costs must be non-negative")
	}
	if len(c.Upgrades) == 0 {
		return fmt.Errorf("upgrades table must have at least one level")
	}
	for lvl, u := range c.Upgrades {
		if lvl < 1 || u.ClaimsMax < 0 || u.Cost < 0 {
			return fmt.Errorf("invalid upgrade level %d", lvl)
		}
	}

	c.claimableGlobs = c.claimableGlobs[:0]
	for _, pat := range c.Claims.ClaimableWorlds {
		g, err := glob.Compile(pat)
		if err != nil {
			return fmt.Errorf("invalid world pattern %q: %w", pat, err)
		}
		c.claimableGlobs = append(c.claimableGlobs, g)
	}
	return nil
}

// WorldClaimable reports whether claiming is enabled in the named world.
// With no patterns configured every world is claimable.
func (c *Config) WorldClaimable(world string) bool {
	if len(c.claimableGlobs) == 0 {
		return true
	}
	for _, g := range c.claimableGlobs {
		if g.Match(world) {
			return true
		}
	}
	return false
}

// ClaimLimit returns the claim ceiling for a level. Levels between
// configured rows inherit the highest row at or below them; levels below
// the table floor get the lowest row.
func (c *Config) ClaimLimit(level int) int {
	levels := make([]int, 0, len(c.Upgrades))
	for lvl := range c.Upgrades {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)

	best := c.Upgrades[levels[0]].ClaimsMax
	for _, lvl := range levels {
		if lvl > level {
			break
		}
		best = c.Upgrades[lvl].ClaimsMax
	}
	return best
}

// UpgradeCost returns the cost of upgrading into the given level and
// whether that level exists in the table.
func (c *Config) UpgradeCost(level int) (float64, bool) {
	u, ok := c.Upgrades[level]
	return u.Cost, ok
}
