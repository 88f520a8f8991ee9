/*
Package config manages TOML config for the suggestion service.

InitConfig handles automatic config file creation and loading with fallback to defaults.
LoadConfig and SaveConfig provide direct fs for runtime changes.
Update allows targeted parameter changes with persistence.
*/
package config

import (
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/utils"
)

// Config holds the entire config structure: one table per component,
// named and shaped after spec.md §6's configuration knobs.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Index      IndexConfig      `toml:"index"`
	Cache      CacheConfig      `toml:"cache"`
	Ingest     IngestConfig     `toml:"ingest"`
	Trending   TrendingConfig   `toml:"trending"`
	History    HistoryConfig    `toml:"history"`
	Persistence PersistenceConfig `toml:"persistence"`
	Ranking    RankingConfig    `toml:"ranking"`
	Moderation ModerationConfig `toml:"moderation"`
	CLI        CliConfig        `toml:"cli"`
}

// ServerConfig has request-shape limits shared by every transport.
type ServerConfig struct {
	MinLimit     int `toml:"min_limit"`
	MaxLimit     int `toml:"max_limit"`
	MaxPhraseLen int `toml:"max_phrase_len"`
}

// IndexConfig controls the prefix trie's per-node cache and fuzzy search.
type IndexConfig struct {
	K             int `toml:"k"`
	FuzzyBudget   int `toml:"fuzzy_budget"`
	FuzzyMaxEdits int `toml:"fuzzy_max_edits"`
}

// CacheConfig controls the suggestion cache's TTL.
type CacheConfig struct {
	SuggestionTTLSeconds int `toml:"suggestion_ttl_s"`
}

// IngestConfig controls the write-behind ingestion buffer.
type IngestConfig struct {
	BufferCapacity  int `toml:"buffer_capacity"`
	FlushIntervalMS int `toml:"flush_interval_ms"`
	FlushThreshold  int `toml:"flush_threshold"`
	MaxRetries      int `toml:"max_retries"`
	DeadLetterCap   int `toml:"dead_letter_cap"`
}

// TrendingConfig controls the decaying trending window.
type TrendingConfig struct {
	WindowMinutes int `toml:"trending_window_min"`
	TauMinutes    int `toml:"trending_tau_min"`
	MaxItems      int `toml:"max_items"`
}

// HistoryConfig controls per-user personal search history.
type HistoryConfig struct {
	Cap         int `toml:"history_cap"`
	TTLDays     int `toml:"history_ttl_days"`
}

// PersistenceConfig holds the Postgres connection string and page size.
type PersistenceConfig struct {
	DSN      string `toml:"dsn"`
	PageSize int    `toml:"page_size"`
}

// RankingConfig holds the Ranker's weights and recency time constant.
type RankingConfig struct {
	WeightPopularity float64 `toml:"weight_popularity"`
	WeightRecency    float64 `toml:"weight_recency"`
	WeightPersonal   float64 `toml:"weight_personal"`
	WeightTrending   float64 `toml:"weight_trending"`
	WeightMatch      float64 `toml:"weight_match"`
	RecencyTauDays   int     `toml:"recency_tau_days"`
}

// ModerationConfig controls whether static shape-rejection is enforced.
type ModerationConfig struct {
	EnableFilter bool `toml:"enable_filter"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultLimit    int  `toml:"default_limit"`
	DefaultMinLen   int  `toml:"default_min_len"`
	DefaultMaxLen   int  `toml:"default_max_len"`
	DefaultNoFilter bool `toml:"default_no_filter"`
}

// DefaultConfig returns a Config with spec.md §6's default knob values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			MinLimit:     1,
			MaxLimit:     20,
			MaxPhraseLen: 80,
		},
		Index: IndexConfig{
			K:             10,
			FuzzyBudget:   50,
			FuzzyMaxEdits: 1,
		},
		Cache: CacheConfig{
			SuggestionTTLSeconds: 60,
		},
		Ingest: IngestConfig{
			BufferCapacity:  10000,
			FlushIntervalMS: 5000,
			FlushThreshold:  100,
			MaxRetries:      3,
			DeadLetterCap:   1000,
		},
		Trending: TrendingConfig{
			WindowMinutes: 60,
			TauMinutes:    10,
			MaxItems:      10000,
		},
		History: HistoryConfig{
			Cap:     50,
			TTLDays: 30,
		},
		Persistence: PersistenceConfig{
			DSN:      "",
			PageSize: 5000,
		},
		Ranking: RankingConfig{
			WeightPopularity: 0.35,
			WeightRecency:    0.15,
			WeightPersonal:   0.20,
			WeightTrending:   0.20,
			WeightMatch:      0.10,
			RecencyTauDays:   7,
		},
		Moderation: ModerationConfig{
			EnableFilter: true,
		},
		CLI: CliConfig{
			DefaultLimit:    10,
			DefaultMinLen:   1,
			DefaultMaxLen:   80,
			DefaultNoFilter: false,
		},
	}
}

// Tau returns the trending decay constant as a time.Duration, for
// internal/trending.Config's exp(-Δt/Tau) formula.
func (t TrendingConfig) Tau() time.Duration {
	return time.Duration(t.TauMinutes) * time.Minute
}

// Window returns the trending eviction window as a time.Duration.
func (t TrendingConfig) Window() time.Duration {
	return time.Duration(t.WindowMinutes) * time.Minute
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)
	dirStatus := utils.CheckDirStatus(configDir)
	if dirStatus.Error != nil {
		return nil, dirStatus.Error
	}
	if !dirStatus.Writable {
		log.Warnf("Config directory %s is not writable", utils.GetAbsolutePath(configDir))
	}

	if !utils.FileExists(configPath) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			return nil, err
		}
		log.Debugf("Created default config file at: ( %s )", utils.GetAbsolutePath(configPath))
		return cfg, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config, attempting partial recovery: %v", err)
		return recoverConfig(configPath), nil
	}
	return cfg, nil
}

// recoverConfig is the fallback path when a config file fails to decode
// wholesale (e.g. one bad table among many valid ones). It parses the file
// as a loose map and logs which top-level sections were still present; the
// returned Config holds the defaults for every section, including the ones
// found in the file.
func recoverConfig(configPath string) *Config {
	cfg := DefaultConfig()

	raw, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("No recoverable sections in %s, using all defaults", configPath)
		return cfg
	}

	sections := []string{"server", "index", "cache", "ingest", "trending",
		"history", "persistence", "ranking", "moderation", "cli"}
	recovered := make([]string, 0, len(sections))
	for _, name := range sections {
		if _, ok := utils.ExtractSection(raw, name); ok {
			recovered = append(recovered, name)
		}
	}
	log.Warnf("Recovered sections from %s: %v (all sections use defaults)", configPath, recovered)
	return cfg
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config
	if err := utils.LoadTOMLFile(configPath, &cfg); err != nil {
		log.Errorf("Failed to decode config file: %v", err)
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig saves into a TOML file
func SaveConfig(cfg *Config, configPath string) error {
	if err := utils.SaveTOMLFile(cfg, configPath); err != nil {
		log.Errorf("Failed to save config file: %v", err)
		return err
	}
	return nil
}

// Update changes the server limits and saves to file.
func (c *Config) Update(configPath string, maxLimit, minLimit *int, enableFilter *bool) error {
	if maxLimit != nil {
		c.Server.MaxLimit = *maxLimit
	}
	if minLimit != nil {
		c.Server.MinLimit = *minLimit
	}
	if enableFilter != nil {
		c.Moderation.EnableFilter = *enableFilter
	}
	return SaveConfig(c, configPath)
}
