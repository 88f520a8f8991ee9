// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Command suggestctl is an interactive debug CLI for the suggestion engine.

It wires the same components cmd/suggestd does (minus the msgpack listener)
directly to a terminal input loop, so a developer can exercise prefix
lookups, fuzzy matching, and personalization without a running daemon or a
client able to speak the msgpack IPC protocol.
*/
package main

import (
	"context"
	"flag"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/evgenyvinnik/wordsuggest/internal/cli"
	"github.com/evgenyvinnik/wordsuggest/internal/history"
	"github.com/evgenyvinnik/wordsuggest/internal/ingest"
	"github.com/evgenyvinnik/wordsuggest/internal/moderate"
	"github.com/evgenyvinnik/wordsuggest/internal/rank"
	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/suggestcache"
	"github.com/evgenyvinnik/wordsuggest/internal/trending"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
	"github.com/evgenyvinnik/wordsuggest/pkg/config"
	"github.com/evgenyvinnik/wordsuggest/pkg/suggest"
)

const Version = "0.1.0-beta"

func main() {
	defaultConfig := config.DefaultConfig()

	configFile := flag.String("config", "", "Path to custom config.toml file")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address")
	dsn := flag.String("dsn", "", "Postgres DSN (empty runs index-only, no persistence)")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	showVersion := flag.Bool("version", false, "Show current version")
	limit := flag.Int("limit", defaultConfig.CLI.DefaultLimit, "Number of suggestions to return")
	minPrefix := flag.Int("prmin", defaultConfig.CLI.DefaultMinLen, "Minimum prefix length")
	maxPrefix := flag.Int("prmax", defaultConfig.CLI.DefaultMaxLen, "Maximum prefix length")
	noFilter := flag.Bool("no-filter", defaultConfig.CLI.DefaultNoFilter, "Disable input filtering (DBG only)")
	fuzzy := flag.Bool("fuzzy", false, "Enable fuzzy matching")
	user := flag.String("user", "", "User ID to personalize suggestions for")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetReportTimestamp(false)
		log.SetLevel(log.WarnLevel)
	}

	configPath := *configFile
	if configPath == "" {
		configPath = "config.toml"
	}
	cfg, err := config.InitConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})

	var persist *store.Store
	if *dsn != "" {
		persist, err = store.Open(*dsn)
		if err != nil {
			log.Fatalf("Failed to open persistence store: %v", err)
		}
		defer persist.Close()
	}

	filter := moderate.New(newFilterPersister(persist))
	if persist != nil {
		if err := filter.Load(context.Background()); err != nil {
			log.Warnf("Failed to preload moderation filter: %v", err)
		}
	}

	index := trie.New(cfg.Index.K, cfg.Index.FuzzyBudget, filter.IsFiltered, nil)
	cache := suggestcache.New(rdb, suggestcache.DefaultConfig, nil)
	trendingWindow := trending.New(rdb, trending.DefaultConfig, nil)
	historyStore := history.New(rdb, history.DefaultConfig)
	buffer := ingest.New(ingest.DefaultConfig, suggest.NewIndexSink(index, cache, persist, nil, nil, nil), nil)
	buffer.Start()
	defer buffer.Stop()

	svcCfg := suggest.Config{
		MaxPhraseLen:       cfg.Server.MaxPhraseLen,
		MinLimit:           cfg.Server.MinLimit,
		MaxLimit:           cfg.Server.MaxLimit,
		TrendingSampleSize: cfg.Trending.MaxItems,
		Weights: rank.Weights{
			Popularity: cfg.Ranking.WeightPopularity,
			Recency:    cfg.Ranking.WeightRecency,
			Personal:   cfg.Ranking.WeightPersonal,
			Trending:   cfg.Ranking.WeightTrending,
			Match:      cfg.Ranking.WeightMatch,
		},
	}
	svc := suggest.New(index, cache, trendingWindow, historyStore, buffer, persist, nil, filter, nil, svcCfg, nil)

	if persist != nil {
		log.Debug("loading persisted phrases into the index")
		if err := persist.LoadAll(context.Background(), func(rows []store.PhraseRow) error {
			for _, row := range rows {
				if _, err := index.Insert(row.Phrase, row.Count, row.LastUpdated); err != nil {
					log.Warnf("failed to load phrase %q: %v", row.Phrase, err)
				}
			}
			return nil
		}); err != nil {
			log.Warnf("failed to bulk-load persisted phrases: %v", err)
		}
	}

	handler := cli.NewInputHandler(svc, *minPrefix, *maxPrefix, *limit, *user, *fuzzy, *noFilter)
	if err := handler.Start(); err != nil {
		log.Fatalf("CLI error: %v", err)
	}
}

// filterPersister adapts an optional *store.Store to moderate.Persister,
// falling back to an in-memory-only blocklist when there is no persistence
// tier (suggestctl without -dsn).
type filterPersister struct {
	store *store.Store
	local map[string]string
}

func newFilterPersister(s *store.Store) *filterPersister {
	return &filterPersister{store: s, local: map[string]string{}}
}

func (f *filterPersister) FilterPhrase(ctx context.Context, phrase, reason string) error {
	if f.store != nil {
		return f.store.FilterPhrase(ctx, phrase, reason)
	}
	f.local[phrase] = reason
	return nil
}

func (f *filterPersister) UnfilterPhrase(ctx context.Context, phrase string) error {
	if f.store != nil {
		return f.store.UnfilterPhrase(ctx, phrase)
	}
	delete(f.local, phrase)
	return nil
}

func (f *filterPersister) ListFiltered(ctx context.Context) ([]string, error) {
	if f.store != nil {
		return f.store.ListFiltered(ctx)
	}
	out := make([]string, 0, len(f.local))
	for p := range f.local {
		out = append(out, p)
	}
	return out, nil
}

func printVersion() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportCaller: false, ReportTimestamp: false})
	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	logger.SetStyles(styles)

	logger.Print("")
	logger.Print("[suggestctl] interactive debug CLI for the suggestion engine")
	logger.Print("", "version", Version)
	logger.Print("")
	logger.Print("use --help to see available options")
	logger.Print("")
}
