// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Command suggestd is the suggestion service daemon.

It wires a Postgres-backed persistence layer, a Redis-backed cache/trending/
history tier, and the in-memory prefix index into a pkg/suggest.Service, then
exposes that service over msgpack IPC on stdin/stdout (pkg/server). On
startup it runs a synchronous rebuild to populate the index from persistence
before serving any request.

# Config

Runtime configuration is managed via a config.toml file; see pkg/config. A
default configuration is created automatically if one does not exist.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/evgenyvinnik/wordsuggest/internal/history"
	"github.com/evgenyvinnik/wordsuggest/internal/ingest"
	applog "github.com/evgenyvinnik/wordsuggest/internal/logger"
	"github.com/evgenyvinnik/wordsuggest/internal/metrics"
	"github.com/evgenyvinnik/wordsuggest/internal/moderate"
	"github.com/evgenyvinnik/wordsuggest/internal/rank"
	"github.com/evgenyvinnik/wordsuggest/internal/rebuild"
	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/suggestcache"
	"github.com/evgenyvinnik/wordsuggest/internal/trending"
	"github.com/evgenyvinnik/wordsuggest/internal/trie"
	"github.com/evgenyvinnik/wordsuggest/pkg/config"
	"github.com/evgenyvinnik/wordsuggest/pkg/server"
	"github.com/evgenyvinnik/wordsuggest/pkg/suggest"
)

const (
	Version = "0.1.0-beta"
	AppName = "suggestd"
)

// sigHandler exits normally on SIGINT/SIGTERM.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func main() {
	sigHandler()

	configFile := flag.String("config", "", "Path to custom config.toml file")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
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
	log.Debugf("Using config file: %s", configPath)

	dsn := cfg.Persistence.DSN
	if dsn == "" {
		log.Fatal("persistence.dsn must be set in config.toml")
	}
	persist, err := store.Open(dsn)
	if err != nil {
		log.Fatalf("Failed to open persistence store: %v", err)
	}
	defer persist.Close()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})

	ctx := context.Background()

	filter := moderate.New(persist)
	if err := filter.Load(ctx); err != nil {
		log.Warnf("Failed to preload moderation filter: %v", err)
	}

	index := trie.New(cfg.Index.K, cfg.Index.FuzzyBudget, filter.IsFiltered, applog.New("index"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	index.SetRecomputeHook(m.RecordTopKRecomputeDepth)

	cache := suggestcache.New(rdb, suggestcache.Config{TTL: time.Duration(cfg.Cache.SuggestionTTLSeconds) * time.Second}, applog.New("cache"))

	// Service.Rebuild already invalidates the cache after a successful swap,
	// so onSwap is left nil here.
	rebuilder := rebuild.New(index, persist, cfg.Index.K, nil, applog.New("rebuild"))

	sink := suggest.NewIndexSink(index, cache, persist, rebuilder, m, applog.New("ingest-sink"))
	buffer := ingest.New(ingest.Config{
		Capacity:       cfg.Ingest.BufferCapacity,
		FlushInterval:  time.Duration(cfg.Ingest.FlushIntervalMS) * time.Millisecond,
		FlushThreshold: cfg.Ingest.FlushThreshold,
		MaxRetries:     cfg.Ingest.MaxRetries,
		DeadLetterCap:  cfg.Ingest.DeadLetterCap,
	}, sink, applog.New("ingest"))
	buffer.Start()
	defer buffer.Stop()

	trendingWindow := trending.New(rdb, trending.Config{
		Tau:      cfg.Trending.Tau(),
		Window:   cfg.Trending.Window(),
		MaxItems: int64(cfg.Trending.MaxItems),
	}, applog.New("trending"))

	historyStore := history.New(rdb, history.Config{
		Cap: cfg.History.Cap,
		TTL: time.Duration(cfg.History.TTLDays) * 24 * time.Hour,
	})

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
	svc := suggest.New(index, cache, trendingWindow, historyStore, buffer, persist, rebuilder, filter, m, svcCfg, applog.New("service"))

	log.Debug("running initial index rebuild from persistence")
	if err := svc.Rebuild(ctx); err != nil {
		log.Warnf("initial rebuild failed, starting with an empty index: %v", err)
	}

	srv := server.NewServer(svc, cfg, configPath)

	showStartupInfo(dsn, *redisAddr)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(dsn, redisAddr string) {
	pid := os.Getpid()
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("============")
	println(" suggestd ")
	println("============")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", pid)
	log.Info("init: OK")
	log.Infof("redis: ( %s )", redisAddr)
	log.Info("status: ready")
	println("============")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
