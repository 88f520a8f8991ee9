// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Command dictimport bulk-loads the legacy dict_NNNN.bin dictionary chunk
format into the suggestion engine's Postgres-backed persistence store.

Each chunk file starts with an int32 little-endian entry count, followed by
that many (uint16 wordLen, wordLen word bytes, uint16 rank) records. Rank 1
is the most frequent word; it is converted to a count via
65536-rank so that a lower rank yields a higher count, matching how
internal/store orders candidates. A go-patricia trie de-duplicates words
seen across chunks before the import, so a word repeated across multiple
chunk files is upserted with its best (lowest) rank only.
*/
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/evgenyvinnik/wordsuggest/internal/store"
	"github.com/evgenyvinnik/wordsuggest/internal/utils"
)

func main() {
	dirPath := flag.String("dir", "data/", "Directory containing dict_NNNN.bin chunk files")
	dsn := flag.String("dsn", "", "Postgres DSN to import into")
	debugMode := flag.Bool("v", false, "Toggle verbose mode")
	flag.Parse()

	if *debugMode {
		log.SetLevel(log.DebugLevel)
	}
	if *dsn == "" {
		log.Fatal("-dsn is required")
	}

	persist, err := store.Open(*dsn)
	if err != nil {
		log.Fatalf("failed to open persistence store: %v", err)
	}
	defer persist.Close()

	trie := patricia.NewTrie()
	best := make(map[string]int)

	resolvedDir := *dirPath
	if resolver, err := utils.NewPathResolver(); err != nil {
		log.Debugf("path resolver unavailable, using %q as given: %v", *dirPath, err)
	} else if dir, err := resolver.GetDataDir(*dirPath); err == nil {
		resolvedDir = dir
	}

	pattern := filepath.Join(resolvedDir, "dict_*.bin")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		log.Fatalf("failed to list chunk files: %v", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		log.Fatalf("no chunk files found matching %s", pattern)
	}

	for _, filename := range matches {
		if err := loadChunk(filename, trie, best); err != nil {
			log.Fatalf("failed to load chunk %s: %v", filename, err)
		}
	}
	log.Infof("loaded %d distinct words from %d chunk files", len(best), len(matches))

	ctx := context.Background()
	now := time.Now()
	imported := 0
	for word, rank := range best {
		count := int64(65536 - rank)
		if count < 1 {
			count = 1
		}
		if err := persist.Upsert(ctx, word, count, now); err != nil {
			log.Warnf("upsert failed for %q: %v", word, err)
			continue
		}
		imported++
		if imported%5000 == 0 {
			log.Debugf("imported %d/%d words", imported, len(best))
		}
	}

	fmt.Printf("imported %d of %d words into %s\n", imported, len(best), *dsn)
}

// loadChunk reads one dict_NNNN.bin file and merges its entries into trie
// and best, keeping the lowest (best) rank seen for each word.
func loadChunk(filename string, trie *patricia.Trie, best map[string]int) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	reader := bufio.NewReader(file)

	var totalEntries int32
	if err := binary.Read(reader, binary.LittleEndian, &totalEntries); err != nil {
		return fmt.Errorf("reading chunk header: %w", err)
	}

	count := 0
	for count < int(totalEntries) {
		var wordLen uint16
		if err := binary.Read(reader, binary.LittleEndian, &wordLen); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("reading word length: %w", err)
		}
		wordBytes := make([]byte, wordLen)
		if _, err := io.ReadFull(reader, wordBytes); err != nil {
			return fmt.Errorf("reading word: %w", err)
		}
		word := string(wordBytes)

		var rank uint16
		if err := binary.Read(reader, binary.LittleEndian, &rank); err != nil {
			return fmt.Errorf("reading rank: %w", err)
		}

		if existing, ok := best[word]; !ok || int(rank) < existing {
			best[word] = int(rank)
			trie.Insert(patricia.Prefix(word), int(rank))
		}
		count++
	}
	return nil
}
