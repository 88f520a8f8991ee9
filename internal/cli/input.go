// Package cli handles command-line input and suggestions for debugging and
// testing the suggestion service interactively.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/wordsuggest/internal/utils"
	"github.com/evgenyvinnik/wordsuggest/pkg/suggest"
)

// InputHandler reads prefixes from stdin and prints ranked suggestions from
// a suggest.Service. It accepts flags controlling prefix length bounds,
// suggestion limit, fuzzy matching, and whether static input filtering is
// bypassed for debugging.
type InputHandler struct {
	svc             *suggest.Service
	minPrefixLength int
	maxPrefixLength int
	suggestLimit    int
	userID          string
	fuzzy           bool
	noFilter        bool
}

// NewInputHandler builds an InputHandler over svc.
func NewInputHandler(svc *suggest.Service, minLength, maxLength, limit int, userID string, fuzzy, noFilter bool) *InputHandler {
	return &InputHandler{
		svc:             svc,
		minPrefixLength: minLength,
		maxPrefixLength: maxLength,
		suggestLimit:    limit,
		userID:          userID,
		fuzzy:           fuzzy,
		noFilter:        noFilter,
	}
}

// Start begins the interface loop: it continuously prompts for input, reads
// a line from stdin, and passes the trimmed input to handleInput. The loop
// terminates if an error occurs while reading from stdin.
func (h *InputHandler) Start() error {
	log.Print("suggestctl [BETA]")
	reader := bufio.NewReader(os.Stdin)
	log.Print("type something and press Enter to see the suggestions (Ctrl+C to exit):")

	for {
		log.Print("> ")
		prefix, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		h.handleInput(prefix)
	}
}

// handleInput processes a single prefix: validates its length, optionally
// applies static input filtering for debugging, then asks the service for
// suggestions and logs a search event the way a real client would.
func (h *InputHandler) handleInput(prefix string) {
	if len(prefix) < h.minPrefixLength {
		log.Errorf("Prefix too short: %s", prefix)
		return
	}
	if len(prefix) > h.maxPrefixLength {
		log.Errorf("Prefix too long: %s", prefix)
		return
	}

	if !h.noFilter && !utils.IsValidInput(prefix) {
		log.Infof("No results found for prefix: '%s'", prefix)
		return
	}
	if h.noFilter {
		log.Debug("Input filtering disabled - querying the raw index")
	}

	ctx := context.Background()
	log.Debug("Processing request for", "prefix", prefix)

	result, err := h.svc.Suggest(ctx, prefix, h.suggestLimit, h.userID, h.fuzzy)
	if err != nil {
		log.Errorf("Suggest failed for '%s': %v", prefix, err)
		return
	}
	if err := h.svc.LogSearch(ctx, prefix, h.userID, ""); err != nil {
		log.Debugf("LogSearch failed for '%s': %v", prefix, err)
	}

	log.Debugf("Took [ %.3fms ] for prefix '%s' (cached=%v)", result.ResponseTimeMs, prefix, result.Cached)

	if len(result.Suggestions) == 0 {
		log.Warnf("No suggestions found for prefix: '%s'", prefix)
		return
	}

	log.Printf("Found %d suggestions for prefix '%s':", len(result.Suggestions), prefix)
	for i, s := range result.Suggestions {
		fmtCount := utils.FormatWithCommas(int(s.Count))
		clPhrase := fmt.Sprintf("\033[38;5;75m%s\033[0m", s.Phrase)
		fuzzyTag := ""
		if s.IsFuzzy {
			fuzzyTag = fmt.Sprintf(" (fuzzy, dist %d)", s.Distance)
		}
		log.Printf("%2d. %-40s (count: %8s, score: %.3f)%s", i+1, clPhrase, fmtCount, s.Score, fuzzyTag)
	}
}
