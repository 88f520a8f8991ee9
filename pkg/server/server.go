package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/evgenyvinnik/wordsuggest/internal/svcerr"
	"github.com/evgenyvinnik/wordsuggest/pkg/config"
	"github.com/evgenyvinnik/wordsuggest/pkg/suggest"
)

// Server handles suggestion requests and admin operations over msgpack IPC.
type Server struct {
	svc        *suggest.Service
	config     *config.Config
	configPath string

	decoder      *msgpack.Decoder
	writeMutex   sync.Mutex
	requestCount int64
}

// NewServer creates a server fronting svc with cfg's request-shape limits.
func NewServer(svc *suggest.Service, cfg *config.Config, configPath string) *Server {
	s := &Server{
		svc:        svc,
		config:     cfg,
		configPath: configPath,
		decoder:    msgpack.NewDecoder(os.Stdin),
	}
	log.Debug("server created", "service", fmt.Sprintf("%T", svc))
	return s
}

// reloadConfig reloads configuration from the TOML file.
func (s *Server) reloadConfig() error {
	newConfig, err := config.LoadConfig(s.configPath)
	if err != nil {
		log.Warnf("Failed to reload config, keeping current: %v", err)
		return err
	}
	s.config = newConfig
	log.Debugf("Config reloaded from: %s", s.configPath)
	return nil
}

// Start begins listening for requests on stdin until EOF.
func (s *Server) Start() error {
	log.Debug("Starting msgpack suggestion server")
	for {
		if err := s.processRequest(); err != nil {
			if err == io.EOF {
				log.Debug("Client disconnected")
				return nil
			}
			continue
		}
	}
}

// processRequest decodes and dispatches a single message.
func (s *Server) processRequest() error {
	s.requestCount++
	if s.requestCount%100 == 0 {
		s.reloadConfig()
	}

	var req Request
	if err := s.decoder.Decode(&req); err != nil {
		log.Debugf("Decode error: %v", err)
		return err
	}

	switch req.Op {
	case OpSuggest:
		return s.handleSuggest(&req)
	case OpLogSearch:
		return s.handleLogSearch(&req)
	case OpTrending:
		return s.handleTrending(&req)
	case OpRebuild:
		return s.handleRebuild(&req)
	case OpClearCache:
		return s.handleClearCache(&req)
	case OpAddPhrase:
		return s.handleAddPhrase(&req)
	case OpFilterPhrase:
		return s.handleFilterPhrase(&req)
	case OpUnfilterPhrase:
		return s.handleUnfilterPhrase(&req)
	default:
		return s.sendError(req.ID, fmt.Sprintf("unknown op: %s", req.Op), svcerr.CodeInvalidInput)
	}
}

func (s *Server) handleSuggest(req *Request) error {
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.Server.MaxLimit / 2
	}
	if limit > s.config.Server.MaxLimit {
		limit = s.config.Server.MaxLimit
	}

	start := time.Now()
	result, err := s.svc.Suggest(context.Background(), req.Prefix, limit, req.UserID, req.Fuzzy)
	if err != nil {
		return s.sendServiceError(req.ID, err)
	}
	elapsed := time.Since(start)

	out := make([]Suggestion, len(result.Suggestions))
	for i, sugg := range result.Suggestions {
		out[i] = Suggestion{
			Phrase:   sugg.Phrase,
			Count:    sugg.Count,
			Score:    sugg.Score,
			IsFuzzy:  sugg.IsFuzzy,
			Distance: sugg.Distance,
		}
	}

	return s.sendResponse(&SuggestResponse{
		ID:          req.ID,
		Suggestions: out,
		Count:       len(out),
		TimeTaken:   elapsed.Microseconds(),
		Cached:      result.Cached,
	})
}

func (s *Server) handleLogSearch(req *Request) error {
	if err := s.svc.LogSearch(context.Background(), req.Query, req.UserID, req.SessionID); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleTrending(req *Request) error {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	top, err := s.svc.Trending(context.Background(), limit)
	if err != nil {
		return s.sendServiceError(req.ID, err)
	}
	items := make([]TrendingItem, len(top))
	for i, t := range top {
		items[i] = TrendingItem{Phrase: t.Phrase, Score: t.Score}
	}
	return s.sendResponse(&TrendingResponse{ID: req.ID, Items: items})
}

func (s *Server) handleRebuild(req *Request) error {
	if err := s.svc.Rebuild(context.Background()); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleClearCache(req *Request) error {
	if err := s.svc.ClearCache(context.Background()); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleAddPhrase(req *Request) error {
	if req.Phrase == "" {
		return s.sendError(req.ID, "phrase required", svcerr.CodeInvalidInput)
	}
	if err := s.svc.AddPhrase(context.Background(), req.Phrase, req.Count); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleFilterPhrase(req *Request) error {
	if req.Phrase == "" {
		return s.sendError(req.ID, "phrase required", svcerr.CodeInvalidInput)
	}
	if err := s.svc.FilterPhrase(context.Background(), req.Phrase, req.Reason); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleUnfilterPhrase(req *Request) error {
	if req.Phrase == "" {
		return s.sendError(req.ID, "phrase required", svcerr.CodeInvalidInput)
	}
	if err := s.svc.UnfilterPhrase(context.Background(), req.Phrase); err != nil {
		return s.sendServiceError(req.ID, err)
	}
	return s.sendResponse(&StatusResponse{ID: req.ID, Status: "ok"})
}

// sendResponse encodes and sends a msgpack response to stdout atomically.
func (s *Server) sendResponse(response any) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	var buf bytes.Buffer
	encoder := msgpack.NewEncoder(&buf)
	if err := encoder.Encode(response); err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if _, err := os.Stdout.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	os.Stdout.Sync()
	return nil
}

// sendError sends a plain error response with an explicit code.
func (s *Server) sendError(id string, message string, code svcerr.Code) error {
	return s.sendResponse(&ErrorResponse{ID: id, Error: message, Code: code.String()})
}

// sendServiceError classifies a Service error via svcerr and sends it.
func (s *Server) sendServiceError(id string, err error) error {
	code := svcerr.CodeInvalidInput
	for _, c := range []svcerr.Code{
		svcerr.CodeInvalidInput,
		svcerr.CodeNotFound,
		svcerr.CodeRebuildInProgress,
		svcerr.CodePersistenceUnavailable,
		svcerr.CodeCacheUnavailable,
		svcerr.CodeCancelled,
		svcerr.CodeFatalInvariant,
	} {
		if svcerr.Is(err, c) {
			code = c
			break
		}
	}
	return s.sendResponse(&ErrorResponse{ID: id, Error: err.Error(), Code: code.String()})
}
