// Package server hosts the turn orchestration engine behind an HTTP JSON
// surface and wires its storage, telemetry, and generation backend.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emberloom/emberloom/internal/engine/backend"
	"github.com/emberloom/emberloom/internal/engine/budget"
	"github.com/emberloom/emberloom/internal/engine/turn"
	"github.com/emberloom/emberloom/internal/platform/config"
	"github.com/emberloom/emberloom/internal/storage"
	"github.com/emberloom/emberloom/internal/storage/sqlite"
	"github.com/emberloom/emberloom/internal/telemetry"
)

// serverEnv holds env-parsed configuration for the engine server.
type serverEnv struct {
	DBPath       string `env:"EMBERLOOM_ENGINE_DB_PATH"`
	ResponsesURL string `env:"EMBERLOOM_ENGINE_RESPONSES_URL"`
	Model        string `env:"EMBERLOOM_ENGINE_MODEL"`
	APIKey       string `env:"EMBERLOOM_ENGINE_API_KEY"`

	MaxAttempts      int    `env:"EMBERLOOM_ENGINE_MAX_ATTEMPTS" envDefault:"3"`
	BackoffBaseMS    int    `env:"EMBERLOOM_ENGINE_BACKOFF_BASE_MS" envDefault:"250"`
	BackoffCeilingMS int    `env:"EMBERLOOM_ENGINE_BACKOFF_CEILING_MS" envDefault:"4000"`
	DiscardAfter     int    `env:"EMBERLOOM_ENGINE_DISCARD_AFTER" envDefault:"3"`
	TurnDeadlineMS   int    `env:"EMBERLOOM_ENGINE_TURN_DEADLINE_MS" envDefault:"60000"`
	BudgetOverrides  string `env:"EMBERLOOM_ENGINE_BUDGET_OVERRIDES"`
}

func loadServerEnv() serverEnv {
	var cfg serverEnv
	_ = config.ParseEnv(&cfg)
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "engine.db")
	}
	return cfg
}

// parseBudgetOverrides parses "handler=cap,handler=cap" pairs. Unparseable
// entries are rejected whole so a typo cannot silently zero a cap.
func parseBudgetOverrides(raw string) (map[string]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	overrides := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return nil, fmt.Errorf("budget override %q is not handler=cap", pair)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("budget override %q: %w", pair, err)
		}
		overrides[strings.TrimSpace(name)] = limit
	}
	return overrides, nil
}

// Options overrides pieces of the environment-driven configuration. Tests
// inject a generator and database path here.
type Options struct {
	Generator backend.Generator
	DBPath    string
}

// Server hosts the engine service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	engine     *turn.Engine
	closeOnce  sync.Once

	mu       sync.Mutex
	sessions map[string]*turn.Session
}

// New creates a configured engine server listening on the provided port.
func New(port int) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port), Options{})
}

// NewWithAddr creates a configured engine server listening on the provided
// address.
func NewWithAddr(addr string, opts Options) (*Server, error) {
	srvEnv := loadServerEnv()
	if opts.DBPath != "" {
		srvEnv.DBPath = opts.DBPath
	}

	generator := opts.Generator
	if generator == nil {
		if strings.TrimSpace(srvEnv.ResponsesURL) == "" {
			return nil, errors.New("EMBERLOOM_ENGINE_RESPONSES_URL is required")
		}
		if strings.TrimSpace(srvEnv.Model) == "" {
			return nil, errors.New("EMBERLOOM_ENGINE_MODEL is required")
		}
		generator = backend.NewHTTPAdapter(backend.HTTPConfig{
			ResponsesURL: srvEnv.ResponsesURL,
			Model:        srvEnv.Model,
			APIKey:       srvEnv.APIKey,
		})
	}

	overrides, err := parseBudgetOverrides(srvEnv.BudgetOverrides)
	if err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	store, err := sqlite.Open(srvEnv.DBPath)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	engine := turn.New(turn.Config{
		Generator:      generator,
		Caps:           budget.NewCaps(overrides),
		Prompts:        turn.NewPromptConfig(nil),
		Persister:      store,
		Emitter:        telemetry.NewEmitter(store),
		MaxAttempts:    srvEnv.MaxAttempts,
		BackoffBase:    time.Duration(srvEnv.BackoffBaseMS) * time.Millisecond,
		BackoffCeiling: time.Duration(srvEnv.BackoffCeilingMS) * time.Millisecond,
		DiscardAfter:   srvEnv.DiscardAfter,
		TurnDeadline:   time.Duration(srvEnv.TurnDeadlineMS) * time.Millisecond,
	})

	s := &Server{
		listener: listener,
		store:    store,
		engine:   engine,
		sessions: make(map[string]*turn.Session),
	}
	s.httpServer = &http.Server{Handler: s.Handler()}
	return s, nil
}

// Addr returns the listener address for the engine server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// session returns the live session for id, restoring it from storage when
// present or creating it fresh otherwise.
func (s *Server) session(ctx context.Context, campaignID, sessionID string) (*turn.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}
	session, err := s.store.LoadSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		session = turn.NewSession(campaignID, sessionID, sceneSeed())
	}
	s.sessions[sessionID] = session
	return session, nil
}

// Run creates and serves an engine server until the context ends.
func Run(ctx context.Context, port int) error {
	server, err := New(port)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the engine server and blocks until it stops or context ends.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("engine server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases the server's resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.store != nil {
			_ = s.store.Close()
		}
	})
}
