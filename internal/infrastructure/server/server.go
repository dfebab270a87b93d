package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apihttp "github.com/GriffinCanCode/debugbridge/internal/api/http"
	"github.com/GriffinCanCode/debugbridge/internal/api/middleware"
	"github.com/GriffinCanCode/debugbridge/internal/api/ws"
	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/host/headless"
	"github.com/GriffinCanCode/debugbridge/internal/host/remote"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/discovery"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/natsmirror"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/tracing"
)

// Version is reported by /health and written to the discovery file
var Version = "0.3.0"

// Server wraps the HTTP server and dependencies
type Server struct {
	config  *config.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer

	relay    *relay.Relay
	bridge   *bridge.Bridge
	gate     *auth.Gate
	headless *headless.Host
	remote   *remote.Host

	nc     *nats.Conn
	mirror *natsmirror.Mirror

	router     *gin.Engine
	httpServer *http.Server

	closeOnce sync.Once
	mirrorWG  sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	// Metrics first: the relay reports drops to them
	metrics := monitoring.NewMetrics()
	r := relay.New(cfg.Relay, metrics)

	// Every log entry is also published on the relay's logs stream
	logger, err := logging.New(cfg.Logging, logging.NewRelayCore(r, relay.StreamLogs, zapcore.DebugLevel))
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing debug bridge",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("mode", cfg.Host.Mode),
		zap.String("app_id", cfg.Server.AppID),
		zap.String("version", Version),
	)

	tracer := tracing.New(logger.Logger, cfg.Server.SlowRequest)

	gate, err := newGate(cfg.Auth)
	if err != nil {
		tracer.Close()
		r.Close()
		return nil, err
	}
	if cfg.Logging.Development {
		logger.Info("Auth token", zap.String("token", gate.Token()))
	}

	s := &Server{
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		tracer:  tracer,
		relay:   r,
		gate:    gate,
	}

	f := framer.New(cfg.Framer)
	h, err := s.newHost(f)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.bridge = bridge.New(h, r, f, cfg.Bridge).
		WithLogger(logger.Logger).
		WithMetrics(metrics)
	metrics.RegisterPendingGauge(s.bridge.Pending)

	if cfg.NATS.Enabled() {
		s.newMirror()
	}

	s.router = s.newRouter()
	logger.Info("Server initialized successfully")
	return s, nil
}

func newGate(cfg config.AuthConfig) (*auth.Gate, error) {
	if cfg.Token != "" {
		return auth.NewGate(cfg.Token)
	}
	gate, err := auth.NewGeneratedGate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate auth token: %w", err)
	}
	return gate, nil
}

func (s *Server) newHost(f *framer.Framer) (host.Host, error) {
	switch s.config.Host.Mode {
	case config.ModeRemote:
		s.remote = remote.New(f.ConsoleHook()).WithLogger(s.logger.Logger)
		s.logger.Info("Waiting for an application on /host")
		return s.remote, nil

	default:
		hcfg := s.config.Host.Headless
		hcfg.Framer = s.config.Framer
		h := headless.New(hcfg).WithLogger(s.logger.Logger)

		if hcfg.Dir == "" {
			if err := h.Open(headless.BlankPage()); err != nil {
				return nil, err
			}
		} else if err := h.LoadPages(os.DirFS(hcfg.Dir)); err != nil {
			_ = h.Close()
			return nil, fmt.Errorf("failed to load pages from %s: %w", hcfg.Dir, err)
		}
		s.headless = h

		windows, _ := h.Windows()
		s.logger.Info("Headless host ready", zap.Int("windows", len(windows)), zap.String("dir", hcfg.Dir))
		return h, nil
	}
}

// newMirror connects to NATS. The bridge runs without the mirror when the
// server is unreachable.
func (s *Server) newMirror() {
	// Not teed into the relay, or mirror failures would be mirrored
	quiet, err := logging.New(s.config.Logging)
	if err != nil {
		quiet = logging.NewNop()
	}

	nc, err := natsmirror.Connect(s.config.NATS.URL, s.config.Server.AppID, quiet.Logger)
	if err != nil {
		s.logger.Warn("NATS mirror disabled", zap.Error(err))
		return
	}
	s.nc = nc
	s.mirror = natsmirror.New(nc, s.relay, natsmirror.Config{
		SubjectPrefix: s.config.NATS.SubjectPrefix,
		Streams:       s.config.NATS.Streams,
		FlushTimeout:  s.config.NATS.FlushTimeout,
	}).WithLogger(quiet.Logger)
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(cfg.CORS))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit, "/health"))
	}
	router.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	router.Use(middleware.Gzip("/screenshot", "/metrics"))
	router.Use(middleware.Auth(s.gate, "/health"))

	handlers := apihttp.NewHandlers(s.bridge, s.relay, Version).
		WithLogger(s.logger.Logger).
		WithMetrics(s.metrics).
		WithStatsSource("traces", func() any { return s.tracer.Recent() })
	if s.mirror != nil {
		handlers.WithStatsSource("nats", func() any { return s.mirror.Stats() })
	}
	handlers.Register(router)

	wsHandler := ws.NewHandler(s.bridge, s.relay).
		WithLogger(s.logger.Logger).
		WithMetrics(s.metrics)
	if s.remote != nil {
		wsHandler.WithRemote(s.remote)
	}
	wsHandler.Register(router)

	return router
}

// Handler returns the HTTP handler with every route and middleware
func (s *Server) Handler() http.Handler {
	return s.router
}

// Token returns the bridge token
func (s *Server) Token() string {
	return s.gate.Token()
}

// Bridge returns the call bridge
func (s *Server) Bridge() *bridge.Bridge {
	return s.bridge
}

// Run serves until ctx is done, then shuts down gracefully. The discovery
// file exists while the server accepts connections.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	path, err := discovery.Write(s.config.Server.DiscoveryDir, discovery.Record{
		AppID:     s.config.Server.AppID,
		Port:      port,
		Token:     s.gate.Token(),
		PID:       os.Getpid(),
		Version:   Version,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("Failed to write discovery file", zap.Error(err))
	} else {
		s.logger.Info("Discovery file written", zap.String("path", path))
	}

	if s.mirror != nil {
		s.mirrorWG.Add(1)
		go func() {
			defer s.mirrorWG.Done()
			if err := s.mirror.Run(context.Background()); err != nil {
				s.logger.Warn("NATS mirror stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests, waits for in-flight ones and
// releases everything
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := discovery.Remove(s.config.Server.DiscoveryDir, s.config.Server.AppID); err != nil {
		s.logger.Warn("Failed to remove discovery file", zap.Error(err))
	}

	var err error
	if s.httpServer != nil {
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP shutdown incomplete", zap.Error(err))
		}
	}
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases hosts, streams and connections without waiting for
// requests
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		if s.remote != nil {
			s.remote.Close()
		}
		if s.bridge != nil {
			s.bridge.Close()
		}

		// Ends every stream subscriber, including the mirror
		s.relay.Close()
		s.mirrorWG.Wait()
		if s.nc != nil {
			s.nc.Close()
		}

		if s.headless != nil {
			if err := s.headless.Close(); err != nil {
				s.logger.Warn("Failed to close headless host", zap.Error(err))
			}
		}

		s.tracer.Close()
		s.logger.Info("Server stopped")
		_ = s.logger.Sync()
	})
	return nil
}
