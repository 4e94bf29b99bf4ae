package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/heatpilot/heatpilot/pkg/accounting"
	"github.com/heatpilot/heatpilot/pkg/constraints"
	"github.com/heatpilot/heatpilot/pkg/cop"
	"github.com/heatpilot/heatpilot/pkg/devstate"
	"github.com/heatpilot/heatpilot/pkg/energy"
	"github.com/heatpilot/heatpilot/pkg/hotwater"
	"github.com/heatpilot/heatpilot/pkg/hvac"
	"github.com/heatpilot/heatpilot/pkg/log"
	"github.com/heatpilot/heatpilot/pkg/pricing"
	"github.com/heatpilot/heatpilot/pkg/store"
	"github.com/levenlabs/go-lflag"
)

// tokenVerifier is a function that validates a Google ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server handles the HTTP API and orchestrates the optimization cycle:
// energy metrics, normalization, price context, hot water decision,
// constraint clamping, lockouts and accounting.
type Server struct {
	store      store.Store
	hvac       hvac.Client
	providers  *pricing.Map
	predictor  *cop.Predictor
	normalizer *cop.Normalizer
	collector  *energy.Collector
	optimizer  *hotwater.Optimizer
	manager    *constraints.Manager
	tracker    *devstate.Tracker
	accounting *accounting.Service

	listenAddr string
	serverName string
	httpServer *http.Server

	updateEmail    string
	oidcVerifier   tokenVerifier
	bypassAuth     bool
	updateEvery    time.Duration
	calibrateEvery time.Duration

	// cycleMu serializes optimization cycles and calibrations; only one
	// decision runs at a time regardless of what triggered it.
	cycleMu   sync.Mutex
	lastCycle *cycleResult
	now       func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(st store.Store, client hvac.Client, providers *pricing.Map) *Server {
	normalizer := cop.NewNormalizer()
	srv := &Server{
		store:      st,
		hvac:       client,
		providers:  providers,
		predictor:  cop.NewPredictor(st),
		normalizer: normalizer,
		collector:  energy.NewCollector(client, normalizer),
		optimizer:  hotwater.NewOptimizer(normalizer),
		manager:    constraints.NewManager(),
		tracker:    devstate.NewTracker(st),
		accounting: accounting.NewService(st),
		serverName: "heatpilot",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	updateEmail := lflag.String("update-email", "", "email to validate for /api/update and /api/calibrate")
	oidcAudience := lflag.String("oidc-audience", "", "audience/client ID to validate scheduler id tokens against")
	updateEvery := lflag.Duration("update-interval", 0, "run optimization cycles on this interval in-process (0 relies on an external scheduler)")
	calibrateEvery := lflag.Duration("calibrate-interval", 0, "run COP calibration on this interval in-process (0 relies on an external scheduler)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.updateEmail = *updateEmail
		srv.updateEvery = *updateEvery
		srv.calibrateEvery = *calibrateEvery

		if *oidcAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: *oidcAudience}).Verify
		} else {
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)
	apiMux.HandleFunc("POST /api/calibrate", s.handleCalibrate)
	apiMux.HandleFunc("GET /api/status", s.handleStatus)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an
// error occurs. It also handles graceful shutdown when the context is done
// and drives the optional in-process tickers.
func (s *Server) Run(ctx context.Context) error {
	if err := s.loadState(ctx); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capture server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.updateEvery > 0 {
		go s.tick(ctx, s.updateEvery, "update", func(ctx context.Context) {
			if _, err := s.runCycle(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "scheduled cycle failed", slog.Any("error", err))
			}
		})
	}
	if s.calibrateEvery > 0 {
		go s.tick(ctx, s.calibrateEvery, "calibrate", func(ctx context.Context) {
			if _, err := s.runCalibration(ctx); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "scheduled calibration failed", slog.Any("error", err))
			}
		})
	}

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// loadState restores persisted state before serving.
func (s *Server) loadState(ctx context.Context) error {
	if err := s.predictor.Load(ctx); err != nil {
		return fmt.Errorf("failed to load predictor state: %w", err)
	}
	if err := s.tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load setpoint state: %w", err)
	}
	if err := s.accounting.Load(ctx); err != nil {
		return fmt.Errorf("failed to load accounting state: %w", err)
	}
	return nil
}

func (s *Server) tick(ctx context.Context, every time.Duration, name string, fn func(context.Context)) {
	log.Ctx(ctx).InfoContext(ctx, "starting in-process ticker",
		slog.String("name", name),
		slog.Duration("every", every),
	)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
