package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/aggregator"
	"github.com/dennisdiepolder/monti/callmonitor/internal/analysis"
	"github.com/dennisdiepolder/monti/callmonitor/internal/api"
	"github.com/dennisdiepolder/monti/callmonitor/internal/cache"
	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/emotion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/llm"
	"github.com/dennisdiepolder/monti/callmonitor/internal/metrics"
	"github.com/dennisdiepolder/monti/callmonitor/internal/pipeline"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/suggestion"
	"github.com/dennisdiepolder/monti/callmonitor/internal/transcription"
	"github.com/dennisdiepolder/monti/callmonitor/internal/websocket"
	"github.com/dennisdiepolder/monti/callmonitor/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/openai/openai-go/v2/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const llmVendor = "gemini"

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting call monitor server")

	// Create context for services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.Close()

	// Create WebSocket hub
	hub := websocket.NewHub(log.Logger)
	go hub.Run()

	sessions := cache.NewSessionTracker()
	coordinator := newCoordinator(cfg, store, sessions, hub)

	// Expire idle live sessions and publish the active list
	aggregatorService := aggregator.NewAggregator(sessions, hub, cfg.SessionTTL, coordinator.Forget, log.Logger)
	go aggregatorService.Start(ctx)

	// vendor work of one request: two LLM calls plus the audio job polling
	requestBudget := 2*cfg.VendorTimeout + time.Duration(cfg.HumePollAttempts)*cfg.HumePollInterval

	r := newRouter(cfg, log.Logger,
		websocket.NewHandler(hub, cfg, log.Logger),
		api.NewLiveHandler(coordinator, sessions, cfg.MaxUploadBytes, requestBudget, log.Logger),
		api.NewAnalyticsHandler(store, log.Logger),
		api.NewCallsHandler(store, coordinator, log.Logger),
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop the aggregator
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// newCoordinator builds the vendor adapters from cfg and wires the pipeline
func newCoordinator(cfg *config.Config, store storage.Store, sessions *cache.SessionTracker, hub *websocket.Hub) *pipeline.Coordinator {
	timeout := option.WithRequestTimeout(cfg.VendorTimeout)
	llmClient := llm.NewClient(cfg.GeminiAPIKey, cfg.LLMBaseURL, cfg.LLMModel, llmVendor, timeout)

	if cfg.GeminiAPIKey == "" {
		log.Warn().Msg("GOOGLE_GEMINI_API_KEY not set, emotion and context analysis will degrade")
	}
	if cfg.GroqAPIKey == "" {
		log.Warn().Msg("GROQ_API_KEY not set, transcription will return empty results")
	}

	return pipeline.NewCoordinator(pipeline.Options{
		Store:       store,
		Transcriber: transcription.NewGroqTranscriber(cfg.GroqAPIKey, cfg.GroqBaseURL, cfg.TranscriptionModel, log.Logger, timeout),
		TextScorer:  emotion.NewTextScorer(llmClient),
		AudioScorer: emotion.NewHumeScorer(emotion.HumeConfig{
			APIKey:       cfg.HumeAPIKey,
			BaseURL:      cfg.HumeBaseURL,
			PollAttempts: cfg.HumePollAttempts,
			PollInterval: cfg.HumePollInterval,
			HTTPClient:   &http.Client{Timeout: cfg.VendorTimeout},
		}, log.Logger),
		Policy:        emotion.NewPolicy(log.Logger, nil),
		Analyzer:      analysis.NewLLMContextAnalyzer(llmClient, llmVendor),
		Suggestions:   suggestion.NewEngine(llmClient, log.Logger),
		Summaries:     analysis.NewSummaryGenerator(llmClient, log.Logger),
		Sessions:      sessions,
		Broadcaster:   hub,
		MinChunkBytes: cfg.MinChunkBytes,
		Logger:        log.Logger,
	})
}

// newRouter mounts the middleware stack and every route
func newRouter(cfg *config.Config, logger zerolog.Logger, ws http.Handler, live *api.LiveHandler, analytics *api.AnalyticsHandler, calls *api.CallsHandler) chi.Router {
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", ws.ServeHTTP)

	api.Register(r, live, analytics, calls)
	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"callmonitor"}`)
}
