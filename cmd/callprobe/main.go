package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dlanza/callprobe/internal/brain"
	"github.com/dlanza/callprobe/internal/config"
	"github.com/dlanza/callprobe/internal/conversation"
	"github.com/dlanza/callprobe/internal/engine"
	"github.com/dlanza/callprobe/internal/httpapi"
	"github.com/dlanza/callprobe/internal/observability"
	"github.com/dlanza/callprobe/internal/resultstore"
	"github.com/dlanza/callprobe/internal/signaling"
	"github.com/dlanza/callprobe/internal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	window := observability.NewLatencyWindow(256)

	ctx := context.Background()
	store, err := resultstore.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("result store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("result store: postgres")
	} else {
		log.Printf("result store: in-memory")
	}

	brainClient, err := brain.NewClient(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainHTTPURL,
		Model:   cfg.BrainModel,
		APIKey:  cfg.BrainAPIKey,
	})
	if err != nil {
		log.Fatalf("brain client init failed: %v", err)
	}
	if cfg.BrainHTTPURL != "" {
		log.Printf("caller brain: http backend %s", cfg.BrainHTTPURL)
	} else {
		log.Printf("caller brain: mock (no BRAIN_HTTP_URL)")
	}

	synth, err := tts.NewSynthesizer(tts.Config{
		Mode:              cfg.TTSProvider,
		ElevenLabsAPIKey:  cfg.ElevenLabsAPIKey,
		ElevenLabsBaseURL: cfg.ElevenLabsBaseURL,
		ElevenLabsVoiceID: cfg.ElevenLabsTTSVoice,
		ElevenLabsModelID: cfg.ElevenLabsTTSModel,
	})
	if err != nil {
		log.Fatalf("tts init failed: %v", err)
	}

	sessionCfg := conversation.DefaultConfig()
	sessionCfg.GreetingGrace = cfg.GreetingGrace
	sessionCfg.SilenceWindow = cfg.SilenceWindow
	sessionCfg.ResponseWatchdog = cfg.ResponseWatchdog
	sessionCfg.HardTimeout = cfg.HardTimeout
	sessionCfg.CloseDelay = cfg.CloseDelay
	sessionCfg.Policy.MinTurns = cfg.MinTurnsBeforeFarewell
	sessionCfg.Policy.SoftWrapTurns = cfg.SoftWrapTurns

	eng := engine.New(engine.Config{
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		Session:               sessionCfg,
		Signaling: signaling.Config{
			Retell: signaling.RetellConfig{APIBaseURL: cfg.RetellBaseURL},
			Vapi:   signaling.VapiConfig{WSBaseURL: cfg.VapiBaseURL},
		},
	}, brain.New(brainClient), synth, store, metrics, window)

	api := httpapi.New(cfg, eng, store, window)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
