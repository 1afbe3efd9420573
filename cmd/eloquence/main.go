package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eloquence-ai/eloquence/internal/archive"
	"github.com/eloquence-ai/eloquence/internal/asr"
	"github.com/eloquence-ai/eloquence/internal/brain"
	"github.com/eloquence-ai/eloquence/internal/config"
	"github.com/eloquence-ai/eloquence/internal/httpapi"
	"github.com/eloquence-ai/eloquence/internal/observability"
	"github.com/eloquence-ai/eloquence/internal/orchestrator"
	"github.com/eloquence-ai/eloquence/internal/scoring"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/speechcache"
	"github.com/eloquence-ai/eloquence/internal/tts"
	"github.com/eloquence-ai/eloquence/internal/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	registry := session.NewRegistry()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("[main] redis %s unreachable, speech cache degrades to misses: %v", cfg.RedisAddr, err)
	}
	cancel()
	cache := speechcache.New(rdb, speechcache.Options{
		TTL:                cfg.CacheTTL,
		CompressionMinSize: cfg.CompressionMinSize,
	}, metrics)

	store, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[main] archive: %v", err)
	}
	defer store.Close()

	transcriber := asr.NewClient(cfg.ASRBaseURL, cfg.ExternalCallTimeout)
	synthesizer := tts.NewClient(cfg.TTSBaseURL, cfg.ExternalCallTimeout)

	var generator brain.Generator
	if cfg.OpenAIAPIKey != "" {
		generator = brain.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		log.Printf("[main] OPENAI_API_KEY unset, using canned replies")
		generator = &brain.Mock{}
	}

	var scorer scoring.Scorer
	if cfg.ScoringBaseURL != "" {
		scorer = scoring.NewClient(cfg.ScoringBaseURL, cfg.ExternalCallTimeout)
	}

	orch := orchestrator.New(orchestrator.Deps{
		Registry:    registry,
		Transcriber: transcriber,
		Generator:   generator,
		Synthesizer: synthesizer,
		Scorer:      scorer,
		Cache:       cache,
		Archive:     store,
		Metrics:     metrics,
	}, orchestrator.Options{
		WaitSilence:         cfg.WaitSilence,
		GentlePromptSilence: cfg.GentlePromptSilence,
		EndTurnSilence:      cfg.EndTurnSilence,
		ReconnectTimeout:    cfg.ReconnectTimeout,
		ExternalCallTimeout: cfg.ExternalCallTimeout,
		VAD: vad.Config{
			Threshold:                cfg.VADThreshold,
			ConsecutiveSpeechFrames:  cfg.VADConsecutiveSpeechFrames,
			ConsecutiveSilenceFrames: cfg.VADConsecutiveSilenceFrames,
		},
	})

	server := httpapi.New(cfg, orch, registry, cache, synthesizer, metrics)
	log.Printf("[main] listening on %s", cfg.BindAddr)
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[main] server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown: %v", err)
	}
	log.Printf("[main] bye")
}
