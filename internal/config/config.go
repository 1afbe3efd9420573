package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the coaching voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DefaultLanguage string
	DefaultVoiceID  string

	// Turn-taking silence thresholds, ordered wait < gentle prompt < end turn.
	EndTurnSilence      time.Duration
	GentlePromptSilence time.Duration
	WaitSilence         time.Duration

	VADThreshold                float64
	VADConsecutiveSpeechFrames  int
	VADConsecutiveSilenceFrames int

	ReconnectTimeout    time.Duration
	ExternalCallTimeout time.Duration

	RedisAddr          string
	CacheTTL           time.Duration
	CompressionMinSize int

	ASRBaseURL     string
	TTSBaseURL     string
	ScoringBaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "eloquence"),
		AllowAnyOrigin:   false,
		DefaultLanguage:  envOrDefault("APP_DEFAULT_LANGUAGE", "fr"),
		DefaultVoiceID:   envOrDefault("APP_DEFAULT_VOICE_ID", "coach_fr_1"),

		EndTurnSilence:      1200 * time.Millisecond,
		GentlePromptSilence: 600 * time.Millisecond,
		WaitSilence:         200 * time.Millisecond,

		VADThreshold:                0.5,
		VADConsecutiveSpeechFrames:  3,
		VADConsecutiveSilenceFrames: 5,

		ReconnectTimeout:    30 * time.Second,
		ExternalCallTimeout: 10 * time.Second,

		RedisAddr:          envOrDefault("REDIS_ADDR", "localhost:6379"),
		CacheTTL:           24 * time.Hour,
		CompressionMinSize: 1024,

		ASRBaseURL:     envOrDefault("ASR_URL", "http://localhost:8001"),
		TTSBaseURL:     envOrDefault("TTS_URL", "http://localhost:8002"),
		ScoringBaseURL: stringsTrimSpace("SCORING_URL"),

		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL: stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:   envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.EndTurnSilence, err = millisFromEnv("END_TURN_SILENCE_MS", cfg.EndTurnSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.GentlePromptSilence, err = millisFromEnv("GENTLE_PROMPT_SILENCE_MS", cfg.GentlePromptSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.WaitSilence, err = millisFromEnv("WAIT_SILENCE_MS", cfg.WaitSilence)
	if err != nil {
		return Config{}, err
	}

	cfg.VADThreshold, err = floatFromEnv("VAD_THRESHOLD", cfg.VADThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.VADConsecutiveSpeechFrames, err = intFromEnv("VAD_CONSECUTIVE_SPEECH_FRAMES", cfg.VADConsecutiveSpeechFrames)
	if err != nil {
		return Config{}, err
	}
	cfg.VADConsecutiveSilenceFrames, err = intFromEnv("VAD_CONSECUTIVE_SILENCE_FRAMES", cfg.VADConsecutiveSilenceFrames)
	if err != nil {
		return Config{}, err
	}

	cfg.ReconnectTimeout, err = secondsFromEnv("RECONNECT_TIMEOUT_S", cfg.ReconnectTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ExternalCallTimeout, err = secondsFromEnv("EXTERNAL_CALL_TIMEOUT_S", cfg.ExternalCallTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheTTL, err = secondsFromEnv("CACHE_TTL_S", cfg.CacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.CompressionMinSize, err = intFromEnv("COMPRESSION_MIN_SIZE", cfg.CompressionMinSize)
	if err != nil {
		return Config{}, err
	}

	if cfg.VADThreshold <= 0 || cfg.VADThreshold >= 1 {
		return Config{}, fmt.Errorf("VAD_THRESHOLD must be in (0, 1)")
	}
	if cfg.VADConsecutiveSpeechFrames <= 0 {
		return Config{}, fmt.Errorf("VAD_CONSECUTIVE_SPEECH_FRAMES must be positive")
	}
	if cfg.VADConsecutiveSilenceFrames <= 0 {
		return Config{}, fmt.Errorf("VAD_CONSECUTIVE_SILENCE_FRAMES must be positive")
	}
	if cfg.WaitSilence >= cfg.GentlePromptSilence || cfg.GentlePromptSilence >= cfg.EndTurnSilence {
		return Config{}, fmt.Errorf("silence thresholds must satisfy WAIT_SILENCE_MS < GENTLE_PROMPT_SILENCE_MS < END_TURN_SILENCE_MS")
	}
	if cfg.ReconnectTimeout < time.Second {
		return Config{}, fmt.Errorf("RECONNECT_TIMEOUT_S must be at least 1s")
	}
	if cfg.ExternalCallTimeout <= 0 {
		return Config{}, fmt.Errorf("EXTERNAL_CALL_TIMEOUT_S must be positive")
	}
	if cfg.CompressionMinSize < 0 {
		return Config{}, fmt.Errorf("COMPRESSION_MIN_SIZE must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func millisFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func secondsFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return time.Duration(n) * time.Second, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
