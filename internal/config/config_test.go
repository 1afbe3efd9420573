package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.EndTurnSilence != 1200*time.Millisecond {
		t.Fatalf("EndTurnSilence = %v, want 1.2s", cfg.EndTurnSilence)
	}
	if !(cfg.WaitSilence < cfg.GentlePromptSilence && cfg.GentlePromptSilence < cfg.EndTurnSilence) {
		t.Fatalf("default silence thresholds are not ordered: %v %v %v",
			cfg.WaitSilence, cfg.GentlePromptSilence, cfg.EndTurnSilence)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("CacheTTL = %v, want 24h", cfg.CacheTTL)
	}
}

func TestLoadSilenceOverrides(t *testing.T) {
	t.Setenv("END_TURN_SILENCE_MS", "2000")
	t.Setenv("GENTLE_PROMPT_SILENCE_MS", "900")
	t.Setenv("WAIT_SILENCE_MS", "150")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.EndTurnSilence != 2*time.Second {
		t.Fatalf("EndTurnSilence = %v, want 2s", cfg.EndTurnSilence)
	}
	if cfg.GentlePromptSilence != 900*time.Millisecond {
		t.Fatalf("GentlePromptSilence = %v, want 900ms", cfg.GentlePromptSilence)
	}
	if cfg.WaitSilence != 150*time.Millisecond {
		t.Fatalf("WaitSilence = %v, want 150ms", cfg.WaitSilence)
	}
}

func TestLoadRejectsUnorderedThresholds(t *testing.T) {
	t.Setenv("END_TURN_SILENCE_MS", "500")
	t.Setenv("GENTLE_PROMPT_SILENCE_MS", "900")
	t.Setenv("WAIT_SILENCE_MS", "150")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject gentle prompt threshold above end turn threshold")
	}
}

func TestLoadRejectsBadVADThreshold(t *testing.T) {
	t.Setenv("VAD_THRESHOLD", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject VAD_THRESHOLD outside (0, 1)")
	}
}

func TestLoadSecondsOptions(t *testing.T) {
	t.Setenv("RECONNECT_TIMEOUT_S", "45")
	t.Setenv("CACHE_TTL_S", "3600")
	t.Setenv("EXTERNAL_CALL_TIMEOUT_S", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ReconnectTimeout != 45*time.Second {
		t.Fatalf("ReconnectTimeout = %v, want 45s", cfg.ReconnectTimeout)
	}
	if cfg.CacheTTL != time.Hour {
		t.Fatalf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if cfg.ExternalCallTimeout != 5*time.Second {
		t.Fatalf("ExternalCallTimeout = %v, want 5s", cfg.ExternalCallTimeout)
	}
}
