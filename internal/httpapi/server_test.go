package httpapi

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/eloquence-ai/eloquence/internal/archive"
	"github.com/eloquence-ai/eloquence/internal/asr"
	"github.com/eloquence-ai/eloquence/internal/brain"
	"github.com/eloquence-ai/eloquence/internal/config"
	"github.com/eloquence-ai/eloquence/internal/observability"
	"github.com/eloquence-ai/eloquence/internal/orchestrator"
	"github.com/eloquence-ai/eloquence/internal/scoring"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/speechcache"
	"github.com/eloquence-ai/eloquence/internal/tts"
	"github.com/eloquence-ai/eloquence/internal/vad"
)

type amplitudeModel struct{}

func (amplitudeModel) Predict(window []float32) float64 {
	for _, s := range window {
		if s > 0.01 || s < -0.01 {
			return 0.95
		}
	}
	return 0.05
}

func (amplitudeModel) Reset() {}

func pcmFrame(amplitude int16) []byte {
	raw := make([]byte, 1024)
	for i := 0; i < len(raw); i += 2 {
		binary.LittleEndian.PutUint16(raw[i:], uint16(amplitude))
	}
	return raw
}

func newTestServer(t *testing.T, cache *speechcache.Cache) (*httptest.Server, *Server) {
	t.Helper()
	cfg := config.Config{
		DefaultLanguage: "fr",
		DefaultVoiceID:  "coach_fr_1",
		AllowAnyOrigin:  true,
		ShutdownTimeout: time.Second,
	}
	metrics := observability.NewMetrics("test")
	registry := session.NewRegistry()
	synth := &tts.Mock{}
	orch := orchestrator.New(orchestrator.Deps{
		Registry:    registry,
		Transcriber: &asr.Mock{Results: []asr.Result{{Text: "bonjour", Confidence: 0.9}}},
		Generator:   &brain.Mock{Reply: brain.Response{Text: "salut !", Emotion: "neutre"}},
		Synthesizer: synth,
		Scorer:      &scoring.Mock{},
		Archive:     archive.NewInMemoryStore(),
		Metrics:     metrics,
	}, orchestrator.Options{
		WaitSilence:         50 * time.Millisecond,
		GentlePromptSilence: 1190 * time.Millisecond,
		EndTurnSilence:      1200 * time.Millisecond,
		NewModel:            func() vad.Model { return amplitudeModel{} },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})

	server := New(cfg, orch, registry, cache, synth, metrics)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, server
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/session", "application/json", strings.NewReader(`{"language":"fr"}`))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out.SessionID
}

func dialSession(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/session/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestFullTurnOverWebSocket(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	sessionID := createSession(t, ts)
	conn := dialSession(t, ts, sessionID)

	speech := pcmFrame(8000)
	silence := pcmFrame(0)
	for i := 0; i < 10; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, speech); err != nil {
			t.Fatalf("write speech: %v", err)
		}
	}
	for i := 0; i < 47; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, silence); err != nil {
			t.Fatalf("write silence: %v", err)
		}
	}

	var got []string
	audioBytes := 0
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.BinaryMessage {
			got = append(got, "audio")
			audioBytes += len(data)
			continue
		}
		var envelope struct {
			Type  string `json:"type"`
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("bad outbound payload %q: %v", data, err)
		}
		tag := envelope.Type
		if envelope.Event != "" {
			tag += ":" + envelope.Event
		}
		got = append(got, tag)
		if tag == "audio_control:ai_speech_end" {
			break
		}
	}

	want := []string{"transcript_ia", "audio_control:ai_speech_start", "audio", "audio_control:ai_speech_end"}
	if len(got) != len(want) {
		t.Fatalf("messages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages = %v, want %v", got, want)
		}
	}
	if audioBytes == 0 {
		t.Fatal("no synthesized audio relayed")
	}
}

func TestMalformedControlKeepsSocketOpen(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	sessionID := createSession(t, ts)
	conn := dialSession(t, ts, sessionID)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write malformed: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"control","event":"dance"}`)); err != nil {
		t.Fatalf("write unrecognized: %v", err)
	}

	// The socket must stay open: expect a read timeout, not a close error.
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected no outbound message")
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("socket should still be open, got %v", err)
	}
}

func TestEndSessionRoute(t *testing.T) {
	ts, server := newTestServer(t, nil)
	sessionID := createSession(t, ts)

	resp, err := http.Post(ts.URL+"/v1/session/"+sessionID+"/end", "application/json", nil)
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("end session status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := server.registry.Get(sessionID); err == session.ErrNotFound {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("ended session should leave the registry")
}

func TestCacheAdminRoutes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := speechcache.New(rdb, speechcache.Options{}, nil)

	ts, _ := newTestServer(t, cache)

	body := `{"items":[{"text":"bonjour"},{"text":"au revoir"}],"per_second":100}`
	resp, err := http.Post(ts.URL+"/v1/cache/preload", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("preload: %v", err)
	}
	var preload speechcache.PreloadResult
	if err := json.NewDecoder(resp.Body).Decode(&preload); err != nil {
		t.Fatalf("decode preload: %v", err)
	}
	resp.Body.Close()
	if preload.NewlyCached != 2 || preload.Failed != 0 {
		t.Fatalf("unexpected preload result: %+v", preload)
	}

	resp, err = http.Get(ts.URL + "/v1/cache/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	var metrics speechcache.Metrics
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	resp.Body.Close()
	if metrics.Stores != 2 {
		t.Fatalf("stores = %d, want 2", metrics.Stores)
	}

	resp, err = http.Post(ts.URL+"/v1/cache/clear", "application/json", bytes.NewReader([]byte(`{"pattern":"*"}`)))
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	var cleared struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode clear: %v", err)
	}
	resp.Body.Close()
	if cleared.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", cleared.Deleted)
	}
}
