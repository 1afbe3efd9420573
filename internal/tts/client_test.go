package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientStream(t *testing.T) {
	audio := bytes.Repeat([]byte{0xAB}, streamChunkSize+100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req synthesisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "bonjour" || req.VoiceID != "coach_fr_1" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Write(audio)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	stream, err := c.Stream(context.Background(), "bonjour", "fr", "coach_fr_1", "neutre")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var got bytes.Buffer
	chunks := 0
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("chunk error = %v", chunk.Err)
		}
		got.Write(chunk.Data)
		chunks++
	}
	if !bytes.Equal(got.Bytes(), audio) {
		t.Fatalf("reassembled audio differs: got %d bytes, want %d", got.Len(), len(audio))
	}
	if chunks != 2 {
		t.Fatalf("chunks = %d, want 2", chunks)
	}
}

func TestClientStreamRejectsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if _, err := c.Stream(context.Background(), "x", "fr", "missing", ""); err == nil {
		t.Fatal("non-200 response should fail before any chunk is produced")
	}
}

func TestClientSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("full-audio"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	audio, err := c.Synthesize(context.Background(), "x", "fr", "v", "")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio) != "full-audio" {
		t.Fatalf("audio = %q", audio)
	}
}
