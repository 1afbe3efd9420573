package asr

import (
	"context"
	"sync"
)

// Mock returns scripted transcriptions for tests and local development.
type Mock struct {
	Results []Result
	Err     error

	mu        sync.Mutex
	calls     int
	next      int
	lastAudio []byte
}

func (m *Mock) Transcribe(ctx context.Context, audio []byte, language string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastAudio = append([]byte(nil), audio...)
	if m.Err != nil {
		return Result{}, m.Err
	}
	if len(m.Results) == 0 {
		return Result{Text: "transcription simulée", Confidence: 0.99, Language: language}, nil
	}
	r := m.Results[m.next%len(m.Results)]
	m.next++
	return r, nil
}

func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) LastAudio() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastAudio...)
}
