package tts

import (
	"bytes"
	"context"
	"sync"
)

// Mock streams scripted chunks for tests. Gate, when set, is received from
// before each chunk so a test can hold the stream mid-utterance and inject
// an interruption.
type Mock struct {
	Chunks [][]byte
	Err    error
	Gate   chan struct{}

	mu         sync.Mutex
	calls      int
	live       []context.Context
	maxStreams int
}

func (m *Mock) Stream(ctx context.Context, text, language, voiceID, emotion string) (<-chan Chunk, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	m.calls++
	// A stream is live until its context is canceled. Tracking liveness at
	// open time lets tests assert playback streams never overlap.
	keep := m.live[:0]
	for _, prev := range m.live {
		if prev.Err() == nil {
			keep = append(keep, prev)
		}
	}
	m.live = append(keep, ctx)
	if len(m.live) > m.maxStreams {
		m.maxStreams = len(m.live)
	}
	m.mu.Unlock()

	chunks := m.Chunks
	if len(chunks) == 0 {
		chunks = [][]byte{[]byte("audio:" + text)}
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		for _, data := range chunks {
			if m.Gate != nil {
				select {
				case <-m.Gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- Chunk{Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *Mock) Synthesize(ctx context.Context, text, language, voiceID, emotion string) ([]byte, error) {
	stream, err := m.Stream(ctx, text, language, voiceID, emotion)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for chunk := range stream {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		buf.Write(chunk.Data)
	}
	return buf.Bytes(), nil
}

func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MaxConcurrentStreams reports the peak number of simultaneously live streams.
func (m *Mock) MaxConcurrentStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxStreams
}
