package brain

import (
	"context"
	"sync"
)

// Mock returns a canned reply for tests.
type Mock struct {
	Reply Response
	Err   error

	mu    sync.Mutex
	calls []Request
}

func (m *Mock) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Err != nil {
		return Response{}, m.Err
	}
	if m.Reply.Text == "" {
		return Response{Text: "très bien, continuons", Emotion: defaultEmotion}, nil
	}
	return m.Reply, nil
}

func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
