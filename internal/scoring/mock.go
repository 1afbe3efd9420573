package scoring

import (
	"context"
	"sync"
)

// Mock records submissions for tests.
type Mock struct {
	mu          sync.Mutex
	Submissions []TurnSubmission
	Err         error
}

func (m *Mock) SubmitTurn(ctx context.Context, sub TurnSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Submissions = append(m.Submissions, sub)
	return nil
}

func (m *Mock) Submitted() []TurnSubmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TurnSubmission, len(m.Submissions))
	copy(out, m.Submissions)
	return out
}
