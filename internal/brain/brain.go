// Package brain produces the coach's reply to a finished user turn.
package brain

import "context"

// Message is one prior exchange passed as conversation context.
type Message struct {
	Role    string
	Content string
}

// Request carries everything the generator needs for one reply.
type Request struct {
	UserText    string
	Language    string
	History     []Message
	Scenario    map[string]string
	Interrupted bool
}

// Response is the generated reply. ScenarioUpdates are merged into the
// session's scenario context by the caller.
type Response struct {
	Text            string
	Emotion         string
	ScenarioUpdates map[string]string
}

// Generator produces coach replies. Implementations must honor ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
