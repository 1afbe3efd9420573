// Package scoring submits finished user turns for asynchronous eloquence
// evaluation. Results come back out of band; the conversation never waits
// on them.
package scoring

import "context"

// TurnSubmission identifies one user utterance to evaluate.
type TurnSubmission struct {
	SessionID string `json:"session_id"`
	Ordinal   int    `json:"turn_ordinal"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Audio     []byte `json:"audio,omitempty"`
}

// Scorer accepts turn submissions. Errors are for the caller's logs only;
// a failed submission never affects the session.
type Scorer interface {
	SubmitTurn(ctx context.Context, sub TurnSubmission) error
}
