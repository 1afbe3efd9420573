// Package archive persists a summary of each session once it ends. Live
// session state never touches storage; only the final record does.
package archive

import (
	"context"
	"time"
)

// Record is the durable trace of one finished session.
type Record struct {
	SessionID      string
	Language       string
	VoiceID        string
	StartedAt      time.Time
	EndedAt        time.Time
	TurnCount      int
	ReconnectCount int
	Transcript     string
	ScenarioState  map[string]string
}

// Store archives finished sessions.
type Store interface {
	SaveSession(ctx context.Context, rec Record) error
	Close()
}
