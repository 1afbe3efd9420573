package session

import (
	"sync"
	"time"
)

// State is the orchestration state of one coaching session.
type State string

const (
	StateIdle         State = "idle"
	StateUserSpeaking State = "user_speaking"
	StateProcessing   State = "processing"
	StateAISpeaking   State = "ai_speaking"
	StatePaused       State = "paused"
	StateEnded        State = "ended"
)

// Role tags a turn in the conversation history.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one utterance in the session history. Immutable once appended.
type Turn struct {
	Ordinal  int    `json:"ordinal"`
	Role     Role   `json:"role"`
	Text     string `json:"text"`
	Emotion  string `json:"emotion,omitempty"`
	AudioRef string `json:"audio_ref,omitempty"`
}

// Session holds all per-session state. The owning orchestrator goroutine is
// the only writer for most fields; the mutex exists for the snapshot reads
// done by side tasks (gentle prompt, scoring) and the registry.
type Session struct {
	ID       string
	Language string
	VoiceID  string

	mu              sync.Mutex
	state           State
	prevActiveState State
	audioBuffer     []byte
	history         []Turn
	scenario        map[string]string
	interrupted     bool
	pausedAt        time.Time
	reconnectCount  int
	startedAt       time.Time
	lastActivityAt  time.Time
	endedAt         time.Time
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState records a transition. It refuses to leave ENDED, which keeps the
// "ends exactly once" invariant even if a stale side task races the shutdown.
func (s *Session) SetState(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return false
	}
	s.state = next
	s.lastActivityAt = time.Now().UTC()
	if next == StateEnded {
		s.endedAt = s.lastActivityAt
	}
	return true
}

// CompareAndSetState transitions only when the current state matches want.
func (s *Session) CompareAndSetState(want, next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != want || s.state == StateEnded {
		return false
	}
	s.state = next
	s.lastActivityAt = time.Now().UTC()
	return true
}

func (s *Session) AppendAudio(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuffer = append(s.audioBuffer, frame...)
}

// ResetAudioBuffer clears the ingestion buffer for a new speaking episode.
func (s *Session) ResetAudioBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBuffer = s.audioBuffer[:0]
}

// TakeAudio returns the buffered episode audio and empties the buffer.
func (s *Session) TakeAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.audioBuffer))
	copy(out, s.audioBuffer)
	s.audioBuffer = s.audioBuffer[:0]
	return out
}

func (s *Session) BufferedAudioLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audioBuffer)
}

func (s *Session) MarkInterrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = true
}

func (s *Session) ClearInterrupted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupted = false
}

func (s *Session) Interrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// AppendTurn adds a history entry and returns its ordinal.
func (s *Session) AppendTurn(role Role, text, emotion, audioRef string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	turn := Turn{
		Ordinal:  len(s.history) + 1,
		Role:     role,
		Text:     text,
		Emotion:  emotion,
		AudioRef: audioRef,
	}
	s.history = append(s.history, turn)
	s.lastActivityAt = time.Now().UTC()
	return turn
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// MergeScenario folds generator-proposed updates into the scenario context.
func (s *Session) MergeScenario(updates map[string]string) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scenario == nil {
		s.scenario = make(map[string]string, len(updates))
	}
	for k, v := range updates {
		s.scenario[k] = v
	}
}

func (s *Session) Scenario() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.scenario))
	for k, v := range s.scenario {
		out[k] = v
	}
	return out
}

// Pause records a transport loss, remembering which active state to resume.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded || s.state == StatePaused {
		return false
	}
	s.prevActiveState = s.state
	s.state = StatePaused
	s.pausedAt = time.Now().UTC()
	return true
}

// Resume restores the pre-pause state and returns the pause duration and the
// updated reconnect count.
func (s *Session) Resume() (time.Duration, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return 0, s.reconnectCount, false
	}
	pauseDur := time.Since(s.pausedAt)
	s.state = s.prevActiveState
	if s.state == "" {
		s.state = StateIdle
	}
	s.pausedAt = time.Time{}
	s.reconnectCount++
	s.lastActivityAt = time.Now().UTC()
	return pauseDur, s.reconnectCount, true
}

func (s *Session) PausedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedAt
}

func (s *Session) ReconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectCount
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}
