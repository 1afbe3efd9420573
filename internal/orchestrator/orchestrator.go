// Package orchestrator owns the per-session state machine: turn-taking from
// voice activity, the transcribe/generate/synthesize pipeline, barge-in, and
// the pause/reconnect window. Each session is driven by exactly one
// goroutine; everything reaches it through a typed event channel.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eloquence-ai/eloquence/internal/archive"
	"github.com/eloquence-ai/eloquence/internal/asr"
	"github.com/eloquence-ai/eloquence/internal/brain"
	"github.com/eloquence-ai/eloquence/internal/observability"
	"github.com/eloquence-ai/eloquence/internal/protocol"
	"github.com/eloquence-ai/eloquence/internal/scoring"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/speechcache"
	"github.com/eloquence-ai/eloquence/internal/tts"
	"github.com/eloquence-ai/eloquence/internal/vad"
)

var ErrSessionEnded = errors.New("session ended")

// Sink is where a session's outbound traffic goes. The gateway connection
// implements it; both methods must be safe to call from any goroutine.
type Sink interface {
	SendJSON(v any) error
	SendBinary(data []byte) error
}

// Deps are the collaborators every session shares.
type Deps struct {
	Registry    *session.Registry
	Transcriber asr.Transcriber
	Generator   brain.Generator
	Synthesizer tts.Synthesizer
	Scorer      scoring.Scorer
	Cache       *speechcache.Cache
	Archive     archive.Store
	Metrics     *observability.Metrics
}

// Options tune turn-taking and timeouts. Zero values get defaults.
type Options struct {
	WaitSilence         time.Duration
	GentlePromptSilence time.Duration
	EndTurnSilence      time.Duration
	ReconnectTimeout    time.Duration
	ExternalCallTimeout time.Duration

	// InterruptConfidence is the minimum VAD confidence for audio alone to
	// barge in on agent speech. Explicit interrupt controls bypass it.
	InterruptConfidence float64

	GentlePromptText string
	VAD              vad.Config
	NewModel         func() vad.Model
}

func (o *Options) applyDefaults() {
	if o.WaitSilence <= 0 {
		o.WaitSilence = 200 * time.Millisecond
	}
	if o.GentlePromptSilence <= 0 {
		o.GentlePromptSilence = 600 * time.Millisecond
	}
	if o.EndTurnSilence <= 0 {
		o.EndTurnSilence = 1200 * time.Millisecond
	}
	if o.ReconnectTimeout <= 0 {
		o.ReconnectTimeout = 30 * time.Second
	}
	if o.ExternalCallTimeout <= 0 {
		o.ExternalCallTimeout = 10 * time.Second
	}
	if o.InterruptConfidence <= 0 {
		o.InterruptConfidence = 0.8
	}
	if o.GentlePromptText == "" {
		o.GentlePromptText = "Vous êtes toujours là ? Prenez votre temps."
	}
	if o.NewModel == nil {
		o.NewModel = func() vad.Model { return vad.NewEnergyModel() }
	}
}

type Orchestrator struct {
	deps Deps
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runners map[string]*runner
}

func New(deps Deps, opts Options) *Orchestrator {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		runners: make(map[string]*runner),
	}
}

// StartSession registers a new session and starts its goroutine.
func (o *Orchestrator) StartSession(language, voiceID string) *session.Session {
	sess := o.deps.Registry.Create("", language, voiceID)
	r := newRunner(o, sess)

	o.mu.Lock()
	o.runners[sess.ID] = r
	o.mu.Unlock()

	o.deps.Metrics.SessionsStarted.Inc()
	o.deps.Metrics.ActiveSessions.Inc()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		r.run(o.ctx)
	}()
	return sess
}

// Attach binds a transport connection to a session. A paused session resumes
// its prior state and the client is told how long it was away.
func (o *Orchestrator) Attach(sessionID string, sink Sink) error {
	return o.post(sessionID, event{kind: evAttach, sink: sink})
}

// Detach reports a transport loss. The session pauses instead of ending.
func (o *Orchestrator) Detach(sessionID string, sink Sink) error {
	return o.post(sessionID, event{kind: evDetach, sink: sink})
}

// IngestAudio feeds one inbound audio frame. Frames are dropped rather than
// blocking the transport when the session is busy with an upstream call.
func (o *Orchestrator) IngestAudio(sessionID string, frame []byte) error {
	r, err := o.runnerFor(sessionID)
	if err != nil {
		return err
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case r.events <- event{kind: evAudio, frame: buf}:
	case <-r.done:
		return ErrSessionEnded
	default:
	}
	return nil
}

// HandleControl feeds a parsed inbound control message.
func (o *Orchestrator) HandleControl(sessionID string, msg protocol.ControlMessage) error {
	return o.post(sessionID, event{kind: evControl, control: msg})
}

// EndSession requests an explicit session end.
func (o *Orchestrator) EndSession(sessionID string) error {
	return o.post(sessionID, event{kind: evEnd})
}

// Shutdown ends every session and waits for the runners to finish, bounded
// by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.runners))
	for id := range o.runners {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		_ = o.EndSession(id)
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.cancel()
		return ctx.Err()
	}
	o.cancel()
	return nil
}

func (o *Orchestrator) post(sessionID string, ev event) error {
	r, err := o.runnerFor(sessionID)
	if err != nil {
		return err
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrSessionEnded
	}
}

func (o *Orchestrator) runnerFor(sessionID string) (*runner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runners[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return r, nil
}

func (o *Orchestrator) dropRunner(sessionID string) {
	o.mu.Lock()
	delete(o.runners, sessionID)
	o.mu.Unlock()
}
