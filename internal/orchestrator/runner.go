package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/eloquence-ai/eloquence/internal/archive"
	"github.com/eloquence-ai/eloquence/internal/protocol"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/vad"
)

// prerollLimit bounds the audio retained while idle so the onset of an
// utterance is not lost to the speech debounce. One second at 16 kHz PCM16.
const prerollLimit = 32000

type eventKind int

const (
	evAudio eventKind = iota
	evControl
	evAttach
	evDetach
	evEnd
	evReconnectTimeout
)

type event struct {
	kind     eventKind
	frame    []byte
	control  protocol.ControlMessage
	sink     Sink
	pauseGen int
}

// runner drives one session. All state transitions happen on its goroutine;
// the only side goroutines are the gentle prompt and scoring submissions,
// which re-check session state before acting.
type runner struct {
	o        *Orchestrator
	sess     *session.Session
	detector *vad.Detector
	events   chan event
	done     chan struct{}

	sinkMu sync.Mutex
	sink   Sink

	preroll    []byte
	silence    time.Duration
	gentleSent bool

	pauseGen      int
	pendingDetach bool
	ended         bool
}

func newRunner(o *Orchestrator, sess *session.Session) *runner {
	return &runner{
		o:        o,
		sess:     sess,
		detector: vad.NewDetector(o.opts.NewModel(), o.opts.VAD),
		events:   make(chan event, 256),
		done:     make(chan struct{}),
	}
}

func (r *runner) run(ctx context.Context) {
	defer r.finalize()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.handle(ctx, ev)
			if r.ended {
				return
			}
		}
	}
}

func (r *runner) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evAudio:
		r.onAudio(ctx, ev.frame)
	case evControl:
		r.onControl(ctx, ev.control)
	case evAttach:
		r.onAttach(ev.sink)
	case evDetach:
		if r.clearSinkIf(ev.sink) {
			r.beginPause()
		}
	case evReconnectTimeout:
		if ev.pauseGen == r.pauseGen && r.sess.State() == session.StatePaused {
			log.Printf("[orchestrator] session %s: reconnect window elapsed", r.sess.ID)
			r.ended = true
		}
	case evEnd:
		r.ended = true
	}
}

func (r *runner) onAudio(ctx context.Context, frame []byte) {
	switch r.sess.State() {
	case session.StateIdle:
		res := r.detector.Process(frame)
		r.preroll = append(r.preroll, frame...)
		if len(r.preroll) > prerollLimit {
			r.preroll = r.preroll[len(r.preroll)-prerollLimit:]
		}
		if res.IsSpeech {
			r.beginEpisode()
		}

	case session.StateUserSpeaking:
		r.sess.AppendAudio(frame)
		res := r.detector.Process(frame)
		if res.Windows == 0 {
			return
		}
		if res.SpeechWindows > 0 {
			r.silence = 0
			r.gentleSent = false
			return
		}
		r.silence += time.Duration(res.SilenceWindows) * r.detector.WindowDuration()
		r.evalSilence(ctx)

	default:
		// Audio while processing or paused belongs to no episode.
	}
}

func (r *runner) onControl(ctx context.Context, msg protocol.ControlMessage) {
	switch msg.Event {
	case protocol.EventUserSpeechEnd:
		if r.sess.State() != session.StateUserSpeaking {
			log.Printf("[orchestrator] session %s: speech end ignored in state %s", r.sess.ID, r.sess.State())
			return
		}
		r.runTurn(ctx)
	case protocol.EventUserInterruptStart:
		// Only meaningful while agent audio streams; the streaming loop
		// consumes it there.
		log.Printf("[orchestrator] session %s: interrupt ignored in state %s", r.sess.ID, r.sess.State())
	default:
		log.Printf("[orchestrator] session %s: unrecognized control event %q ignored", r.sess.ID, msg.Event)
	}
}

// beginEpisode starts a USER_SPEAKING episode with a fresh buffer seeded
// from the idle preroll, so debounced onset audio is kept.
func (r *runner) beginEpisode() {
	r.setState(session.StateUserSpeaking)
	r.sess.ResetAudioBuffer()
	if len(r.preroll) > 0 {
		r.sess.AppendAudio(r.preroll)
		r.preroll = r.preroll[:0]
	}
	r.silence = 0
	r.gentleSent = false
}

func (r *runner) evalSilence(ctx context.Context) {
	switch d := r.silence; {
	case d >= r.o.opts.EndTurnSilence:
		r.runTurn(ctx)
	case d >= r.o.opts.GentlePromptSilence && !r.gentleSent:
		r.gentleSent = true
		r.spawnGentlePrompt(ctx)
	case d >= r.o.opts.WaitSilence:
		// Keep buffering.
	}
}

func (r *runner) onAttach(sink Sink) {
	r.sinkMu.Lock()
	r.sink = sink
	r.sinkMu.Unlock()
	r.pauseGen++

	if pauseDur, count, ok := r.sess.Resume(); ok {
		r.o.deps.Metrics.StateTransitions.
			WithLabelValues(string(session.StatePaused), string(r.sess.State())).Inc()
		msg := protocol.NewAudioControl(protocol.EventSessionResumed)
		msg.PauseDuration = pauseDur.Seconds()
		msg.ReconnectCount = count
		r.send(msg)
		log.Printf("[orchestrator] session %s: resumed after %.1fs (reconnect %d)", r.sess.ID, pauseDur.Seconds(), count)
	}
}

func (r *runner) beginPause() {
	prev := r.sess.State()
	if !r.sess.Pause() {
		return
	}
	r.o.deps.Metrics.StateTransitions.
		WithLabelValues(string(prev), string(session.StatePaused)).Inc()

	r.pauseGen++
	gen := r.pauseGen
	time.AfterFunc(r.o.opts.ReconnectTimeout, func() {
		select {
		case r.events <- event{kind: evReconnectTimeout, pauseGen: gen}:
		case <-r.done:
		}
	})
	log.Printf("[orchestrator] session %s: paused, waiting %s for reconnect", r.sess.ID, r.o.opts.ReconnectTimeout)
}

func (r *runner) clearSinkIf(sink Sink) bool {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	if r.sink != sink {
		return false
	}
	r.sink = nil
	return true
}

func (r *runner) send(v any) {
	r.sinkMu.Lock()
	sink := r.sink
	r.sinkMu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.SendJSON(v); err != nil {
		log.Printf("[orchestrator] session %s: send: %v", r.sess.ID, err)
	}
}

func (r *runner) sendBinary(data []byte) {
	r.sinkMu.Lock()
	sink := r.sink
	r.sinkMu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.SendBinary(data); err != nil {
		log.Printf("[orchestrator] session %s: send audio: %v", r.sess.ID, err)
	}
}

func (r *runner) setState(next session.State) {
	prev := r.sess.State()
	if prev == next {
		return
	}
	if r.sess.SetState(next) {
		r.o.deps.Metrics.StateTransitions.
			WithLabelValues(string(prev), string(next)).Inc()
	}
}

func (r *runner) finalize() {
	close(r.done)
	r.setState(session.StateEnded)
	r.o.deps.Metrics.SessionsEnded.Inc()
	r.o.deps.Metrics.ActiveSessions.Dec()

	r.archiveSession()
	r.o.deps.Registry.Remove(r.sess.ID)
	r.o.dropRunner(r.sess.ID)
	log.Printf("[orchestrator] session %s: ended", r.sess.ID)
}

func (r *runner) archiveSession() {
	if r.o.deps.Archive == nil {
		return
	}
	history := r.sess.History()
	var transcript strings.Builder
	for _, turn := range history {
		transcript.WriteString(string(turn.Role))
		transcript.WriteString(": ")
		transcript.WriteString(turn.Text)
		transcript.WriteByte('\n')
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.o.deps.Archive.SaveSession(ctx, archive.Record{
		SessionID:      r.sess.ID,
		Language:       r.sess.Language,
		VoiceID:        r.sess.VoiceID,
		StartedAt:      r.sess.StartedAt(),
		EndedAt:        r.sess.EndedAt(),
		TurnCount:      len(history),
		ReconnectCount: r.sess.ReconnectCount(),
		Transcript:     transcript.String(),
		ScenarioState:  r.sess.Scenario(),
	})
	if err != nil {
		log.Printf("[orchestrator] session %s: archive: %v", r.sess.ID, err)
	}
}
