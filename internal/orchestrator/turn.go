package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/eloquence-ai/eloquence/internal/brain"
	"github.com/eloquence-ai/eloquence/internal/protocol"
	"github.com/eloquence-ai/eloquence/internal/scoring"
	"github.com/eloquence-ai/eloquence/internal/session"
	"github.com/eloquence-ai/eloquence/internal/tts"
)

const cachedChunkSize = 4096

// runTurn executes one full user turn: transcribe the buffered episode,
// generate a reply, and stream its audio. It always leaves the session in
// IDLE or USER_SPEAKING.
func (r *runner) runTurn(ctx context.Context) {
	r.silence = 0
	r.gentleSent = false

	audio := r.sess.TakeAudio()
	r.detector.Reset()
	if len(audio) == 0 {
		r.setState(session.StateIdle)
		return
	}
	r.setState(session.StateProcessing)

	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, r.o.opts.ExternalCallTimeout)
	res, err := r.o.deps.Transcriber.Transcribe(tctx, audio, r.sess.Language)
	cancel()
	if err != nil {
		r.abortTurn("transcription", err)
		return
	}
	r.observeStage("transcription", start)

	text := strings.TrimSpace(res.Text)
	if text == "" {
		r.setState(session.StateIdle)
		return
	}

	priorHistory := r.sess.History()
	userTurn := r.sess.AppendTurn(session.RoleUser, text, "", "")
	wasInterrupted := r.sess.Interrupted()
	r.sess.ClearInterrupted()

	start = time.Now()
	gctx, cancel := context.WithTimeout(ctx, r.o.opts.ExternalCallTimeout)
	reply, err := r.o.deps.Generator.Generate(gctx, brain.Request{
		UserText:    text,
		Language:    r.sess.Language,
		History:     historyMessages(priorHistory),
		Scenario:    r.sess.Scenario(),
		Interrupted: wasInterrupted,
	})
	cancel()
	if err != nil {
		r.abortTurn("generation", err)
		return
	}
	r.observeStage("generation", start)
	r.sess.MergeScenario(reply.ScenarioUpdates)

	// Response text reaches the client before its audio starts.
	r.send(protocol.NewTranscript(reply.Text, reply.Emotion))

	played, interrupted := r.speak(ctx, reply.Text, reply.Emotion)

	// A reply that never reached playback does not enter the history; the
	// coached conversation stays aligned with what was actually heard.
	if played {
		r.sess.AppendTurn(session.RoleAgent, reply.Text, reply.Emotion, "")
	}
	r.submitScoring(userTurn, audio)

	if !interrupted {
		r.setState(session.StateIdle)
	}
	if r.pendingDetach {
		r.pendingDetach = false
		r.beginPause()
	}
}

// speak streams the reply audio while still servicing session events, so a
// barge-in cuts playback mid-chunk. Once playback starts it emits exactly one
// ai_speech_end. It reports whether playback started at all and whether the
// user interrupted it.
func (r *runner) speak(ctx context.Context, text, emotion string) (played, interrupted bool) {
	lang, voice := r.sess.Language, r.sess.VoiceID

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var chunks <-chan tts.Chunk
	fromCache := false
	if r.o.deps.Cache != nil {
		if cached, ok := r.o.deps.Cache.Get(sctx, text, lang, voice, emotion); ok {
			chunks = chunkCached(sctx, cached)
			fromCache = true
		}
	}
	if chunks == nil {
		var err error
		chunks, err = r.o.deps.Synthesizer.Stream(sctx, text, lang, voice, emotion)
		if err != nil {
			r.abortTurn("synthesis", err)
			return false, false
		}
	}

	r.setState(session.StateAISpeaking)
	r.send(protocol.NewAudioControl(protocol.EventAISpeechStart))
	start := time.Now()

	var synthesized []byte
	var streamErr error

	stall := time.NewTimer(r.o.opts.ExternalCallTimeout)
	defer stall.Stop()

loop:
	for {
		select {
		case ev := <-r.events:
			switch r.handleDuringStream(ev) {
			case streamInterrupted:
				interrupted = true
				break loop
			case streamAbandoned:
				break loop
			}
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				break loop
			}
			if r.sess.Interrupted() {
				interrupted = true
				break loop
			}
			if !fromCache {
				synthesized = append(synthesized, chunk.Data...)
			}
			r.sendBinary(chunk.Data)
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(r.o.opts.ExternalCallTimeout)
		case <-stall.C:
			streamErr = fmt.Errorf("synthesis stalled after %s", r.o.opts.ExternalCallTimeout)
			break loop
		}
	}
	cancel()

	r.send(protocol.NewAudioControl(protocol.EventAISpeechEnd))
	r.observeStage("synthesis", start)

	if streamErr != nil {
		log.Printf("[orchestrator] session %s: synthesis: %v", r.sess.ID, streamErr)
		r.o.deps.Metrics.UpstreamErrors.WithLabelValues("synthesis").Inc()
		r.send(protocol.NewError("upstream_error", "speech synthesis failed, please try again"))
		return true, interrupted
	}

	if !fromCache && !interrupted && len(synthesized) > 0 && r.o.deps.Cache != nil {
		payload := synthesized
		go func() {
			cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer ccancel()
			if err := r.o.deps.Cache.Set(cctx, text, lang, voice, emotion, payload); err != nil {
				log.Printf("[orchestrator] session %s: cache store: %v", r.sess.ID, err)
			}
		}()
	}
	return true, interrupted
}

type streamVerdict int

const (
	streamContinue streamVerdict = iota
	streamInterrupted
	streamAbandoned
)

// handleDuringStream services events that arrive while agent audio is
// playing. Audio frames run through the detector for barge-in; transport
// events abandon the stream.
func (r *runner) handleDuringStream(ev event) streamVerdict {
	switch ev.kind {
	case evAudio:
		res := r.detector.Process(ev.frame)
		if res.IsSpeech && res.Confidence >= r.o.opts.InterruptConfidence {
			r.triggerInterrupt(ev.frame)
			return streamInterrupted
		}
	case evControl:
		switch ev.control.Event {
		case protocol.EventUserInterruptStart:
			r.triggerInterrupt(nil)
			return streamInterrupted
		default:
			log.Printf("[orchestrator] session %s: control %q ignored during playback", r.sess.ID, ev.control.Event)
		}
	case evAttach:
		r.onAttach(ev.sink)
	case evDetach:
		if r.clearSinkIf(ev.sink) {
			r.pendingDetach = true
			return streamAbandoned
		}
	case evEnd:
		r.ended = true
		return streamAbandoned
	}
	return streamContinue
}

// triggerInterrupt flips the session into a fresh USER_SPEAKING episode.
// The triggering frame starts the new episode; everything before it is
// discarded.
func (r *runner) triggerInterrupt(frame []byte) {
	r.o.deps.Metrics.Interruptions.Inc()
	r.sess.MarkInterrupted()
	r.setState(session.StateUserSpeaking)
	r.sess.ResetAudioBuffer()
	r.detector.Reset()
	r.preroll = r.preroll[:0]
	r.silence = 0
	r.gentleSent = false
	if len(frame) > 0 {
		r.sess.AppendAudio(frame)
		r.detector.Process(frame)
	}
	log.Printf("[orchestrator] session %s: user barge-in", r.sess.ID)
}

// spawnGentlePrompt asks the user to continue, off the session goroutine so
// synthesis latency never blocks audio ingestion. The prompt is dropped if
// the user resumed speaking or the turn ended meanwhile.
func (r *runner) spawnGentlePrompt(ctx context.Context) {
	text := r.o.opts.GentlePromptText
	go func() {
		audio, err := r.synthesizeSnippet(text, "neutre")
		if err != nil {
			log.Printf("[orchestrator] session %s: gentle prompt: %v", r.sess.ID, err)
			return
		}
		select {
		case <-r.done:
			return
		default:
		}
		if r.sess.State() != session.StateUserSpeaking {
			return
		}
		r.o.deps.Metrics.GentlePrompts.Inc()
		r.send(protocol.NewAudioControl(protocol.EventGentlePrompt))
		r.sendBinary(audio)
	}()
}

// synthesizeSnippet produces short canned audio, cache-first. Used for the
// gentle prompt, where the same phrase repeats across sessions.
func (r *runner) synthesizeSnippet(text, emotion string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.o.opts.ExternalCallTimeout)
	defer cancel()

	lang, voice := r.sess.Language, r.sess.VoiceID
	if r.o.deps.Cache != nil {
		if audio, ok := r.o.deps.Cache.Get(ctx, text, lang, voice, emotion); ok {
			return audio, nil
		}
	}
	audio, err := r.o.deps.Synthesizer.Synthesize(ctx, text, lang, voice, emotion)
	if err != nil {
		return nil, err
	}
	if r.o.deps.Cache != nil {
		if err := r.o.deps.Cache.Set(ctx, text, lang, voice, emotion, audio); err != nil {
			log.Printf("[orchestrator] session %s: cache store: %v", r.sess.ID, err)
		}
	}
	return audio, nil
}

func (r *runner) submitScoring(turn session.Turn, audio []byte) {
	if r.o.deps.Scorer == nil {
		return
	}
	sub := scoring.TurnSubmission{
		SessionID: r.sess.ID,
		Ordinal:   turn.Ordinal,
		Text:      turn.Text,
		Language:  r.sess.Language,
		Audio:     audio,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.o.opts.ExternalCallTimeout)
		defer cancel()
		if err := r.o.deps.Scorer.SubmitTurn(ctx, sub); err != nil {
			log.Printf("[orchestrator] session %s: scoring: %v", r.sess.ID, err)
		}
	}()
}

func (r *runner) abortTurn(stage string, err error) {
	log.Printf("[orchestrator] session %s: %s: %v", r.sess.ID, stage, err)
	r.o.deps.Metrics.UpstreamErrors.WithLabelValues(stage).Inc()
	r.send(protocol.NewError("upstream_error", stage+" failed, please try again"))
	r.setState(session.StateIdle)
}

func (r *runner) observeStage(stage string, start time.Time) {
	r.o.deps.Metrics.TurnStageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func historyMessages(turns []session.Turn) []brain.Message {
	out := make([]brain.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, brain.Message{Role: string(t.Role), Content: t.Text})
	}
	return out
}

// chunkCached replays a cached utterance with the same chunk cadence a live
// synthesis stream would have.
func chunkCached(ctx context.Context, data []byte) <-chan tts.Chunk {
	out := make(chan tts.Chunk)
	go func() {
		defer close(out)
		for off := 0; off < len(data); off += cachedChunkSize {
			end := off + cachedChunkSize
			if end > len(data) {
				end = len(data)
			}
			select {
			case out <- tts.Chunk{Data: data[off:end]}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
