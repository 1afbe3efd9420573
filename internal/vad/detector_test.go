package vad

import (
	"encoding/binary"
	"math"
	"testing"
)

// scriptedModel replays a fixed probability sequence, one value per window.
type scriptedModel struct {
	probs  []float64
	pos    int
	resets int
}

func (m *scriptedModel) Predict([]float32) float64 {
	if m.pos >= len(m.probs) {
		return 0
	}
	p := m.probs[m.pos]
	m.pos++
	return p
}

func (m *scriptedModel) Reset() { m.resets++ }

func pcmBytes(samples int, amplitude int16) []byte {
	raw := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(amplitude))
	}
	return raw
}

func TestDetectorRequiresConsecutiveSpeechFrames(t *testing.T) {
	model := &scriptedModel{probs: []float64{0.9, 0.9, 0.9}}
	d := NewDetector(model, Config{ConsecutiveSpeechFrames: 3, ConsecutiveSilenceFrames: 5})

	window := pcmBytes(512, 0)
	if res := d.Process(window); res.IsSpeech {
		t.Fatal("one speech window should not flip is_speech")
	}
	if res := d.Process(window); res.IsSpeech {
		t.Fatal("two speech windows should not flip is_speech")
	}
	if res := d.Process(window); !res.IsSpeech {
		t.Fatal("third consecutive speech window should flip is_speech")
	}
}

func TestDetectorRequiresConsecutiveSilenceFrames(t *testing.T) {
	model := &scriptedModel{probs: []float64{0.9, 0.9, 0.9, 0.1, 0.1, 0.1, 0.1, 0.1}}
	d := NewDetector(model, Config{ConsecutiveSpeechFrames: 3, ConsecutiveSilenceFrames: 5})

	window := pcmBytes(512, 0)
	for i := 0; i < 3; i++ {
		d.Process(window)
	}
	for i := 0; i < 4; i++ {
		if res := d.Process(window); !res.IsSpeech {
			t.Fatalf("is_speech dropped after %d silence windows, want 5", i+1)
		}
	}
	if res := d.Process(window); res.IsSpeech {
		t.Fatal("fifth consecutive silence window should drop is_speech")
	}
}

func TestDetectorSilenceResetsSpeechRun(t *testing.T) {
	// Speech, speech, silence, speech, speech: the run restarts, so the
	// threshold of three is never met.
	model := &scriptedModel{probs: []float64{0.9, 0.9, 0.1, 0.9, 0.9}}
	d := NewDetector(model, Config{ConsecutiveSpeechFrames: 3, ConsecutiveSilenceFrames: 5})

	window := pcmBytes(512, 0)
	var last Result
	for i := 0; i < 5; i++ {
		last = d.Process(window)
	}
	if last.IsSpeech {
		t.Fatal("interleaved silence should restart the consecutive speech count")
	}
}

func TestDetectorPartialWindowsAreBuffered(t *testing.T) {
	model := &scriptedModel{probs: []float64{0.9}}
	d := NewDetector(model, Config{})

	half := pcmBytes(256, 0)
	if res := d.Process(half); res.Windows != 0 {
		t.Fatalf("Windows = %d for a half window, want 0", res.Windows)
	}
	if res := d.Process(half); res.Windows != 1 {
		t.Fatalf("Windows = %d after the second half, want 1", res.Windows)
	}
}

func TestDetectorConfidence(t *testing.T) {
	model := &scriptedModel{probs: []float64{0.9, 0.9, 0.9, 0.9, 0.9}}
	d := NewDetector(model, Config{})

	var res Result
	for i := 0; i < 5; i++ {
		res = d.Process(pcmBytes(512, 0))
	}
	// Five probabilities of 0.9 average to 0.9; |0.9-0.5|*2 = 0.8.
	if math.Abs(res.Confidence-0.8) > 1e-9 {
		t.Fatalf("Confidence = %v, want 0.8", res.Confidence)
	}
}

func TestDetectorResetClearsStateAndModel(t *testing.T) {
	model := &scriptedModel{probs: []float64{0.9, 0.9, 0.9, 0.9}}
	d := NewDetector(model, Config{ConsecutiveSpeechFrames: 3, ConsecutiveSilenceFrames: 5})

	window := pcmBytes(512, 0)
	for i := 0; i < 3; i++ {
		d.Process(window)
	}
	d.Reset()

	if res := d.Process(window); res.IsSpeech {
		t.Fatal("a single speech window after Reset() must not report speech")
	}
	if model.resets != 1 {
		t.Fatalf("model resets = %d, want 1", model.resets)
	}
}

func TestEnergyModelSeparatesSpeechFromNoiseFloor(t *testing.T) {
	m := NewEnergyModel()

	quiet := make([]float32, 512)
	loud := make([]float32, 512)
	for i := range quiet {
		quiet[i] = 0.01
		loud[i] = 0.3
	}

	for i := 0; i < 5; i++ {
		if p := m.Predict(quiet); p >= 0.5 {
			t.Fatalf("quiet window prob = %v, want < 0.5", p)
		}
	}
	if p := m.Predict(loud); p < 0.5 {
		t.Fatalf("loud window prob = %v, want >= 0.5", p)
	}
}
