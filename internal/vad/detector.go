package vad

import (
	"encoding/binary"
	"time"
)

const probabilityHistory = 5

// Result is the classification of the most recent audio fed to the detector.
type Result struct {
	// SpeechProb is the raw model probability of the last classified window.
	// Valid only when Windows > 0.
	SpeechProb float64
	// IsSpeech is the debounced speech state after hysteresis.
	IsSpeech bool
	// Confidence reflects how far recent probabilities sit from the 0.5
	// decision boundary: 0 at the boundary, 1 at either extreme.
	Confidence float64
	// Windows is how many full windows this call classified.
	Windows int
	// SpeechWindows and SilenceWindows split Windows by raw classification
	// against the threshold, before debouncing.
	SpeechWindows  int
	SilenceWindows int
}

// Config tunes framing and hysteresis.
type Config struct {
	Threshold                float64
	WindowSamples            int
	SampleRate               int
	ConsecutiveSpeechFrames  int
	ConsecutiveSilenceFrames int
}

func (c *Config) applyDefaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.5
	}
	if c.WindowSamples <= 0 {
		c.WindowSamples = 512
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.ConsecutiveSpeechFrames <= 0 {
		c.ConsecutiveSpeechFrames = 3
	}
	if c.ConsecutiveSilenceFrames <= 0 {
		c.ConsecutiveSilenceFrames = 5
	}
}

// Detector frames mono PCM16 audio into fixed windows, runs the probability
// model on each, and debounces the speech/silence decision so an isolated
// misclassified window cannot flip the reported state.
//
// Detector is not safe for concurrent use; each session owns one.
type Detector struct {
	cfg   Config
	model Model

	buffer     []byte
	isSpeech   bool
	speechRun  int
	silenceRun int

	recentProbs []float64
}

func NewDetector(model Model, cfg Config) *Detector {
	cfg.applyDefaults()
	return &Detector{
		cfg:         cfg,
		model:       model,
		recentProbs: make([]float64, 0, probabilityHistory),
	}
}

// WindowDuration is the wall-clock span of one classification window.
func (d *Detector) WindowDuration() time.Duration {
	return time.Duration(d.cfg.WindowSamples) * time.Second / time.Duration(d.cfg.SampleRate)
}

// Process appends a chunk of little-endian PCM16 bytes and classifies every
// complete window now available. Leftover bytes stay buffered for the next
// call.
func (d *Detector) Process(chunk []byte) Result {
	d.buffer = append(d.buffer, chunk...)

	windowBytes := d.cfg.WindowSamples * 2
	res := Result{IsSpeech: d.isSpeech}
	for len(d.buffer) >= windowBytes {
		window := decodePCM16(d.buffer[:windowBytes])
		d.buffer = d.buffer[windowBytes:]

		prob := d.model.Predict(window)
		d.pushProb(prob)
		d.applyHysteresis(prob)

		res.SpeechProb = prob
		res.Windows++
		if prob >= d.cfg.Threshold {
			res.SpeechWindows++
		} else {
			res.SilenceWindows++
		}
	}

	res.IsSpeech = d.isSpeech
	if res.Windows > 0 {
		res.Confidence = d.confidence()
	}
	return res
}

// Reset clears framing, hysteresis counters, and model recurrent state.
// Callers must invoke it between unrelated audio segments.
func (d *Detector) Reset() {
	d.buffer = d.buffer[:0]
	d.isSpeech = false
	d.speechRun = 0
	d.silenceRun = 0
	d.recentProbs = d.recentProbs[:0]
	d.model.Reset()
}

func (d *Detector) applyHysteresis(prob float64) {
	if prob >= d.cfg.Threshold {
		d.speechRun++
		d.silenceRun = 0
		if d.speechRun >= d.cfg.ConsecutiveSpeechFrames {
			d.isSpeech = true
		}
		return
	}
	d.silenceRun++
	d.speechRun = 0
	if d.silenceRun >= d.cfg.ConsecutiveSilenceFrames {
		d.isSpeech = false
	}
}

func (d *Detector) pushProb(p float64) {
	if len(d.recentProbs) == probabilityHistory {
		copy(d.recentProbs, d.recentProbs[1:])
		d.recentProbs = d.recentProbs[:probabilityHistory-1]
	}
	d.recentProbs = append(d.recentProbs, p)
}

func (d *Detector) confidence() float64 {
	if len(d.recentProbs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range d.recentProbs {
		sum += p
	}
	avg := sum / float64(len(d.recentProbs))
	c := (avg - 0.5) * 2
	if c < 0 {
		c = -c
	}
	if c > 1 {
		c = 1
	}
	return c
}

func decodePCM16(raw []byte) []float32 {
	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}
