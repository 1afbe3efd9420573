package vad

import "math"

// Model scores one audio window with the probability that it contains speech.
// Implementations may keep recurrent state across windows; Reset clears it.
type Model interface {
	Predict(window []float32) float64
	Reset()
}

// EnergyModel is the default probability model. It maps the RMS energy of a
// window onto [0,1] with a logistic curve centered on a noise floor estimate
// that adapts slowly during silence. Good enough for turn-taking; swap in a
// neural model behind the same interface for production accuracy.
type EnergyModel struct {
	noiseFloor float64
	calibrated bool
}

func NewEnergyModel() *EnergyModel {
	return &EnergyModel{}
}

func (m *EnergyModel) Predict(window []float32) float64 {
	rms := rmsEnergy(window)

	if !m.calibrated {
		m.noiseFloor = rms
		m.calibrated = true
	}

	// Steepness chosen so that ~4x the noise floor saturates toward 1.
	ratio := rms / (m.noiseFloor + 1e-6)
	prob := 1 / (1 + math.Exp(-3*(ratio-2)))

	// Track the floor only while the window looks quiet, so sustained
	// speech does not raise it.
	if prob < 0.3 {
		m.noiseFloor = 0.95*m.noiseFloor + 0.05*rms
	}
	return prob
}

func (m *EnergyModel) Reset() {
	m.noiseFloor = 0
	m.calibrated = false
}

func rmsEnergy(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(window)))
}
