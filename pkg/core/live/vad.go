package live

import "math"

// VADResult is the classification of one capture frame.
type VADResult struct {
	RMS       float64
	Floor     float64
	Threshold float64
	Speaking  bool
	// Changed is true when Speaking differs from the previous frame.
	Changed bool
}

// VAD is an energy detector with an adaptive noise floor.
//
// The floor falls quickly toward quieter frames and rises slowly toward
// frames within 3x of it; louder frames leave it untouched. A frame is speech
// when its RMS exceeds max(MinThreshold, floor*Multiplier).
//
// VAD is not safe for concurrent use; the orchestrator owns it.
type VAD struct {
	cfg      VADConfig
	floor    float64
	speaking bool
}

// NewVAD creates a detector. Zero config fields take defaults.
func NewVAD(cfg VADConfig) *VAD {
	cfg = cfg.withDefaults()
	return &VAD{cfg: cfg, floor: cfg.InitialFloor}
}

// Process classifies a frame and updates the floor.
func (v *VAD) Process(frame []float32) VADResult {
	return v.ProcessRMS(RMS(frame))
}

// ProcessRMS is Process for a precomputed RMS value.
func (v *VAD) ProcessRMS(rms float64) VADResult {
	switch {
	case rms < v.floor:
		v.floor = v.floor*0.90 + rms*0.10
	case rms < v.floor*3:
		v.floor = v.floor*0.95 + rms*0.05
	}

	threshold := math.Max(v.cfg.MinThreshold, v.floor*v.cfg.Multiplier)
	speaking := rms > threshold
	changed := speaking != v.speaking
	v.speaking = speaking

	return VADResult{
		RMS:       rms,
		Floor:     v.floor,
		Threshold: threshold,
		Speaking:  speaking,
		Changed:   changed,
	}
}

// Floor returns the current noise-floor estimate.
func (v *VAD) Floor() float64 { return v.floor }

// Speaking reports the classification of the last frame.
func (v *VAD) Speaking() bool { return v.speaking }

// Reset restores the initial floor.
func (v *VAD) Reset() {
	v.floor = v.cfg.InitialFloor
	v.speaking = false
}
