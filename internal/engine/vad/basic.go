// Package vad provides the basic (RMS-energy) and enhanced (remote neural)
// VAD engine implementations satisfying engine.VAD.
package vad

import (
	"context"
	"math"
	"sync"

	"github.com/normanking/companioncore/internal/engine"
)

// Config configures the basic RMS-energy VAD.
type Config struct {
	Threshold       float64 // energy threshold, 0-1
	SmoothingFrames int
}

// DefaultConfig returns sensible defaults, with Threshold scaled by
// aggressiveness in NewBasic.
func DefaultConfig() Config {
	return Config{Threshold: 0.01, SmoothingFrames: 5}
}

// Basic is an RMS-energy voice activity detector requiring no network
// connectivity or model weights. It is the pipeline's strict fallback when
// the enhanced engine is unavailable.
type Basic struct {
	mu            sync.Mutex
	cfg           Config
	energyHistory []float64
	historyIndex  int
}

// NewBasic builds a Basic VAD. aggressiveness (0-3) scales the energy
// threshold: higher aggressiveness requires louder input to classify as
// speech.
func NewBasic(aggressiveness int) *Basic {
	cfg := DefaultConfig()
	cfg.Threshold = cfg.Threshold * (1 + float64(aggressiveness)*0.5)
	return &Basic{
		cfg:           cfg,
		energyHistory: make([]float64, cfg.SmoothingFrames),
	}
}

// IsSpeech implements engine.VAD.
func (v *Basic) IsSpeech(_ context.Context, frame []byte) (engine.VADResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rms := calculateRMS16(frame)
	v.energyHistory[v.historyIndex] = rms
	v.historyIndex = (v.historyIndex + 1) % len(v.energyHistory)

	var sum float64
	for _, e := range v.energyHistory {
		sum += e
	}
	smoothed := sum / float64(len(v.energyHistory))

	isSpeech := smoothed >= v.cfg.Threshold
	confidence := 0.5
	if isSpeech {
		confidence = math.Min(1.0, 0.5+(smoothed-v.cfg.Threshold)*10)
	} else {
		confidence = math.Max(0.0, 0.5-(v.cfg.Threshold-smoothed)*10)
	}

	return engine.VADResult{IsSpeech: isSpeech, Confidence: confidence}, nil
}

// Reset implements engine.VAD.
func (v *Basic) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.historyIndex = 0
	for i := range v.energyHistory {
		v.energyHistory[i] = 0
	}
}

// Profile implements engine.VAD. The basic VAD is pure arithmetic: no GPU,
// negligible RAM, one core.
func (v *Basic) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 8, CPUCores: 1, NeedsGPU: false}
}

func calculateRMS16(audioData []byte) float64 {
	if len(audioData) == 0 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i+1 < len(audioData); i += 2 {
		sample := int16(audioData[i]) | int16(audioData[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
