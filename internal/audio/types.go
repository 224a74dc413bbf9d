// Package audio owns the real-time capture pipeline: a per-Interaction-Key
// state machine that turns raw PCM frames into wake-word detections and
// complete speech utterances, switching between enhanced and basic engines
// when the enhanced service misbehaves.
package audio

import "errors"

var (
	// ErrClosed is returned by Push once the pipeline has been stopped.
	ErrClosed = errors.New("audio: pipeline closed")
)

// State is one node of the capture state machine.
type State string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateWakeDetected State = "wake_detected"
	StateRecording    State = "recording"
	StateProcessing   State = "processing"
	StateError        State = "error"
)

// Frame is one slice of raw 16-bit PCM audio handed to the pipeline by the
// capture source (gateway websocket, local mic reader, test harness).
type Frame struct {
	PCM []byte
}
