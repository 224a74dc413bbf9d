package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// UtteranceHandler receives a finished recording once the pipeline has
// decided the user stopped talking. It must eventually call Pipeline.Done
// to return the pipeline to LISTENING; until then the pipeline stays in
// PROCESSING and keeps filling the wake-word ring buffer but records
// nothing new.
type UtteranceHandler func(ctx context.Context, audio []byte)

// Pipeline owns the capture state machine for one Interaction Key. State is
// mutated exclusively by the goroutine running Run; every other method is
// safe to call concurrently and only reads or enqueues work for that
// goroutine, so there is never more than one writer of state at a time.
type Pipeline struct {
	key interaction.Key
	cfg config.AudioConfig

	vad  engine.VAD
	wake engine.WakeWordMatcher

	eventBus *bus.Bus
	log      zerolog.Logger

	onUtterance UtteranceHandler

	frames    chan []byte
	complete  chan struct{}
	closeOnce sync.Once
	closed    chan struct{}

	stateMu sync.RWMutex
	state   State

	ring      *RingBuffer
	recording []byte
	recordStart  time.Time
	lastSpeechAt time.Time
}

// New builds a Pipeline. vad and wake are typically *FallbackVAD and
// *FallbackWakeWord so the pipeline never has to know about enhanced/basic
// switching itself.
func New(key interaction.Key, cfg config.AudioConfig, vad engine.VAD, wake engine.WakeWordMatcher, eventBus *bus.Bus, log zerolog.Logger, onUtterance UtteranceHandler) *Pipeline {
	bytesPerSec := cfg.SampleRate * 2
	ringCapacity := bytesPerSec * cfg.RingBufferSeconds
	if ringCapacity <= 0 {
		ringCapacity = bytesPerSec * 10
	}

	queueDepth := 64
	return &Pipeline{
		key:         key,
		cfg:         cfg,
		vad:         vad,
		wake:        wake,
		eventBus:    eventBus,
		log:         log.With().Str("component", "audio.pipeline").Str("key", key.String()).Logger(),
		onUtterance: onUtterance,
		frames:      make(chan []byte, queueDepth),
		complete:    make(chan struct{}, 1),
		closed:      make(chan struct{}),
		state:       StateIdle,
		ring:        NewRingBuffer(ringCapacity),
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// Push enqueues a captured frame. If the capture queue is full the oldest
// queued frame is dropped to make room, and bus.EventSubscriberOverflow is
// not used here (that is a bus-subscriber concept); instead a debug log
// records the drop, since discarding a stale audio frame in favor of a
// fresh one is the correct behavior for real-time capture.
func (p *Pipeline) Push(frame []byte) error {
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}

	select {
	case p.frames <- frame:
		return nil
	default:
	}

	select {
	case <-p.frames:
	default:
	}
	p.log.Debug().Msg("capture queue full, dropped oldest frame")
	select {
	case p.frames <- frame:
	default:
	}
	return nil
}

// Done signals that the consumer of an UtteranceHandler call has finished
// reacting (LLM + TTS complete), allowing the pipeline to leave PROCESSING.
func (p *Pipeline) Done() {
	select {
	case p.complete <- struct{}{}:
	default:
	}
}

// Run drives the state machine until ctx is canceled or Close is called.
// Both are checked between frames: a frame already being processed (a VAD
// or wake-word call) finishes first. An utterance handler runs on its own
// goroutine and is not waited for.
func (p *Pipeline) Run(ctx context.Context) error {
	p.setState(StateListening, "pipeline started")
	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case <-p.closed:
			return p.shutdown()
		case frame := <-p.frames:
			p.handleFrame(ctx, frame)
		case <-p.complete:
			if p.State() == StateProcessing {
				p.setState(StateListening, "utterance handler complete")
			}
		}
	}
}

// Close makes Run return once it has finished the frame it is processing.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() { close(p.closed) })
}

func (p *Pipeline) shutdown() error {
	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		p.log.Warn().Msg("pipeline shutdown hit the 2s bound")
	default:
	}
	p.setState(StateIdle, "shutdown")
	return nil
}

func (p *Pipeline) handleFrame(ctx context.Context, frame []byte) {
	switch p.State() {
	case StateIdle, StateListening:
		p.ring.Write(frame)
		result, err := p.wake.Detect(ctx, p.ring.Snapshot())
		if err != nil {
			p.reportEngineError("wakeword", err)
			return
		}
		if result.Matched {
			p.onWakeDetected(result)
		}
	case StateRecording:
		p.recording = append(p.recording, frame...)
		vadResult, err := p.vad.IsSpeech(ctx, frame)
		if err != nil {
			p.reportEngineError("vad", err)
			return
		}
		if vadResult.IsSpeech {
			p.lastSpeechAt = time.Now()
		} else if time.Since(p.lastSpeechAt) > p.cfg.SilenceTimeout {
			p.finalizeRecording(ctx)
			return
		}
		maxBytes := p.cfg.SampleRate * 2 * p.cfg.RingBufferSeconds
		if len(p.recording) >= maxBytes {
			p.finalizeRecording(ctx)
		}
	case StateProcessing:
		p.ring.Write(frame)
	case StateError:
	}
}

func (p *Pipeline) onWakeDetected(result engine.WakeWordResult) {
	p.setState(StateWakeDetected, "wake word matched")
	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type: bus.EventWakeDetected,
			Key:  p.key,
			Payload: bus.WakeDetectedPayload{
				Word:       result.Word,
				Confidence: result.Confidence,
			},
		})
	}

	p.recording = p.ring.Snapshot()
	p.recordStart = time.Now()
	p.lastSpeechAt = p.recordStart
	p.vad.Reset()
	p.ring.Reset()

	p.setState(StateRecording, "recording started")
	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type:    bus.EventSpeechStarted,
			Key:     p.key,
			Payload: bus.SpeechBoundaryPayload{},
		})
	}
}

func (p *Pipeline) finalizeRecording(ctx context.Context) {
	duration := time.Since(p.recordStart)
	audio := p.recording
	p.recording = nil

	if duration < p.cfg.MinSpeechDuration {
		p.log.Debug().Dur("duration", duration).Msg("discarding recording shorter than minimum speech duration")
		p.setState(StateListening, "recording too short")
		return
	}

	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type: bus.EventSpeechEnded,
			Key:  p.key,
			Payload: bus.SpeechBoundaryPayload{
				DurationMs: duration.Milliseconds(),
			},
		})
	}

	p.setState(StateProcessing, "recording finalized")
	if p.onUtterance != nil {
		go p.onUtterance(ctx, audio)
	} else {
		p.Done()
	}
}

func (p *Pipeline) reportEngineError(kind string, err error) {
	wrapped := companionerr.New(companionerr.EngineUnavailable, "audio.pipeline", err)
	p.log.Error().Err(wrapped).Str("engine", kind).Msg("engine error in capture pipeline")
	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type:    bus.EventEngineError,
			Key:     p.key,
			Payload: bus.EngineErrorPayload{EngineKind: kind, Err: wrapped},
		})
	}
}

func (p *Pipeline) setState(next State, reason string) {
	p.stateMu.Lock()
	prev := p.state
	p.state = next
	p.stateMu.Unlock()

	if prev == next {
		return
	}
	p.log.Debug().Str("from", string(prev)).Str("to", string(next)).Str("reason", reason).Msg("pipeline state changed")
	if p.eventBus != nil {
		p.eventBus.Publish(bus.Event{
			Type: bus.EventPipelineStateChanged,
			Key:  p.key,
			Payload: bus.PipelineStateChangedPayload{
				From:   string(prev),
				To:     string(next),
				Reason: reason,
			},
		})
	}
}
