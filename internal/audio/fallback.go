package audio

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// FallbackVAD wraps an enhanced and a basic engine.VAD behind the engine.VAD
// interface. It starts on enhanced and switches permanently to basic the
// first time enhanced errors, publishing bus.EventPipelineSwitched so
// operators can see the degradation. There is no switch back: the enhanced
// service is assumed down for the remainder of the process, matching the
// Host Profile Detector's one-shot capability check at startup.
type FallbackVAD struct {
	enhanced engine.VAD
	basic    engine.VAD
	onBasic  atomic.Bool
	key      interaction.Key
	eventBus *bus.Bus
	log      zerolog.Logger
}

// NewFallbackVAD builds a FallbackVAD. enhanced may be nil, in which case
// the wrapper behaves as basic-only from the start.
func NewFallbackVAD(enhanced, basic engine.VAD, key interaction.Key, eventBus *bus.Bus, log zerolog.Logger) *FallbackVAD {
	f := &FallbackVAD{enhanced: enhanced, basic: basic, key: key, eventBus: eventBus, log: log}
	if enhanced == nil {
		f.onBasic.Store(true)
	}
	return f
}

func (f *FallbackVAD) IsSpeech(ctx context.Context, frame []byte) (engine.VADResult, error) {
	if f.onBasic.Load() {
		return f.basic.IsSpeech(ctx, frame)
	}
	result, err := f.enhanced.IsSpeech(ctx, frame)
	if err != nil {
		f.switchToBasic(err)
		return f.basic.IsSpeech(ctx, frame)
	}
	return result, nil
}

func (f *FallbackVAD) Reset() {
	if f.enhanced != nil {
		f.enhanced.Reset()
	}
	f.basic.Reset()
}

func (f *FallbackVAD) Profile() engine.ResourceProfile {
	if f.onBasic.Load() {
		return f.basic.Profile()
	}
	return f.enhanced.Profile()
}

func (f *FallbackVAD) switchToBasic(cause error) {
	if !f.onBasic.CompareAndSwap(false, true) {
		return
	}
	f.log.Warn().Err(cause).Msg("enhanced VAD unavailable, switching to basic")
	if f.eventBus != nil {
		f.eventBus.Publish(bus.Event{
			Type: bus.EventPipelineSwitched,
			Key:  f.key,
			Payload: bus.PipelineSwitchedPayload{
				EngineKind: "vad",
				From:       "enhanced",
				To:         "basic",
				Cause:      cause,
			},
		})
	}
}

// FallbackWakeWord is the wake-word equivalent of FallbackVAD.
type FallbackWakeWord struct {
	enhanced engine.WakeWordMatcher
	basic    engine.WakeWordMatcher
	onBasic  atomic.Bool
	key      interaction.Key
	eventBus *bus.Bus
	log      zerolog.Logger
}

// NewFallbackWakeWord builds a FallbackWakeWord. enhanced may be nil.
func NewFallbackWakeWord(enhanced, basic engine.WakeWordMatcher, key interaction.Key, eventBus *bus.Bus, log zerolog.Logger) *FallbackWakeWord {
	f := &FallbackWakeWord{enhanced: enhanced, basic: basic, key: key, eventBus: eventBus, log: log}
	if enhanced == nil {
		f.onBasic.Store(true)
	}
	return f
}

func (f *FallbackWakeWord) Detect(ctx context.Context, window []byte) (engine.WakeWordResult, error) {
	if f.onBasic.Load() {
		return f.basic.Detect(ctx, window)
	}
	result, err := f.enhanced.Detect(ctx, window)
	if err != nil {
		f.switchToBasic(err)
		return f.basic.Detect(ctx, window)
	}
	return result, nil
}

func (f *FallbackWakeWord) Profile() engine.ResourceProfile {
	if f.onBasic.Load() {
		return f.basic.Profile()
	}
	return f.enhanced.Profile()
}

func (f *FallbackWakeWord) switchToBasic(cause error) {
	if !f.onBasic.CompareAndSwap(false, true) {
		return
	}
	f.log.Warn().Err(cause).Msg("enhanced wake-word matcher unavailable, switching to basic")
	if f.eventBus != nil {
		f.eventBus.Publish(bus.Event{
			Type: bus.EventPipelineSwitched,
			Key:  f.key,
			Payload: bus.PipelineSwitchedPayload{
				EngineKind: "wakeword",
				From:       "enhanced",
				To:         "basic",
				Cause:      cause,
			},
		})
	}
}
