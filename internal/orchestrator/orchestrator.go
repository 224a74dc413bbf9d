// Package orchestrator is the composition root: it wires the store, bus,
// engines, audio pipeline, conversation core, and motion resolver together
// per Interaction Key, and implements gateway.PipelineProvider so the
// gateway never needs to know how any of that fits together.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/audio"
	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/conversation"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/metrics"
	"github.com/normanking/companioncore/internal/store"
)

// Orchestrator owns every per-Interaction-Key audio.Pipeline and the
// shared subsystems (store, bus, conversation core) they all depend on.
type Orchestrator struct {
	cfg      *config.Config
	store    *store.Store
	eventBus *bus.Bus
	metrics  *metrics.Metrics
	core     *conversation.Core
	factory  *engineFactory
	log      zerolog.Logger

	sttEngine engine.STTEngine
	ttsEngine engine.TTSEngine

	mu        sync.Mutex
	pipelines map[string]*audio.Pipeline
}

// New builds an Orchestrator. It constructs the shared STT/LLM/TTS engines
// once at startup; VAD and wake-word engines are built per key since
// FallbackVAD/FallbackWakeWord carry per-key fallback state.
func New(cfg *config.Config, st *store.Store, eventBus *bus.Bus, m *metrics.Metrics, log zerolog.Logger) (*Orchestrator, error) {
	factory := newEngineFactory(cfg, log)

	sttEngine, err := factory.sttEngine()
	if err != nil {
		return nil, err
	}
	llmEngine, err := factory.llmEngine()
	if err != nil {
		return nil, err
	}
	ttsEngine, err := factory.ttsEngine()
	if err != nil {
		return nil, err
	}

	core := conversation.New(st, eventBus, llmEngine, cfg.Conversation, log)

	o := &Orchestrator{
		cfg:       cfg,
		store:     st,
		eventBus:  eventBus,
		metrics:   m,
		core:      core,
		factory:   factory,
		log:       log.With().Str("component", "orchestrator").Logger(),
		sttEngine: sttEngine,
		ttsEngine: ttsEngine,
		pipelines: make(map[string]*audio.Pipeline),
	}
	o.watchHealth()
	return o, nil
}

// Pipeline implements gateway.PipelineProvider, lazily constructing one
// audio.Pipeline per Interaction Key and reusing it for subsequent
// reconnects from the same key within this process's lifetime.
func (o *Orchestrator) Pipeline(ctx context.Context, key interaction.Key) (*audio.Pipeline, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if p, ok := o.pipelines[key.String()]; ok {
		return p, nil
	}

	vad := audio.NewFallbackVAD(o.factory.enhancedVAD(), o.factory.basicVAD(), key, o.eventBus, o.log)
	wake := audio.NewFallbackWakeWord(o.factory.enhancedWakeWord(), o.factory.basicWakeWord(), key, o.eventBus, o.log)

	p := audio.New(key, o.cfg.Audio, vad, wake, o.eventBus, o.log, o.handleUtterance(key))
	o.pipelines[key.String()] = p
	return p, nil
}

// handleUtterance wires one recorded utterance through STT, the
// conversation core, and TTS, publishing the bus events the gateway relays
// to the browser client along the way.
func (o *Orchestrator) handleUtterance(key interaction.Key) audio.UtteranceHandler {
	return func(ctx context.Context, recorded []byte) {
		start := time.Now()
		defer func() {
			p, err := o.Pipeline(ctx, key)
			if err == nil {
				p.Done()
			}
		}()

		sttResult, err := o.sttEngine.Transcribe(ctx, key, recorded, o.cfg.Audio.SampleRate)
		if err != nil {
			o.reportEngineError(key, "stt", err)
			return
		}
		o.eventBus.Publish(bus.Event{
			Type: bus.EventTranscriptFinal,
			Key:  key,
			Payload: bus.TranscriptPayload{
				Text:       sttResult.Text,
				Confidence: sttResult.Confidence,
				Final:      true,
			},
		})

		response, err := o.core.Handle(ctx, key, sttResult.Text, nil)
		if err != nil {
			o.reportEngineError(key, "conversation", err)
			return
		}

		if o.metrics != nil {
			o.metrics.ResponseLatency.Observe(float64(time.Since(start).Milliseconds()))
		}

		o.synthesize(ctx, key, response)
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, key interaction.Key, text string) {
	o.eventBus.Publish(bus.Event{Type: bus.EventTTSStarted, Key: key})

	err := o.ttsEngine.SynthesizeStream(ctx, key, text, engine.SynthesizeOptions{VoiceID: o.cfg.TTS.VoiceID}, func(chunk engine.TTSAudioChunk) {
		o.eventBus.Publish(bus.Event{
			Type: bus.EventTTSChunk,
			Key:  key,
			Payload: bus.TTSChunkPayload{
				Audio:  chunk.Audio,
				Viseme: chunk.Viseme,
			},
		})
	})
	if err != nil {
		o.reportEngineError(key, "tts", err)
		return
	}

	o.eventBus.Publish(bus.Event{Type: bus.EventTTSCompleted, Key: key})
}

func (o *Orchestrator) reportEngineError(key interaction.Key, kind string, err error) {
	wrapped := companionerr.New(companionerr.EngineUnavailable, fmt.Sprintf("orchestrator.%s", kind), err)
	o.log.Error().Err(wrapped).Str("key", key.String()).Msg("engine error handling utterance")
	o.eventBus.Publish(bus.Event{
		Type:    bus.EventEngineError,
		Key:     key,
		Payload: bus.EngineErrorPayload{EngineKind: kind, Err: wrapped},
	})
	if o.metrics != nil {
		o.metrics.EngineErrors.WithLabelValues(kind).Inc()
	}
}

// watchHealth subscribes to bus-level operational events so Prometheus
// reflects fallback switches without every publisher needing a
// *metrics.Metrics reference of its own. It also counts any published
// SubscriberOverflowPayload; the bus itself logs its overflows rather than
// publishing them, so those are not counted.
func (o *Orchestrator) watchHealth() {
	if o.metrics == nil {
		return
	}
	o.eventBus.Subscribe(func(event bus.Event) {
		o.metrics.BusEvents.WithLabelValues(string(event.Type)).Inc()
		switch payload := event.Payload.(type) {
		case bus.SubscriberOverflowPayload:
			o.metrics.BusOverflows.Inc()
		case bus.PipelineSwitchedPayload:
			o.metrics.EnginesSwitched.WithLabelValues(payload.EngineKind).Inc()
		}
	})
}

// Close releases every outstanding pipeline.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.pipelines {
		p.Close()
	}
}
