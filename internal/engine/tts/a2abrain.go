package tts

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/a2a"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// A2ABrain synthesizes speech by delegating to the local A2A agent: a
// "[SYNTHESIZE]" marker message asks the agent to speak the text and
// return the audio as a base64 file part, mirroring the "[TRANSCRIBE]"
// convention used by stt.A2ABrain.
type A2ABrain struct {
	client *a2a.Client
	log    zerolog.Logger
}

// NewA2ABrain builds an A2ABrain TTS engine around an already-configured
// client.
func NewA2ABrain(client *a2a.Client, log zerolog.Logger) *A2ABrain {
	return &A2ABrain{client: client, log: log.With().Str("component", "tts.a2abrain").Logger()}
}

// Name implements engine.TTSEngine.
func (a *A2ABrain) Name() string { return "a2abrain" }

// Synthesize implements engine.TTSEngine. key scopes the request to the
// caller's Interaction Key instead of a process-wide persona.
func (a *A2ABrain) Synthesize(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions) ([]byte, error) {
	marker := fmt.Sprintf("[SYNTHESIZE voice=%s] %s", opts.VoiceID, text)
	resp, err := a.client.SendMessage(ctx, key, marker)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.a2abrain", err)
	}

	for _, part := range resp.Parts {
		if fp, ok := part.(a2a.FilePart); ok {
			audio, err := base64.StdEncoding.DecodeString(fp.Bytes)
			if err != nil {
				return nil, companionerr.New(companionerr.DecodeFailed, "tts.a2abrain", err)
			}
			return audio, nil
		}
	}
	return nil, companionerr.New(companionerr.EngineUnavailable, "tts.a2abrain", fmt.Errorf("agent returned no audio part"))
}

// SynthesizeStream implements engine.TTSEngine. The agent returns complete
// audio, delivered as a single chunk.
func (a *A2ABrain) SynthesizeStream(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions, onChunk func(engine.TTSAudioChunk)) error {
	audio, err := a.Synthesize(ctx, key, text, opts)
	if err != nil {
		return err
	}
	onChunk(engine.TTSAudioChunk{Audio: audio, Viseme: visemeForText(text)})
	return nil
}

// Profile implements engine.TTSEngine.
func (a *A2ABrain) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 16, CPUCores: 1, NeedsGPU: false}
}
