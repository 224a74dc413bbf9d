package stt

import (
	"context"
	"encoding/base64"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/a2a"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// A2ABrain transcribes by delegating to the local A2A agent: audio is sent
// base64-encoded behind a "[TRANSCRIBE]" marker the agent recognizes. Used
// when no dedicated STT backend is configured.
type A2ABrain struct {
	client *a2a.Client
	log    zerolog.Logger
}

// NewA2ABrain builds an A2ABrain STT engine around an already-configured
// client.
func NewA2ABrain(client *a2a.Client, log zerolog.Logger) *A2ABrain {
	return &A2ABrain{client: client, log: log.With().Str("component", "stt.a2abrain").Logger()}
}

// Name implements engine.STTEngine.
func (a *A2ABrain) Name() string { return "a2abrain" }

// Transcribe implements engine.STTEngine. key scopes the request to the
// caller's Interaction Key instead of a process-wide persona.
func (a *A2ABrain) Transcribe(ctx context.Context, key interaction.Key, audio []byte, sampleRate int) (engine.STTResult, error) {
	if len(audio) == 0 {
		return engine.STTResult{}, companionerr.New(companionerr.DecodeFailed, "stt.a2abrain", nil)
	}

	encoded := base64.StdEncoding.EncodeToString(audio)
	resp, err := a.client.SendMessage(ctx, key, "[TRANSCRIBE audio=audio/raw] "+encoded)
	if err != nil {
		return engine.STTResult{}, companionerr.New(companionerr.EngineUnavailable, "stt.a2abrain", err)
	}

	return engine.STTResult{Text: resp.ExtractText(), Confidence: 0.85, Final: true}, nil
}

// Profile implements engine.STTEngine.
func (a *A2ABrain) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 16, CPUCores: 1, NeedsGPU: false}
}
