// Package llm provides LLM engine implementations satisfying
// engine.LLMEngine.
package llm

import (
	"context"

	"github.com/normanking/companioncore/internal/a2a"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// A2ABrain generates responses by delegating to a local A2A-protocol agent,
// the default local backend. It wraps the existing A2A client rather than
// re-implementing the protocol.
type A2ABrain struct {
	client *a2a.Client
}

// NewA2ABrain builds an A2ABrain engine around an already-configured client.
func NewA2ABrain(client *a2a.Client) *A2ABrain {
	return &A2ABrain{client: client}
}

// Name implements engine.LLMEngine.
func (b *A2ABrain) Name() string { return "a2abrain" }

// Generate implements engine.LLMEngine. key identifies which Interaction Key
// this exchange belongs to; the shared agent uses it to scope its own
// per-user persona and history rather than relying on static client config.
func (b *A2ABrain) Generate(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions) (string, error) {
	if !b.client.IsConnected() {
		if err := b.client.Connect(ctx); err != nil {
			return "", companionerr.New(companionerr.EngineUnavailable, "llm.a2abrain", err)
		}
	}

	resp, err := b.client.SendMessage(ctx, key, prompt)
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.a2abrain", err)
	}
	return resp.ExtractText(), nil
}

// GenerateStream implements engine.LLMEngine, forwarding each incremental
// delta to onToken as it arrives over the agent's SSE stream.
func (b *A2ABrain) GenerateStream(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions, onToken func(string)) (string, error) {
	if !b.client.IsConnected() {
		if err := b.client.Connect(ctx); err != nil {
			return "", companionerr.New(companionerr.EngineUnavailable, "llm.a2abrain", err)
		}
	}

	stream, err := b.client.SendMessageStreamChan(ctx, key, prompt)
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.a2abrain", err)
	}

	var final string
	for resp := range stream {
		if resp.Error != nil {
			return final, companionerr.New(companionerr.EngineUnavailable, "llm.a2abrain", resp.Error)
		}
		if resp.Delta != "" {
			onToken(resp.Delta)
		}
		if resp.Message != nil {
			final = resp.Message.ExtractText()
		}
	}
	return final, nil
}

// Profile implements engine.LLMEngine. Generation happens in the remote
// agent process; this client needs negligible local resources.
func (b *A2ABrain) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 32, CPUCores: 1, NeedsGPU: false}
}
