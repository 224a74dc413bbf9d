package llm

import (
	"context"

	ollamaapi "github.com/ollama/ollama/api"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// Ollama generates responses from a locally running Ollama model server.
// It is selected when config.LLM.Provider is "ollama".
type Ollama struct {
	client *ollamaapi.Client
	model  string
}

// NewOllama builds an Ollama engine. client should come from
// ollamaapi.ClientFromEnvironment() or ollamaapi.NewClient.
func NewOllama(client *ollamaapi.Client, model string) *Ollama {
	return &Ollama{client: client, model: model}
}

// Name implements engine.LLMEngine.
func (o *Ollama) Name() string { return "ollama" }

// Generate implements engine.LLMEngine. Ollama runs locally and needs no
// per-key routing, so key is unused here.
func (o *Ollama) Generate(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions) (string, error) {
	return o.run(ctx, prompt, opts, nil)
}

// GenerateStream implements engine.LLMEngine.
func (o *Ollama) GenerateStream(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions, onToken func(string)) (string, error) {
	return o.run(ctx, prompt, opts, onToken)
}

func (o *Ollama) run(ctx context.Context, prompt string, opts engine.GenerateOptions, onToken func(string)) (string, error) {
	stream := onToken != nil
	temp := float32(opts.Temperature)
	topP := float32(opts.TopP)

	req := &ollamaapi.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": temp,
			"top_p":       topP,
			"num_predict": opts.MaxTokens,
			"stop":        opts.Stop,
		},
	}

	var final string
	err := o.client.Generate(ctx, req, func(resp ollamaapi.GenerateResponse) error {
		if onToken != nil && resp.Response != "" {
			onToken(resp.Response)
		}
		final += resp.Response
		return nil
	})
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.ollama", err)
	}
	return final, nil
}

// Profile implements engine.LLMEngine. Local inference needs real RAM and,
// for larger models, GPU offload; callers should size this from the Host
// Profile Detector's recommended model, not a fixed constant.
func (o *Ollama) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 4096, CPUCores: 4, NeedsGPU: false}
}
