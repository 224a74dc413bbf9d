package llm

import (
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// OpenAICompat generates responses from any OpenAI-chat-completions-compatible
// cloud endpoint. It is selected when config.LLM.Provider is
// "openaicompat"; the default provider remains the local A2ABrain agent.
type OpenAICompat struct {
	client *openai.Client
	model  string
}

// NewOpenAICompat builds an OpenAICompat engine. baseURL empty targets
// OpenAI directly; set it to point at any compatible provider.
func NewOpenAICompat(apiKey, baseURL, model string) *OpenAICompat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompat{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name implements engine.LLMEngine.
func (o *OpenAICompat) Name() string { return "openaicompat" }

// Generate implements engine.LLMEngine. This provider talks to a single
// configured cloud endpoint, so key is unused.
func (o *OpenAICompat) Generate(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.buildRequest(prompt, opts))
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.openaicompat", err)
	}
	if len(resp.Choices) == 0 {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.openaicompat", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream implements engine.LLMEngine.
func (o *OpenAICompat) GenerateStream(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions, onToken func(string)) (string, error) {
	req := o.buildRequest(prompt, opts)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "llm.openaicompat", err)
	}
	defer stream.Close()

	var final string
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return final, companionerr.New(companionerr.EngineUnavailable, "llm.openaicompat", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta != "" {
			onToken(delta)
			final += delta
		}
	}
	return final, nil
}

func (o *OpenAICompat) buildRequest(prompt string, opts engine.GenerateOptions) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
		TopP:        float32(opts.TopP),
		Stop:        opts.Stop,
	}
}

// Profile implements engine.LLMEngine. Remote API: negligible local
// footprint.
func (o *OpenAICompat) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 32, CPUCores: 1, NeedsGPU: false}
}
