package tts

import (
	"bytes"
	"context"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// OpenAICompat synthesizes speech via an OpenAI-compatible /audio/speech
// endpoint.
type OpenAICompat struct {
	client *openai.Client
	model  openai.SpeechModel
}

// NewOpenAICompat builds an OpenAICompat TTS engine. baseURL empty targets
// OpenAI directly.
func NewOpenAICompat(apiKey, baseURL string, model openai.SpeechModel) *OpenAICompat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.TTSModel1
	}
	return &OpenAICompat{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name implements engine.TTSEngine.
func (o *OpenAICompat) Name() string { return "openaicompat" }

// Synthesize implements engine.TTSEngine. key is unused: this provider
// talks to a single configured cloud endpoint.
func (o *OpenAICompat) Synthesize(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions) ([]byte, error) {
	voice := openai.VoiceAlloy
	if opts.VoiceID != "" {
		voice = openai.SpeechVoice(opts.VoiceID)
	}

	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: o.model,
		Input: text,
		Voice: voice,
		Speed: speed,
	})
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.openaicompat", err)
	}
	defer resp.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp); err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.openaicompat", err)
	}
	return buf.Bytes(), nil
}

// SynthesizeStream implements engine.TTSEngine. The OpenAI speech endpoint
// is not chunked, so the whole buffer is delivered as a single chunk.
func (o *OpenAICompat) SynthesizeStream(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions, onChunk func(engine.TTSAudioChunk)) error {
	audio, err := o.Synthesize(ctx, key, text, opts)
	if err != nil {
		return err
	}
	onChunk(engine.TTSAudioChunk{Audio: audio, Viseme: visemeForText(text)})
	return nil
}

// Profile implements engine.TTSEngine. Remote API: negligible local
// footprint.
func (o *OpenAICompat) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 32, CPUCores: 1, NeedsGPU: false}
}
