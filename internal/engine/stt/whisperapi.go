// Package stt provides STT engine implementations satisfying
// engine.STTEngine.
package stt

import (
	"bytes"
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// WhisperAPI transcribes via an OpenAI-compatible /audio/transcriptions
// endpoint. baseURL lets the same client serve Groq's Whisper-compatible
// endpoint.
type WhisperAPI struct {
	client   *openai.Client
	model    string
	language string
	log      zerolog.Logger
}

// NewWhisperAPI builds a WhisperAPI provider. baseURL empty uses OpenAI's
// default endpoint; set it to Groq's endpoint to use the same code path
// for the "groq" provider config value.
func NewWhisperAPI(apiKey, baseURL, model, language string, log zerolog.Logger) *WhisperAPI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperAPI{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		language: language,
		log:      log.With().Str("component", "stt.whisperapi").Logger(),
	}
}

// Name implements engine.STTEngine.
func (w *WhisperAPI) Name() string { return "whisperapi" }

// Transcribe implements engine.STTEngine, wrapping raw PCM in a WAV
// container before upload (the API requires a recognized container). key is
// unused: this provider talks to a stateless cloud endpoint.
func (w *WhisperAPI) Transcribe(ctx context.Context, key interaction.Key, audio []byte, sampleRate int) (engine.STTResult, error) {
	if len(audio) == 0 {
		return engine.STTResult{}, companionerr.New(companionerr.DecodeFailed, "stt.whisperapi", nil)
	}

	wav := wrapWAV(audio, sampleRate, 1)
	req := openai.AudioRequest{
		Model:    w.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
		Language: w.language,
	}

	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return engine.STTResult{}, companionerr.New(companionerr.EngineUnavailable, "stt.whisperapi", err)
	}

	return engine.STTResult{Text: resp.Text, Confidence: 0.95, Final: true}, nil
}

// Profile implements engine.STTEngine. Remote API: no local compute.
func (w *WhisperAPI) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 16, CPUCores: 1, NeedsGPU: false}
}

// wrapWAV wraps raw 16-bit PCM in a minimal WAV container.
func wrapWAV(pcm []byte, sampleRate, channels int) []byte {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if channels == 0 {
		channels = 1
	}
	bitsPerSample := 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)
	fileSize := 36 + dataSize

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	putU32LE(header[4:8], uint32(fileSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	putU32LE(header[16:20], 16)
	putU16LE(header[20:22], 1)
	putU16LE(header[22:24], uint16(channels))
	putU32LE(header[24:28], uint32(sampleRate))
	putU32LE(header[28:32], uint32(byteRate))
	putU16LE(header[32:34], uint16(blockAlign))
	putU16LE(header[34:36], uint16(bitsPerSample))
	copy(header[36:40], "data")
	putU32LE(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}
