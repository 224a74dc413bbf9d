// Package engine defines the provider-agnostic contracts for the five
// pluggable engine kinds the Audio Pipeline and Conversation Core depend on:
// VAD, wake-word matching, STT, LLM generation, and TTS. Concrete providers live in the engine/vad,
// engine/wakeword, engine/stt, engine/llm, and engine/tts subpackages.
package engine

import (
	"context"

	"github.com/normanking/companioncore/internal/interaction"
)

// ResourceProfile describes the host resources a concrete provider needs.
// Engine selection does not read it: the engine factory picks providers
// from config alone.
type ResourceProfile struct {
	RAMMB    int
	CPUCores int
	NeedsGPU bool
}

// VAD classifies a single audio frame as speech or silence. Implementations
// must be safe for sequential, single-writer use by the Audio Pipeline; they
// are never called concurrently for the same stream.
type VAD interface {
	// IsSpeech reports whether frame (raw PCM, the pipeline's configured
	// sample rate and bit depth) contains speech.
	IsSpeech(ctx context.Context, frame []byte) (VADResult, error)
	// Reset clears any smoothing history, e.g. after a pipeline state
	// transition back to LISTENING.
	Reset()
	Profile() ResourceProfile
}

// VADResult is the per-frame speech/silence classification.
type VADResult struct {
	IsSpeech   bool
	Confidence float64
}

// WakeWordMatcher detects a configured wake phrase in a rolling audio
// window.
type WakeWordMatcher interface {
	// Detect reports whether window contains a wake-word match, and which
	// configured word matched.
	Detect(ctx context.Context, window []byte) (WakeWordResult, error)
	Profile() ResourceProfile
}

// WakeWordResult is a wake-word match outcome.
type WakeWordResult struct {
	Matched    bool
	Word       string
	Confidence float64
}

// STTResult is a single transcription outcome.
type STTResult struct {
	Text       string
	Confidence float64
	Final      bool
}

// STTEngine transcribes recorded speech audio to text.
type STTEngine interface {
	Name() string
	// Transcribe converts a complete recorded utterance (raw PCM) to text.
	// key identifies which Interaction Key the utterance belongs to, so a
	// provider backed by a single shared remote agent (e.g. a2abrain) can
	// route and tag the request without relying on process-wide config.
	Transcribe(ctx context.Context, key interaction.Key, audio []byte, sampleRate int) (STTResult, error)
	Profile() ResourceProfile
}

// GenerateOptions parameterizes an LLM generation call.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// LLMEngine generates conversational responses, optionally as a token
// stream.
type LLMEngine interface {
	Name() string
	// Generate produces a complete response for prompt, scoped to key.
	Generate(ctx context.Context, key interaction.Key, prompt string, opts GenerateOptions) (string, error)
	// GenerateStream produces a response incrementally, invoking onToken
	// for each token as it is produced, and returns the complete text.
	GenerateStream(ctx context.Context, key interaction.Key, prompt string, opts GenerateOptions, onToken func(string)) (string, error)
	Profile() ResourceProfile
}

// SynthesizeOptions parameterizes a TTS call.
type SynthesizeOptions struct {
	VoiceID string
	Speed   float64
}

// TTSAudioChunk is one unit of synthesized audio plus its aligned viseme,
// used to drive the Live2D mouth shape while audio plays.
type TTSAudioChunk struct {
	Audio  []byte
	Viseme string
}

// TTSEngine synthesizes speech audio from text.
type TTSEngine interface {
	Name() string
	// Synthesize produces a complete audio buffer for text, scoped to key.
	Synthesize(ctx context.Context, key interaction.Key, text string, opts SynthesizeOptions) ([]byte, error)
	// SynthesizeStream produces audio incrementally, invoking onChunk as
	// each chunk becomes available.
	SynthesizeStream(ctx context.Context, key interaction.Key, text string, opts SynthesizeOptions, onChunk func(TTSAudioChunk)) error
	Profile() ResourceProfile
}
