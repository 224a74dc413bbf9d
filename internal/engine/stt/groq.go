package stt

import "github.com/rs/zerolog"

// groqBaseURL is Groq's OpenAI-compatible audio endpoint base.
const groqBaseURL = "https://api.groq.com/openai/v1"

// NewGroq builds a WhisperAPI provider pointed at Groq's Whisper-compatible
// endpoint. Groq's hosted Whisper is dramatically faster than OpenAI's own
// endpoint for the same model family, so it gets its own constructor even
// though it's the same client underneath with a different base URL and
// model name.
func NewGroq(apiKey, model, language string, log zerolog.Logger) *WhisperAPI {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	w := NewWhisperAPI(apiKey, groqBaseURL, model, language, log)
	w.log = log.With().Str("component", "stt.groq").Logger()
	return w
}
