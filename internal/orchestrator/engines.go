package orchestrator

import (
	"context"
	"fmt"
	"time"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/a2a"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/engine/llm"
	"github.com/normanking/companioncore/internal/engine/stt"
	"github.com/normanking/companioncore/internal/engine/tts"
	"github.com/normanking/companioncore/internal/engine/vad"
	"github.com/normanking/companioncore/internal/engine/wakeword"
)

// engineFactory builds the concrete engine instances named by config,
// sharing one A2A client across whichever of STT/LLM/TTS selects the
// "a2abrain" provider.
type engineFactory struct {
	cfg *config.Config
	log zerolog.Logger

	a2aClient *a2a.Client
}

func newEngineFactory(cfg *config.Config, log zerolog.Logger) *engineFactory {
	return &engineFactory{cfg: cfg, log: log}
}

// a2a lazily builds the shared A2A client. When no base URL is configured
// (or it's left as the "auto" sentinel) it probes the conventional a2abrain
// ports for a live agent card before falling back to DefaultClientConfig's
// ServerURL, so a freshly cloned deployment works without editing config.yaml.
func (f *engineFactory) a2a() *a2a.Client {
	if f.a2aClient != nil {
		return f.a2aClient
	}

	baseURL := f.cfg.A2A.BaseURL
	if baseURL == "" || baseURL == "auto" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if discovered, err := a2a.DiscoverAgent(ctx, nil, 2*time.Second); err != nil {
			f.log.Warn().Err(err).Msg("a2a agent discovery failed, falling back to default server URL")
		} else {
			f.log.Info().Str("url", discovered).Msg("a2a agent discovered")
			baseURL = discovered
		}
	}

	cfg := a2a.DefaultClientConfig()
	if baseURL != "" && baseURL != "auto" {
		cfg.ServerURL = baseURL
	}
	f.a2aClient = a2a.NewClient(cfg, f.log)
	return f.a2aClient
}

// BasicVAD and BasicWakeWord back the FallbackVAD/FallbackWakeWord
// wrappers the audio pipeline always uses, regardless of whether the
// enhanced variant is enabled.
func (f *engineFactory) basicVAD() engine.VAD {
	return vad.NewBasic(f.cfg.Audio.VADAggressiveness)
}

func (f *engineFactory) enhancedVAD() engine.VAD {
	if !f.cfg.Audio.EnhancedEnabled {
		return nil
	}
	return vad.NewEnhanced(f.cfg.Audio.EnhancedServiceURL, f.log)
}

func (f *engineFactory) basicWakeWord() engine.WakeWordMatcher {
	return wakeword.NewKeyword(f.cfg.Audio.WakeWords, f.cfg.Audio.WakeWordSensitivity)
}

func (f *engineFactory) enhancedWakeWord() engine.WakeWordMatcher {
	if !f.cfg.Audio.EnhancedEnabled {
		return nil
	}
	return wakeword.NewEnhanced(f.cfg.Audio.EnhancedServiceURL, f.log)
}

func (f *engineFactory) sttEngine() (engine.STTEngine, error) {
	switch f.cfg.STT.Provider {
	case "groq":
		return stt.NewGroq(f.cfg.STT.APIKey, f.cfg.STT.Model, f.cfg.STT.Language, f.log), nil
	case "whisper", "whisperapi":
		return stt.NewWhisperAPI(f.cfg.STT.APIKey, f.cfg.STT.BaseURL, f.cfg.STT.Model, f.cfg.STT.Language, f.log), nil
	case "a2abrain", "":
		return stt.NewA2ABrain(f.a2a(), f.log), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown stt provider %q", f.cfg.STT.Provider)
	}
}

func (f *engineFactory) llmEngine() (engine.LLMEngine, error) {
	switch f.cfg.LLM.Provider {
	case "ollama":
		client, err := ollamaapi.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: ollama client: %w", err)
		}
		return llm.NewOllama(client, f.cfg.LLM.Model), nil
	case "openaicompat":
		return llm.NewOpenAICompat(f.cfg.LLM.APIKey, f.cfg.LLM.BaseURL, f.cfg.LLM.Model), nil
	case "a2abrain", "":
		return llm.NewA2ABrain(f.a2a()), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown llm provider %q", f.cfg.LLM.Provider)
	}
}

func (f *engineFactory) ttsEngine() (engine.TTSEngine, error) {
	switch f.cfg.TTS.Provider {
	case "piper":
		return tts.NewPiper(f.cfg.TTS.BinaryPath, f.cfg.TTS.ModelsDir, f.log), nil
	case "openaicompat":
		return tts.NewOpenAICompat(f.cfg.TTS.APIKey, f.cfg.TTS.BaseURL, ""), nil
	case "a2abrain", "":
		return tts.NewA2ABrain(f.a2a(), f.log), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown tts provider %q", f.cfg.TTS.Provider)
	}
}
