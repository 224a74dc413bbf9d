package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
)

// Piper synthesizes speech locally via the Piper neural TTS binary
// (https://github.com/rhasspy/piper). It is selected when
// config.TTS.Provider is "piper", the default.
type Piper struct {
	log        zerolog.Logger
	binaryPath string
	modelsDir  string
}

// piperVoiceMap maps generic voice IDs (shared with the OpenAI-compatible
// provider's naming) onto bundled Piper models.
var piperVoiceMap = map[string]string{
	"nova": "en_US-amy-medium", "shimmer": "en_US-amy-medium",
	"alloy": "en_US-amy-medium",
	"onyx":  "en_US-lessac-medium", "echo": "en_US-lessac-medium",
	"fable": "en_US-lessac-medium",
}

// NewPiper builds a Piper TTS engine. binaryPath/modelsDir empty fall back
// to common install locations.
func NewPiper(binaryPath, modelsDir string, log zerolog.Logger) *Piper {
	if binaryPath == "" {
		home, _ := os.UserHomeDir()
		candidates := []string{
			filepath.Join(home, ".local/bin/piper"),
			"/usr/local/bin/piper",
			"/opt/homebrew/bin/piper",
		}
		for _, path := range candidates {
			if _, err := os.Stat(path); err == nil {
				binaryPath = path
				break
			}
		}
	}
	if modelsDir == "" {
		home, _ := os.UserHomeDir()
		modelsDir = filepath.Join(home, ".companioncore", "piper-voices")
	}
	return &Piper{
		binaryPath: binaryPath,
		modelsDir:  modelsDir,
		log:        log.With().Str("component", "tts.piper").Logger(),
	}
}

// Name implements engine.TTSEngine.
func (p *Piper) Name() string { return "piper" }

func (p *Piper) modelPath(voiceID string) string {
	model := piperVoiceMap[voiceID]
	if model == "" {
		model = "en_US-amy-medium"
	}
	return filepath.Join(p.modelsDir, model+".onnx")
}

var nonPrintable = regexp.MustCompile(`[^\x20-\x7E]`)

func sanitizeForPiper(text string) string {
	text = nonPrintable.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if len(text) > 500 {
		text = text[:500] + "..."
	}
	return text
}

// Synthesize implements engine.TTSEngine by piping text into the piper
// binary and reading back the WAV it writes to a temp file. key is unused:
// the binary runs locally with no per-user routing.
func (p *Piper) Synthesize(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions) ([]byte, error) {
	if runtime.GOOS != "darwin" && runtime.GOOS != "linux" {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", fmt.Errorf("unsupported platform %s", runtime.GOOS))
	}
	if p.binaryPath == "" {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", fmt.Errorf("piper binary not found"))
	}

	clean := sanitizeForPiper(text)
	if clean == "" {
		return nil, companionerr.New(companionerr.DecodeFailed, "tts.piper", fmt.Errorf("empty text after sanitization"))
	}

	modelPath := p.modelPath(opts.VoiceID)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", err)
	}

	tmpFile, err := os.CreateTemp("", "piper-*.wav")
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(ctx, p.binaryPath, "--model", modelPath, "-f", tmpPath)
	cmd.Stdin = bytes.NewBufferString(clean)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.log.Error().Err(err).Str("stderr", stderr.String()).Msg("piper synthesis failed")
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", err)
	}

	audio, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "tts.piper", err)
	}
	return audio, nil
}

// SynthesizeStream implements engine.TTSEngine. Piper writes a complete
// file; it is delivered as one chunk.
func (p *Piper) SynthesizeStream(ctx context.Context, key interaction.Key, text string, opts engine.SynthesizeOptions, onChunk func(engine.TTSAudioChunk)) error {
	audio, err := p.Synthesize(ctx, key, text, opts)
	if err != nil {
		return err
	}
	onChunk(engine.TTSAudioChunk{Audio: audio, Viseme: visemeForText(text)})
	return nil
}

// Profile implements engine.TTSEngine. Piper runs a small ONNX model on
// CPU; no GPU required.
func (p *Piper) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 256, CPUCores: 1, NeedsGPU: false}
}
