package vad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
)

// Enhanced is a neural VAD backed by a local HTTP voice service. It gives
// higher accuracy than Basic but depends on that service staying up; the
// Audio Pipeline falls back to Basic the moment a call here fails.
type Enhanced struct {
	serviceURL string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewEnhanced builds an Enhanced VAD pointed at serviceURL.
func NewEnhanced(serviceURL string, log zerolog.Logger) *Enhanced {
	if serviceURL == "" {
		serviceURL = "http://localhost:8899"
	}
	return &Enhanced{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log.With().Str("component", "vad.enhanced").Logger(),
	}
}

// IsSpeech implements engine.VAD by delegating to the voice service's
// /vad endpoint.
func (e *Enhanced) IsSpeech(ctx context.Context, frame []byte) (engine.VADResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("audio", "frame.raw")
	if err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	if _, err := part.Write(frame); err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	if err := writer.Close(); err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}

	url := fmt.Sprintf("%s/vad", e.serviceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var parsed struct {
		HasSpeech  bool    `json:"has_speech"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return engine.VADResult{}, companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}

	return engine.VADResult{IsSpeech: parsed.HasSpeech, Confidence: parsed.Confidence}, nil
}

// Reset is a no-op: the remote service holds no per-call smoothing state
// the pipeline needs to clear.
func (e *Enhanced) Reset() {}

// Health checks whether the voice service is reachable. Nothing in the
// audio pipeline calls it: FallbackVAD uses Enhanced whenever it is
// configured and switches to Basic on its first failed call.
func (e *Enhanced) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", e.serviceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return companionerr.New(companionerr.EngineUnavailable, "vad.enhanced", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return companionerr.New(companionerr.EngineUnavailable, "vad.enhanced",
			fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// Profile implements engine.VAD. The enhanced engine delegates inference
// to an external process, so its own footprint is just the HTTP client.
func (e *Enhanced) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 16, CPUCores: 1, NeedsGPU: false}
}
