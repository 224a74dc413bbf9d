package wakeword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/engine"
)

// Enhanced delegates wake-word detection to the same local voice service
// that backs vad.Enhanced, which bundles an openWakeWord-style model. It is
// the enhanced counterpart to Keyword, subject to the same enhanced/basic
// fallback rule as the VAD engine.
type Enhanced struct {
	serviceURL string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewEnhanced builds an Enhanced wake-word matcher pointed at serviceURL.
func NewEnhanced(serviceURL string, log zerolog.Logger) *Enhanced {
	if serviceURL == "" {
		serviceURL = "http://localhost:8899"
	}
	return &Enhanced{
		serviceURL: serviceURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		log:        log.With().Str("component", "wakeword.enhanced").Logger(),
	}
}

// Detect implements engine.WakeWordMatcher via the voice service's
// /wakeword endpoint.
func (e *Enhanced) Detect(ctx context.Context, window []byte) (engine.WakeWordResult, error) {
	url := fmt.Sprintf("%s/wakeword", e.serviceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(window))
	if err != nil {
		return engine.WakeWordResult{}, companionerr.New(companionerr.EngineUnavailable, "wakeword.enhanced", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return engine.WakeWordResult{}, companionerr.New(companionerr.EngineUnavailable, "wakeword.enhanced", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.WakeWordResult{}, companionerr.New(companionerr.EngineUnavailable, "wakeword.enhanced",
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed struct {
		Matched    bool    `json:"matched"`
		Word       string  `json:"word"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return engine.WakeWordResult{}, companionerr.New(companionerr.EngineUnavailable, "wakeword.enhanced", err)
	}

	return engine.WakeWordResult{Matched: parsed.Matched, Word: parsed.Word, Confidence: parsed.Confidence}, nil
}

// Profile implements engine.WakeWordMatcher.
func (e *Enhanced) Profile() engine.ResourceProfile {
	return engine.ResourceProfile{RAMMB: 16, CPUCores: 1, NeedsGPU: false}
}
