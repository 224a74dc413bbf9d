package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/audio"
	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/metrics"
)

type stubProvider struct{}

func (stubProvider) Pipeline(ctx context.Context, key interaction.Key) (*audio.Pipeline, error) {
	return nil, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.GatewayConfig{ListenAddr: ":0"}
	eventBus := bus.New(16, zerolog.Nop())
	// metrics.New registers on the global Prometheus registry, so each test
	// needs its own namespace.
	return New(cfg, stubProvider{}, eventBus, metrics.New("test_gateway_"+t.Name()), true, zerolog.Nop())
}

func TestHealthzReturnsOK(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, "ok", w.Body.String())
}

func TestHandleWSRejectsMissingKey(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}
