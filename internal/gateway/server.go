// Package gateway is the thin external adapter between a browser client and
// the rest of the system: it upgrades one websocket per Interaction Key,
// feeds inbound audio into that key's capture Pipeline, and relays bus
// events (transcripts, response tokens, synthesized audio, motion cues)
// back out as JSON/binary frames.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/audio"
	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/metrics"
)

// PipelineProvider supplies (creating if necessary) the audio pipeline
// backing one Interaction Key's session, so the gateway never has to know
// how engines, the conversation core, or the store are wired together.
type PipelineProvider interface {
	Pipeline(ctx context.Context, key interaction.Key) (*audio.Pipeline, error)
}

// Server is the HTTP+WebSocket adapter.
type Server struct {
	cfg      config.GatewayConfig
	provider PipelineProvider
	eventBus *bus.Bus
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New builds a Server. allowAnyOrigin should only be set for local
// development; production deployments behind a reverse proxy should leave
// it false so only same-origin browser clients can open a session.
func New(cfg config.GatewayConfig, provider PipelineProvider, eventBus *bus.Bus, m *metrics.Metrics, allowAnyOrigin bool, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		provider: provider,
		eventBus: eventBus,
		metrics:  m,
		log:      log.With().Str("component", "gateway").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Router builds the chi mux: /healthz, /metrics, and the /ws session
// endpoint.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", metrics.Handler().ServeHTTP)
	r.Get("/ws", s.handleWS)

	return r
}

// Start runs the HTTP server until ctx is canceled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("gateway listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := interaction.Key{
		UserID:  r.URL.Query().Get("user_id"),
		ModelID: r.URL.Query().Get("model_id"),
	}
	if err := key.Validate(); err != nil {
		http.Error(w, "user_id and model_id are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	pipeline, err := s.provider.Pipeline(r.Context(), key)
	if err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to obtain pipeline for session")
		conn.Close()
		return
	}

	sess := newSession(key, conn, pipeline, s.eventBus, s.metrics, s.log)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
		defer s.metrics.ActiveSessions.Dec()
	}
	sess.run(r.Context())
}
