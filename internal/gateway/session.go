package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/normanking/companioncore/internal/audio"
	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/metrics"
)

// companioncore's capture and synthesis pipelines run 16kHz mono PCM
// throughout; Opus only needs the frame size in samples, not a fixed
// Discord-style 48kHz/stereo layout.
const (
	opusSampleRate  = 16000
	opusChannels    = 1
	opusFrameMs     = 20
	opusFrameSize   = opusSampleRate * opusFrameMs / 1000
)

// outboundMessage is the JSON envelope for every non-audio event relayed to
// the browser client.
type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// session owns one websocket connection for one Interaction Key: it relays
// bus events scoped to that key out as frames, and forwards inbound PCM
// frames into the key's capture Pipeline.
type session struct {
	key      interaction.Key
	conn     *websocket.Conn
	pipeline *audio.Pipeline
	eventBus *bus.Bus
	metrics  *metrics.Metrics
	log      zerolog.Logger

	opusEnc *gopus.Encoder
}

func newSession(key interaction.Key, conn *websocket.Conn, pipeline *audio.Pipeline, eventBus *bus.Bus, m *metrics.Metrics, log zerolog.Logger) *session {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		// Opus encoding is cosmetic (browsers can also decode raw PCM); a
		// construction failure degrades to passing audio through
		// unencoded rather than refusing the session.
		log.Warn().Err(err).Msg("opus encoder unavailable, falling back to raw PCM frames")
		enc = nil
	}

	return &session{
		key:      key,
		conn:     conn,
		pipeline: pipeline,
		eventBus: eventBus,
		metrics:  m,
		log:      log.With().Str("component", "gateway.session").Str("key", key.String()).Logger(),
		opusEnc:  enc,
	}
}

// run drives the session until ctx is canceled or the connection closes. It
// starts the pipeline's own Run loop, subscribes to the bus for this
// session's key, and reads inbound frames, returning once any of those three
// stop.
func (s *session) run(ctx context.Context) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	unsubscribe := s.eventBus.Subscribe(func(event bus.Event) {
		if event.Key != s.key {
			return
		}
		s.relay(event)
	})
	defer unsubscribe()

	pipelineDone := make(chan error, 1)
	go func() { pipelineDone <- s.pipeline.Run(sessionCtx) }()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readLoop(sessionCtx)
	}()

	select {
	case <-sessionCtx.Done():
	case <-pipelineDone:
	case <-readDone:
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("in", "audio").Inc()
		}
		if err := s.pipeline.Push(data); err != nil {
			if errors.Is(err, audio.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("failed to push inbound audio frame")
		}
	}
}

// relay forwards one bus event to the browser client: TTS audio chunks go
// out as opus-encoded binary frames, everything else as a JSON text frame.
func (s *session) relay(event bus.Event) {
	if event.Type == bus.EventTTSChunk {
		s.relayAudio(event)
		return
	}

	msg := outboundMessage{Type: string(event.Type), Payload: event.Payload}
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Str("type", string(event.Type)).Msg("failed to marshal event for relay")
		return
	}

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.Debug().Err(err).Msg("failed to write text frame")
		return
	}
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues("out", string(event.Type)).Inc()
	}
}

func (s *session) relayAudio(event bus.Event) {
	payload, ok := event.Payload.(bus.TTSChunkPayload)
	if !ok {
		return
	}

	frame := payload.Audio
	if s.opusEnc != nil {
		encoded, err := s.opusEnc.Encode(bytesToInt16s(payload.Audio), opusFrameSize, len(payload.Audio))
		if err != nil {
			s.log.Warn().Err(err).Msg("opus encode failed, sending raw PCM instead")
		} else {
			frame = encoded
		}
	}

	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.log.Debug().Err(err).Msg("failed to write audio frame")
		return
	}
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues("out", "audio").Inc()
	}
}

func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
