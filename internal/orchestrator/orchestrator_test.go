package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/metrics"
	"github.com/normanking/companioncore/internal/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *bus.Bus) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.A2A.BaseURL = "http://127.0.0.1:1" // unreachable but fixed, skips discovery probing
	cfg.STT.Provider = "a2abrain"
	cfg.LLM.Provider = "a2abrain"
	cfg.TTS.Provider = "a2abrain"

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eventBus := bus.New(16, zerolog.Nop())
	t.Cleanup(eventBus.Close)

	// metrics.New registers on the global Prometheus registry, so each test
	// needs its own namespace.
	m := metrics.New("test_orchestrator_" + t.Name())

	o, err := New(cfg, st, eventBus, m, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(o.Close)

	return o, eventBus
}

func TestPipelineRejectsInvalidKey(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.Pipeline(context.Background(), interaction.Key{})
	require.Error(t, err)
}

func TestPipelineReusesExistingForSameKey(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	first, err := o.Pipeline(context.Background(), key)
	require.NoError(t, err)
	second, err := o.Pipeline(context.Background(), key)
	require.NoError(t, err)

	require.Same(t, first, second)
}

func TestWatchHealthSurvivesOverflowAndSwitchEvents(t *testing.T) {
	_, eventBus := newTestOrchestrator(t)

	// watchHealth subscribes globally; publishing these must not panic on
	// the type switch even though neither payload carries a Key.
	eventBus.Publish(bus.Event{
		Type:    bus.EventSubscriberOverflow,
		Payload: bus.SubscriberOverflowPayload{SubscriberID: 1, Dropped: bus.EventResponseToken},
	})
	eventBus.Publish(bus.Event{
		Type:    bus.EventPipelineSwitched,
		Payload: bus.PipelineSwitchedPayload{EngineKind: "vad", From: "enhanced", To: "basic"},
	})

	time.Sleep(50 * time.Millisecond)
}
