package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/store"
)

type fakeLLM struct {
	calls     int
	responses []string
}

func (f *fakeLLM) Name() string { return "fake" }

func (f *fakeLLM) Generate(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions) (string, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return "default reply", nil
}

func (f *fakeLLM) GenerateStream(ctx context.Context, key interaction.Key, prompt string, opts engine.GenerateOptions, onToken func(string)) (string, error) {
	resp, err := f.Generate(ctx, key, prompt, opts)
	if err != nil {
		return "", err
	}
	onToken(resp)
	return resp, nil
}

func (f *fakeLLM) Profile() engine.ResourceProfile { return engine.ResourceProfile{} }

func testConfig() config.ConversationConfig {
	return config.ConversationConfig{
		HistoryLimit:  10,
		MemoryLimit:   5,
		CacheTTL:      time.Hour,
		XPPerExchange: 5,
	}
}

func TestHandleCachesSecondIdenticalExchange(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	llm := &fakeLLM{responses: []string{"hello there!"}}
	b := bus.New(16, zerolog.Nop())
	defer b.Close()

	core := New(st, b, llm, testConfig(), zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	reply1, err := core.Handle(ctx, key, "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "hello there!", reply1)
	require.Equal(t, 1, llm.calls)

	var cacheHit bool
	unsub := b.Subscribe(func(e bus.Event) { cacheHit = true }, bus.EventCacheHit)
	defer unsub()

	reply2, err := core.Handle(ctx, key, "hi", nil)
	require.NoError(t, err)
	require.Equal(t, reply1, reply2)
	require.Equal(t, 1, llm.calls, "second identical exchange should hit the cache, not call the LLM again")

	require.Eventually(t, func() bool { return cacheHit }, time.Second, 5*time.Millisecond)
}

func TestHandleStreamsTokens(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	llm := &fakeLLM{responses: []string{"streamed reply"}}
	core := New(st, nil, llm, testConfig(), zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	var tokens []string
	reply, err := core.Handle(ctx, key, "hi", func(tok string) { tokens = append(tokens, tok) })
	require.NoError(t, err)
	require.Equal(t, "streamed reply", reply)
	require.NotEmpty(t, tokens)
}

func TestHandleRejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	core := New(st, nil, &fakeLLM{}, testConfig(), zerolog.Nop())
	_, err = core.Handle(ctx, interaction.Key{UserID: "", ModelID: "m1"}, "hi", nil)
	require.Error(t, err)
}

func TestHandleCapturesMemoryCue(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	llm := &fakeLLM{responses: []string{"noted!"}}
	core := New(st, nil, llm, testConfig(), zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	_, err = core.Handle(ctx, key, "my favorite color is blue", nil)
	require.NoError(t, err)

	mems, err := st.RecentMemories(ctx, key, 5)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	require.Equal(t, store.MemoryKindPreference, mems[0].Kind)
}

func TestHandleNudgesAvatarStateOnSentiment(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	llm := &fakeLLM{responses: []string{"I'm so happy and excited for you!"}}
	core := New(st, nil, llm, testConfig(), zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	before, err := st.GetAvatarState(ctx, key)
	require.NoError(t, err)

	_, err = core.Handle(ctx, key, "hi", nil)
	require.NoError(t, err)

	after, err := st.GetAvatarState(ctx, key)
	require.NoError(t, err)
	require.Greater(t, after.Mood, before.Mood)
	require.Less(t, after.Stress, before.Stress+0.0001)
}

func TestHandlePublishesMotionTriggerForDetectedEmotion(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	llm := &fakeLLM{responses: []string{"I'm so happy for you, that's wonderful!"}}
	b := bus.New(16, zerolog.Nop())
	defer b.Close()
	core := New(st, b, llm, testConfig(), zerolog.Nop())
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	triggered := make(chan bus.MotionTriggerPayload, 1)
	unsub := b.Subscribe(func(e bus.Event) {
		if p, ok := e.Payload.(bus.MotionTriggerPayload); ok {
			triggered <- p
		}
	}, bus.EventMotionTrigger)
	defer unsub()

	_, err = core.Handle(ctx, key, "hi", nil)
	require.NoError(t, err)

	select {
	case p := <-triggered:
		require.Equal(t, "face_smile", p.Group)
	case <-time.After(time.Second):
		t.Fatal("expected EventMotionTrigger to be published")
	}
}

func TestPostProcessTruncatesAtSentenceBoundary(t *testing.T) {
	sentence := "This is a reasonably long sentence that repeats itself. "
	var long strings.Builder
	for long.Len() <= maxResponseChars {
		long.WriteString(sentence)
	}
	long.WriteString("trailing fragment with no period")

	out := postProcess(long.String())
	require.LessOrEqual(t, len(out), maxResponseChars)
	require.True(t, strings.HasSuffix(out, "."), "truncation should land on a sentence boundary")
}
