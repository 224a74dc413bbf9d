package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMessagesAppendAndRecentOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	require.NoError(t, s.AppendMessage(ctx, key, RoleUser, "hello", "", 0))
	require.NoError(t, s.AppendMessage(ctx, key, RoleAssistant, "hi there", "joy", 120*time.Millisecond))
	require.NoError(t, s.AppendMessage(ctx, key, RoleUser, "how are you", "", 0))

	msgs, err := s.RecentMessages(ctx, key, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hi there", msgs[0].Content)
	require.Equal(t, "how are you", msgs[1].Content)
}

func TestMessagesRejectInvalidKey(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.AppendMessage(ctx, interaction.Key{UserID: "", ModelID: "m1"}, RoleUser, "x", "", 0)
	require.Error(t, err)
	require.True(t, companionerr.Is(err, companionerr.InvalidKey))
}

func TestPersonalityLevelsUpAndStagesAdvance(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	p, err := s.GetPersonality(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, p.BondLevel)
	require.Equal(t, StageStranger, p.RelationshipStage)
	require.Equal(t, 0.5, p.Trust)
	require.Equal(t, 0.5, p.Affection)

	for i := 0; i < 10; i++ {
		p, err = s.AddExperience(ctx, key, 50)
		require.NoError(t, err)
	}
	require.Equal(t, 500, p.Experience)
	require.Equal(t, 6, p.BondLevel)
	require.Equal(t, StageFriend, p.RelationshipStage)
	require.Equal(t, 1.0, p.Trust)
	require.Equal(t, 1.0, p.Affection)
}

func TestAvatarStateRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	seeded, err := s.GetAvatarState(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 0.5, seeded.Mood)
	require.Equal(t, 0.5, seeded.Energy)
	require.Equal(t, 0.5, seeded.Happiness)
	require.Equal(t, 0.0, seeded.Stress)

	mood, stress := 0.9, 0.2
	updated, err := s.UpdateAvatarState(ctx, key, &mood, nil, nil, &stress)
	require.NoError(t, err)
	require.Equal(t, 0.9, updated.Mood)
	require.Equal(t, 0.5, updated.Energy, "unsupplied fields stay unchanged")
	require.Equal(t, 0.2, updated.Stress)

	got, err := s.GetAvatarState(ctx, key)
	require.NoError(t, err)
	require.Equal(t, updated.Mood, got.Mood)
	require.Equal(t, updated.Stress, got.Stress)
}

func TestCacheHitMissAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	fp := Fingerprint("what's your favorite color?")

	_, ok, err := s.CacheGet(ctx, "m1", fp)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.CachePut(ctx, "m1", fp, "blue, obviously", -time.Second))
	_, ok, err = s.CacheGet(ctx, "m1", fp)
	require.NoError(t, err)
	require.False(t, ok, "expired entry should not be returned")

	require.NoError(t, s.CachePut(ctx, "m1", fp, "blue, obviously", time.Hour))
	resp, ok, err := s.CacheGet(ctx, "m1", fp)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "blue, obviously", resp)

	_, ok, err = s.CacheGet(ctx, "m2", fp)
	require.NoError(t, err)
	require.False(t, ok, "cache must never cross-read across models")
}

func TestMemoriesRecentOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	require.NoError(t, s.AddMemory(ctx, key, MemoryKindFact, "likes hiking", "medium"))
	require.NoError(t, s.AddMemory(ctx, key, MemoryKindPreference, "prefers tea over coffee", "high"))

	mems, err := s.RecentMemories(ctx, key, 5)
	require.NoError(t, err)
	require.Len(t, mems, 2)
	require.Equal(t, "prefers tea over coffee", mems[0].Content)
	require.Equal(t, "prefers", mems[0].Topic)
	require.Equal(t, 0.7, mems[0].Importance)
}

func TestMemoryImportanceScoringAndTopicExtraction(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	require.NoError(t, s.AddMemory(ctx, key, MemoryKindRelationship, "I love my family more than anything", "medium"))
	mems, err := s.RecentMemories(ctx, key, 1)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	// base 0.5 + 0.1 (love) + 0.1 (family) = 0.7
	require.InDelta(t, 0.7, mems[0].Importance, 0.0001)
	require.Equal(t, "love", mems[0].Topic)

	require.NoError(t, s.AddMemory(ctx, key, MemoryKindFact, "maybe whatever, not sure", "medium"))
	top, err := s.TopImportantMemories(ctx, key, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "love", top[0].Topic, "most important memory sorts first")

	byTopic, err := s.MemoriesByTopic(ctx, key, "lov")
	require.NoError(t, err)
	require.Len(t, byTopic, 1)
	require.Equal(t, 1, byTopic[0].AccessCount)

	again, err := s.RecentMemories(ctx, key, 10)
	require.NoError(t, err)
	for _, m := range again {
		if m.Topic == "love" {
			require.Equal(t, 1, m.AccessCount, "access tracked as a side effect of MemoriesByTopic")
		}
	}
}

func TestPersonalityTraitsAdapt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	trait, err := s.AdaptTrait(ctx, key, "playfulness", 0.8, "user responded well to jokes")
	require.NoError(t, err)
	require.Equal(t, 0.8, trait.BaseValue)
	require.Equal(t, 0.8, trait.CurrentValue)

	trait, err = s.AdaptTrait(ctx, key, "playfulness", 0.6, "toned down after a serious topic")
	require.NoError(t, err)
	require.Equal(t, 0.8, trait.BaseValue, "base value is immutable after the first write")
	require.Equal(t, 0.6, trait.CurrentValue)

	traits, err := s.Traits(ctx, key)
	require.NoError(t, err)
	require.Len(t, traits, 1)
}

func TestSessionContextPutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	key := interaction.Key{UserID: "u1", ModelID: "m1"}

	empty, err := s.GetSessionContext(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "", empty.SessionID)

	require.NoError(t, s.PutSessionContext(ctx, key, "sess-1", map[string]any{"topic": "hiking"}))
	got, err := s.GetSessionContext(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, "hiking", got.Data["topic"])

	require.NoError(t, s.PutSessionContext(ctx, key, "sess-2", map[string]any{"topic": "cooking"}))
	got, err = s.GetSessionContext(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "sess-2", got.SessionID, "put replaces atomically")
	require.Equal(t, "cooking", got.Data["topic"])
}
