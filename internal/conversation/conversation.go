// Package conversation is the core loop that turns one piece of user text
// into an avatar reply: it loads context from the store, checks the LLM
// cache, invokes the configured engine, and persists the result, all scoped
// to one Interaction Key at a time.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/engine"
	"github.com/normanking/companioncore/internal/interaction"
	"github.com/normanking/companioncore/internal/store"
)

// stopSequences tells the LLM where a turn ends so it doesn't keep writing
// both sides of the conversation.
var stopSequences = []string{"Human:", "Assistant:", "\n\n"}

// maxResponseChars is the hard cap on a single reply. Longer generations are
// cut at the last sentence boundary before the limit rather than mid-word.
const maxResponseChars = 500

// Core drives the conversation loop for every Interaction Key. Exchanges
// for the same key never run concurrently (see keyLock), so history
// ordering and cache writes stay consistent even if the gateway delivers
// two utterances back to back before the first finishes.
type Core struct {
	store *store.Store
	bus   *bus.Bus
	llm   engine.LLMEngine
	cfg   config.ConversationConfig
	log   zerolog.Logger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a Core.
func New(st *store.Store, eventBus *bus.Bus, llm engine.LLMEngine, cfg config.ConversationConfig, log zerolog.Logger) *Core {
	return &Core{
		store: st,
		bus:   eventBus,
		llm:   llm,
		cfg:   cfg,
		log:   log.With().Str("component", "conversation").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

func (c *Core) keyLock(key interaction.Key) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key.String()]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key.String()] = l
	}
	return l
}

// Handle processes one user utterance end to end and returns the avatar's
// reply text. onToken, if non-nil, receives streamed tokens as the LLM
// generates them (used to drive TTS/caption streaming before the full
// reply is known).
func (c *Core) Handle(ctx context.Context, key interaction.Key, userText string, onToken func(string)) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.store.AppendMessage(ctx, key, store.RoleUser, userText, "", 0); err != nil {
		return "", err
	}
	c.captureMemoryCues(ctx, key, userText)

	prompt, err := c.assemblePrompt(ctx, key, userText)
	if err != nil {
		return "", err
	}

	fingerprint := store.Fingerprint(prompt)
	if cached, ok, err := c.store.CacheGet(ctx, key.ModelID, fingerprint); err == nil && ok {
		c.publish(bus.Event{Type: bus.EventCacheHit, Key: key, Payload: bus.CacheHitPayload{PromptFingerprint: fingerprint}})
		if err := c.storeAndReact(ctx, key, cached, true, 0); err != nil {
			return "", err
		}
		return cached, nil
	}

	opts := engine.GenerateOptions{
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
		Stop:        stopSequences,
	}

	start := time.Now()
	var response string
	if onToken != nil {
		response, err = c.llm.GenerateStream(ctx, key, prompt, opts, func(token string) {
			c.publish(bus.Event{Type: bus.EventResponseToken, Key: key, Payload: bus.ResponseTokenPayload{Token: token}})
			onToken(token)
		})
	} else {
		response, err = c.llm.Generate(ctx, key, prompt, opts)
	}
	if err != nil {
		return "", companionerr.New(companionerr.EngineUnavailable, "conversation", err)
	}
	latency := time.Since(start)

	response = postProcess(response)

	if err := c.storeAndReact(ctx, key, response, false, latency); err != nil {
		return "", err
	}

	if err := c.store.CachePut(ctx, key.ModelID, fingerprint, response, c.cfg.CacheTTL); err != nil {
		c.log.Warn().Err(err).Msg("failed to write LLM cache entry")
	}

	return response, nil
}

// storeAndReact appends the assistant's reply, credits experience, nudges
// the avatar's affective state toward the turn's sentiment, and announces
// the finished reply on the bus.
func (c *Core) storeAndReact(ctx context.Context, key interaction.Key, response string, fromCache bool, latency time.Duration) error {
	emotion := detectEmotion(response)

	if err := c.store.AppendMessage(ctx, key, store.RoleAssistant, response, emotion, latency); err != nil {
		return err
	}

	personality, err := c.store.AddExperience(ctx, key, c.cfg.XPPerExchange)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to credit experience")
	} else {
		c.publish(bus.Event{
			Type: bus.EventBondingChanged,
			Key:  key,
			Payload: bus.BondingChangedPayload{
				BondLevel:         personality.BondLevel,
				RelationshipStage: string(personality.RelationshipStage),
				ExperienceGained:  c.cfg.XPPerExchange,
			},
		})
	}

	if err := c.nudgeAvatarState(ctx, key, emotion); err != nil {
		c.log.Warn().Err(err).Msg("failed to nudge avatar state")
	}

	if group, name, ok := motionForEmotion(emotion); ok {
		c.publish(bus.Event{
			Type: bus.EventMotionTrigger,
			Key:  key,
			Payload: bus.MotionTriggerPayload{
				Group:    group,
				Name:     name,
				Priority: 1,
			},
		})
	}

	c.publish(bus.Event{
		Type: bus.EventResponseReady,
		Key:  key,
		Payload: bus.ResponseReadyPayload{
			Text:            response,
			FromCache:       fromCache,
			DetectedEmotion: emotion,
		},
	})
	return nil
}

// sentimentAdjustment is how much a detected emotion nudges mood/energy/
// happiness/stress, each in [-1, 1] of a single step; nudgeAvatarState
// scales these by a small fixed step size.
var sentimentAdjustment = map[string]struct{ mood, energy, happiness, stress float64 }{
	"joy":      {1, 1, 1, -1},
	"surprise": {1, 1, 0, 0},
	"sadness":  {-1, -1, -1, 1},
	"anger":    {-1, 0, -1, 1},
	"fear":     {-1, 0, -1, 1},
	"neutral":  {0, 0, 0, 0},
}

const avatarStateStep = 0.05

// nudgeAvatarState moves mood/energy/happiness/stress a small step in the
// direction of the turn's detected emotion, rather than setting them
// outright, so a single turn can't whiplash the avatar's affect.
func (c *Core) nudgeAvatarState(ctx context.Context, key interaction.Key, emotion string) error {
	adj, ok := sentimentAdjustment[emotion]
	if !ok || (adj.mood == 0 && adj.energy == 0 && adj.happiness == 0 && adj.stress == 0) {
		return nil
	}

	current, err := c.store.GetAvatarState(ctx, key)
	if err != nil {
		return err
	}

	mood := clamp01(current.Mood + adj.mood*avatarStateStep)
	energy := clamp01(current.Energy + adj.energy*avatarStateStep)
	happiness := clamp01(current.Happiness + adj.happiness*avatarStateStep)
	stress := clamp01(current.Stress + adj.stress*avatarStateStep)

	_, err = c.store.UpdateAvatarState(ctx, key, &mood, &energy, &happiness, &stress)
	return err
}

// emotionMotions maps a detected emotion to the face-motion group/name the
// avatar should play, following the "<kind>_<emotion>" group naming the
// motion resolver's GroupName uses. Neutral has no associated trigger.
var emotionMotions = map[string]struct{ group, name string }{
	"joy":      {"face_smile", "face_smile"},
	"sadness":  {"face_sad", "face_sad"},
	"anger":    {"face_angry", "face_angry"},
	"fear":     {"face_worry", "face_worry"},
	"surprise": {"face_surprise", "face_surprise"},
}

func motionForEmotion(emotion string) (group, name string, ok bool) {
	m, ok := emotionMotions[emotion]
	return m.group, m.name, ok
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// emotionKeywords maps a coarse emotion label to the words that signal it.
// Checked in this order, first match wins, so "neutral" is the fallback.
var emotionKeywords = []struct {
	emotion  string
	keywords []string
}{
	{"joy", []string{"happy", "glad", "excited", "delighted", "wonderful", "great", "love it", "yay"}},
	{"sadness", []string{"sad", "sorry", "unfortunate", "miss you", "lonely", "down"}},
	{"anger", []string{"angry", "frustrat", "annoyed", "furious"}},
	{"fear", []string{"afraid", "worried", "nervous", "scared", "anxious"}},
	{"surprise", []string{"wow", "whoa", "surprised", "can't believe", "no way"}},
}

// detectEmotion classifies a generated reply's dominant emotion from a
// small keyword table. Good enough to drive avatar expression without
// pulling in a sentiment model.
func detectEmotion(text string) string {
	lower := strings.ToLower(text)
	for _, e := range emotionKeywords {
		for _, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				return e.emotion
			}
		}
	}
	return "neutral"
}

// memoryCues maps a phrase spotted in user text to the kind of durable
// memory it implies. The first matching cue wins.
var memoryCues = []struct {
	phrase string
	kind   store.MemoryKind
	hint   string
}{
	{"my favorite", store.MemoryKindPreference, "high"},
	{"i love", store.MemoryKindPreference, "high"},
	{"i like", store.MemoryKindPreference, "medium"},
	{"i hate", store.MemoryKindPreference, "medium"},
	{"i enjoy", store.MemoryKindInterest, "medium"},
	{"i'm interested in", store.MemoryKindInterest, "medium"},
	{"i am interested in", store.MemoryKindInterest, "medium"},
	{"my mom", store.MemoryKindRelationship, "high"},
	{"my dad", store.MemoryKindRelationship, "high"},
	{"my family", store.MemoryKindRelationship, "high"},
	{"my wife", store.MemoryKindRelationship, "high"},
	{"my husband", store.MemoryKindRelationship, "high"},
	{"my friend", store.MemoryKindRelationship, "medium"},
	{"i work as", store.MemoryKindFact, "medium"},
	{"i live in", store.MemoryKindFact, "medium"},
	{"i am a", store.MemoryKindFact, "medium"},
	{"i'm a", store.MemoryKindFact, "medium"},
}

// captureMemoryCues scans userText for phrases that imply something worth
// remembering long-term and records the first match as a Memory. Failures
// are logged, not returned: a missed memory should never fail the turn.
func (c *Core) captureMemoryCues(ctx context.Context, key interaction.Key, userText string) {
	lower := strings.ToLower(userText)
	for _, cue := range memoryCues {
		if !strings.Contains(lower, cue.phrase) {
			continue
		}
		if err := c.store.AddMemory(ctx, key, cue.kind, userText, cue.hint); err != nil {
			c.log.Warn().Err(err).Msg("failed to capture memory cue")
		}
		return
	}
}

// traitDescriptor returns a short personality descriptor gated by bond
// level, so the prompt's tone warms up as the relationship deepens.
func traitDescriptor(stage store.RelationshipStage) string {
	switch stage {
	case store.StageStranger:
		return "polite but reserved, still getting to know this person"
	case store.StageAcquaintance:
		return "friendly and a little curious about this person"
	case store.StageFriend:
		return "warm and comfortable, speaks casually"
	case store.StageCloseFriend:
		return "affectionate and open, remembers small details"
	case store.StageBestFriend:
		return "deeply familiar and playful, speaks like a close confidant"
	default:
		return "friendly"
	}
}

// assemblePrompt loads recent history, durable memories, bonding state, and
// affective state, and renders them into a single prompt string for the LLM
// engine.
func (c *Core) assemblePrompt(ctx context.Context, key interaction.Key, userText string) (string, error) {
	historyLimit := c.cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}
	messages, err := c.store.RecentMessages(ctx, key, historyLimit)
	if err != nil {
		return "", err
	}

	memoryLimit := c.cfg.MemoryLimit
	if memoryLimit <= 0 {
		memoryLimit = 5
	}
	memories, err := c.store.TopImportantMemories(ctx, key, memoryLimit)
	if err != nil {
		return "", err
	}

	personality, err := c.store.GetPersonality(ctx, key)
	if err != nil {
		return "", err
	}

	avatarState, err := c.store.GetAvatarState(ctx, key)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s (bond level %d, trust %.2f).\n", traitDescriptor(personality.RelationshipStage), personality.BondLevel, personality.Trust)
	fmt.Fprintf(&b, "Current mood: %.2f, energy: %.2f, happiness: %.2f.\n", avatarState.Mood, avatarState.Energy, avatarState.Happiness)

	if len(memories) > 0 {
		b.WriteString("Known about the user:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m.Content)
		}
	}

	if len(messages) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range messages {
			label := "Human"
			if m.Role == store.RoleAssistant {
				label = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
		}
	}

	fmt.Fprintf(&b, "Human: %s\nAssistant:", userText)
	return b.String(), nil
}

// postProcess trims whitespace, strips a speaker label a model sometimes
// echoes back from the prompt, and enforces the reply length cap by
// cutting at the last sentence boundary rather than mid-word.
func postProcess(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "Assistant:")
	response = strings.TrimSpace(response)

	if len(response) <= maxResponseChars {
		return response
	}

	truncated := response[:maxResponseChars]
	if idx := strings.LastIndexAny(truncated, ".!?"); idx >= 0 {
		truncated = truncated[:idx+1]
	}
	return strings.TrimSpace(truncated)
}

func (c *Core) publish(event bus.Event) {
	if c.bus == nil {
		return
	}
	event.Timestamp = time.Now()
	c.bus.Publish(event)
}
