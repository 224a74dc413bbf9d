package bus

import (
	"time"

	"github.com/normanking/companioncore/internal/interaction"
)

// EventType identifies the shape of an Event's Payload.
type EventType string

const (
	// Audio pipeline events.
	EventPipelineStateChanged EventType = "audio.pipeline_state_changed"
	EventWakeDetected         EventType = "audio.wake_detected"
	EventSpeechStarted        EventType = "audio.speech_started"
	EventSpeechEnded          EventType = "audio.speech_ended"
	EventPipelineSwitched     EventType = "audio.pipeline_switched"

	// STT events.
	EventTranscriptPartial EventType = "stt.partial"
	EventTranscriptFinal   EventType = "stt.final"

	// Conversation Core events.
	EventResponseToken EventType = "conversation.response_token"
	EventResponseReady EventType = "conversation.response_ready"
	EventCacheHit      EventType = "conversation.cache_hit"

	// TTS events.
	EventTTSStarted   EventType = "tts.started"
	EventTTSChunk     EventType = "tts.chunk"
	EventTTSCompleted EventType = "tts.completed"

	// Motion resolver events.
	EventMotionResolved EventType = "motion.resolved"
	EventMotionTrigger  EventType = "motion.trigger"

	// Personality / bonding events.
	EventBondingChanged EventType = "store.bonding_changed"

	// Bus and engine health events.
	EventSubscriberOverflow EventType = "bus.subscriber_overflow"
	EventEngineError        EventType = "engine.error"
)

// Event is the envelope delivered to subscribers. Payload is always one of
// the concrete *Payload types below — callers type-switch on it rather than
// indexing into a map, so a typo in a field name is caught at compile time.
type Event struct {
	Type      EventType
	Key       interaction.Key // zero value when the event is not user-scoped
	Timestamp time.Time
	Payload   any
}

// PipelineStateChangedPayload reports an Audio Pipeline state transition.
type PipelineStateChangedPayload struct {
	From   string
	To     string
	Reason string
}

// WakeDetectedPayload reports a wake-word match.
type WakeDetectedPayload struct {
	Word       string
	Confidence float64
}

// SpeechBoundaryPayload marks the start or end of a recorded speech segment.
type SpeechBoundaryPayload struct {
	DurationMs int64
}

// PipelineSwitchedPayload reports a fallback from the enhanced engine
// variant to the basic one, or vice versa, for a given engine kind.
type PipelineSwitchedPayload struct {
	EngineKind string
	From       string
	To         string
	Cause      error
}

// TranscriptPayload carries an STT result, partial or final.
type TranscriptPayload struct {
	Text       string
	Confidence float64
	Final      bool
}

// ResponseTokenPayload carries one streamed LLM token.
type ResponseTokenPayload struct {
	Token string
}

// ResponseReadyPayload carries a completed conversational turn.
type ResponseReadyPayload struct {
	Text            string
	FromCache       bool
	DetectedEmotion string
}

// CacheHitPayload reports an LLM cache hit, distinct from ResponseReady so
// metrics and UI can distinguish a cached turn without string matching.
type CacheHitPayload struct {
	PromptFingerprint string
}

// TTSChunkPayload carries one synthesized audio chunk plus its viseme.
type TTSChunkPayload struct {
	Audio  []byte
	Viseme string
}

// MotionResolvedPayload carries a resolved motion classification/grouping
// result for a single model.
type MotionResolvedPayload struct {
	ModelID         string
	FaceMotions     int
	BodyMotions     int
	MixedMotions    int
	UnknownMotions  int
}

// MotionTriggerPayload asks the avatar runtime to play a specific motion,
// distinct from MotionResolvedPayload which reports the resolver's static
// classification of a model's whole motion set.
type MotionTriggerPayload struct {
	Group    string
	Name     string
	Priority int
}

// BondingChangedPayload reports a bonding-progress update.
type BondingChangedPayload struct {
	BondLevel        int
	RelationshipStage string
	ExperienceGained int
}

// SubscriberOverflowPayload reports that a subscriber's bounded queue was
// full and the oldest undelivered event was dropped to admit a new one.
type SubscriberOverflowPayload struct {
	SubscriberID uint64
	Dropped      EventType
}

// EngineErrorPayload reports a companionerr-wrapped engine failure.
type EngineErrorPayload struct {
	EngineKind string
	Err        error
}
