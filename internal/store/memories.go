package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// MemoryKind distinguishes the different shapes of durable recollection the
// avatar keeps about the user.
type MemoryKind string

const (
	MemoryKindPreference   MemoryKind = "preference"
	MemoryKindFact         MemoryKind = "fact"
	MemoryKindInterest     MemoryKind = "interest"
	MemoryKindRelationship MemoryKind = "relationship"
)

// importanceHints maps a caller-supplied hint to a base importance score.
// An unrecognized or empty hint falls back to "medium".
var importanceHints = map[string]float64{
	"critical": 0.9,
	"high":     0.7,
	"medium":   0.5,
	"low":      0.3,
	"minimal":  0.1,
}

var highSalienceWords = []string{"love", "important", "family", "secret"}
var lowSalienceWords = []string{"maybe", "whatever"}

var topicStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "for": true, "with": true,
	"and": true, "or": true, "but": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "my": true, "your": true,
	"his": true, "her": true, "its": true, "our": true, "their": true,
	"this": true, "that": true, "these": true, "those": true, "do": true,
	"does": true, "did": true, "has": true, "have": true, "had": true,
	"not": true, "no": true, "so": true, "if": true, "as": true, "by": true,
	"from": true, "about": true,
}

// scoreImportance derives a memory's importance in [0, 1] from a coarse
// hint plus content-driven adjustments: salient keywords push it up,
// hedging words pull it down, and long content earns a small bonus.
func scoreImportance(hint, content string) float64 {
	score, ok := importanceHints[strings.ToLower(hint)]
	if !ok {
		score = importanceHints["medium"]
	}

	lower := strings.ToLower(content)
	for _, w := range highSalienceWords {
		if strings.Contains(lower, w) {
			score += 0.1
		}
	}
	for _, w := range lowSalienceWords {
		if strings.Contains(lower, w) {
			score -= 0.1
		}
	}
	if len(content) > 100 {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.1 {
		score = 0.1
	}
	return score
}

// extractTopic picks the first word at least 3 characters long that isn't a
// stopword, lowercased, as a memory's topic. Falls back to "general" when
// nothing qualifies.
func extractTopic(content string) string {
	for _, field := range strings.Fields(content) {
		word := strings.ToLower(strings.Trim(field, ".,!?;:\"'()"))
		if len(word) < 3 {
			continue
		}
		if topicStopwords[word] {
			continue
		}
		return word
	}
	return "general"
}

// Memory is one long-term recollection attached to an Interaction Key.
type Memory struct {
	ID           int64
	Kind         MemoryKind
	Content      string
	Topic        string
	Importance   float64
	AccessCount  int
	LastAccessed time.Time
	CreatedAt    time.Time
}

// AddMemory records a durable memory for key. hint is one of
// "critical"/"high"/"medium"/"low"/"minimal" and seeds the base importance
// score; an empty or unrecognized hint defaults to "medium".
func (s *Store) AddMemory(ctx context.Context, key interaction.Key, kind MemoryKind, content, hint string) error {
	if err := requireKey(key); err != nil {
		return err
	}

	topic := extractTopic(content)
	importance := scoreImportance(hint, content)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (user_id, model_id, kind, content, topic, importance) VALUES (?, ?, ?, ?, ?, ?)`,
		key.UserID, key.ModelID, string(kind), content, topic, importance)
	if err != nil {
		return companionerr.New(companionerr.EngineUnavailable, "store.memories", fmt.Errorf("add memory: %w", err))
	}
	return nil
}

// RecentMemories returns up to limit memories for key, most recent first.
func (s *Store) RecentMemories(ctx context.Context, key interaction.Key, limit int) ([]Memory, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, topic, importance, access_count, last_accessed, created_at FROM memories
		 WHERE user_id = ? AND model_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		key.UserID, key.ModelID, limit)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.memories", fmt.Errorf("recent memories: %w", err))
	}
	defer rows.Close()

	out, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MemoriesByTopic returns memories whose topic contains topicSubstring,
// most recent first, and marks each returned memory as accessed: its
// access_count is incremented and last_accessed is set to now.
func (s *Store) MemoriesByTopic(ctx context.Context, key interaction.Key, topicSubstring string) ([]Memory, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, topic, importance, access_count, last_accessed, created_at FROM memories
		 WHERE user_id = ? AND model_id = ? AND topic LIKE ?
		 ORDER BY created_at DESC, id DESC`,
		key.UserID, key.ModelID, "%"+strings.ToLower(topicSubstring)+"%")
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.memories", fmt.Errorf("memories by topic: %w", err))
	}
	out, err := scanMemories(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	for i := range out {
		out[i].AccessCount++
		out[i].LastAccessed = time.Now()
		if _, execErr := s.db.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, last_accessed = CURRENT_TIMESTAMP WHERE id = ?`,
			out[i].ID); execErr != nil {
			return nil, companionerr.New(companionerr.EngineUnavailable, "store.memories", fmt.Errorf("mark accessed: %w", execErr))
		}
	}
	return out, nil
}

// TopImportantMemories returns up to limit memories for key ordered by
// importance, then access_count, both descending.
func (s *Store) TopImportantMemories(ctx context.Context, key interaction.Key, limit int) ([]Memory, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, topic, importance, access_count, last_accessed, created_at FROM memories
		 WHERE user_id = ? AND model_id = ?
		 ORDER BY importance DESC, access_count DESC, id DESC
		 LIMIT ?`,
		key.UserID, key.ModelID, limit)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.memories", fmt.Errorf("top important memories: %w", err))
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]Memory, error) {
	var out []Memory
	for rows.Next() {
		var m Memory
		var kind string
		var lastAccessed *time.Time
		if err := rows.Scan(&m.ID, &kind, &m.Content, &m.Topic, &m.Importance, &m.AccessCount, &lastAccessed, &m.CreatedAt); err != nil {
			return nil, companionerr.New(companionerr.EngineUnavailable, "store.memories", err)
		}
		m.Kind = MemoryKind(kind)
		if lastAccessed != nil {
			m.LastAccessed = *lastAccessed
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
