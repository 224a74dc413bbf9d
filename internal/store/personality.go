package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
	"github.com/normanking/companioncore/internal/interaction"
)

// RelationshipStage names a bond-level tier surfaced to the avatar's
// prompt and to the UI. Stages are derived from BondLevel, never stored
// independently, so they can never drift out of sync with it.
type RelationshipStage string

const (
	StageStranger     RelationshipStage = "stranger"
	StageAcquaintance RelationshipStage = "acquaintance"
	StageFriend       RelationshipStage = "friend"
	StageCloseFriend  RelationshipStage = "close_friend"
	StageBestFriend   RelationshipStage = "best_friend"
)

// stageThresholds maps the bond level at which each stage begins. Listed
// highest level first and checked in order, so the highest qualifying
// stage wins.
var stageThresholds = []struct {
	level int
	stage RelationshipStage
}{
	{21, StageBestFriend},
	{11, StageCloseFriend},
	{6, StageFriend},
	{3, StageAcquaintance},
	{0, StageStranger},
}

func stageForLevel(level int) RelationshipStage {
	for _, t := range stageThresholds {
		if level >= t.level {
			return t.stage
		}
	}
	return StageStranger
}

// levelForExperience implements bond_level = max(1, floor(xp/100) + 1), the
// flat progression curve: every 100 xp is worth exactly one level, with no
// per-level acceleration, and the level never drops below 1.
func levelForExperience(xp int) int {
	level := int(math.Floor(float64(xp)/100)) + 1
	if level < 1 {
		return 1
	}
	return level
}

// nudge moves current toward 1.0 by the supplied amount, never past it.
func nudge(current, amount float64) float64 {
	v := current + amount
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

// Personality is one Interaction Key's bonding progress.
type Personality struct {
	BondLevel         int
	Experience        int
	RelationshipStage RelationshipStage
	Trust             float64
	Affection         float64
	UpdatedAt         time.Time
}

// GetPersonality returns key's bonding state, creating the default
// stranger-level row on first access.
func (s *Store) GetPersonality(ctx context.Context, key interaction.Key) (Personality, error) {
	if err := requireKey(key); err != nil {
		return Personality{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getPersonalityLocked(ctx, key)
	if err == nil {
		return p, nil
	}

	_, execErr := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO personality (user_id, model_id) VALUES (?, ?)`,
		key.UserID, key.ModelID)
	if execErr != nil {
		return Personality{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", fmt.Errorf("seed personality: %w", execErr))
	}
	return s.getPersonalityLocked(ctx, key)
}

func (s *Store) getPersonalityLocked(ctx context.Context, key interaction.Key) (Personality, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT bond_level, experience, relationship_stage, trust, affection, updated_at FROM personality
		 WHERE user_id = ? AND model_id = ?`,
		key.UserID, key.ModelID)

	var p Personality
	var stage string
	if err := row.Scan(&p.BondLevel, &p.Experience, &stage, &p.Trust, &p.Affection, &p.UpdatedAt); err != nil {
		return Personality{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", err)
	}
	p.RelationshipStage = RelationshipStage(stage)
	return p, nil
}

// AddExperience credits xp to key's bonding progress and nudges trust and
// affection toward 1.0 by 0.01 per xp point, then returns the resulting
// Personality. Bond level and stage are recomputed from total experience
// rather than accumulated, so AddExperience is safe to call with any xp
// delta, including negative corrections.
func (s *Store) AddExperience(ctx context.Context, key interaction.Key, xp int) (Personality, error) {
	if err := requireKey(key); err != nil {
		return Personality{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.getPersonalityLocked(ctx, key)
	if err != nil {
		if _, execErr := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO personality (user_id, model_id) VALUES (?, ?)`,
			key.UserID, key.ModelID); execErr != nil {
			return Personality{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", execErr)
		}
		p, err = s.getPersonalityLocked(ctx, key)
		if err != nil {
			return Personality{}, err
		}
	}

	p.Experience += xp
	p.BondLevel = levelForExperience(p.Experience)
	p.RelationshipStage = stageForLevel(p.BondLevel)
	p.Trust = nudge(p.Trust, 0.01*float64(xp))
	p.Affection = nudge(p.Affection, 0.01*float64(xp))

	_, execErr := s.db.ExecContext(ctx,
		`UPDATE personality SET bond_level = ?, experience = ?, relationship_stage = ?, trust = ?, affection = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND model_id = ?`,
		p.BondLevel, p.Experience, string(p.RelationshipStage), p.Trust, p.Affection, key.UserID, key.ModelID)
	if execErr != nil {
		return Personality{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", fmt.Errorf("update personality: %w", execErr))
	}

	p.UpdatedAt = time.Now()
	return p, nil
}

// Trait is one named facet of an avatar's personality (e.g. "playfulness",
// "curiosity"), independent of bonding progress. BaseValue is fixed at
// creation; CurrentValue drifts as the avatar adapts.
type Trait struct {
	TraitName    string
	BaseValue    float64
	CurrentValue float64
	LastReason   string
	UpdatedAt    time.Time
}

// Traits returns every trait recorded for key, ordered by name.
func (s *Store) Traits(ctx context.Context, key interaction.Key) ([]Trait, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT trait_name, base_value, current_value, last_reason, updated_at FROM personality_traits
		 WHERE user_id = ? AND model_id = ? ORDER BY trait_name`,
		key.UserID, key.ModelID)
	if err != nil {
		return nil, companionerr.New(companionerr.EngineUnavailable, "store.personality", err)
	}
	defer rows.Close()

	var traits []Trait
	for rows.Next() {
		var t Trait
		if err := rows.Scan(&t.TraitName, &t.BaseValue, &t.CurrentValue, &t.LastReason, &t.UpdatedAt); err != nil {
			return nil, companionerr.New(companionerr.EngineUnavailable, "store.personality", err)
		}
		traits = append(traits, t)
	}
	return traits, rows.Err()
}

// AdaptTrait sets trait's current value, recording an optional reason. The
// first call for a given trait name seeds its immutable base_value at
// newValue; later calls leave base_value untouched. newValue is clamped to
// [0, 1].
func (s *Store) AdaptTrait(ctx context.Context, key interaction.Key, traitName string, newValue float64, reason string) (Trait, error) {
	if err := requireKey(key); err != nil {
		return Trait{}, err
	}
	if newValue < 0 {
		newValue = 0
	}
	if newValue > 1 {
		newValue = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, execErr := s.db.ExecContext(ctx,
		`INSERT INTO personality_traits (user_id, model_id, trait_name, base_value, current_value, last_reason)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, model_id, trait_name) DO UPDATE SET
		   current_value = excluded.current_value,
		   last_reason = excluded.last_reason,
		   updated_at = CURRENT_TIMESTAMP`,
		key.UserID, key.ModelID, traitName, newValue, newValue, reason)
	if execErr != nil {
		return Trait{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", fmt.Errorf("adapt trait: %w", execErr))
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT trait_name, base_value, current_value, last_reason, updated_at FROM personality_traits
		 WHERE user_id = ? AND model_id = ? AND trait_name = ?`,
		key.UserID, key.ModelID, traitName)
	var t Trait
	if err := row.Scan(&t.TraitName, &t.BaseValue, &t.CurrentValue, &t.LastReason, &t.UpdatedAt); err != nil {
		return Trait{}, companionerr.New(companionerr.EngineUnavailable, "store.personality", err)
	}
	return t, nil
}

// FullPersonality bundles bonding progress with every trait recorded for
// key, the shape the conversation core needs to assemble a prompt.
type FullPersonality struct {
	Personality
	Traits []Trait
}

// PersonalitySnapshot returns key's full personality: bonding progress plus
// every adapted trait.
func (s *Store) PersonalitySnapshot(ctx context.Context, key interaction.Key) (FullPersonality, error) {
	p, err := s.GetPersonality(ctx, key)
	if err != nil {
		return FullPersonality{}, err
	}
	traits, err := s.Traits(ctx, key)
	if err != nil {
		return FullPersonality{}, err
	}
	return FullPersonality{Personality: p, Traits: traits}, nil
}
