package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/normanking/companioncore/internal/companionerr"
)

// Fingerprint derives the cache key for a prompt. Hashing rather than
// storing the raw prompt as the key avoids SQLite row-length surprises on
// long contexts and keeps comparisons constant-size.
func Fingerprint(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// CacheGet returns a cached LLM response for modelID+fingerprint if one
// exists and has not expired. The cache is keyed by model only, never by
// user: the same prompt against the same model produces the same response
// regardless of who asked, so entries are deliberately shared across every
// Interaction Key that names that model, while never leaking across
// different models. The ok result is false on a miss or an expired entry;
// an expired entry is not eagerly deleted here (CleanExpired handles that
// in bulk) since a miss is already the correct behavior for the caller.
func (s *Store) CacheGet(ctx context.Context, modelID, fingerprint string) (response string, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expiresAt time.Time
	row := s.db.QueryRowContext(ctx,
		`SELECT response, expires_at FROM llm_cache WHERE model_id = ? AND prompt_fingerprint = ?`,
		modelID, fingerprint)
	if err := row.Scan(&response, &expiresAt); err != nil {
		return "", false, nil
	}
	if time.Now().After(expiresAt) {
		return "", false, nil
	}
	return response, true, nil
}

// CachePut stores response under modelID+fingerprint with the given TTL.
func (s *Store) CachePut(ctx context.Context, modelID, fingerprint, response string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_cache (model_id, prompt_fingerprint, response, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(model_id, prompt_fingerprint) DO UPDATE SET
		   response = excluded.response, created_at = CURRENT_TIMESTAMP, expires_at = excluded.expires_at`,
		modelID, fingerprint, response, time.Now().Add(ttl))
	if err != nil {
		return companionerr.New(companionerr.EngineUnavailable, "store.cache", fmt.Errorf("cache put: %w", err))
	}
	return nil
}

// CleanExpired deletes every expired cache row. Intended to run
// periodically from a maintenance goroutine.
func (s *Store) CleanExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, companionerr.New(companionerr.EngineUnavailable, "store.cache", fmt.Errorf("clean expired: %w", err))
	}
	return result.RowsAffected()
}
