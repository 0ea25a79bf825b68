package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/dolphin/ai"
	"github.com/hrygo/dolphin/store"
)

// ConflictResolver reconciles candidate facts against the session's active
// facts, deciding insert/supersede/ignore. Writes for the same
// (session, type, key) are serialized through a keyed mutex so two concurrent
// conflicting extractions cannot both observe "no active fact" and both
// insert.
type ConflictResolver struct {
	store    FactStore
	embedder ai.EmbeddingService
	keys     *keyedMutex
}

// NewConflictResolver creates a new ConflictResolver.
func NewConflictResolver(factStore FactStore, embedder ai.EmbeddingService) *ConflictResolver {
	return &ConflictResolver{
		store:    factStore,
		embedder: embedder,
		keys:     newKeyedMutex(),
	}
}

// Resolve commits a candidate fact for the session.
//
// The embedding is computed from the canonical fact string before entering
// the per-key critical section: provider calls are the slowest, flakiest step
// and must not hold the exclusion scope.
func (r *ConflictResolver) Resolve(ctx context.Context, sessionID string, candidate CandidateFact) (Outcome, error) {
	canonical := store.CanonicalString(candidate.Type, candidate.Key, candidate.Value)
	vector, err := r.embedder.Embed(ctx, canonical)
	if err != nil {
		return 0, fmt.Errorf("embed fact %q: %w", candidate.Key, err)
	}

	lockKey := fmt.Sprintf("%s/%s/%s", sessionID, candidate.Type, candidate.Key)
	r.keys.Lock(lockKey)
	defer r.keys.Unlock(lockKey)

	outcome, err := r.resolveLocked(ctx, sessionID, candidate, vector)
	if err != nil && ctx.Err() == nil {
		// One retry with the same candidate; transient store unavailability
		// must not silently drop a fact. A dead context cannot be retried.
		slog.Warn("conflict resolution failed, retrying",
			"session_id", sessionID,
			"key", candidate.Key,
			"error", err,
		)
		outcome, err = r.resolveLocked(ctx, sessionID, candidate, vector)
	}
	return outcome, err
}

func (r *ConflictResolver) resolveLocked(ctx context.Context, sessionID string, candidate CandidateFact, vector []float32) (Outcome, error) {
	existing, err := r.store.FindActiveMemoryFactByKey(ctx, sessionID, candidate.Type, candidate.Key)
	if err != nil {
		return 0, fmt.Errorf("find active fact %q: %w", candidate.Key, err)
	}

	fact := &store.MemoryFact{
		SessionID:  sessionID,
		Type:       candidate.Type,
		Key:        candidate.Key,
		Value:      candidate.Value,
		Confidence: candidate.Confidence,
		Embedding:  vector,
		CreatedTs:  time.Now().Unix(),
	}

	if existing == nil {
		if _, err := r.store.CreateMemoryFact(ctx, fact); err != nil {
			return 0, fmt.Errorf("insert fact %q: %w", candidate.Key, err)
		}
		return OutcomeInserted, nil
	}

	// Repeated statements of the same fact are no-ops, avoiding archive churn.
	if normalizeValue(existing.Value) == normalizeValue(candidate.Value) {
		return OutcomeIgnored, nil
	}

	// The newer statement always wins regardless of relative confidence:
	// recency is the authoritative conflict signal.
	if _, err := r.store.SupersedeMemoryFact(ctx, existing.ID, fact); err != nil {
		return 0, fmt.Errorf("supersede fact %q: %w", candidate.Key, err)
	}
	return OutcomeSuperseded, nil
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// keyedMutex provides per-key mutual exclusion with refcounted cleanup so the
// key set does not grow unboundedly across sessions.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.mu.Lock()
	entry := k.locks[key]
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	entry.mu.Unlock()
}
