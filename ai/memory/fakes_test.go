package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/dolphin/ai"
	"github.com/hrygo/dolphin/store"
)

// fakeFactStore is an in-memory FactStore that enforces the same invariants
// as the real drivers: at most one active fact per (session, type, key),
// atomic supersede, and active-only vector search.
type fakeFactStore struct {
	mu    sync.Mutex
	facts []*store.MemoryFact
	turns []*store.ConversationTurn
	seq   int

	failNextCreate bool
	createErr      error
	findErr        error
	searchErr      error
	turnErr        error
	findCalls      int
}

func newFakeFactStore() *fakeFactStore {
	return &fakeFactStore{}
}

func (f *fakeFactStore) CreateMemoryFact(_ context.Context, create *store.MemoryFact) (*store.MemoryFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createLocked(create)
}

func (f *fakeFactStore) createLocked(create *store.MemoryFact) (*store.MemoryFact, error) {
	if f.failNextCreate {
		f.failNextCreate = false
		return nil, errors.New("injected create failure")
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, fact := range f.facts {
		if fact.Status == store.FactStatusActive &&
			fact.SessionID == create.SessionID &&
			fact.Type == create.Type &&
			fact.Key == create.Key {
			return nil, errors.Errorf("duplicate active fact for key %q", create.Key)
		}
	}
	f.seq++
	stored := *create
	stored.ID = fmt.Sprintf("fact-%d", f.seq)
	stored.Status = store.FactStatusActive
	if stored.CreatedTs == 0 {
		stored.CreatedTs = time.Now().Unix()
	}
	if stored.LastAccessedTs == 0 {
		stored.LastAccessedTs = stored.CreatedTs
	}
	f.facts = append(f.facts, &stored)
	return &stored, nil
}

func (f *fakeFactStore) SupersedeMemoryFact(_ context.Context, archiveID string, create *store.MemoryFact) (*store.MemoryFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var archived *store.MemoryFact
	for _, fact := range f.facts {
		if fact.ID == archiveID {
			archived = fact
			break
		}
	}
	if archived == nil {
		return nil, errors.Errorf("fact %q not found", archiveID)
	}
	prev := archived.Status
	archived.Status = store.FactStatusArchived
	stored, err := f.createLocked(create)
	if err != nil {
		archived.Status = prev
		return nil, err
	}
	return stored, nil
}

func (f *fakeFactStore) FindActiveMemoryFactByKey(_ context.Context, sessionID string, memoryType store.MemoryType, key string) (*store.MemoryFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, fact := range f.facts {
		if fact.Status == store.FactStatusActive &&
			fact.SessionID == sessionID &&
			fact.Type == memoryType &&
			fact.Key == key {
			copied := *fact
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeFactStore) VectorSearchMemoryFacts(_ context.Context, opts *store.FactVectorSearchOptions) ([]*store.MemoryFactWithScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	list := []*store.MemoryFactWithScore{}
	for _, fact := range f.facts {
		if fact.Status != store.FactStatusActive || fact.SessionID != opts.SessionID {
			continue
		}
		score := fakeCosine(opts.Vector, fact.Embedding)
		if score >= opts.Threshold {
			copied := *fact
			list = append(list, &store.MemoryFactWithScore{Fact: &copied, Score: score})
		}
	}
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if list[j].Score > list[i].Score {
				list[i], list[j] = list[j], list[i]
			}
		}
	}
	if len(list) > opts.Limit {
		list = list[:opts.Limit]
	}
	return list, nil
}

func (f *fakeFactStore) TouchMemoryFactAccess(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().Unix()
	for _, id := range ids {
		for _, fact := range f.facts {
			if fact.ID == id {
				fact.LastAccessedTs = now
			}
		}
	}
	return nil
}

func (f *fakeFactStore) CreateConversationTurn(_ context.Context, create *store.ConversationTurn) (*store.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	f.seq++
	stored := *create
	stored.ID = fmt.Sprintf("turn-%d", f.seq)
	if stored.CreatedTs == 0 {
		stored.CreatedTs = time.Now().Unix()
	}
	f.turns = append(f.turns, &stored)
	return &stored, nil
}

func (f *fakeFactStore) ListConversationTurns(_ context.Context, find *store.FindConversationTurn) ([]*store.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.ConversationTurn{}
	for _, turn := range f.turns {
		if find.SessionID != nil && turn.SessionID != *find.SessionID {
			continue
		}
		copied := *turn
		list = append(list, &copied)
	}
	if find.Limit > 0 && len(list) > find.Limit {
		list = list[len(list)-find.Limit:]
	}
	return list, nil
}

// activeFacts returns the session's active facts, for assertions.
func (f *fakeFactStore) activeFacts(sessionID string) []*store.MemoryFact {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.MemoryFact{}
	for _, fact := range f.facts {
		if fact.Status == store.FactStatusActive && fact.SessionID == sessionID {
			copied := *fact
			list = append(list, &copied)
		}
	}
	return list
}

func (f *fakeFactStore) archivedFacts(sessionID string) []*store.MemoryFact {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := []*store.MemoryFact{}
	for _, fact := range f.facts {
		if fact.Status == store.FactStatusArchived && fact.SessionID == sessionID {
			copied := *fact
			list = append(list, &copied)
		}
	}
	return list
}

func fakeCosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// fakeEmbedder returns a fixed unit vector for every input unless a custom
// function is set, so every stored fact matches every query at similarity 1.
type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	fn    func(text string) []float32
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.fn != nil {
		return f.fn(text), nil
	}
	return []float32{1, 0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return 4 }

var _ ai.EmbeddingService = (*fakeEmbedder)(nil)

// fakeLLM routes chat calls by recognizing which pipeline prompt is being
// sent: extraction, query expansion, or reply composition.
type fakeLLM struct {
	mu sync.Mutex

	// extractionResponses is consumed front to back, one per extraction call.
	extractionResponses []string
	expansionResponse   string
	expansionErr        error
	composeResponse     string
	composeErr          error

	// lastSystemPrompt records the system message of the latest compose call.
	lastSystemPrompt string
	// extractionGate, when set, blocks extraction calls until closed.
	extractionGate chan struct{}
}

func (f *fakeLLM) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	last := messages[len(messages)-1]
	switch {
	case strings.Contains(last.Content, "Memory Extraction AI"):
		f.mu.Lock()
		gate := f.extractionGate
		f.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.extractionResponses) == 0 {
			return "[]", nil
		}
		resp := f.extractionResponses[0]
		f.extractionResponses = f.extractionResponses[1:]
		return resp, nil
	case strings.Contains(last.Content, "search terms"):
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.expansionErr != nil {
			return "", f.expansionErr
		}
		return f.expansionResponse, nil
	default:
		// Composition runs on the request context and fails with it, like a
		// real provider call would on client disconnect.
		if err := ctx.Err(); err != nil {
			return "", err
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(messages) > 1 && messages[0].Role == "system" {
			f.lastSystemPrompt = messages[0].Content
		}
		if f.composeErr != nil {
			return "", f.composeErr
		}
		if f.composeResponse == "" {
			return "ok", nil
		}
		return f.composeResponse, nil
	}
}

var _ ai.LLMService = (*fakeLLM)(nil)
