package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/dolphin/ai"
	"github.com/hrygo/dolphin/ai/metrics"
	"github.com/hrygo/dolphin/store"
)

// EngineConfig holds configuration for the per-turn pipeline.
type EngineConfig struct {
	// MaxConcurrency limits concurrent background extractions.
	MaxConcurrency int
	// ExtractionTimeout bounds one background extraction run.
	ExtractionTimeout time.Duration
	// Retriever tuning.
	Retriever *RetrieverConfig
	// MinConfidence is the extraction acceptance threshold; <= 0 disables it.
	MinConfidence float32
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MaxConcurrency:    5,
		ExtractionTimeout: 60 * time.Second,
		Retriever:         DefaultRetrieverConfig(),
	}
}

// TurnResult is the user-visible output of one conversation turn.
type TurnResult struct {
	Reply    string
	Memories []RetrievedFact
}

// Engine runs the per-turn pipeline: log the turn, retrieve relevant facts,
// compose a grounded reply, and extract new facts in the background.
type Engine struct {
	store     FactStore
	embedder  ai.EmbeddingService
	extractor *Extractor
	retriever *Retriever
	composer  *Composer
	exporter  *metrics.Exporter
	config    *EngineConfig

	sem chan struct{} // Concurrency limiter for background extraction
	wg  sync.WaitGroup
}

// NewEngine creates a new Engine with explicitly injected collaborators.
func NewEngine(factStore FactStore, llm ai.LLMService, embedder ai.EmbeddingService, exporter *metrics.Exporter, config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.ExtractionTimeout <= 0 {
		config.ExtractionTimeout = 60 * time.Second
	}

	resolver := NewConflictResolver(factStore, embedder)
	return &Engine{
		store:     factStore,
		embedder:  embedder,
		extractor: NewExtractor(llm, resolver, config.MinConfidence),
		retriever: NewRetriever(factStore, embedder, llm, config.Retriever),
		composer:  NewComposer(llm),
		exporter:  exporter,
		config:    config,
		sem:       make(chan struct{}, config.MaxConcurrency),
	}
}

// ProcessTurn handles one user utterance and returns the grounded reply.
//
// Turn logging and retrieval run in parallel: logging has no read dependency.
// Extraction is fire-and-forget relative to response latency; the reply is
// allowed to miss facts stated in the current utterance.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	var retrieved []RetrievedFact
	var contextBlock string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Logging failures degrade: the conversation log is an audit trail,
		// not a prerequisite for the reply.
		if err := e.logTurn(gctx, sessionID, store.TurnRoleUser, text); err != nil {
			slog.Warn("failed to log user turn", "session_id", sessionID, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		retrieved, contextBlock = e.retriever.Retrieve(gctx, sessionID, text)
		e.exporter.ObserveRetrieval(time.Since(start).Seconds(), len(retrieved))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Extraction starts before composition: if the client abandons the turn
	// mid-compose, the facts it stated are still preserved.
	e.ExtractAsync(sessionID, text)

	reply, err := e.composer.Compose(ctx, contextBlock, text)
	if err != nil {
		return nil, err
	}

	if err := e.logTurn(ctx, sessionID, store.TurnRoleAssistant, reply); err != nil {
		slog.Warn("failed to log assistant turn", "session_id", sessionID, "error", err)
	}

	return &TurnResult{Reply: reply, Memories: retrieved}, nil
}

// ExtractAsync starts background fact extraction for an utterance.
//
// Extraction is fully detached from the request lifecycle: both the wait for
// a concurrency slot and the extraction itself run on their own timeout, so a
// client disconnect never cancels storage of facts the turn stated.
func (e *Engine) ExtractAsync(sessionID, text string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		slotTimer := time.NewTimer(e.config.ExtractionTimeout)
		defer slotTimer.Stop()
		select {
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
		case <-slotTimer.C:
			slog.Warn("extraction dropped: no slot available", "session_id", sessionID)
			return
		}

		extractCtx, cancel := context.WithTimeout(context.Background(), e.config.ExtractionTimeout)
		defer cancel()

		start := time.Now()
		resolutions, err := e.extractor.ExtractAndStore(extractCtx, sessionID, text)
		outcomes := map[string]int{}
		for _, res := range resolutions {
			outcomes[res.Outcome.String()]++
		}
		e.exporter.ObserveExtraction(time.Since(start).Seconds(), outcomes, err != nil)
		if err != nil {
			var extractionErr *ExtractionError
			if errors.As(err, &extractionErr) {
				slog.Warn("recoverable extraction failure", "session_id", sessionID, "error", err)
			} else {
				slog.Error("background extraction failed", "session_id", sessionID, "error", err)
			}
			return
		}
		if len(resolutions) > 0 {
			slog.Debug("extraction committed facts",
				"session_id", sessionID,
				"count", len(resolutions),
			)
		}
	}()
}

// RecentTurns returns the session's recent conversation log, oldest first.
func (e *Engine) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*store.ConversationTurn, error) {
	return e.store.ListConversationTurns(ctx, &store.FindConversationTurn{
		SessionID: &sessionID,
		Limit:     limit,
	})
}

// Shutdown waits for in-flight extractions to finish, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) logTurn(ctx context.Context, sessionID string, role store.TurnRole, content string) error {
	vector, err := e.embedder.Embed(ctx, content)
	if err != nil {
		// Log the turn anyway; the embedding is only used for future
		// conversational search, not for fact retrieval.
		slog.Debug("turn embedding failed, logging without vector", "error", err)
		vector = nil
	}
	_, err = e.store.CreateConversationTurn(ctx, &store.ConversationTurn{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Embedding: vector,
	})
	return err
}
