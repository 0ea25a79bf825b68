package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/dolphin/ai"
	"github.com/hrygo/dolphin/store"
)

// DefaultConfidence is assigned to candidates the model returned without a
// confidence score. Conservative rather than rejecting the candidate.
const DefaultConfidence = 0.9

// ExtractionError is a recoverable extraction failure: the model returned
// something that could not be parsed into facts. Callers treat it as an
// empty result, not a hard error.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor turns free text into structured candidate facts using the LLM and
// commits them through the conflict resolver.
type Extractor struct {
	llm           ai.LLMService
	resolver      *ConflictResolver
	minConfidence float32
}

// NewExtractor creates a new Extractor. minConfidence below or equal to zero
// disables the acceptance filter.
func NewExtractor(llm ai.LLMService, resolver *ConflictResolver, minConfidence float32) *Extractor {
	return &Extractor{
		llm:           llm,
		resolver:      resolver,
		minConfidence: minConfidence,
	}
}

// candidatePayload is the loosely-typed wire shape of one extracted fact.
// Validation happens here, at the parse boundary; downstream code only sees
// well-formed CandidateFacts.
type candidatePayload struct {
	Type       string   `json:"type"`
	Key        string   `json:"key"`
	Value      string   `json:"value"`
	Confidence *float32 `json:"confidence"`
}

// Extract asks the LLM for candidate facts in the given text. A model
// response that cannot be parsed yields an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, text string) ([]CandidateFact, error) {
	raw, err := e.llm.Chat(ctx, []ai.Message{ai.UserMessage(extractionPrompt(text))})
	if err != nil {
		return nil, &ExtractionError{Reason: "llm call failed", Err: err}
	}
	return e.parseCandidates(raw)
}

func (e *Extractor) parseCandidates(raw string) ([]CandidateFact, error) {
	// Clean up the response - remove markdown code blocks if present.
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payloads []candidatePayload
	if err := json.Unmarshal([]byte(cleaned), &payloads); err != nil {
		return nil, &ExtractionError{Reason: "malformed JSON", Err: err}
	}

	candidates := make([]CandidateFact, 0, len(payloads))
	for _, p := range payloads {
		// Candidates missing required fields are dropped individually; one bad
		// entry never rejects the batch.
		if strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Value) == "" {
			slog.Debug("dropping candidate fact with missing key or value", "type", p.Type)
			continue
		}
		memoryType := store.MemoryType(strings.ToLower(strings.TrimSpace(p.Type)))
		if !memoryType.IsValid() {
			slog.Debug("dropping candidate fact with unknown type", "type", p.Type, "key", p.Key)
			continue
		}
		confidence := float32(DefaultConfidence)
		if p.Confidence != nil {
			confidence = *p.Confidence
		}
		if e.minConfidence > 0 && confidence < e.minConfidence {
			slog.Debug("dropping candidate fact below confidence threshold",
				"key", p.Key, "confidence", confidence)
			continue
		}
		candidates = append(candidates, CandidateFact{
			Type:       memoryType,
			Key:        strings.TrimSpace(p.Key),
			Value:      strings.TrimSpace(p.Value),
			Confidence: confidence,
		})
	}
	return candidates, nil
}

// ExtractAndStore extracts facts from text and commits each through the
// conflict resolver, sequentially in extraction order so later-in-batch
// values supersede earlier ones. A parse failure surfaces as an
// *ExtractionError with an empty result; the caller decides how to record
// it. No reply ever depends on this call succeeding.
func (e *Extractor) ExtractAndStore(ctx context.Context, sessionID, text string) ([]Resolution, error) {
	candidates, err := e.Extract(ctx, text)
	if err != nil {
		return nil, err
	}

	resolutions := make([]Resolution, 0, len(candidates))
	for _, candidate := range candidates {
		outcome, err := e.resolver.Resolve(ctx, sessionID, candidate)
		if err != nil {
			slog.Error("failed to commit extracted fact",
				"session_id", sessionID,
				"key", candidate.Key,
				"error", err,
			)
			continue
		}
		resolutions = append(resolutions, Resolution{Candidate: candidate, Outcome: outcome})
	}
	return resolutions, nil
}
