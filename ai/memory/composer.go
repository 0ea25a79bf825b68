package memory

import (
	"context"
	"fmt"

	"github.com/hrygo/dolphin/ai"
)

// Composer assembles a grounded prompt from retrieved memories and invokes
// the LLM for the user-facing reply.
type Composer struct {
	llm ai.LLMService
}

// NewComposer creates a new Composer.
func NewComposer(llm ai.LLMService) *Composer {
	return &Composer{llm: llm}
}

// Compose sends the context block and user query to the LLM. The system
// instruction tells the model to prefer the most recently timestamped fact
// when memories conflict, as defense in depth beyond the resolver's hard
// supersede rule.
func (c *Composer) Compose(ctx context.Context, contextBlock, userQuery string) (string, error) {
	if contextBlock == "" {
		contextBlock = NoMemoriesSentinel
	}
	reply, err := c.llm.Chat(ctx, []ai.Message{
		ai.SystemPrompt(composerSystemPrompt(contextBlock)),
		ai.UserMessage(userQuery),
	})
	if err != nil {
		return "", fmt.Errorf("compose reply: %w", err)
	}
	return reply, nil
}
