// Package ai provides the capability interfaces the memory engine requires
// from its external collaborators: text generation and text embedding over
// OpenAI-compatible providers.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat and returns the completion text.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ProviderErrorRecorder counts provider-boundary failures by error class.
// *metrics.Exporter satisfies it.
type ProviderErrorRecorder interface {
	IncProviderError(provider, class string)
}

// LLMConfig represents LLM service configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 1024
	Temperature float32 // default: 0
	Timeout     int     // Request timeout in seconds (default: 120)

	// Recorder receives one count per failed provider call. Optional.
	Recorder ProviderErrorRecorder
}

type llmService struct {
	client      *openai.Client
	model       string
	provider    string
	maxTokens   int
	temperature float32
	timeout     int
	recorder    ProviderErrorRecorder
}

func (s *llmService) recordError(err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.IncProviderError(s.provider, ClassifyError(err).Class.String())
}

// Provider default base URLs. Any OpenAI-compatible endpoint works; unknown
// providers fall through to the configured BaseURL.
var providerBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"ollama":      "http://localhost:11434",
}

// NewLLMService creates a new LLMService.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.HTTPClient = newHTTPClient()

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if defaultURL, ok := providerBaseURLs[cfg.Provider]; ok {
			baseURL = defaultURL
		} else {
			slog.Info("using generic OpenAI-compatible provider", "provider", cfg.Provider)
		}
	}
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	client := openai.NewClientWithConfig(clientConfig)

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	return &llmService{
		client:      client,
		model:       cfg.Model,
		provider:    cfg.Provider,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		recorder:    cfg.Recorder,
	}, nil
}

func (s *llmService) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil && IsTransient(err) {
		// One retry with a short backoff; transient provider failures
		// (timeouts, rate limits, 5xx) are the common case here.
		s.recordError(err)
		slog.Warn("LLM: chat request failed, retrying", "error", err)
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		resp, err = s.client.CreateChatCompletion(ctx, req)
	}
	if err != nil {
		s.recordError(err)
		return "", fmt.Errorf("LLM chat failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	return normalizeContent(resp.Choices[0].Message), nil
}

// normalizeContent coerces a completion message to a single string. Providers
// may return content as a plain string or as an ordered list of content
// parts; downstream code only ever sees one canonical text form.
func normalizeContent(msg openai.ChatCompletionMessage) string {
	if msg.Content != "" {
		return strings.TrimSpace(msg.Content)
	}
	for _, part := range msg.MultiContent {
		if part.Type == openai.ChatMessagePartTypeText && part.Text != "" {
			return strings.TrimSpace(part.Text)
		}
	}
	return ""
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := m.Role
		switch role {
		case "system", "user", "assistant":
		default:
			role = openai.ChatMessageRoleUser
		}
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		}
	}
	return llmMessages
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SystemPrompt creates a system message.
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}
