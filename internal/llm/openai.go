package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// DefaultTimeout bounds a single chat completion.
const DefaultTimeout = 60 * time.Second

// openRouterTransport adds attribution headers to OpenRouter requests
type openRouterTransport struct {
	base http.RoundTripper
}

func (t *openRouterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("HTTP-Referer", "https://usernode.com")
	req.Header.Set("X-Title", "Usernode Survey Bot")
	if t.base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// NewOpenAIClient builds a go-openai client for an OpenAI-compatible
// endpoint. The image backends share it with the chat driver.
func NewOpenAIClient(endpoint, apiKey string, timeout time.Duration) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		// Ensure the URL ends with /v1 for OpenAI-compatible APIs
		if !strings.HasSuffix(endpoint, "/v1") && !strings.HasSuffix(endpoint, "/v1/") {
			endpoint = strings.TrimSuffix(endpoint, "/") + "/v1"
		}
		config.BaseURL = strings.TrimSuffix(endpoint, "/")
	}

	var transport http.RoundTripper = http.DefaultTransport
	if strings.Contains(strings.ToLower(endpoint), "openrouter") {
		transport = &openRouterTransport{base: http.DefaultTransport}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config.HTTPClient = &http.Client{Transport: transport, Timeout: timeout}
	return openai.NewClientWithConfig(config)
}

// OpenAIChat implements Chat for OpenAI-compatible chat completions
// (OpenAI, OpenRouter, xAI, DeepSeek).
type OpenAIChat struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIChat creates a chat driver for an OpenAI-compatible profile.
func NewOpenAIChat(profile ProviderProfile, apiKey string) *OpenAIChat {
	L_debug("openai: chat driver created", "provider", profile.ID, "endpoint", profile.Endpoint, "model", profile.ChatModel)
	return &OpenAIChat{
		name:   profile.ID,
		model:  profile.ChatModel,
		client: NewOpenAIClient(profile.Endpoint, apiKey, DefaultTimeout),
	}
}

func (c *OpenAIChat) Name() string  { return c.name }
func (c *OpenAIChat) Model() string { return c.model }

// Complete sends a single system+user turn.
func (c *OpenAIChat) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	return c.CompleteConversation(ctx, singleTurn(systemPrompt, userPrompt), temperature)
}

// CompleteConversation sends the full conversation and returns the first
// choice's text.
func (c *OpenAIChat) CompleteConversation(ctx context.Context, messages []Message, temperature float64) (string, error) {
	start := time.Now()
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    convertToOpenAIMessages(messages),
		Temperature: float32(temperature),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	MetricDuration("llm/"+c.name, "complete", time.Since(start))
	if err != nil {
		pe := NewProviderError(c.name, OpenAIStatus(err), err)
		MetricFailWithReason("llm/"+c.name, "complete", string(pe.Type))
		return "", pe
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		MetricFailWithReason("llm/"+c.name, "complete", string(ErrorTypeNoChoices))
		return "", NewProviderError(c.name, http.StatusOK, ErrNoChoices)
	}

	MetricSuccess("llm/"+c.name, "complete")
	L_trace("openai: completion", "provider", c.name, "model", c.model, "chars", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}

func convertToOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// OpenAIStatus extracts the HTTP status from a go-openai error, 0 if none.
func OpenAIStatus(err error) int {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
