package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// anthropicMaxTokens caps the reply; decisions and summaries are short.
const anthropicMaxTokens = 2048

// AnthropicChat implements Chat for the Anthropic messages API.
type AnthropicChat struct {
	name   string
	model  string
	client *anthropic.Client
}

// NewAnthropicChat creates a chat driver for the anthropic profile.
func NewAnthropicChat(profile ProviderProfile, apiKey string) *AnthropicChat {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: DefaultTimeout}),
	}
	if profile.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(profile.Endpoint))
	}
	client := anthropic.NewClient(opts...)

	L_debug("anthropic: chat driver created", "endpoint", profile.Endpoint, "model", profile.ChatModel)
	return &AnthropicChat{
		name:   profile.ID,
		model:  profile.ChatModel,
		client: &client,
	}
}

func (c *AnthropicChat) Name() string  { return c.name }
func (c *AnthropicChat) Model() string { return c.model }

// Complete sends a single system+user turn.
func (c *AnthropicChat) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	return c.CompleteConversation(ctx, singleTurn(systemPrompt, userPrompt), temperature)
}

// CompleteConversation sends the conversation with system messages lifted
// into the system parameter.
func (c *AnthropicChat) CompleteConversation(ctx context.Context, messages []Message, temperature float64) (string, error) {
	start := time.Now()
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   anthropicMaxTokens,
		Messages:    convertMessages(turns),
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, params)
	MetricDuration("llm/"+c.name, "complete", time.Since(start))
	if err != nil {
		pe := NewProviderError(c.name, anthropicStatus(err), err)
		MetricFailWithReason("llm/"+c.name, "complete", string(pe.Type))
		return "", pe
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		MetricFailWithReason("llm/"+c.name, "complete", string(ErrorTypeNoChoices))
		return "", NewProviderError(c.name, http.StatusOK, ErrNoChoices)
	}

	MetricSuccess("llm/"+c.name, "complete")
	L_trace("anthropic: completion", "model", c.model, "stopReason", message.StopReason, "chars", text.Len())
	return text.String(), nil
}

// convertMessages maps user/assistant turns. The API rejects a conversation
// that starts with an assistant turn, so a short user turn is prefixed.
func convertMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages)+1)
	for i, m := range messages {
		if m.Role == RoleAssistant {
			if i == 0 {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
			}
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}
	return result
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
