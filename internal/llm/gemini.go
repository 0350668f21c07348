package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// NewGenAIClient creates a Gemini API client. The Imagen backend shares it.
func NewGenAIClient(endpoint, apiKey string, timeout time.Duration) (*genai.Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimSuffix(endpoint, "/") + "/"}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return client, nil
}

// GeminiChat implements Chat for the Gemini API.
type GeminiChat struct {
	name   string
	model  string
	client *genai.Client
}

// NewGeminiChat creates a chat driver for the gemini profile.
func NewGeminiChat(profile ProviderProfile, apiKey string) (*GeminiChat, error) {
	client, err := NewGenAIClient(profile.Endpoint, apiKey, DefaultTimeout)
	if err != nil {
		return nil, err
	}
	L_debug("gemini: chat driver created", "endpoint", profile.Endpoint, "model", profile.ChatModel)
	return &GeminiChat{name: profile.ID, model: profile.ChatModel, client: client}, nil
}

func (c *GeminiChat) Name() string  { return c.name }
func (c *GeminiChat) Model() string { return c.model }

// Complete sends a single system+user turn.
func (c *GeminiChat) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error) {
	return c.CompleteConversation(ctx, singleTurn(systemPrompt, userPrompt), temperature)
}

// CompleteConversation sends the conversation; system messages become the
// SystemInstruction and assistant turns use the model role.
func (c *GeminiChat) CompleteConversation(ctx context.Context, messages []Message, temperature float64) (string, error) {
	start := time.Now()
	system, contents := convertToGenAIContents(messages)

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	MetricDuration("llm/"+c.name, "complete", time.Since(start))
	if err != nil {
		pe := NewProviderError(c.name, GenAIStatus(err), err)
		MetricFailWithReason("llm/"+c.name, "complete", string(pe.Type))
		return "", pe
	}
	if resp == nil || len(resp.Candidates) == 0 || strings.TrimSpace(resp.Text()) == "" {
		MetricFailWithReason("llm/"+c.name, "complete", string(ErrorTypeNoChoices))
		return "", NewProviderError(c.name, http.StatusOK, ErrNoChoices)
	}

	MetricSuccess("llm/"+c.name, "complete")
	return resp.Text(), nil
}

func convertToGenAIContents(messages []Message) (string, []*genai.Content) {
	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return system, contents
}

// GenAIStatus extracts the HTTP status code from a genai error, 0 if none.
// APIError may be carried by value or by pointer.
func GenAIStatus(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case genai.APIError:
			return v.Code
		case *genai.APIError:
			if v != nil {
				return v.Code
			}
		}
	}
	return 0
}
