// Package llm provides the provider registry and a uniform chat client over
// several provider API shapes.
package llm

import (
	"context"
	"strings"
)

// Conversation roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Chat is the uniform completion interface every backend driver implements.
// Calls are not retried at this layer; failures are *ProviderError.
type Chat interface {
	Name() string  // provider id (e.g., "openai", "gemini")
	Model() string // chat model in use

	// Complete sends a single system+user turn.
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, error)

	// CompleteConversation sends the full conversation.
	CompleteConversation(ctx context.Context, messages []Message, temperature float64) (string, error)
}

// singleTurn builds the conversation used by Complete.
func singleTurn(systemPrompt, userPrompt string) []Message {
	var msgs []Message
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: systemPrompt})
	}
	return append(msgs, Message{Role: RoleUser, Content: userPrompt})
}

// splitSystem lifts system messages out of a conversation for APIs that take
// the system prompt as a separate parameter. Consecutive messages with the
// same role are merged, since those APIs require alternating turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if n := len(rest); n > 0 && rest[n-1].Role == m.Role {
			rest[n-1].Content += "\n\n" + m.Content
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}
