package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestOpenAIChatComplete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"b"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	p, _ := Profile("openai", ProfileOverrides{Endpoint: srv.URL})
	chat := NewOpenAIChat(p, "test-key")

	text, err := chat.Complete(context.Background(), "pick one", "a or b?", 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if text != "b" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestOpenAIChatErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantErr  error
	}{
		{
			name:     "rate limited",
			status:   429,
			body:     `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantType: ErrorTypeRateLimit,
		},
		{
			name:     "bad key",
			status:   401,
			body:     `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`,
			wantType: ErrorTypeAuth,
		},
		{
			name:     "zero choices",
			status:   200,
			body:     `{"id":"c1","object":"chat.completion","choices":[]}`,
			wantType: ErrorTypeNoChoices,
			wantErr:  ErrNoChoices,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p, _ := Profile("deepseek", ProfileOverrides{Endpoint: srv.URL + "/v1"})
			_, err := NewOpenAIChat(p, "k").Complete(context.Background(), "", "hi", 0.5)

			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *ProviderError", err)
			}
			if pe.Provider != "deepseek" || pe.Type != tt.wantType || pe.Status != tt.status {
				t.Errorf("ProviderError = %+v", pe)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("errors.Is(%v) = false", tt.wantErr)
			}
		})
	}
}

func TestAnthropicChatConversation(t *testing.T) {
	var got struct {
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",`+
			`"content":[{"type":"text","text":"{\"action\":\"done\",\"summary\":\"ok\"}"}],`+
			`"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":5}}`)
	}))
	defer srv.Close()

	p, _ := Profile("anthropic", ProfileOverrides{Endpoint: srv.URL})
	chat := NewAnthropicChat(p, "test-key")

	text, err := chat.CompleteConversation(context.Background(), []Message{
		{Role: RoleSystem, Content: "You research."},
		{Role: RoleUser, Content: "Topic: ferries"},
		{Role: RoleAssistant, Content: `{"action":"search","query":"ferries"}`},
		{Role: RoleUser, Content: "Search results: none"},
	}, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `"done"`) {
		t.Errorf("text = %q", text)
	}
	if len(got.System) != 1 || got.System[0].Text != "You research." {
		t.Errorf("system = %+v", got.System)
	}
	if len(got.Messages) != 3 || got.Messages[0].Role != "user" || got.Messages[1].Role != "assistant" {
		t.Errorf("messages = %+v", got.Messages)
	}
	if got.MaxTokens != anthropicMaxTokens {
		t.Errorf("max_tokens = %d", got.MaxTokens)
	}
}

func TestAnthropicChatAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(401)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	p, _ := Profile("anthropic", ProfileOverrides{Endpoint: srv.URL})
	_, err := NewAnthropicChat(p, "bad").Complete(context.Background(), "s", "u", 0.1)

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if pe.Status != 401 || pe.Type != ErrorTypeAuth {
		t.Errorf("ProviderError = %+v", pe)
	}
}

func TestGeminiChatComplete(t *testing.T) {
	var sawSystem bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		sawSystem = strings.Contains(string(body), "systemInstruction")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Blue"}]},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	p, _ := Profile("gemini", ProfileOverrides{Endpoint: srv.URL})
	chat, err := NewGeminiChat(p, "test-key")
	if err != nil {
		t.Fatal(err)
	}
	text, err := chat.Complete(context.Background(), "pick", "Red or Blue?", 0.2)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Blue" {
		t.Errorf("text = %q", text)
	}
	if !sawSystem {
		t.Error("system prompt not sent as systemInstruction")
	}
}

func TestConvertToGenAIContents(t *testing.T) {
	system, contents := convertToGenAIContents([]Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "q"},
		{Role: RoleAssistant, Content: "a"},
	})
	if system != "sys" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("len = %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[1].Role != string(genai.RoleModel) {
		t.Errorf("roles = %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestGenAIStatus(t *testing.T) {
	wrapped := fmt.Errorf("generate: %w", genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"})
	if got := GenAIStatus(wrapped); got != 429 {
		t.Errorf("GenAIStatus = %d, want 429", got)
	}
	if got := GenAIStatus(&genai.APIError{Code: 403}); got != 403 {
		t.Errorf("GenAIStatus(ptr) = %d, want 403", got)
	}
	if got := GenAIStatus(errors.New("nope")); got != 0 {
		t.Errorf("GenAIStatus(plain) = %d", got)
	}
}
