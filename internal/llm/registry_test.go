package llm

import (
	"errors"
	"testing"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		id      string
		ok      bool
		driver  Driver
		backend BackendKind
	}{
		{"openai", true, DriverCompatible, BackendDirect},
		{"OpenRouter", true, DriverCompatible, BackendNone},
		{"xai", true, DriverCompatible, BackendDirect},
		{"deepseek", true, DriverCompatible, BackendNone},
		{"anthropic", true, DriverAnthropic, BackendRefine},
		{" gemini ", true, DriverGemini, BackendNative},
		{"mystery", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := Lookup(tt.id)
			if ok != tt.ok {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.id, ok, tt.ok)
			}
			if !ok {
				return
			}
			if p.Driver != tt.driver {
				t.Errorf("driver = %v, want %v", p.Driver, tt.driver)
			}
			if p.ImageBackend != tt.backend {
				t.Errorf("backend = %v, want %v", p.ImageBackend, tt.backend)
			}
			if p.ChatModel == "" || p.Endpoint == "" {
				t.Errorf("profile missing defaults: %+v", p)
			}
			if p.SupportsImages != (p.ImageBackend != BackendNone) {
				t.Errorf("SupportsImages = %v inconsistent with backend %v", p.SupportsImages, p.ImageBackend)
			}
		})
	}
}

func TestProfileOverrides(t *testing.T) {
	p, err := Profile("openai", ProfileOverrides{ChatModel: "gpt-4.1", Endpoint: "http://localhost:1234/v1"})
	if err != nil {
		t.Fatal(err)
	}
	if p.ChatModel != "gpt-4.1" || p.Endpoint != "http://localhost:1234/v1" {
		t.Errorf("overrides not applied: %+v", p)
	}
	if p.ImageModel != "dall-e-3" {
		t.Errorf("ImageModel = %q, want registry default", p.ImageModel)
	}

	// The registry itself is untouched.
	orig, _ := Lookup("openai")
	if orig.ChatModel != "gpt-4o-mini" {
		t.Errorf("registry mutated: %+v", orig)
	}

	if _, err := Profile("nope", ProfileOverrides{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestParseBackendKind(t *testing.T) {
	tests := []struct {
		in      string
		want    BackendKind
		wantErr bool
	}{
		{"direct", BackendDirect, false},
		{"Native", BackendNative, false},
		{"native-rest", BackendNative, false},
		{"refine", BackendRefine, false},
		{"none", BackendNone, false},
		{"sideways", BackendNone, true},
	}
	for _, tt := range tests {
		got, err := ParseBackendKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackendKind(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackendKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() == "unknown" {
			t.Errorf("%v has no name", got)
		}
	}
}

func TestNewChatRequiresKey(t *testing.T) {
	p, _ := Lookup("openai")
	_, err := NewChat(p, "  ")
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}

	for _, id := range []string{"openai", "anthropic", "gemini"} {
		p, _ := Lookup(id)
		chat, err := NewChat(p, "test-key")
		if err != nil {
			t.Fatalf("NewChat(%s): %v", id, err)
		}
		if chat.Name() != id || chat.Model() != p.ChatModel {
			t.Errorf("NewChat(%s) = %s/%s", id, chat.Name(), chat.Model())
		}
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "topic"},
		{Role: RoleUser, Content: "please use JSON"},
		{Role: RoleAssistant, Content: "ok"},
	})
	if system != "be brief" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 2 {
		t.Fatalf("len(rest) = %d, want 2 (consecutive user turns merged)", len(rest))
	}
	if rest[0].Content != "topic\n\nplease use JSON" {
		t.Errorf("merged = %q", rest[0].Content)
	}
}
