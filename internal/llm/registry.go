package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Driver identifies the chat API shape of a provider.
type Driver int

const (
	DriverCompatible Driver = iota // OpenAI-compatible chat completions
	DriverAnthropic                // Anthropic messages API
	DriverGemini                   // Google Gemini API
)

func (d Driver) String() string {
	switch d {
	case DriverCompatible:
		return "compatible"
	case DriverAnthropic:
		return "anthropic"
	case DriverGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// BackendKind describes how a provider's image generation must be called.
type BackendKind int

const (
	BackendNone   BackendKind = iota // no image generation
	BackendDirect                    // one request, URL in the response
	BackendNative                    // inline bytes, must be uploaded to the object store
	BackendRefine                    // rewrite prompt via chat, then delegate to a direct backend
)

func (k BackendKind) String() string {
	switch k {
	case BackendNone:
		return "none"
	case BackendDirect:
		return "direct"
	case BackendNative:
		return "native"
	case BackendRefine:
		return "refine"
	default:
		return "unknown"
	}
}

// ParseBackendKind maps a config string to a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "off":
		return BackendNone, nil
	case "direct", "compatible":
		return BackendDirect, nil
	case "native", "native-rest":
		return BackendNative, nil
	case "refine", "refine-then-delegate":
		return BackendRefine, nil
	default:
		return BackendNone, fmt.Errorf("unknown image backend %q", s)
	}
}

// ProviderProfile is the immutable connection profile for one provider.
type ProviderProfile struct {
	ID             string
	Driver         Driver
	Endpoint       string
	ChatModel      string
	ImageModel     string
	SupportsImages bool
	ImageBackend   BackendKind
}

// ProfileOverrides replaces registry defaults; empty fields keep the default.
type ProfileOverrides struct {
	Endpoint   string
	ChatModel  string
	ImageModel string
}

var registry = map[string]ProviderProfile{
	"openai": {
		ID:             "openai",
		Driver:         DriverCompatible,
		Endpoint:       "https://api.openai.com/v1",
		ChatModel:      "gpt-4o-mini",
		ImageModel:     "dall-e-3",
		SupportsImages: true,
		ImageBackend:   BackendDirect,
	},
	"openrouter": {
		ID:           "openrouter",
		Driver:       DriverCompatible,
		Endpoint:     "https://openrouter.ai/api/v1",
		ChatModel:    "openai/gpt-4o-mini",
		ImageBackend: BackendNone,
	},
	"xai": {
		ID:             "xai",
		Driver:         DriverCompatible,
		Endpoint:       "https://api.x.ai/v1",
		ChatModel:      "grok-3-mini",
		ImageModel:     "grok-2-image",
		SupportsImages: true,
		ImageBackend:   BackendDirect,
	},
	"deepseek": {
		ID:           "deepseek",
		Driver:       DriverCompatible,
		Endpoint:     "https://api.deepseek.com/v1",
		ChatModel:    "deepseek-chat",
		ImageBackend: BackendNone,
	},
	"anthropic": {
		ID:             "anthropic",
		Driver:         DriverAnthropic,
		Endpoint:       "https://api.anthropic.com",
		ChatModel:      "claude-3-5-haiku-latest",
		SupportsImages: true,
		ImageBackend:   BackendRefine,
	},
	"gemini": {
		ID:             "gemini",
		Driver:         DriverGemini,
		Endpoint:       "https://generativelanguage.googleapis.com/",
		ChatModel:      "gemini-2.0-flash",
		ImageModel:     "imagen-3.0-generate-002",
		SupportsImages: true,
		ImageBackend:   BackendNative,
	},
}

// Lookup returns the registry profile for a provider id.
func Lookup(id string) (ProviderProfile, bool) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(id))]
	return p, ok
}

// Profile returns the registry profile for id with overrides applied.
func Profile(id string, o ProfileOverrides) (ProviderProfile, error) {
	p, ok := Lookup(id)
	if !ok {
		return ProviderProfile{}, fmt.Errorf("unknown provider %q (known: %s)", id, strings.Join(ProviderIDs(), ", "))
	}
	if o.Endpoint != "" {
		p.Endpoint = o.Endpoint
	}
	if o.ChatModel != "" {
		p.ChatModel = o.ChatModel
	}
	if o.ImageModel != "" {
		p.ImageModel = o.ImageModel
	}
	return p, nil
}

// ProviderIDs returns the known provider ids, sorted.
func ProviderIDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
