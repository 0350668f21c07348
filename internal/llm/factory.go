package llm

import (
	"strings"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
)

// NewChat creates the chat driver for a profile. The driver is selected once
// here from profile.Driver; an empty API key is a configuration error.
func NewChat(profile ProviderProfile, apiKey string) (Chat, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &config.ConfigurationError{Feature: "chat (" + profile.ID + ")", Missing: "apiKey"}
	}
	switch profile.Driver {
	case DriverAnthropic:
		return NewAnthropicChat(profile, apiKey), nil
	case DriverGemini:
		chat, err := NewGeminiChat(profile, apiKey)
		if err != nil {
			return nil, err
		}
		return chat, nil
	default:
		return NewOpenAIChat(profile, apiKey), nil
	}
}

// NewChatFromConfig resolves the configured provider and creates its driver.
func NewChatFromConfig(cfg *config.Config) (Chat, ProviderProfile, error) {
	profile, err := Profile(cfg.Provider, ProfileOverrides{
		Endpoint:  cfg.Endpoint,
		ChatModel: cfg.ChatModel,
	})
	if err != nil {
		return nil, ProviderProfile{}, err
	}
	chat, err := NewChat(profile, cfg.APIKey)
	if err != nil {
		return nil, profile, err
	}
	return chat, profile, nil
}
