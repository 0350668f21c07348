package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	xai "github.com/roelfdiedericks/xai-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
)

const imageTimeout = 120 * time.Second

// Image is one generated image: a URL from direct backends, inline bytes
// from native ones.
type Image struct {
	URL      string
	Data     []byte
	MIMEType string
}

// ImageBackend renders a prompt.
type ImageBackend interface {
	Name() string
	Generate(ctx context.Context, prompt string) ([]Image, error)
}

// OpenAIImages calls an OpenAI-compatible images endpoint and asks for URLs.
type OpenAIImages struct {
	name   string
	model  string
	size   string
	client *openai.Client
}

// NewOpenAIImages creates a direct backend for an OpenAI-compatible profile.
func NewOpenAIImages(profile llm.ProviderProfile, apiKey, size string) *OpenAIImages {
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}
	return &OpenAIImages{
		name:   profile.ID,
		model:  profile.ImageModel,
		size:   size,
		client: llm.NewOpenAIClient(profile.Endpoint, apiKey, imageTimeout),
	}
}

func (b *OpenAIImages) Name() string { return b.name }

func (b *OpenAIImages) Generate(ctx context.Context, prompt string) ([]Image, error) {
	resp, err := b.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          b.model,
		N:              1,
		Size:           b.size,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, llm.NewProviderError(b.name, llm.OpenAIStatus(err), err)
	}

	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		switch {
		case d.URL != "":
			images = append(images, Image{URL: d.URL})
		case d.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(d.B64JSON)
			if err == nil {
				images = append(images, Image{Data: data})
			}
		}
	}
	return images, nil
}

// XAIImages calls xAI image generation through xai-go.
type XAIImages struct {
	model  string
	client *xai.Client
}

// NewXAIImages creates a direct backend for the xai profile.
func NewXAIImages(profile llm.ProviderProfile, apiKey string) (*XAIImages, error) {
	client, err := xai.New(xai.Config{
		APIKey: xai.NewSecureString(apiKey),
	})
	if err != nil {
		return nil, fmt.Errorf("xai: failed to create client: %w", err)
	}
	model := profile.ImageModel
	if model == "" {
		model = "grok-2-image"
	}
	return &XAIImages{model: model, client: client}, nil
}

func (b *XAIImages) Name() string { return "xai" }

func (b *XAIImages) Generate(ctx context.Context, prompt string) ([]Image, error) {
	req := xai.NewImageRequest(prompt).
		WithModel(b.model)
	req.WithCount(1)

	resp, err := b.client.GenerateImage(ctx, req)
	if err != nil {
		return nil, llm.NewProviderError("xai", 0, err)
	}
	images := make([]Image, 0, len(resp.Images))
	for _, img := range resp.Images {
		if img.URL != "" {
			images = append(images, Image{URL: img.URL})
		}
	}
	return images, nil
}

// GeminiImages calls Imagen through the Gemini API; images come back as
// inline bytes.
type GeminiImages struct {
	model  string
	client *genai.Client
}

// NewGeminiImages creates a native backend for the gemini profile.
func NewGeminiImages(profile llm.ProviderProfile, apiKey string) (*GeminiImages, error) {
	client, err := llm.NewGenAIClient(profile.Endpoint, apiKey, imageTimeout)
	if err != nil {
		return nil, err
	}
	return &GeminiImages{model: profile.ImageModel, client: client}, nil
}

func (b *GeminiImages) Name() string { return "gemini" }

func (b *GeminiImages) Generate(ctx context.Context, prompt string) ([]Image, error) {
	resp, err := b.client.Models.GenerateImages(ctx, b.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, llm.NewProviderError("gemini", llm.GenAIStatus(err), err)
	}
	if resp == nil {
		return nil, llm.NewProviderError("gemini", http.StatusOK, llm.ErrNoChoices)
	}
	images := make([]Image, 0, len(resp.GeneratedImages))
	for _, g := range resp.GeneratedImages {
		if g == nil || g.Image == nil || len(g.Image.ImageBytes) == 0 {
			continue
		}
		images = append(images, Image{Data: g.Image.ImageBytes, MIMEType: g.Image.MIMEType})
	}
	return images, nil
}
