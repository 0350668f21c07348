// Package imagegen turns a free-text image description into a durable image
// URL. Each provider family renders images differently; the Router picks one
// strategy at construction and every failure degrades to an empty URL.
package imagegen

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/llm"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/store"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// Outcomes recorded under imagegen/outcome.
const (
	OutcomeOK       = "ok"
	OutcomeDisabled = "disabled"
	OutcomeNoStore  = "no_store"
	OutcomeNoImage  = "no_image"
	OutcomeError    = "error"
	OutcomeUpload   = "upload_failed"
)

const refinePrompt = `You are an art director with a strong personal style. Rewrite the image idea you are given as a single vivid prompt for an image model: name the subject, composition, medium, lighting and palette. Keep the original intent. Reply with the prompt only, no preamble, under 900 characters.`

const refineTemperature = 0.8

// Uploader hosts image bytes and re-hosts temporary URLs. *store.Client
// satisfies it.
type Uploader interface {
	Configured() bool
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	Rehost(ctx context.Context, tempURL string) (string, error)
}

// Options wires a Router. Only the fields the chosen Kind needs are used.
type Options struct {
	Kind    llm.BackendKind
	Backend ImageBackend // rendering backend for direct, native and refine
	Refiner llm.Chat     // refine only
	Store   Uploader
	Rehost  bool // re-host direct URLs through Store
}

type handler func(ctx context.Context, description string) (string, error)

// Router generates images with one fixed strategy.
type Router struct {
	kind    llm.BackendKind
	backend ImageBackend
	refiner llm.Chat
	store   Uploader
	rehost  bool
	handle  handler
}

// New creates a router. A kind whose collaborators are missing degrades to
// BackendNone.
func New(opts Options) *Router {
	r := &Router{
		kind:    opts.Kind,
		backend: opts.Backend,
		refiner: opts.Refiner,
		store:   opts.Store,
		rehost:  opts.Rehost,
	}
	if r.backend == nil || (r.kind == llm.BackendRefine && r.refiner == nil) {
		r.kind = llm.BackendNone
	}
	switch r.kind {
	case llm.BackendDirect:
		r.handle = r.direct
	case llm.BackendNative:
		r.handle = r.native
	case llm.BackendRefine:
		r.handle = r.refine
	default:
		r.kind = llm.BackendNone
		r.handle = r.none
	}
	return r
}

// Disabled returns a router that never produces an image.
func Disabled() *Router {
	return New(Options{Kind: llm.BackendNone})
}

// NewRouter builds the router implied by the chat profile and cfg.Image. The
// returned router is always usable; a non-nil error explains why it fell
// back to BackendNone.
func NewRouter(cfg *config.Config, profile llm.ProviderProfile, chat llm.Chat, st *store.Client) (*Router, error) {
	if !cfg.Features().Images {
		return Disabled(), nil
	}
	kind := profile.ImageBackend
	if cfg.Image.Backend != "" {
		k, err := llm.ParseBackendKind(cfg.Image.Backend)
		if err != nil {
			return Disabled(), err
		}
		kind = k
	}

	opts := Options{Kind: kind, Rehost: cfg.Image.Rehost}
	if st != nil {
		opts.Store = st
	}

	switch kind {
	case llm.BackendNone:
		return Disabled(), nil

	case llm.BackendDirect, llm.BackendNative:
		if cfg.Image.Model != "" {
			profile.ImageModel = cfg.Image.Model
		}
		key := cfg.Image.APIKey
		if key == "" || cfg.Image.Provider != "" && !strings.EqualFold(cfg.Image.Provider, profile.ID) {
			key = cfg.APIKey
		}
		backend, err := newBackend(kind, profile, key, cfg.Image.Size)
		if err != nil {
			return Disabled(), err
		}
		opts.Backend = backend

	case llm.BackendRefine:
		if chat == nil {
			return Disabled(), &config.ConfigurationError{Feature: "image refine", Missing: "chat"}
		}
		render, err := llm.Profile(cfg.Image.Provider, llm.ProfileOverrides{ImageModel: cfg.Image.Model})
		if err != nil {
			return Disabled(), err
		}
		if render.ImageBackend != llm.BackendDirect {
			return Disabled(), &config.ConfigurationError{Feature: "image refine", Missing: "image.provider with direct image support"}
		}
		if strings.TrimSpace(cfg.Image.APIKey) == "" {
			return Disabled(), &config.ConfigurationError{Feature: "image refine", Missing: "image.apiKey"}
		}
		backend, err := newBackend(llm.BackendDirect, render, cfg.Image.APIKey, cfg.Image.Size)
		if err != nil {
			return Disabled(), err
		}
		opts.Backend = backend
		opts.Refiner = chat
	}

	r := New(opts)
	L_info("imagegen: router ready", "kind", r.kind, "backend", r.BackendName())
	return r, nil
}

func newBackend(kind llm.BackendKind, profile llm.ProviderProfile, apiKey, size string) (ImageBackend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &config.ConfigurationError{Feature: "images (" + profile.ID + ")", Missing: "apiKey"}
	}
	if kind == llm.BackendNative {
		return NewGeminiImages(profile, apiKey)
	}
	if profile.ID == "xai" {
		return NewXAIImages(profile, apiKey)
	}
	return NewOpenAIImages(profile, apiKey, size), nil
}

// Kind reports the strategy in use.
func (r *Router) Kind() llm.BackendKind { return r.kind }

// BackendName names the rendering backend, "" when there is none.
func (r *Router) BackendName() string {
	if r.backend == nil {
		return ""
	}
	return r.backend.Name()
}

// Generate renders description and returns a hosted image URL, or "" when no
// image could be produced.
func (r *Router) Generate(ctx context.Context, description string) string {
	description = strings.TrimSpace(description)
	if r == nil || r.handle == nil {
		MetricOutcome("imagegen", "outcome", OutcomeDisabled)
		return ""
	}
	if description == "" {
		MetricOutcome("imagegen", "outcome", OutcomeNoImage)
		return ""
	}

	start := time.Now()
	url, err := r.handle(ctx, description)
	MetricDuration("imagegen", r.kind.String(), time.Since(start))
	switch {
	case err != nil:
		outcome := OutcomeError
		var oe *outcomeError
		if errors.As(err, &oe) {
			outcome = oe.outcome
		}
		L_warn("imagegen: no image", "kind", r.kind, "reason", err)
		MetricOutcome("imagegen", "outcome", outcome)
		return ""
	case url == "":
		if r.kind != llm.BackendNone {
			MetricOutcome("imagegen", "outcome", OutcomeNoImage)
		} else {
			MetricOutcome("imagegen", "outcome", OutcomeDisabled)
		}
		return ""
	}
	L_elapsed(start, "imagegen: image ready", "kind", r.kind, "url", Preview(url, 80))
	MetricOutcome("imagegen", "outcome", OutcomeOK)
	return url
}

// outcomeError tags an error with a more specific metrics outcome.
type outcomeError struct {
	outcome string
	err     error
}

func (e *outcomeError) Error() string { return e.err.Error() }
func (e *outcomeError) Unwrap() error { return e.err }

func (r *Router) none(ctx context.Context, description string) (string, error) {
	return "", nil
}

func (r *Router) direct(ctx context.Context, prompt string) (string, error) {
	images, err := r.backend.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	for _, img := range images {
		if img.URL != "" {
			return r.maybeRehost(ctx, img.URL), nil
		}
	}
	// Some compatible endpoints ignore the URL format and return bytes.
	for _, img := range images {
		if len(img.Data) > 0 {
			return r.upload(ctx, img)
		}
	}
	return "", nil
}

func (r *Router) native(ctx context.Context, prompt string) (string, error) {
	if r.store == nil || !r.store.Configured() {
		return "", &outcomeError{OutcomeNoStore, errors.New("no object store configured for inline image bytes")}
	}
	images, err := r.backend.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	for _, img := range images {
		if len(img.Data) > 0 {
			return r.upload(ctx, img)
		}
	}
	return "", nil
}

func (r *Router) refine(ctx context.Context, description string) (string, error) {
	prompt, err := r.refiner.Complete(ctx, refinePrompt, description, refineTemperature)
	prompt = strings.TrimSpace(prompt)
	if err != nil || prompt == "" {
		L_debug("imagegen: rewrite failed, using description", "error", err)
		prompt = description
	} else {
		L_debug("imagegen: prompt rewritten", "prompt", Preview(prompt, 120))
	}
	return r.direct(ctx, prompt)
}

func (r *Router) upload(ctx context.Context, img Image) (string, error) {
	if r.store == nil || !r.store.Configured() {
		return "", &outcomeError{OutcomeNoStore, errors.New("image came back as bytes and no object store is configured")}
	}
	url, err := r.store.Upload(ctx, img.Data, img.MIMEType)
	if err != nil {
		return "", &outcomeError{OutcomeUpload, err}
	}
	return url, nil
}

// maybeRehost makes a temporary URL durable when configured; the original URL
// is kept on failure.
func (r *Router) maybeRehost(ctx context.Context, url string) string {
	if !r.rehost || r.store == nil || !r.store.Configured() {
		return url
	}
	hosted, err := r.store.Rehost(ctx, url)
	if err != nil {
		L_warn("imagegen: rehost failed, keeping provider URL", "error", err)
		return url
	}
	return hosted
}
