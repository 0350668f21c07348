// Package search provides the research agent's web tools: a paced,
// rate-limit aware web search call and a page fetch that extracts readable
// text. Failures never surface as errors; search degrades to no results and
// page fetches degrade to a placeholder string.
package search

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
)

// SearchResult is one ranked web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// Searcher is what the research agent consumes.
type Searcher interface {
	Search(ctx context.Context, query string) []SearchResult
	FetchPage(ctx context.Context, url string) string
}

// Options configures a Tool. Zero values take the defaults below.
type Options struct {
	APIKey      string
	Endpoint    string
	Interval    time.Duration // minimum spacing between search call starts, also the retry base delay
	MaxRetries  int
	MaxResults  int
	MaxQueryLen int
	PageBudget  int // characters of page text kept
	PageTimeout time.Duration

	// AllowPrivateURLs disables the SSRF check on fetched pages.
	AllowPrivateURLs bool

	HTTPClient *http.Client // search calls; page fetches use their own timeout
}

const (
	defaultEndpoint    = "https://api.search.brave.com/res/v1/web/search"
	defaultInterval    = 1200 * time.Millisecond
	defaultMaxRetries  = 3
	defaultMaxResults  = 5
	defaultMaxQueryLen = 300
	defaultPageBudget  = 6000
	defaultPageTimeout = 8 * time.Second
	searchTimeout      = 10 * time.Second
)

// Tool implements Searcher against a Brave-shaped search endpoint.
type Tool struct {
	opts       Options
	client     *http.Client
	pageClient *http.Client
	pacer      *Pacer
	sleep      func(ctx context.Context, d time.Duration) error // retry backoff
}

// New creates a search tool. An empty API key is a configuration error;
// callers treat it as "research disabled".
func New(opts Options) (*Tool, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &config.ConfigurationError{Feature: "research", Missing: "search.apiKey"}
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultMaxResults
	}
	if opts.MaxQueryLen <= 0 {
		opts.MaxQueryLen = defaultMaxQueryLen
	}
	if opts.PageBudget <= 0 {
		opts.PageBudget = defaultPageBudget
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = defaultPageTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: searchTimeout}
	}
	return &Tool{
		opts:       opts,
		client:     client,
		pageClient: newPageClient(opts.PageTimeout, !opts.AllowPrivateURLs),
		pacer:      NewPacer(opts.Interval),
		sleep:      sleepContext,
	}, nil
}

// newPageClient builds the page fetch client. A guarded client checks every
// dialed address and ignores proxy settings, since the proxy itself is
// usually on a private network.
func newPageClient(timeout time.Duration, guard bool) *http.Client {
	if !guard {
		return &http.Client{Timeout: timeout}
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	tr.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialGuard,
	}).DialContext
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NewFromConfig creates a search tool from the search section of cfg.
func NewFromConfig(cfg *config.Config) (*Tool, error) {
	return New(Options{
		APIKey:      cfg.Search.APIKey,
		Endpoint:    cfg.Search.Endpoint,
		Interval:    cfg.SearchInterval(),
		MaxRetries:  cfg.Search.MaxRetries,
		MaxResults:  cfg.Search.MaxResults,
		MaxQueryLen: cfg.Search.MaxQueryLen,
		PageBudget:  cfg.Search.PageBudget,
		PageTimeout: cfg.PageTimeout(),
	})
}

// Pacer exposes the tool's limiter so several tools can be checked in isolation.
func (t *Tool) Pacer() *Pacer { return t.pacer }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
