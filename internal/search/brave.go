package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs a web query. It never fails: any problem yields no results
// and a log line. Rate-limit responses are retried up to MaxRetries times
// with backoff Interval * 2^attempt; every attempt goes through the pacer.
func (t *Tool) Search(ctx context.Context, query string) []SearchResult {
	q := SanitizeQuery(query, t.opts.MaxQueryLen)
	if q == "" {
		L_debug("search: empty query after sanitizing", "query", Preview(query, 80))
		MetricOutcome("search", "outcome", "empty_query")
		return nil
	}

	for attempt := 0; ; attempt++ {
		if err := t.pacer.Wait(ctx); err != nil {
			L_debug("search: cancelled while pacing", "error", err)
			MetricOutcome("search", "outcome", "cancelled")
			return nil
		}
		MetricInc("search", "call")

		results, status, err := t.call(ctx, q)
		switch {
		case err != nil:
			L_warn("search: request failed", "query", Preview(q, 80), "error", err)
			MetricOutcome("search", "outcome", "request_failed")
			return nil
		case status == http.StatusTooManyRequests:
			if attempt >= t.opts.MaxRetries {
				L_warn("search: rate limited, retries exhausted", "query", Preview(q, 80), "attempts", attempt+1)
				MetricOutcome("search", "outcome", "rate_limited")
				return nil
			}
			backoff := t.opts.Interval * time.Duration(1<<attempt)
			L_debug("search: rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
			MetricInc("search", "retry")
			if err := t.sleep(ctx, backoff); err != nil {
				MetricOutcome("search", "outcome", "cancelled")
				return nil
			}
			continue
		case status != http.StatusOK:
			L_warn("search: non-200 status", "status", status, "query", Preview(q, 80))
			MetricOutcome("search", "outcome", "http_error")
			return nil
		}

		if len(results) == 0 {
			MetricOutcome("search", "outcome", "no_results")
		} else {
			MetricOutcome("search", "outcome", "ok")
		}
		L_debug("search: completed", "query", Preview(q, 80), "results", len(results))
		return results
	}
}

// call issues one request. A non-nil error means no usable response.
func (t *Tool) call(ctx context.Context, q string) ([]SearchResult, int, error) {
	params := url.Values{}
	params.Set("q", q)
	params.Set("count", strconv.Itoa(t.opts.MaxResults))

	endpoint := t.opts.Endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&" + params.Encode()
	} else {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.opts.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var payload braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	results := make([]SearchResult, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, SearchResult{
			Title:   stripHTML(r.Title),
			Snippet: stripHTML(r.Description),
			URL:     r.URL,
		})
		if len(results) >= t.opts.MaxResults {
			break
		}
	}
	return results, resp.StatusCode, nil
}

// stripHTML drops the <strong> highlighting Brave puts in titles and
// snippets. Entities are decoded by the tokenizer.
func stripHTML(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
