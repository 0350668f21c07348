package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

// TruncationMarker is appended to page text cut at the page budget.
const TruncationMarker = "\n\n[Content truncated...]"

const (
	maxBodyBytes       = 2 << 20
	minReadableContent = 200 // below this readability probably missed the body
)

// Placeholder is the text returned in place of an unreadable page.
func Placeholder(reason string) string {
	return fmt.Sprintf("[Could not read page: %s]", reason)
}

// FetchPage downloads url and returns its readable text, at most PageBudget
// characters plus the truncation marker. Failures return a Placeholder.
func (t *Tool) FetchPage(ctx context.Context, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	content, err := t.fetch(ctx, rawURL)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timed out"
		}
		L_warn("search: page unreadable", "url", rawURL, "reason", reason)
		MetricOutcome("search", "fetch", "unreadable")
		return Placeholder(reason)
	}
	MetricOutcome("search", "fetch", "ok")
	return t.budget(content)
}

func (t *Tool) fetch(ctx context.Context, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL")
	}
	if !t.opts.AllowPrivateURLs {
		if err := CheckPageURL(ctx, rawURL); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.PageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; UsernodeSurveyBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.pageClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("read failed: %w", err)
	}
	bodyStr := string(body)

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		L_debug("search: non-HTML page", "url", rawURL, "contentType", contentType, "length", len(bodyStr))
		return bodyStr, nil
	}
	return extractReadable(bodyStr, parsedURL)
}

// extractReadable runs readability and falls back to a markdown conversion of
// the whole document when the article text is too thin.
func extractReadable(html string, pageURL *url.URL) (string, error) {
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err == nil && len(strings.TrimSpace(article.TextContent)) >= minReadableContent {
		return formatArticle(article.Title, pageURL.String(), article.TextContent), nil
	}
	if err != nil {
		L_debug("search: readability failed, converting to markdown", "url", pageURL.String(), "error", err)
	}

	markdown, mdErr := htmltomd.ConvertString(html)
	if mdErr != nil || strings.TrimSpace(markdown) == "" {
		if err == nil && strings.TrimSpace(article.TextContent) != "" {
			return formatArticle(article.Title, pageURL.String(), article.TextContent), nil
		}
		return "", fmt.Errorf("no readable content")
	}
	title := ""
	if err == nil {
		title = article.Title
	}
	return formatArticle(title, pageURL.String(), markdown), nil
}

func formatArticle(title, pageURL, text string) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	fmt.Fprintf(&b, "URL: %s\n\n---\n\n", pageURL)
	b.WriteString(strings.TrimSpace(text))
	return b.String()
}

func (t *Tool) budget(content string) string {
	if len([]rune(content)) <= t.opts.PageBudget {
		return content
	}
	return truncateRunes(content, t.opts.PageBudget) + TruncationMarker
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
