package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/types"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
)

const ledgerTimeout = 10 * time.Second

// Ledger accepts memos for submission as transfers between two addresses.
type Ledger interface {
	Submit(ctx context.Context, memo types.Memo) error
}

type transfer struct {
	From string     `json:"from"`
	To   string     `json:"to"`
	Memo types.Memo `json:"memo"`
}

// HTTPLedger posts {from, to, memo} to a transaction endpoint.
type HTTPLedger struct {
	url    string
	from   string
	to     string
	client *http.Client
}

// NewHTTPLedger creates a ledger client for url.
func NewHTTPLedger(url, from, to string) *HTTPLedger {
	return &HTTPLedger{
		url:    url,
		from:   from,
		to:     to,
		client: &http.Client{Timeout: ledgerTimeout},
	}
}

// NewLedgerFromConfig returns an HTTPLedger when a ledger URL is configured
// and a LogLedger otherwise.
func NewLedgerFromConfig(cfg *config.Config) Ledger {
	if !cfg.Features().Ledger {
		L_info("bot: no ledger configured, memos are only logged")
		return LogLedger{}
	}
	return NewHTTPLedger(cfg.Bot.LedgerURL, cfg.Bot.FromAddress, cfg.Bot.ToAddress)
}

func (l *HTTPLedger) Submit(ctx context.Context, memo types.Memo) error {
	body, err := json.Marshal(transfer{From: l.from, To: l.to, Memo: memo})
	if err != nil {
		return fmt.Errorf("encode memo: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("ledger submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, 512))
		if err != nil {
			return fmt.Errorf("ledger submit: HTTP %d: read body: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("ledger submit: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	L_debug("bot: memo submitted", "memo", memo.ID, "kind", memo.Kind, "survey", memo.SurveyID)
	return nil
}

// LogLedger only logs memos.
type LogLedger struct{}

func (LogLedger) Submit(ctx context.Context, memo types.Memo) error {
	data, _ := json.Marshal(memo)
	L_info("bot: memo", "json", string(data))
	return nil
}
