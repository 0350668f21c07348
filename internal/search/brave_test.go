package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestTool returns a tool on a fake clock pointed at srv.
func newTestTool(t *testing.T, srv *httptest.Server, opts Options) (*Tool, *fakeClock) {
	t.Helper()
	opts.APIKey = "brave-key"
	opts.Endpoint = srv.URL + "/res/v1/web/search"
	opts.AllowPrivateURLs = true
	tool, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	clk := newFakeClock()
	tool.pacer.now = clk.Now
	tool.pacer.sleep = clk.Sleep
	tool.sleep = clk.Sleep
	return tool, clk
}

func braveBody(n int) string {
	var items []string
	for i := 1; i <= n; i++ {
		items = append(items, fmt.Sprintf(`{"title":"Result <strong>%d</strong>","url":"https://example.com/%d","description":"About &amp; more %d"}`, i, i, i))
	}
	return `{"web":{"results":[` + strings.Join(items, ",") + `]}}`
}

func TestSearchRequestAndResults(t *testing.T) {
	var gotQuery, gotCount, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotToken = r.Header.Get("X-Subscription-Token")
		fmt.Fprint(w, braveBody(7))
	}))
	defer srv.Close()

	tool, _ := newTestTool(t, srv, Options{})
	results := tool.Search(context.Background(), "ferry times https://spam.example.com <script>")

	if gotQuery != "ferry times script" {
		t.Errorf("q = %q", gotQuery)
	}
	if gotCount != "5" || gotToken != "brave-key" {
		t.Errorf("count = %q token = %q", gotCount, gotToken)
	}
	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	if results[0].Title != "Result 1" || results[0].Snippet != "About & more 1" || results[0].URL != "https://example.com/1" {
		t.Errorf("results[0] = %+v", results[0])
	}
}

func TestSearchRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, braveBody(2))
	}))
	defer srv.Close()

	tool, clk := newTestTool(t, srv, Options{Interval: 1200 * time.Millisecond})
	results := tool.Search(context.Background(), "golang")

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	// Backoffs of 1200ms and 2400ms; the pacer never has to add more
	// because each backoff already covers the interval.
	sleeps := clk.Sleeps()
	want := []time.Duration{1200 * time.Millisecond, 2400 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestSearchDegradesToEmpty(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCalls int32
	}{
		{
			name:      "rate limit exhausted",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
			wantCalls: 4, // first try + 3 retries
		},
		{
			name:      "server error not retried",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			wantCalls: 1,
		},
		{
			name:      "bad json",
			handler:   func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "{not json") },
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			tool, _ := newTestTool(t, srv, Options{})
			if results := tool.Search(context.Background(), "anything"); len(results) != 0 {
				t.Errorf("results = %v, want none", results)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestSearchPacesBackToBackCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, braveBody(1))
	}))
	defer srv.Close()

	tool, clk := newTestTool(t, srv, Options{Interval: 1200 * time.Millisecond})
	for i := 0; i < 3; i++ {
		tool.Search(context.Background(), "q")
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %v, want two pacing waits", sleeps)
	}
	for _, d := range sleeps {
		if d < 1200*time.Millisecond {
			t.Errorf("pacing wait %v < interval", d)
		}
	}
}

func TestSearchEmptyQuerySkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	tool, _ := newTestTool(t, srv, Options{})
	if results := tool.Search(context.Background(), "!!!"); results != nil {
		t.Errorf("results = %v", results)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected configuration error without API key")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<strong>Go</strong> generics", "Go generics"},
		{"Caf&eacute; &amp; bar", "Café & bar"},
		{"it&#8217;s &hellip; fine", "it’s … fine"},
		{"a &lt;b&gt; c", "a <b> c"},
		{"  spaced&nbsp;out  ", "spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
