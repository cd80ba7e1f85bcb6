package website

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type page struct {
	status int
	body   string
}

// mockTransport serves fixed pages per host and fails for unknown hosts.
type mockTransport struct {
	mu       sync.Mutex
	pages    map[string]page
	requests []string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req.Method+" "+req.URL.Host)
	p, ok := m.pages[req.URL.Host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return &http.Response{
		StatusCode: p.status,
		Body:       io.NopCloser(bytes.NewBufferString(p.body)),
	}, nil
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{
			name: "Acme Widgets Ltd",
			want: []string{
				"acmewidgets.co.uk", "acmewidgets.com", "acmewidgets.uk", "acmewidgets.org.uk", "acmewidgets.net",
				"acme-widgets.co.uk", "acme-widgets.com", "acme-widgets.uk", "acme-widgets.org.uk", "acme-widgets.net",
				"acme.co.uk", "acme.com",
			},
		},
		{
			name: "Zeta Holdings Limited",
			want: []string{"zeta.co.uk", "zeta.com", "zeta.uk", "zeta.org.uk", "zeta.net"},
		},
		{
			name: "A&B (UK) PLC",
			want: []string{"ab.co.uk", "ab.com", "ab.uk", "ab.org.uk", "ab.net"},
		},
		{name: "!!!", want: nil},
		{name: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Candidates(tt.name)); diff != "" {
				t.Errorf("candidates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckWebsite(t *testing.T) {
	const site = `<html><head><title>Acme Widgets</title></head><body>Quality widgets since 1982</body></html>`
	const parking = `<html><head><title>acmewidgets.co.uk</title></head><body>This domain is for sale! Buy this domain today.</body></html>`

	tests := []struct {
		name     string
		pages    map[string]page
		want     bool
		wantLast []string
	}{
		{
			name:     "live site",
			pages:    map[string]page{"acme-widgets.co.uk": {200, site}},
			want:     true,
			wantLast: []string{"HEAD acme-widgets.co.uk", "GET acme-widgets.co.uk"},
		},
		{
			name:     "redirect counts as live",
			pages:    map[string]page{"www.acmewidgets.com": {301, ""}},
			want:     true,
			wantLast: []string{"HEAD acmewidgets.com", "HEAD www.acmewidgets.com"},
		},
		{
			name:     "parked domain",
			pages:    map[string]page{"acmewidgets.co.uk": {200, parking}},
			wantLast: []string{"HEAD www.acme.com"},
		},
		{
			name: "error pages",
			pages: map[string]page{
				"acmewidgets.co.uk": {404, ""},
				"acme.com":          {500, ""},
			},
			wantLast: []string{"HEAD www.acme.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockTransport{pages: tt.pages}
			c := NewChecker(m, slog.New(slog.NewTextHandler(io.Discard, nil)))

			got := c.CheckWebsite(context.Background(), "Acme Widgets Ltd")
			if got != tt.want {
				t.Errorf("CheckWebsite() = %v, want %v", got, tt.want)
			}
			last := m.requests[len(m.requests)-len(tt.wantLast):]
			if diff := cmp.Diff(tt.wantLast, last); diff != "" {
				t.Errorf("last requests mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckWebsiteCancelled(t *testing.T) {
	m := &mockTransport{pages: map[string]page{"acmewidgets.co.uk": {200, "ok"}}}
	c := NewChecker(m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if c.CheckWebsite(ctx, "Acme Widgets Ltd") {
		t.Error("CheckWebsite() with a cancelled context reported a live site")
	}
	if len(m.requests) != 0 {
		t.Errorf("made %d requests after cancel", len(m.requests))
	}
}
