package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const shareURL = "https://chatgpt.com/share/abc-123"

// stubPages serves a fixed page and counts requests.
type stubPages struct {
	html  string
	err   error
	calls int
}

func (s *stubPages) FetchPage(_ context.Context, _ string) (string, error) {
	s.calls++
	return s.html, s.err
}

type storedTranscript struct {
	id     string
	format Format
	body   string
}

type stubArchive struct {
	stored []storedTranscript
	err    error
}

func (a *stubArchive) Store(_ context.Context, id string, format Format, body string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.stored = append(a.stored, storedTranscript{id, format, body})
	return "key", nil
}

func testRules() heuristicRules {
	return heuristicRules{
		MinScriptLength: 20,
		ScriptMarker:    "window.__reactRouterContext",
		TitlePrefix:     "ChatGPT - ",
	}
}

func newTestFetcher(t *testing.T, pages pageSource, logOut *bytes.Buffer) *Fetcher {
	t.Helper()
	logger := zerolog.Nop()
	if logOut != nil {
		logger = newLogger(logOut, "debug")
	}
	f, err := NewFetcher(pages, testRules(), logger)
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	f.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f
}

const structuredPage = `<html><head><title>ChatGPT - Tree</title>
<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"conversation":{"title":"Tree","mapping":{
"u":{"id":"u","message":{"id":"u","author":{"role":"user"},"content":{"content_type":"text","parts":["hello"]},"create_time":1},"parent":null,"children":["a"]},
"a":{"id":"a","message":{"id":"a","author":{"role":"assistant"},"content":{"content_type":"text","parts":["hi there"]},"create_time":2},"parent":"u","children":[]}
}}}}}</script>
<script>window.__reactRouterContext = {"x":"ルート側の会話テキストです、これは使われません"}</script>
</head><body></body></html>`

const routeStatePage = `<html><head><title>ChatGPT - Route</title></head><body>
<script>window.__reactRouterContext = {"x":"ルート側の会話テキストです、こちらが使われます"}</script>
</body></html>`

func TestFetchPrefersStructuredPayload(t *testing.T) {
	pages := &stubPages{html: structuredPage}
	f := newTestFetcher(t, pages, nil)

	got, err := f.Fetch(context.Background(), FetchRequest{URL: shareURL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := "# ChatGPT Conversation\n\n**Title:** Tree\n\n---\n\n## User\n\nhello\n\n## Assistant\n\nhi there\n\n"
	if got != want {
		t.Errorf("output mismatch:\n got %q\nwant %q", got, want)
	}
	if pages.calls != 1 {
		t.Errorf("expected 1 page fetch, got %d", pages.calls)
	}
}

func TestFetchFallsBackToRouteState(t *testing.T) {
	f := newTestFetcher(t, &stubPages{html: routeStatePage}, nil)

	got, err := f.Fetch(context.Background(), FetchRequest{URL: shareURL, Format: "text", IncludeMetadata: new(bool)})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if want := "USER:\nルート側の会話テキストです、こちらが使われます\n\n"; got != want {
		t.Errorf("output mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestFetchMalformedNextDataFallsThrough(t *testing.T) {
	page := strings.Replace(routeStatePage, "<head>",
		`<head><script id="__NEXT_DATA__" type="application/json">{"props":</script>`, 1)
	f := newTestFetcher(t, &stubPages{html: page}, nil)

	got, err := f.Fetch(context.Background(), FetchRequest{URL: shareURL, Format: "json"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(got, `"msg_0"`) {
		t.Errorf("expected heuristic conversation, got %s", got)
	}
}

func TestHandleErrors(t *testing.T) {
	tests := []struct {
		name      string
		req       FetchRequest
		pages     *stubPages
		want      string
		wantCalls int
	}{
		{
			name:  "invalid url",
			req:   FetchRequest{URL: "https://example.com/share/abc"},
			pages: &stubPages{html: structuredPage},
			want:  "Error: " + errInvalidURL.Error(),
		},
		{
			name:  "unknown format",
			req:   FetchRequest{URL: shareURL, Format: "xml"},
			pages: &stubPages{html: structuredPage},
			want:  "Error: Unknown format: xml",
		},
		{
			name:  "invalid window",
			req:   FetchRequest{URL: shareURL, MaxMessages: intp(0)},
			pages: &stubPages{html: structuredPage},
			want:  "Error: invalid message range: max_messages must be between 1 and 1000",
		},
		{
			name:      "http failure",
			req:       FetchRequest{URL: shareURL},
			pages:     &stubPages{err: fmt.Errorf("%w %d", errHTTPStatus, 404)},
			want:      "Error: Failed to fetch conversation: Request failed with status code 404",
			wantCalls: 1,
		},
		{
			name:      "no conversation",
			req:       FetchRequest{URL: shareURL},
			pages:     &stubPages{html: "<html><body>nothing</body></html>"},
			want:      "Error: Failed to fetch conversation: No conversation data found in either __NEXT_DATA__ or React Router format",
			wantCalls: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var logs bytes.Buffer
			f := newTestFetcher(t, tc.pages, &logs)

			got := f.Handle(context.Background(), tc.req)
			if got != tc.want {
				t.Errorf("Handle = %q, want %q", got, tc.want)
			}
			if tc.pages.calls != tc.wantCalls {
				t.Errorf("page fetched %d times, want %d", tc.pages.calls, tc.wantCalls)
			}
			if !strings.Contains(logs.String(), "error fetching conversation") || !strings.Contains(logs.String(), `"request_id"`) {
				t.Errorf("expected an error log line with request id, got %s", logs.String())
			}
		})
	}
}

func TestFetchArchivesTranscript(t *testing.T) {
	archive := &stubArchive{}
	f := newTestFetcher(t, &stubPages{html: structuredPage}, nil).WithArchive(archive)

	out, err := f.Fetch(context.Background(), FetchRequest{URL: shareURL, Format: "text"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(archive.stored) != 1 {
		t.Fatalf("expected 1 stored transcript, got %d", len(archive.stored))
	}
	s := archive.stored[0]
	if s.id != "abc-123" || s.format != FormatText || s.body != out {
		t.Errorf("unexpected stored transcript %+v", s)
	}

	archive.err = errors.New("bucket gone")
	if _, err := f.Fetch(context.Background(), FetchRequest{URL: shareURL}); err != nil {
		t.Errorf("archive failure should not fail the fetch: %v", err)
	}
}

// redirectTransport sends every request to a test server, keeping the path.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestFetchOverHTTP(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(structuredPage))
	}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	pages := newHTTPPageSource("", time.Second)
	pages.client.Transport = redirectTransport{target: target}
	f := newTestFetcher(t, pages, nil)

	out := f.Handle(context.Background(), FetchRequest{URL: shareURL, MaxMessages: intp(1)})
	if gotPath != "/share/abc-123" {
		t.Errorf("requested path = %q", gotPath)
	}
	if !strings.Contains(out, "## User\n\nhello") || strings.Contains(out, "hi there") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.HasSuffix(out, "\n*... (1 more messages truncated)*\n") {
		t.Errorf("missing truncation notice in %q", out)
	}
}
