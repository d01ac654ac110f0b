package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestParseSentryAuthHeader(t *testing.T) {
	cases := map[string]string{
		"Sentry sentry_version=7, sentry_key=abc123, sentry_client=sentry.go/1.0": "abc123",
		"Sentry sentry_key=xyz":                   "xyz",
		"Sentry sentry_version=7":                 "",
		"":                                        "",
	}
	for header, want := range cases {
		if got := parseSentryAuthHeader(header); got != want {
			t.Errorf("parseSentryAuthHeader(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestExtractDSNKeyPrefersAuthHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/1/store/?sentry_key=from_query", nil)
	req.Header.Set("X-Sentry-Auth", "Sentry sentry_version=7, sentry_key=from_header")
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractDSNKey(c); got != "from_header" {
		t.Fatalf("expected from_header, got %q", got)
	}
}

func TestExtractDSNKeyFallsBackToQueryParam(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/1/store/?sentry_key=from_query", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := extractDSNKey(c); got != "from_query" {
		t.Fatalf("expected from_query, got %q", got)
	}
}

func TestPeekEventIDFromStoreBody(t *testing.T) {
	body := []byte(`{"event_id":"AAAA-BBBB-CCCC","timestamp":1}`)
	id := peekEventID(body, false)
	if id != "aaaabbbbcccc" {
		t.Fatalf("expected normalized id, got %q", id)
	}
}

func TestPeekEventIDFromEnvelopeHeaderLine(t *testing.T) {
	body := []byte("{\"event_id\":\"DEADBEEF\"}\n{\"type\":\"event\"}\n{}\n")
	id := peekEventID(body, true)
	if id != "deadbeef" {
		t.Fatalf("expected deadbeef, got %q", id)
	}
}

func TestPeekEventIDGeneratesFallback(t *testing.T) {
	id := peekEventID([]byte(`{}`), false)
	if len(id) == 0 {
		t.Fatal("expected a generated fallback id")
	}
}

func TestTierLabel(t *testing.T) {
	if tierLabel(0) != "none" {
		t.Fatalf("expected tier 0 to label none")
	}
}
