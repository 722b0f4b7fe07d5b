package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":        LevelOff,
		"off":     LevelOff,
		"error":   LevelError,
		"info":    LevelInfo,
		"debug":   LevelDebug,
		"garbage": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRequestLogLevelOverrides(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/stats?log=debug", nil)
	if got := requestLogLevel(req); got != LevelDebug {
		t.Fatalf("query override: %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats?log=1", nil)
	if got := requestLogLevel(req); got != LevelDebug {
		t.Fatalf("legacy numeric override: %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-Log-Level", "error")
	if got := requestLogLevel(req); got != LevelError {
		t.Fatalf("header override: %d", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	if got := requestLogLevel(req); got != defaultLogLevel {
		t.Fatalf("default: %d", got)
	}
}
