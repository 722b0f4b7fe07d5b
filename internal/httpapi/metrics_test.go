package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRoutePatternOrPath(t *testing.T) {
	r := chi.NewRouter()
	var got string
	r.Get("/api/chat/status/{task_id}", func(w http.ResponseWriter, r *http.Request) {
		got = routePatternOrPath(r)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/chat/status/abc123", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got != "/api/chat/status/{task_id}" {
		t.Fatalf("pattern = %q", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/no/route", nil)
	if p := routePatternOrPath(plain); p != "/no/route" {
		t.Fatalf("fallback = %q", p)
	}
}

func TestStatusRecorderCapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: 200}
	sr.WriteHeader(http.StatusTeapot)
	if sr.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d / %d", sr.status, rec.Code)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 1000: "1000"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}
