package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireToken(t *testing.T) {
	h := RequireToken("s3cret")(okHandler())

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"no token", func(r *http.Request) {}, "/api/v1/tails", http.StatusUnauthorized},
		{"bearer ok", func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") }, "/api/v1/tails", http.StatusNoContent},
		{"bearer wrong", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/api/v1/tails", http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic s3cret") }, "/api/v1/tails", http.StatusUnauthorized},
		{"query ok", func(r *http.Request) {}, "/api/v1/events?token=s3cret", http.StatusNoContent},
		{"query wrong", func(r *http.Request) {}, "/api/v1/events?token=x", http.StatusUnauthorized},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") }, "/api/v1/tails?token=s3cret", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		tc.setup(req)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestRequireTokenUnauthorizedBody(t *testing.T) {
	h := RequireToken("s3cret")(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
	if body := w.Body.String(); body != "{\"detail\":\"Authentication required\"}\n" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestRequireTokenDisabled(t *testing.T) {
	h := RequireToken("")(okHandler())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("expected pass-through, got %d", w.Code)
	}
}
