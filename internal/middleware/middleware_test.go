package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"vantage/internal/store"
)

func mustTrust(t *testing.T, entries ...string) TrustedProxies {
	t.Helper()
	tp, err := ParseTrustedProxies(entries)
	if err != nil {
		t.Fatalf("parse trusted proxies: %v", err)
	}
	return tp
}

func TestResolveClientIP(t *testing.T) {
	trusted := mustTrust(t, "10.0.0.0/8", "2001:db8:ffff::1")
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded through trusted proxy", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"spoofed leftmost hop ignored", map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.7"}, "10.0.0.2:1234", "203.0.113.7"},
		{"real ip from trusted proxy", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"trusted v6 proxy", map[string]string{"X-Forwarded-For": "198.51.100.8"}, "[2001:db8:ffff::1]:443", "198.51.100.8"},
		{"forwarded from untrusted peer", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "192.0.2.1:5555", "192.0.2.1"},
		{"real ip from untrusted peer", map[string]string{"X-Real-IP": "198.51.100.4"}, "192.0.2.1:5555", "192.0.2.1"},
		{"remote v4", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote v6", nil, "[2001:db8::1]:60500", "2001:db8::1"},
		{"garbage forwarded falls through", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.2:1234", "10.0.0.2"},
		{"only proxies forwarded", map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.1"}, "10.0.0.2:1234", "10.1.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := resolveClientIP(r, trusted); got != tt.want {
				t.Errorf("resolveClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseTrustedProxies_Rejects(t *testing.T) {
	if _, err := ParseTrustedProxies([]string{"10.0.0.0/8", "proxy.internal"}); err == nil {
		t.Fatal("expected error for hostname entry")
	}
}

func TestClientIP_StoresInContext(t *testing.T) {
	var got string
	h := ClientIP(TrustedProxies{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFrom(r.Context())
	}))
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.9:80"
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "192.0.2.9" {
		t.Fatalf("expected 192.0.2.9, got %q", got)
	}
	if ClientIPFrom(context.Background()) != "unknown" {
		t.Fatal("expected unknown without middleware")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := store.NewMemoryLimiter(60, 2)
	h := ClientIP(TrustedProxies{})(RateLimiter(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/api/dashboard", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRateLimiter_RotatingForwardedForStillLimited(t *testing.T) {
	limiter := store.NewMemoryLimiter(60, 2)
	h := ClientIP(mustTrust(t, "10.0.0.0/8"))(RateLimiter(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest("GET", "/api/dashboard", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		r.Header.Set("X-Real-IP", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		codes = append(codes, rec.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Fatalf("rotating headers escaped the limit: %v", codes)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return true, errors.New("backend down")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	h := RateLimiter(failingLimiter{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected request through, got %d", rec.Code)
	}
}

func TestSessions_IssueParse(t *testing.T) {
	s := NewSessions([]byte("test-secret"), "vantage_session", time.Hour)
	id := uuid.NewString()
	tok, err := s.Issue(id, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := s.Parse(tok)
	if err != nil || got != id {
		t.Fatalf("Parse = %q, %v; want %q", got, err, id)
	}
}

func TestSessions_ParseRejects(t *testing.T) {
	s := NewSessions([]byte("test-secret"), "vantage_session", time.Hour)
	other := NewSessions([]byte("other-secret"), "vantage_session", time.Hour)
	id := uuid.NewString()

	foreign, _ := other.Issue(id, time.Now())
	expired, _ := s.Issue(id, time.Now().Add(-2*time.Hour))
	notUUID, _ := s.Issue("not-a-uuid", time.Now())

	for name, tok := range map[string]string{
		"foreign signature": foreign,
		"expired":           expired,
		"malformed sid":     notUUID,
		"garbage":           "abc.def.ghi",
	} {
		if _, err := s.Parse(tok); !errors.Is(err, ErrInvalidSession) {
			t.Errorf("%s: expected ErrInvalidSession, got %v", name, err)
		}
	}
}

func TestSessions_Middleware(t *testing.T) {
	s := NewSessions([]byte("test-secret"), "vantage_session", time.Hour)
	var seen string
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = SessionIDFrom(r.Context())
	}))

	// First visit mints a session and sets the cookie.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected uuid session id, got %q", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "vantage_session" || !cookies[0].HttpOnly {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}
	first := seen

	// Returning with the cookie keeps the same id.
	r := httptest.NewRequest("GET", "/", nil)
	r.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != first {
		t.Fatalf("expected session %q to persist, got %q", first, seen)
	}

	// A tampered cookie gets a fresh session.
	r = httptest.NewRequest("GET", "/", nil)
	r.AddCookie(&http.Cookie{Name: "vantage_session", Value: strings.Repeat("x", 20)})
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == first || seen == "" {
		t.Fatalf("expected new session for tampered cookie, got %q", seen)
	}
}

func TestAPIKey(t *testing.T) {
	h := APIKey("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"header", "X-API-Key", "s3cret", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"bearer lowercase", "Authorization", "bearer s3cret", http.StatusNoContent},
		{"wrong", "X-API-Key", "nope", http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/admin/sessions", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}

	closed := APIKey("")(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	closed.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("empty key must reject, got %d", rec.Code)
	}
}
