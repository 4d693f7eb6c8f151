package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"vantage/internal/store"
)

type contextKey string

const (
	clientIPContextKey  contextKey = "client_ip"
	sessionIDContextKey contextKey = "session_id"
)

// TrustedProxies is the set of peers whose forwarding headers are believed.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts CIDRs and bare addresses.
func ParseTrustedProxies(entries []string) (TrustedProxies, error) {
	var t TrustedProxies
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			t.prefixes = append(t.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return TrustedProxies{}, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		t.prefixes = append(t.prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return t, nil
}

// Contains reports whether ip is a trusted proxy.
func (t TrustedProxies) Contains(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP resolves the visitor address once and stores it in the request
// context. Forwarding headers are only read when the direct peer is a
// trusted proxy; everyone else is identified by RemoteAddr.
func ClientIP(trusted TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), clientIPContextKey, resolveClientIP(r, trusted))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFrom returns the address stored by ClientIP, or "unknown".
func ClientIPFrom(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}

func resolveClientIP(r *http.Request, trusted TrustedProxies) string {
	remote := store.NormalizeIP(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if !trusted.Contains(remote) {
		return remote
	}
	if ip, ok := fromForwarded(r.Header.Get("X-Forwarded-For"), trusted); ok {
		return ip
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); validIP(xr) {
		return xr
	}
	return remote
}

// fromForwarded walks X-Forwarded-For from the nearest hop outward and
// returns the first address that is not a trusted proxy. Hops further out
// than that were written by the client and are ignored.
func fromForwarded(header string, trusted TrustedProxies) (string, bool) {
	if header == "" {
		return "", false
	}
	hops := strings.Split(header, ",")
	last := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if !validIP(hop) {
			break
		}
		if !trusted.Contains(hop) {
			return hop, true
		}
		last = hop
	}
	return last, last != ""
}

func validIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// RequestLogger logs one line per request at info level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"ip":       ClientIPFrom(r.Context()),
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

// RateLimiter rejects clients over their budget with 429. Limiter errors
// are logged and the request is let through.
func RateLimiter(l store.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIPFrom(r.Context())
			allowed, err := l.Allow(r.Context(), ip)
			if err != nil {
				log.WithField("ip", ip).Errorf("RateLimiter: limiter check failed: %v", err)
			}
			if !allowed {
				log.WithField("ip", ip).Warn("RateLimiter: rate limit exceeded")
				http.Error(w, "429 Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
