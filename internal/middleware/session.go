package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"vantage/internal/environment"
)

var ErrInvalidSession = errors.New("invalid session token")

// Sessions binds each browser to a dashboard session id through a signed
// cookie. Tokens are HS256 JWTs carrying the id in "sid".
type Sessions struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
}

func NewSessions(secret []byte, cookieName string, ttl time.Duration) *Sessions {
	return &Sessions{secret: secret, cookieName: cookieName, ttl: ttl}
}

// SessionIDFrom returns the id set by Sessions.Middleware.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// WithSessionID stores id the way the middleware does.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, id)
}

// Issue signs a token for id.
func (s *Sessions) Issue(id string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sid": id,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	})
	return token.SignedString(s.secret)
}

// Parse validates a token and returns its session id.
func (s *Sessions) Parse(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidSession
	}
	sid, ok := claims["sid"].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing sid", ErrInvalidSession)
	}
	if _, err := uuid.Parse(sid); err != nil {
		return "", fmt.Errorf("%w: malformed sid", ErrInvalidSession)
	}
	return sid, nil
}

// Middleware resolves the session id from the cookie, minting a new one
// when the cookie is absent or does not verify. The cookie is refreshed on
// every request so active sessions do not expire.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if cookie, err := r.Cookie(s.cookieName); err == nil {
			if id, err := s.Parse(cookie.Value); err == nil {
				sid = id
			} else {
				log.WithField("ip", ClientIPFrom(r.Context())).Debugf("Sessions: %v", err)
			}
		}
		if sid == "" {
			sid = uuid.NewString()
			log.WithField("session", sid).Debug("Sessions: new session")
		}

		now := time.Now()
		tokenString, err := s.Issue(sid, now)
		if err != nil {
			log.Errorf("Sessions: failed to sign token: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    tokenString,
			Path:     "/",
			HttpOnly: true,
			Secure:   environment.IsSecureRequest(r),
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(s.ttl.Seconds()),
		})

		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sid)))
	})
}
