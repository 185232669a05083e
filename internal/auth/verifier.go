// Package auth verifies bearer tokens issued by the external identity provider.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/udaykiran1867/tce-project1/internal/platform/httpx"
	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// Claims carried by accepted tokens.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the identity recorded against mutations.
func (c *Claims) Actor() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Subject
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	logger *slog.Logger
	now    func() time.Time
}

// NewVerifier constructs a Verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, logger: logger, now: time.Now}
}

// Verify parses and validates a raw token.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", shared.ErrUnauthorized)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", shared.ErrUnauthorized)
	}
	if claims.Actor() == "" {
		return nil, fmt.Errorf("%w: token has no subject", shared.ErrUnauthorized)
	}
	return claims, nil
}

// Sign issues a token for subject. Used by operators and tests; production
// tokens come from the identity provider.
func (v *Verifier) Sign(subject string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Middleware rejects requests without a valid bearer token and stores the
// actor on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.RespondError(w, fmt.Errorf("%w: bearer token required", shared.ErrUnauthorized))
			return
		}
		claims, err := v.Verify(strings.TrimSpace(raw))
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthorized) {
				v.logger.Error("verify token", slog.Any("error", err))
			}
			v.logger.Warn("rejected bearer token", slog.String("path", r.URL.Path))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), claims.Actor())))
	})
}
