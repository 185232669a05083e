package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func protected(v *Verifier) http.Handler {
	return v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(shared.ActorFromContext(r.Context())))
	}))
}

func TestMiddlewareAcceptsSignedToken(t *testing.T) {
	v := NewVerifier("secret", "campus-idp", quietLogger())
	token, err := v.Sign("lab-admin", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected(v).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "lab-admin", rr.Body.String())
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	v := NewVerifier("secret", "", quietLogger())
	rr := httptest.NewRecorder()
	protected(v).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestVerifyRejectsWrongSecretAndIssuer(t *testing.T) {
	issuer := NewVerifier("secret", "campus-idp", quietLogger())
	token, err := issuer.Sign("lab-admin", time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("other", "campus-idp", quietLogger()).Verify(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = NewVerifier("secret", "someone-else", quietLogger()).Verify(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewVerifier("secret", "", quietLogger())
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Sign("lab-admin", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "x"}})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewVerifier("secret", "", quietLogger()).Verify(raw)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestClaimsActorPrefersName(t *testing.T) {
	c := &Claims{Name: "Lab Admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-1"}}
	require.Equal(t, "Lab Admin", c.Actor())
	c.Name = ""
	require.Equal(t, "u-1", c.Actor())
}
