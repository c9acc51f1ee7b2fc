package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func operatorClaims(ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "front-desk-lead",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
}

func TestAdminJWTRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
	}{
		{name: "routes closed without secret", secret: "", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, "s3cret", operatorClaims(time.Minute))},
		{name: "missing header", secret: "s3cret"},
		{name: "not a bearer token", secret: "s3cret", header: "Basic b3BzOm9wcw=="},
		{name: "empty bearer", secret: "s3cret", header: "Bearer   "},
		{name: "wrong key", secret: "s3cret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, "other", operatorClaims(time.Minute))},
		{name: "expired", secret: "s3cret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, "s3cret", operatorClaims(-time.Hour))},
		{name: "no expiry", secret: "s3cret", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, "s3cret", jwt.RegisteredClaims{Subject: "ops"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/sessions/whatsapp:5511/reset", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AdminJWT(tt.secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler must not run")
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, `Bearer realm="clinic-admin"`, rec.Header().Get("WWW-Authenticate"))
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAdminJWTAcceptsHMACVariants(t *testing.T) {
	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS256, jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		req := httptest.NewRequest(http.MethodGet, "/v1/sessions/whatsapp:5511", nil)
		req.Header.Set("Authorization", "bearer "+signToken(t, method, "s3cret", operatorClaims(5*time.Minute)))
		rec := httptest.NewRecorder()

		var subject string
		AdminJWT("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := AdminClaimsFromContext(r.Context())
			require.True(t, ok)
			subject = claims.Subject
			w.WriteHeader(http.StatusOK)
		})).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, method.Alg())
		assert.Equal(t, "front-desk-lead", subject)
	}
}

func TestAdminClaimsAbsent(t *testing.T) {
	_, ok := AdminClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
