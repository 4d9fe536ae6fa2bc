package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func protectedHandler(secret []byte) http.Handler {
	return RequireAdminAuth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAdminAuthRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	token, expiresAt, err := GenerateAdminToken(secret, "admin")
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("token already expired")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedHandler(secret).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestAdminAuthRejects(t *testing.T) {
	secret := []byte("test-secret")

	valid, _, err := GenerateAdminToken(secret, "admin")
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	expiredStr, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("signing expired token: %v", err)
	}

	wrongSecret, _, err := GenerateAdminToken([]byte("other-secret"), "admin")
	if err != nil {
		t.Fatalf("GenerateAdminToken: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic " + valid},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expiredStr},
		{"wrong secret", "Bearer " + wrongSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protectedHandler(secret).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
