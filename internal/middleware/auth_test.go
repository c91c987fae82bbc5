package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func protectedHandler(t *testing.T, wantUser, wantTenant uuid.UUID, wantRole string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetUserID(r.Context()); got != wantUser {
			t.Errorf("Expected user %s in context, got %s", wantUser, got)
		}
		if got := GetTenantID(r.Context()); got != wantTenant {
			t.Errorf("Expected tenant %s in context, got %s", wantTenant, got)
		}
		if got := GetRole(r.Context()); got != wantRole {
			t.Errorf("Expected role %s in context, got %s", wantRole, got)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body.Error.Code
}

func TestMiddleware_ValidToken(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID, tenantID := uuid.New(), uuid.New()

	token, err := auth.GenerateAccessToken(userID, tenantID, "instructor")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Middleware(protectedHandler(t, userID, tenantID, "instructor")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMiddleware_Rejections(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	otherAuth := NewJWTAuth("other-secret")
	foreignToken, err := otherAuth.GenerateAccessToken(uuid.New(), uuid.New(), "student")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	expiredClaims := jwt.MapClaims{
		"user_id":   uuid.New().String(),
		"tenant_id": uuid.New().String(),
		"role":      "student",
		"exp":       time.Now().Add(-time.Hour).Unix(),
	}
	expiredToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(auth.Secret)
	if err != nil {
		t.Fatalf("Failed to sign expired token: %v", err)
	}

	tests := []struct {
		name         string
		header       string
		expectedCode string
	}{
		{"missing header", "", "UNAUTHORIZED"},
		{"not a bearer token", "Basic dXNlcjpwYXNz", "UNAUTHORIZED"},
		{"garbage token", "Bearer not.a.jwt", "UNAUTHORIZED"},
		{"wrong signing key", "Bearer " + foreignToken, "UNAUTHORIZED"},
		{"expired token", "Bearer " + expiredToken, "TOKEN_EXPIRED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			called := false
			auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})).ServeHTTP(rec, req)

			if called {
				t.Fatal("Handler must not run for a rejected request")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("Expected 401, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != tc.expectedCode {
				t.Errorf("Expected code %s, got %s", tc.expectedCode, code)
			}
		})
	}
}

func TestMiddleware_MissingRoleDefaultsToStudent(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	userID, tenantID := uuid.New(), uuid.New()

	claims := jwt.MapClaims{
		"user_id":   userID.String(),
		"tenant_id": tenantID.String(),
		"exp":       time.Now().Add(time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(auth.Secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Middleware(protectedHandler(t, userID, tenantID, "student")).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	guarded := RequireRole("instructor", "admin")

	run := func(role string) *httptest.ResponseRecorder {
		token, err := auth.GenerateAccessToken(uuid.New(), uuid.New(), role)
		if err != nil {
			t.Fatalf("Failed to generate token: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/instructor-only", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		auth.Middleware(guarded(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))).ServeHTTP(rec, req)
		return rec
	}

	if rec := run("instructor"); rec.Code != http.StatusOK {
		t.Errorf("Expected instructor allowed, got %d", rec.Code)
	}
	if rec := run("admin"); rec.Code != http.StatusOK {
		t.Errorf("Expected admin allowed, got %d", rec.Code)
	}
	if rec := run("student"); rec.Code != http.StatusForbidden {
		t.Errorf("Expected student forbidden, got %d", rec.Code)
	}
}
