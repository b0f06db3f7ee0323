package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	owner, err := s.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if owner != "alice" {
		t.Errorf("owner = %q, want alice", owner)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewService("secret-a", time.Hour).IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := NewService("secret-b", time.Hour).VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	s := NewService("test-secret", -time.Minute)

	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := s.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := s.VerifyToken(tok); err == nil {
			t.Errorf("token %q verified", tok)
		}
	}
}

func TestService_NoSecret(t *testing.T) {
	s := NewService("", time.Hour)

	if _, err := s.IssueToken("alice"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("issue error = %v, want ErrNoSecret", err)
	}
	if _, err := s.VerifyToken("anything"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("verify error = %v, want ErrNoSecret", err)
	}
}

func TestMiddleware(t *testing.T) {
	s := NewService("test-secret", time.Hour)

	var gotOwner string
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOwner = OwnerID(r.Context())
	}))

	token, err := s.IssueToken("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantOwner  string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "alice"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"bad token", "Bearer garbage", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotOwner = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/tasks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotOwner != tt.wantOwner {
				t.Errorf("owner = %q, want %q", gotOwner, tt.wantOwner)
			}
		})
	}
}
