package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/validate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body["access_token"] {
		case "good":
			_ = json.NewEncoder(w).Encode(ValidateResponse{UserID: "7", Roles: []string{"admin"}})
		case "anonymous":
			_ = json.NewEncoder(w).Encode(ValidateResponse{})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"expired"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestValidateToken(t *testing.T) {
	srv := newAuthServer(t)
	client := NewAuthServiceClient(srv.URL, "svc-token")

	tests := []struct {
		name    string
		token   string
		wantErr bool
		wantID  string
	}{
		{"valid", "good", false, "7"},
		{"rejected", "expired", true, ""},
		{"no user", "anonymous", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.ValidateToken(context.Background(), tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if resp.UserID != tt.wantID || len(resp.Roles) != 1 {
				t.Errorf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestValidateTokenWrongServiceToken(t *testing.T) {
	srv := newAuthServer(t)
	client := NewAuthServiceClient(srv.URL, "other")
	if _, err := client.ValidateToken(context.Background(), "good"); err == nil {
		t.Fatal("expected error with wrong service token")
	}
}
