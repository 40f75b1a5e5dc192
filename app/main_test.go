package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eventsCatalog/internal/transport/httpServer/middleware"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILEPATH", "")
	t.Setenv("CONFIG_FILENAME", "")
	t.Setenv("ENV", "test")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommandIssuesAdminToken(t *testing.T) {
	t.Setenv("HTTP_SECRET", "s3cret")

	out, err := execute(t, "token", "--user", "alice", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	token := strings.TrimSpace(out)
	if token == "" {
		t.Fatal("empty token")
	}

	var user string
	h := middleware.JWTAuth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = middleware.UserFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || user != "alice" {
		t.Fatalf("status = %d user = %q", rec.Code, user)
	}
}

func TestTokenCommandRejectsBadTTL(t *testing.T) {
	if _, err := execute(t, "token", "--user", "bob", "--ttl", "soon"); err == nil {
		t.Fatal("want error for invalid ttl")
	}
}

func TestMigrateRefusesMemoryDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "memory")
	if _, err := execute(t, "migrate"); err == nil || !strings.Contains(err.Error(), "memory") {
		t.Fatalf("err = %v", err)
	}
}
