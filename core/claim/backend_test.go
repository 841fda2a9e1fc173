package claim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/unihub/campus/core"
)

func TestBackendClient_SetAdminClaim(t *testing.T) {
	var gotPath, gotUID string
	status := http.StatusOK
	reply := ""

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body struct {
			UID string `json:"uid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		gotUID = body.UID
		w.WriteHeader(status)
		if reply != "" {
			w.Write([]byte(reply))
		}
	}))
	defer srv.Close()

	client := NewBackendClient(core.ClaimSyncConfig{BackendURL: srv.URL, CallTimeout: 10 * time.Second})
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		if err := client.SetAdminClaim(ctx, "a1"); err != nil {
			t.Fatalf("SetAdminClaim() error = %v", err)
		}
		if gotPath != "/auth/set-admin-claim" {
			t.Errorf("path = %s, want /auth/set-admin-claim", gotPath)
		}
		if gotUID != "a1" {
			t.Errorf("uid = %s, want a1", gotUID)
		}
	})

	t.Run("error message surfaced", func(t *testing.T) {
		status = http.StatusForbidden
		reply = `{"message":"user must have admin role to receive admin claims"}`
		err := client.SetAdminClaim(ctx, "s1")
		if err == nil {
			t.Fatal("SetAdminClaim() error = nil, want forbidden")
		}
		if !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "admin role") {
			t.Errorf("error = %v, want code and backend message", err)
		}
	})

	t.Run("non-json failure body", func(t *testing.T) {
		status = http.StatusBadGateway
		reply = "upstream exploded"
		err := client.SetAdminClaim(ctx, "a1")
		if err == nil {
			t.Fatal("SetAdminClaim() error = nil, want bad gateway")
		}
		if !strings.Contains(err.Error(), http.StatusText(http.StatusBadGateway)) {
			t.Errorf("error = %v, want status text fallback", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		if err := client.SetAdminClaim(cancelled, "a1"); err == nil {
			t.Error("SetAdminClaim() error = nil, want context error")
		}
	})
}
