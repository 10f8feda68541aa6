package faceclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedSkipModeIsDeterministic(t *testing.T) {
	c := New("", true)
	ctx := context.Background()

	a1, err := c.Embed(ctx, "https://img/ada.jpg")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	a2, err := c.Embed(ctx, "https://img/ada.jpg")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, err := c.Embed(ctx, "https://img/grace.jpg")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	if len(a1) == 0 {
		t.Fatal("skip-mode embedding should not be empty")
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatal("same URL should map to the same embedding")
		}
	}
	same := true
	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different URLs should map to different embeddings")
	}
}

func TestLivenessSkipMode(t *testing.T) {
	c := New("", true)
	res, err := c.Liveness(context.Background(), "https://img/ada.jpg")
	if err != nil {
		t.Fatalf("liveness failed: %v", err)
	}
	if !res.IsLive {
		t.Fatal("skip mode should report live so dev flows keep working")
	}
}

func TestLivenessReportsSpoof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/liveness" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			ImageURL string `json:"image_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImageURL == "" {
			t.Errorf("malformed liveness request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"is_live":    false,
			"confidence": 0.12,
			"checks":     map[string]any{"moire": true},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	res, err := c.Liveness(context.Background(), "https://img/printout.jpg")
	if err != nil {
		t.Fatalf("liveness failed: %v", err)
	}
	if res.IsLive {
		t.Fatal("spoofed sample should not report live")
	}
	if res.Confidence != 0.12 {
		t.Fatalf("expected confidence 0.12, got %g", res.Confidence)
	}
}

func TestLivenessServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, false)
	if _, err := c.Liveness(context.Background(), "https://img/ada.jpg"); err == nil {
		t.Fatal("service error should surface")
	}
}
