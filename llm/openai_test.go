package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExplain(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  A large area drives the price up.  "}},
			},
		})
	}))
	defer server.Close()

	explainer := NewOpenAIExplainer("test-key", "gpt-4o-mini", 5*time.Second, 300)
	explainer.SetBaseURL(server.URL)

	text, err := explainer.Explain(context.Background(), 120, 3, 4.5, 350000.12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "A large area drives the price up." {
		t.Fatalf("unexpected explanation: %q", text)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestExplainAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded"},
		})
	}))
	defer server.Close()

	explainer := NewOpenAIExplainer("test-key", "", 5*time.Second, 0)
	explainer.SetBaseURL(server.URL)

	_, err := explainer.Explain(context.Background(), 120, 3, 4.5, 350000.12)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "openai api error: rate limit exceeded" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExplainRequiresAPIKey(t *testing.T) {
	explainer := NewOpenAIExplainer("", "gpt-4o-mini", time.Second, 0)
	if _, err := explainer.Explain(context.Background(), 1, 1, 1, 1); err == nil {
		t.Fatal("expected error without api key")
	}
}

type countingExplainer struct {
	calls int
	text  string
	err   error
}

func (c *countingExplainer) Explain(ctx context.Context, area float64, rooms int, distance, price float64) (string, error) {
	c.calls++
	return c.text, c.err
}

func TestCachedExplainerReusesNarration(t *testing.T) {
	inner := &countingExplainer{text: "cheap because it is far away"}
	cached, err := NewCachedExplainer(inner, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		text, err := cached.Explain(context.Background(), 60, 1, 30, 90000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != inner.text {
			t.Fatalf("unexpected text: %q", text)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", inner.calls)
	}

	// A different feature vector misses the cache.
	if _, err := cached.Explain(context.Background(), 120, 3, 4, 350000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", inner.calls)
	}
}

func TestCachedExplainerDoesNotCacheFailures(t *testing.T) {
	inner := &countingExplainer{err: errors.New("boom")}
	cached, err := NewCachedExplainer(inner, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := cached.Explain(context.Background(), 1, 1, 1, 1); err == nil {
			t.Fatal("expected error")
		}
	}
	if inner.calls != 2 {
		t.Fatalf("failures must not be cached, got %d calls", inner.calls)
	}
}
