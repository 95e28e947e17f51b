package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGroqTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *GroqAdapter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := NewGroqAdapter(Config{
		Name:       "groq",
		BaseURL:    srv.URL,
		TextModel:  "llama-text",
		Credential: "test-key",
		Timeout:    5,
		MaxRetries: 0,
	})
	return srv, adapter
}

func TestGroqCompleteText(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(groqChatResponse{
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{{Message: struct {
				Content string `json:"content"`
			}{Content: "corrected text"}}},
		})
	})

	out, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "corrected text", out.Text)
	assert.Equal(t, "llama-text", out.Model)
}

func TestGroqClassifiesAuthError(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	require.Error(t, err)
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidAuth, te.Kind)
}

func TestGroqClassifiesQuotaVsRateOn403(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"daily quota exhausted"}}`))
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, te.Kind)
}

func TestGroqClassifiesRateLimit429(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindRateLimited, te.Kind)
}

func TestGroqVisionRequiresVisionModel(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("server should not be called")
	})

	_, err := adapter.CompleteVision(context.Background(), VisionRequest{Prompt: "describe", Image: []byte("x")})
	require.Error(t, err)
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindFatal, te.Kind)
}

func TestGroqEmptyCompletionIsBadResponse(t *testing.T) {
	_, adapter := newGroqTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindBadResponse, te.Kind)
}
