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

func newLocalLLMTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *LocalLLMAdapter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter := NewLocalLLMAdapter(Config{
		Name:        "localllm",
		BaseURL:     srv.URL,
		TextModel:   "local-text",
		VisionModel: "local-vision",
		Timeout:     5,
		MaxRetries:  0,
	})
	return srv, adapter
}

func TestLocalLLMRequiresNoCredential(t *testing.T) {
	_, adapter := newLocalLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("key"))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(localChatResponse{
			Message: struct {
				Content string `json:"content"`
			}{Content: "fixed"},
		})
	})

	out, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.Text)
	assert.Equal(t, "local-text", out.Model)
}

func TestLocalLLMStreamIsAlwaysDisabled(t *testing.T) {
	_, adapter := newLocalLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body localChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.False(t, body.Stream)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(localChatResponse{
			Message: struct {
				Content string `json:"content"`
			}{Content: "fixed"},
		})
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	require.NoError(t, err)
}

func TestLocalLLMBadResponseParsesErrorField(t *testing.T) {
	_, adapter := newLocalLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	})

	_, err := adapter.CompleteText(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "fix this"}},
	})
	te, ok := AsTypedError(err)
	require.True(t, ok)
	assert.Equal(t, KindBadResponse, te.Kind)
	assert.Contains(t, te.Message, "model not loaded")
}

func TestLocalLLMVisionEmbedsImages(t *testing.T) {
	_, adapter := newLocalLLMTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		msgs := raw["messages"].([]any)
		content := msgs[0].(map[string]any)["content"].(map[string]any)
		images := content["images"].([]any)
		require.Len(t, images, 1)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(localChatResponse{
			Message: struct {
				Content string `json:"content"`
			}{Content: "described"},
		})
	})

	out, err := adapter.CompleteVision(context.Background(), VisionRequest{Prompt: "describe", Image: []byte("imgbytes")})
	require.NoError(t, err)
	assert.Equal(t, "described", out.Text)
	assert.Equal(t, "local-vision", out.Model)
}
