package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GroqAdapter speaks the Groq chat-completions API, which is
// OpenAI-shaped: POST {baseURL}/chat/completions with a bearer token.
type GroqAdapter struct {
	name        string
	baseURL     string
	textModel   string
	visionModel string
	auth        CredentialApplier
	httpClient  *http.Client
	maxRetries  int
}

func NewGroqAdapter(cfg Config) *GroqAdapter {
	return &GroqAdapter{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		auth:        NewBearerKeyAuth(cfg.Credential),
		maxRetries:  cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout * float64(time.Second)),
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (g *GroqAdapter) Name() string { return g.name }

func (g *GroqAdapter) SupportsVision() bool { return g.visionModel != "" }

type groqChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type groqChatRequest struct {
	Model       string             `json:"model"`
	Messages    []groqChatMessage  `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GroqAdapter) CompleteText(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return withRetry(ctx, g.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		return g.completeOnce(ctx, req)
	})
}

func (g *GroqAdapter) completeOnce(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	model := g.textModel
	if req.Model != "" {
		model = req.Model
	}

	msgs := make([]groqChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, groqChatMessage{Role: string(m.Role), Content: m.Content})
	}

	body := groqChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	return g.send(ctx, "/chat/completions", model, body)
}

func (g *GroqAdapter) CompleteVision(ctx context.Context, req VisionRequest) (CompletionResult, error) {
	if !g.SupportsVision() {
		return CompletionResult{}, newTypedError(g.name, KindFatal, "vision requested but no vision model configured", nil)
	}
	return withRetry(ctx, g.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		content := []map[string]any{
			{"type": "text", "text": req.Prompt},
			{"type": "image_url", "image_url": map[string]string{
				"url": "data:image/jpeg;base64," + encoded,
			}},
		}
		model := g.visionModel
		if req.Model != "" {
			model = req.Model
		}
		body := groqChatRequest{
			Model:       model,
			Messages:    []groqChatMessage{{Role: "user", Content: content}},
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}
		return g.send(ctx, "/chat/completions", model, body)
	})
}

func (g *GroqAdapter) send(ctx context.Context, path, model string, payload any) (CompletionResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, newTypedError(g.name, KindFatal, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return CompletionResult{}, newTypedError(g.name, KindFatal, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	g.auth.Apply(httpReq)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, newTypedError(g.name, KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, newTypedError(g.name, KindTransport, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResult{}, classifyHTTPStatus(g.name, resp.StatusCode, respBody)
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, "failed to parse response body", err)
	}
	if parsed.Error != nil {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, "empty completion", nil)
	}

	result := CompletionResult{Text: parsed.Choices[0].Message.Content, Model: model}
	if parsed.Usage != nil {
		result.TokensIn = parsed.Usage.PromptTokens
		result.TokensOut = parsed.Usage.CompletionTokens
	}
	return result, nil
}

func (g *GroqAdapter) Health(ctx context.Context) error {
	body := groqChatRequest{
		Model:     g.textModel,
		Messages:  []groqChatMessage{{Role: "user", Content: "test"}},
		MaxTokens: 5,
	}
	_, err := g.send(ctx, "/chat/completions", g.textModel, body)
	if err != nil {
		return fmt.Errorf("groq health probe failed: %w", err)
	}
	return nil
}
