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

// LocalLLMAdapter speaks a locally hosted model server's chat endpoint.
// It needs no credential and has no quota or rate-limit concept: a local
// process can fail only on transport or bad-response grounds.
type LocalLLMAdapter struct {
	name        string
	baseURL     string
	textModel   string
	visionModel string
	httpClient  *http.Client
	maxRetries  int
}

func NewLocalLLMAdapter(cfg Config) *LocalLLMAdapter {
	return &LocalLLMAdapter{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
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

func (l *LocalLLMAdapter) Name() string { return l.name }

func (l *LocalLLMAdapter) SupportsVision() bool { return l.visionModel != "" }

type localChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type localChatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type localChatRequest struct {
	Model    string             `json:"model"`
	Messages []localChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  localChatOptions   `json:"options,omitempty"`
}

type localChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

func (l *LocalLLMAdapter) CompleteText(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return withRetry(ctx, l.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		model := l.textModel
		if req.Model != "" {
			model = req.Model
		}

		msgs := make([]localChatMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			msgs = append(msgs, localChatMessage{Role: string(m.Role), Content: m.Content})
		}

		body := localChatRequest{
			Model:    model,
			Messages: msgs,
			Options:  localChatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
		}
		return l.send(ctx, model, body)
	})
}

func (l *LocalLLMAdapter) CompleteVision(ctx context.Context, req VisionRequest) (CompletionResult, error) {
	if !l.SupportsVision() {
		return CompletionResult{}, newTypedError(l.name, KindFatal, "vision requested but no vision model configured", nil)
	}
	return withRetry(ctx, l.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		model := l.visionModel
		if req.Model != "" {
			model = req.Model
		}
		body := localChatRequest{
			Model: model,
			Messages: []localChatMessage{{
				Role:    "user",
				Content: req.Prompt,
				// images carried as a sibling field by most local servers;
				// embedded here via a combined content map instead of a
				// second struct field so the zero-image case stays plain text.
			}},
			Options: localChatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
		}
		body.Messages[0].Content = map[string]any{
			"text":   req.Prompt,
			"images": []string{encoded},
		}
		return l.send(ctx, model, body)
	})
}

func (l *LocalLLMAdapter) send(ctx context.Context, model string, payload localChatRequest) (CompletionResult, error) {
	payload.Stream = false

	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, newTypedError(l.name, KindFatal, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat", bytes.NewReader(raw))
	if err != nil {
		return CompletionResult{}, newTypedError(l.name, KindFatal, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, newTypedError(l.name, KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, newTypedError(l.name, KindTransport, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var parsed localChatResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Error != "" {
			return CompletionResult{}, newTypedError(l.name, KindBadResponse, parsed.Error, nil)
		}
		return CompletionResult{}, newTypedError(l.name, KindBadResponse, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}

	var parsed localChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResult{}, newTypedError(l.name, KindBadResponse, "failed to parse response body", err)
	}
	if parsed.Message.Content == "" {
		return CompletionResult{}, newTypedError(l.name, KindBadResponse, "empty completion", nil)
	}

	return CompletionResult{
		Text:      parsed.Message.Content,
		Model:     model,
		TokensIn:  parsed.PromptEvalCount,
		TokensOut: parsed.EvalCount,
	}, nil
}

func (l *LocalLLMAdapter) Health(ctx context.Context) error {
	body := localChatRequest{
		Model:    l.textModel,
		Messages: []localChatMessage{{Role: "user", Content: "test"}},
		Options:  localChatOptions{NumPredict: 5},
	}
	_, err := l.send(ctx, l.textModel, body)
	if err != nil {
		return fmt.Errorf("localllm health probe failed: %w", err)
	}
	return nil
}
