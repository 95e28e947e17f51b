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

// GeminiAdapter speaks Google's Gemini generateContent API: a
// contents[]/parts[] wire shape, with no native system role (prepended
// into the first user turn instead) and credential passed as a URL query
// parameter rather than a header.
type GeminiAdapter struct {
	name        string
	baseURL     string
	textModel   string
	visionModel string
	auth        CredentialApplier
	httpClient  *http.Client
	maxRetries  int
}

func NewGeminiAdapter(cfg Config) *GeminiAdapter {
	return &GeminiAdapter{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
		auth:        NewQueryParamKeyAuth(cfg.Credential, "key"),
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

func (g *GeminiAdapter) Name() string { return g.name }

func (g *GeminiAdapter) SupportsVision() bool { return g.visionModel != "" }

type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// convertMessages maps the neutral message list into Gemini's
// contents/parts shape. Gemini has no system role: a system message is
// prepended into the first user turn's text, or becomes a synthetic user
// turn if no user message exists.
func convertMessages(messages []Message) []geminiContent {
	var system string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}

	contents := make([]geminiContent, 0, len(rest)+1)
	prepended := false
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		text := m.Content
		if !prepended && system != "" && role == "user" {
			text = system + "\n\n" + text
			prepended = true
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: text}}})
	}

	if !prepended && system != "" {
		contents = append([]geminiContent{{Role: "user", Parts: []geminiPart{{Text: system}}}}, contents...)
	}

	return contents
}

func (g *GeminiAdapter) CompleteText(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return withRetry(ctx, g.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		model := g.textModel
		if req.Model != "" {
			model = req.Model
		}

		body := geminiGenerateRequest{
			Contents: convertMessages(req.Messages),
			GenerationConfig: geminiGenerationConfig{
				Temperature:     req.Temperature,
				MaxOutputTokens: req.MaxTokens,
			},
		}
		return g.send(ctx, model, body)
	})
}

func (g *GeminiAdapter) CompleteVision(ctx context.Context, req VisionRequest) (CompletionResult, error) {
	if !g.SupportsVision() {
		return CompletionResult{}, newTypedError(g.name, KindFatal, "vision requested but no vision model configured", nil)
	}
	return withRetry(ctx, g.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		model := g.visionModel
		if req.Model != "" {
			model = req.Model
		}
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		body := geminiGenerateRequest{
			Contents: []geminiContent{{
				Role: "user",
				Parts: []geminiPart{
					{Text: req.Prompt},
					{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: encoded}},
				},
			}},
			GenerationConfig: geminiGenerationConfig{
				Temperature:     req.Temperature,
				MaxOutputTokens: req.MaxTokens,
			},
		}
		return g.send(ctx, model, body)
	})
}

func (g *GeminiAdapter) send(ctx context.Context, model string, payload geminiGenerateRequest) (CompletionResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, newTypedError(g.name, KindFatal, "failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
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

	var parsed geminiGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, "failed to parse response body", err)
	}
	if parsed.Error != nil {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, parsed.Error.Message, nil)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 || parsed.Candidates[0].Content.Parts[0].Text == "" {
		return CompletionResult{}, newTypedError(g.name, KindBadResponse, "empty completion", nil)
	}

	result := CompletionResult{Text: parsed.Candidates[0].Content.Parts[0].Text, Model: model}
	if parsed.UsageMetadata != nil {
		result.TokensIn = parsed.UsageMetadata.PromptTokenCount
		result.TokensOut = parsed.UsageMetadata.CandidatesTokenCount
	}
	return result, nil
}

func (g *GeminiAdapter) Health(ctx context.Context) error {
	body := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: "test"}}}},
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: 5,
		},
	}
	_, err := g.send(ctx, g.textModel, body)
	if err != nil {
		return fmt.Errorf("gemini health probe failed: %w", err)
	}
	return nil
}
