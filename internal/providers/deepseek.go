package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// codeIndicators is the fixed keyword set used to detect that a prompt's
// body is source code, so DeepSeek can route to its code-specialized
// model even when the caller didn't pass documentType == "code".
var codeIndicators = []string{
	"function", "class", "import", "def ", "var ", "let ", "const ",
	"public ", "private ", "static ", "void ", "int ", "string ",
	"#!/", "<?php", "<html>", "<script>",
	"select ", "insert ", "create table",
	"git ", "npm ", "pip ", "docker ", "kubernetes",
	"```", "console.log", "print(", "system.out", "printf(",
	"malloc", "free", "struct ", "typedef ", "#include", "#define",
}

// detectCodeDocument reports whether the joined, lowercased content of the
// non-system messages contains at least two code indicators. The system
// turn carries fixed instructions, not the document, so it is skipped.
func detectCodeDocument(messages []Message) bool {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	lower := strings.ToLower(sb.String())

	matches := 0
	for _, ind := range codeIndicators {
		if strings.Contains(lower, ind) {
			matches++
			if matches >= 2 {
				return true
			}
		}
	}
	return false
}

// DeepSeekAdapter speaks DeepSeek's OpenAI-shaped chat-completions API,
// switching between a general text model and "deepseek-coder" when the
// document is detected as code.
type DeepSeekAdapter struct {
	name        string
	baseURL     string
	textModel   string
	coderModel  string
	visionModel string
	auth        CredentialApplier
	httpClient  *http.Client
	maxRetries  int
}

func NewDeepSeekAdapter(cfg Config) *DeepSeekAdapter {
	return &DeepSeekAdapter{
		name:        cfg.Name,
		baseURL:     cfg.BaseURL,
		textModel:   cfg.TextModel,
		coderModel:  "deepseek-coder",
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

func (d *DeepSeekAdapter) Name() string { return d.name }

// SupportsVision is always false: DeepSeek has no vision model in this
// core's routing table.
func (d *DeepSeekAdapter) SupportsVision() bool { return false }

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekChatRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type deepseekChatResponse struct {
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

func (d *DeepSeekAdapter) CompleteText(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	return withRetry(ctx, d.maxRetries, func(ctx context.Context) (CompletionResult, error) {
		model := d.textModel
		if req.Model != "" {
			model = req.Model
		} else if req.DocumentType == "code" || detectCodeDocument(req.Messages) {
			model = d.coderModel
		}

		msgs := make([]deepseekMessage, 0, len(req.Messages))
		for _, m := range req.Messages {
			msgs = append(msgs, deepseekMessage{Role: string(m.Role), Content: m.Content})
		}

		body := deepseekChatRequest{
			Model:       model,
			Messages:    msgs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		}
		return d.send(ctx, model, body)
	})
}

func (d *DeepSeekAdapter) send(ctx context.Context, model string, payload deepseekChatRequest) (CompletionResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, newTypedError(d.name, KindFatal, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return CompletionResult{}, newTypedError(d.name, KindFatal, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	d.auth.Apply(httpReq)

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, newTypedError(d.name, KindTransport, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, newTypedError(d.name, KindTransport, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CompletionResult{}, classifyHTTPStatus(d.name, resp.StatusCode, respBody)
	}

	var parsed deepseekChatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return CompletionResult{}, newTypedError(d.name, KindBadResponse, "failed to parse response body", err)
	}
	if parsed.Error != nil {
		return CompletionResult{}, newTypedError(d.name, KindBadResponse, parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return CompletionResult{}, newTypedError(d.name, KindBadResponse, "empty completion", nil)
	}

	result := CompletionResult{Text: parsed.Choices[0].Message.Content, Model: model}
	if parsed.Usage != nil {
		result.TokensIn = parsed.Usage.PromptTokens
		result.TokensOut = parsed.Usage.CompletionTokens
	}
	return result, nil
}

func (d *DeepSeekAdapter) Health(ctx context.Context) error {
	body := deepseekChatRequest{
		Model:     d.textModel,
		Messages:  []deepseekMessage{{Role: "user", Content: "test"}},
		MaxTokens: 5,
	}
	_, err := d.send(ctx, d.textModel, body)
	if err != nil {
		return fmt.Errorf("deepseek health probe failed: %w", err)
	}
	return nil
}
