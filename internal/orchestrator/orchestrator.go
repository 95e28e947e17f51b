package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"textenhancer/internal/logging"
	"textenhancer/internal/manager"
	"textenhancer/internal/providers"
)

// Config carries the master switches the Orchestrator reads once at
// construction, mirroring config.EnhancementConfig without importing the
// config package directly (keeps orchestrator dependency-light and
// testable with literal structs).
type Config struct {
	Enabled                bool
	UseVisionWhenAvailable bool
}

// Orchestrator renders prompts, dispatches them through a Manager, and
// validates + tags the response before returning an EnhancementResult.
// It never panics and never returns an error: every failure mode is
// folded into the returned EnhancementResult, per the two-layered
// propagation design (adapters classify, the Manager records, the
// Orchestrator only observes outcomes).
type Orchestrator struct {
	mgr  *manager.Manager
	log  *logging.Logger
	cfg  Config
	sink logging.Sink
}

func New(mgr *manager.Manager, log *logging.Logger, cfg Config, sink logging.Sink) *Orchestrator {
	if sink == nil {
		sink = logging.NewNoopSink()
	}
	return &Orchestrator{mgr: mgr, log: log, cfg: cfg, sink: sink}
}

// Enhance is the Orchestrator's single public operation.
func (o *Orchestrator) Enhance(ctx context.Context, req EnhancementRequest) EnhancementResult {
	start := time.Now()
	requestID := uuid.NewString()

	if req.AlreadyEnhanced {
		return o.finish(start, requestID, EnhancementResult{
			OriginalText: req.Text,
			DocumentType: req.DocumentType,
			ErrorMessage: "request already enhanced upstream; skipping a second pass",
		})
	}

	if !o.cfg.Enabled {
		return o.finish(start, requestID, EnhancementResult{
			OriginalText: req.Text,
			DocumentType: req.DocumentType,
		})
	}

	dt := req.DocumentType
	fallbackFromClassification := false
	if dt == "" || dt == DocumentUnknown {
		dt = classify(req.Text)
		fallbackFromClassification = true
	}

	tmpl, usedGeneralFallback := lookupTemplate(dt)
	preamble := renderPreamble(tmpl, req.TargetLanguage)
	body := renderBody(tmpl, req.Text)

	params := manager.EnhanceParams{
		Messages:     buildMessages(preamble, body),
		DocumentType: string(dt),
		Image:        req.Image,
		PreferVision: req.PreferVision && o.cfg.UseVisionWhenAvailable,
		VisionPrompt: visionPromptFor(req.TargetLanguage),
	}

	maxAttempts := o.mgr.ProviderCount()
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastOutcome manager.Outcome
	var lastInvalidReason string

	for attempt := 0; attempt < maxAttempts; attempt++ {
		outcome := o.mgr.Enhance(ctx, params)
		lastOutcome = outcome

		if outcome.Cancelled {
			return o.finish(start, requestID, EnhancementResult{
				OriginalText: req.Text,
				DocumentType: dt,
				ErrorMessage: "cancelled",
			})
		}

		if !outcome.Success {
			break
		}

		trimmed := strings.TrimSpace(outcome.ResponseText)
		if ok, reason := validateResponse(trimmed, body, req.Text, req.TargetLanguage); !ok {
			lastInvalidReason = reason
			if o.log != nil {
				o.log.Warn("response failed validation, trying next provider", "provider", outcome.ProviderName, "reason", reason)
			}
			o.mgr.MarkValidationFailure(outcome.ProviderName, reason, outcome.Latency)
			continue
		}

		result := EnhancementResult{
			OriginalText:     req.Text,
			EnhancedText:     &trimmed,
			DocumentType:     dt,
			ProviderUsed:     outcome.ProviderName,
			ModelUsed:        outcome.ModelName,
			TokensIn:         outcome.TokensIn,
			TokensOut:        outcome.TokensOut,
			FallbackOccurred: outcome.FallbackOccurred || attempt > 0,
			Improvements:     detectImprovements(req.Text, trimmed),
		}
		if fallbackFromClassification || usedGeneralFallback {
			result.ErrorMessage = classificationNote(fallbackFromClassification, usedGeneralFallback, dt)
		}
		return o.finish(start, requestID, result)
	}

	errMsg := summarizeFailure(lastOutcome, lastInvalidReason)
	return o.finish(start, requestID, EnhancementResult{
		OriginalText:     req.Text,
		DocumentType:     dt,
		FallbackOccurred: true,
		ErrorMessage:     errMsg,
	})
}

func (o *Orchestrator) finish(start time.Time, requestID string, result EnhancementResult) EnhancementResult {
	result.ElapsedMs = time.Since(start).Milliseconds()

	rec := &logging.AuditRecord{
		Timestamp:        start,
		RequestID:        requestID,
		DocumentType:     string(result.DocumentType),
		ProviderUsed:     result.ProviderUsed,
		ModelUsed:        result.ModelUsed,
		ElapsedMs:        result.ElapsedMs,
		FallbackOccurred: result.FallbackOccurred,
		Improvements:     result.Improvements,
		Error:            result.ErrorMessage,
	}
	if err := o.sink.Enqueue(rec); err != nil && o.log != nil {
		o.log.Debug("audit sink enqueue failed", "error", err.Error())
	}
	return result
}

// buildMessages constructs the neutral two-turn conversation: one system
// turn carrying the template preamble, one user turn carrying the
// rendered body.
func buildMessages(preamble, body string) []providers.Message {
	return []providers.Message{
		{Role: providers.RoleSystem, Content: preamble},
		{Role: providers.RoleUser, Content: body},
	}
}

func classificationNote(classified, usedGeneralFallback bool, dt DocumentType) string {
	switch {
	case classified && usedGeneralFallback:
		return fmt.Sprintf("documentType classified as %s; no catalog entry, used general template", dt)
	case classified:
		return fmt.Sprintf("documentType classified as %s", dt)
	case usedGeneralFallback:
		return fmt.Sprintf("no catalog entry for %s, used general template", dt)
	default:
		return ""
	}
}

func summarizeFailure(outcome manager.Outcome, lastInvalidReason string) string {
	var parts []string
	for name, cause := range outcome.AllFailedCauses {
		parts = append(parts, name+": "+cause)
	}
	if lastInvalidReason != "" {
		parts = append(parts, "validation: "+lastInvalidReason)
	}
	if len(parts) == 0 {
		return "no providers available"
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// validateResponse implements §4.4 step 6 plus the Vietnamese tone-mark
// soft-validation guard: non-empty, not an echo of the rendered prompt,
// bounded to 10x the input length, and (when targetLanguage is "vi")
// carries at least one tone-marked rune once long enough to expect one.
func validateResponse(enhanced, renderedBody, original, targetLanguage string) (bool, string) {
	if enhanced == "" {
		return false, "empty response from provider"
	}
	if strings.TrimSpace(enhanced) == strings.TrimSpace(renderedBody) {
		return false, "response echoed the prompt"
	}
	if len(original) > 0 && len(enhanced) > 10*len(original) {
		return false, "response exceeds 10x input length"
	}
	if targetLanguage == "vi" && len(enhanced) > 20 && !hasVietnameseTones(enhanced) {
		return false, "no Vietnamese tone marks detected"
	}
	return true, ""
}
