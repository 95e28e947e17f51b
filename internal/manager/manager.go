// Package manager implements provider selection, fallback, and cooldown
// bookkeeping on top of a registry.Registry.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"textenhancer/internal/logging"
	"textenhancer/internal/providers"
	"textenhancer/internal/registry"
)

const (
	defaultQuotaCooldown     = time.Hour
	defaultRateCooldown      = 60 * time.Second
	defaultTransientCooldown = 5 * time.Minute
	defaultHealthInterval    = 10 * time.Minute
)

// Outcome is the Manager's single caller-visible result shape: exactly
// one of Success, AllFailed, or Cancelled is true.
type Outcome struct {
	Success      bool
	Cancelled    bool
	ProviderName string
	ModelName    string
	ResponseText string
	Latency      time.Duration
	TokensIn     int
	TokensOut    int
	// FallbackOccurred is true when at least one candidate ahead of
	// ProviderName in the walk failed before ProviderName succeeded.
	FallbackOccurred bool
	// AllFailedCauses summarizes, per attempted provider, why it failed.
	// Only populated when neither Success nor Cancelled.
	AllFailedCauses map[string]string
}

// Manager walks a Registry's eligible adapters in priority/sticky order,
// attempting each in turn and recording TypedError outcomes as Status
// cooldowns.
type Manager struct {
	reg       *registry.Registry
	log       *logging.Logger
	preferred atomic.Pointer[string]

	quotaCooldown     time.Duration
	rateCooldown      time.Duration
	transientCooldown time.Duration
	healthInterval    time.Duration

	stopHealth chan struct{}
}

// Option configures non-default cooldown/interval values; used mainly by
// tests that want a faster health-refresh tick.
type Option func(*Manager)

func WithQuotaCooldown(d time.Duration) Option     { return func(m *Manager) { m.quotaCooldown = d } }
func WithRateCooldown(d time.Duration) Option      { return func(m *Manager) { m.rateCooldown = d } }
func WithTransientCooldown(d time.Duration) Option { return func(m *Manager) { m.transientCooldown = d } }
func WithHealthInterval(d time.Duration) Option    { return func(m *Manager) { m.healthInterval = d } }

func New(reg *registry.Registry, log *logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		reg:               reg,
		log:               log,
		quotaCooldown:     defaultQuotaCooldown,
		rateCooldown:      defaultRateCooldown,
		transientCooldown: defaultTransientCooldown,
		healthInterval:    defaultHealthInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnhanceParams is the Manager's request shape, passed through from the
// Orchestrator after prompt rendering.
type EnhanceParams struct {
	Messages     []providers.Message
	DocumentType string
	Image        []byte
	PreferVision bool
	VisionPrompt string
}

// Enhance runs the selection algorithm: build the eligible list, move the
// sticky preferred provider (if any) to the front or sort by priority,
// partition vision-capable adapters first when vision is preferred and an
// image is present, then walk the list attempting each adapter in turn.
func (m *Manager) Enhance(ctx context.Context, params EnhanceParams) Outcome {
	now := time.Now()
	candidates := m.buildOrder(now, params.PreferVision && len(params.Image) > 0)

	if len(candidates) == 0 {
		return Outcome{AllFailedCauses: map[string]string{"_": "no providers available"}}
	}

	causes := make(map[string]string, len(candidates))

	for _, c := range candidates {
		select {
		case <-ctx.Done():
			return Outcome{Cancelled: true}
		default:
		}

		start := time.Now()
		res, err := m.attempt(ctx, c.Adapter, params)
		latency := time.Since(start)

		if err == nil {
			m.onSuccess(c.Adapter.Name(), latency)
			return Outcome{
				Success:          true,
				ProviderName:     c.Adapter.Name(),
				ModelName:        res.Model,
				ResponseText:     res.Text,
				Latency:          latency,
				TokensIn:         res.TokensIn,
				TokensOut:        res.TokensOut,
				FallbackOccurred: len(causes) > 0,
			}
		}

		if ctx.Err() != nil {
			return Outcome{Cancelled: true}
		}

		te, ok := providers.AsTypedError(err)
		if !ok {
			causes[c.Adapter.Name()] = err.Error()
			continue
		}
		causes[c.Adapter.Name()] = te.Kind.String() + ": " + te.Message
		m.onFailure(c.Adapter.Name(), te, latency)
	}

	return Outcome{AllFailedCauses: causes}
}

func (m *Manager) attempt(ctx context.Context, adapter providers.Adapter, params EnhanceParams) (providers.CompletionResult, error) {
	if len(params.Image) > 0 && adapter.SupportsVision() {
		va, ok := adapter.(providers.VisionAdapter)
		if !ok {
			return providers.CompletionResult{}, fmt.Errorf("adapter %s claims vision support but does not implement VisionAdapter", adapter.Name())
		}
		prompt := params.VisionPrompt
		if prompt == "" && len(params.Messages) > 0 {
			prompt = params.Messages[len(params.Messages)-1].Content
		}
		return va.CompleteVision(ctx, providers.VisionRequest{Prompt: prompt, Image: params.Image})
	}

	return adapter.CompleteText(ctx, providers.CompletionRequest{
		Messages:     params.Messages,
		DocumentType: params.DocumentType,
	})
}

func (m *Manager) buildOrder(now time.Time, visionFirst bool) []struct {
	Adapter providers.Adapter
	Status  registry.Status
} {
	eligible := m.reg.Eligible(now)

	preferred := m.preferred.Load()
	if preferred != nil {
		for i, c := range eligible {
			if c.Adapter.Name() == *preferred {
				reordered := make([]struct {
					Adapter providers.Adapter
					Status  registry.Status
				}, 0, len(eligible))
				reordered = append(reordered, c)
				reordered = append(reordered, eligible[:i]...)
				reordered = append(reordered, eligible[i+1:]...)
				eligible = reordered
				break
			}
		}
	}

	if !visionFirst {
		return eligible
	}

	visionCapable := make([]struct {
		Adapter providers.Adapter
		Status  registry.Status
	}, 0, len(eligible))
	rest := make([]struct {
		Adapter providers.Adapter
		Status  registry.Status
	}, 0, len(eligible))
	for _, c := range eligible {
		if c.Adapter.SupportsVision() {
			visionCapable = append(visionCapable, c)
		} else {
			rest = append(rest, c)
		}
	}
	return append(visionCapable, rest...)
}

func (m *Manager) onSuccess(name string, latency time.Duration) {
	m.reg.Update(name, registry.Status{
		Name:           name,
		Available:      true,
		LastCheckedAt:  time.Now(),
		LastLatency:    latency,
		LastErrorCause: registry.CauseNone,
		Priority:       m.priorityOf(name),
		SupportsVision: m.visionOf(name),
	})
	preferred := name
	m.preferred.Store(&preferred)
}

func (m *Manager) onFailure(name string, te *providers.TypedError, latency time.Duration) {
	cause := registry.FromErrorKind(te.Kind)

	var cooldownUntil time.Time
	now := time.Now()
	switch te.Kind {
	case providers.KindQuotaExceeded:
		cooldownUntil = now.Add(m.quotaCooldown)
	case providers.KindRateLimited:
		if te.RetryAfter > 0 {
			cooldownUntil = now.Add(time.Duration(te.RetryAfter * float64(time.Second)))
		} else {
			cooldownUntil = now.Add(m.rateCooldown)
		}
	case providers.KindTransport, providers.KindBadResponse:
		cooldownUntil = now.Add(m.transientCooldown)
	case providers.KindInvalidAuth, providers.KindFatal:
		cooldownUntil = now.Add(100 * 365 * 24 * time.Hour) // effectively disabled for the session
	}

	m.reg.Update(name, registry.Status{
		Name:           name,
		Available:      false,
		LastCheckedAt:  now,
		LastLatency:    latency,
		LastErrorCause: cause,
		CooldownUntil:  cooldownUntil,
		Priority:       m.priorityOf(name),
		SupportsVision: m.visionOf(name),
	})

	if preferred := m.preferred.Load(); preferred != nil && *preferred == name {
		m.preferred.Store(nil)
	}
	if m.log != nil {
		m.log.Warn("provider marked unavailable", "provider", name, "cause", cause.String())
	}
}

// ProviderCount returns the number of registered providers, used by the
// Orchestrator to bound its own soft-validation retry loop.
func (m *Manager) ProviderCount() int {
	return len(m.reg.Names())
}

// MarkValidationFailure records a non-transport, non-vendor failure
// against a provider that returned a response the Orchestrator's own
// validation rejected (echoed prompt, runaway length, missing
// language-specific tone marks). Treated like a BadResponse TypedError
// for cooldown and sticky-preferred bookkeeping purposes.
func (m *Manager) MarkValidationFailure(name string, reason string, latency time.Duration) {
	m.onFailure(name, &providers.TypedError{
		Kind:     providers.KindBadResponse,
		Provider: name,
		Message:  reason,
	}, latency)
}

func (m *Manager) priorityOf(name string) int {
	for _, e := range m.reg.ByPriority() {
		if e.Adapter.Name() == name {
			return e.Status.Priority
		}
	}
	return 0
}

func (m *Manager) visionOf(name string) bool {
	if a, ok := m.reg.Adapter(name); ok {
		return a.SupportsVision()
	}
	return false
}

// StartHealthRefresh launches a ticker-loop worker that probes every
// adapter whose cooldown has expired or is within one tick of expiring,
// so the next Enhance call sees fresh eligibility without a trial call.
// Stop via StopHealthRefresh.
func (m *Manager) StartHealthRefresh(ctx context.Context) {
	m.stopHealth = make(chan struct{})
	ticker := time.NewTicker(m.healthInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopHealth:
				return
			case <-ticker.C:
				m.refreshOnce(ctx)
			}
		}
	}()
}

func (m *Manager) StopHealthRefresh() {
	if m.stopHealth != nil {
		close(m.stopHealth)
	}
}

func (m *Manager) refreshOnce(ctx context.Context) {
	now := time.Now()
	horizon := now.Add(m.healthInterval)

	for _, e := range m.reg.ByPriority() {
		due := e.Status.CooldownUntil.IsZero() || e.Status.CooldownUntil.Before(horizon)
		if e.Status.Available && due {
			continue // already healthy, nothing to refresh
		}
		if !due {
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := e.Adapter.Health(probeCtx)
		cancel()

		if err == nil {
			m.reg.Update(e.Adapter.Name(), registry.Status{
				Name:           e.Adapter.Name(),
				Available:      true,
				LastCheckedAt:  time.Now(),
				LastErrorCause: registry.CauseNone,
				Priority:       e.Status.Priority,
				SupportsVision: e.Status.SupportsVision,
			})
			if m.log != nil {
				m.log.Info("provider health restored", "provider", e.Adapter.Name())
			}
			continue
		}

		if m.log != nil {
			m.log.Debug("provider health probe still failing", "provider", e.Adapter.Name(), "error", errDetail(err))
		}
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}
