package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sendloka/sendloka/internal/idgen"
)

// Config holds the limiter defaults applied when no rule matches.
type Config struct {
	DefaultMaxRequests   int
	DefaultWindowSeconds int
	// ExemptEndpoints bypass rate limiting entirely (login, registration,
	// password reset, health checks, provider webhooks).
	ExemptEndpoints []string
	// CleanupInterval is how often stale counter states are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMaxRequests:   120,
		DefaultWindowSeconds: 60,
		ExemptEndpoints: []string{
			"/api/auth/login",
			"/api/auth/register",
			"/api/auth/password-reset",
			"/healthz",
			"/metrics",
			"/api/webhooks/*",
		},
		CleanupInterval: time.Minute,
	}
}

// counterState holds per-key algorithm state. Sliding window keeps hit
// timestamps; token bucket keeps a float token count.
type counterState struct {
	mu sync.Mutex

	hits []time.Time // sliding window

	tokens     float64 // token bucket
	lastRefill time.Time
	refilled   bool

	lastSeen time.Time
}

// Limiter evaluates rate limit rules against request contexts.
type Limiter struct {
	cfg    Config
	rules  RuleStore
	log    LogStore
	logger *slog.Logger

	mu       sync.Mutex
	counters map[string]*counterState
	stop     chan struct{}
	now      func() time.Time
}

// NewLimiter creates a limiter and starts its cleanup goroutine.
func NewLimiter(cfg Config, rules RuleStore, log LogStore, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	l := &Limiter{
		cfg:      cfg,
		rules:    rules,
		log:      log,
		logger:   logger,
		counters: make(map[string]*counterState),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	go l.cleanup()
	return l
}

// Stop stops the cleanup goroutine.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := l.now().Add(-10 * time.Minute)
			l.mu.Lock()
			for key, state := range l.counters {
				state.mu.Lock()
				stale := state.lastSeen.Before(cutoff)
				state.mu.Unlock()
				if stale {
					delete(l.counters, key)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

// Check evaluates the request context and returns a decision. Exempt
// endpoints short-circuit before any rule matching. Logging failures
// never affect the decision.
func (l *Limiter) Check(ctx context.Context, req *RequestContext) *Decision {
	if l.isExempt(req.Endpoint) {
		return &Decision{Allowed: true, Exempt: true}
	}

	rule := l.matchRule(ctx, req)

	allowed, retryAfter := l.consume(rule, req)
	d := &Decision{
		Allowed:  allowed,
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Limit:    rule.MaxRequests,
	}

	if !allowed {
		d.Action = rule.Action
		switch rule.Action {
		case ActionBlock:
			d.RetryAfterSeconds = retryAfter
		case ActionThrottle:
			// The request proceeds, just slower.
			d.Allowed = true
			d.DelaySeconds = throttleDelay(rule)
		case ActionWarn:
			d.Allowed = true
			l.logger.Warn("rate limit warning",
				"rule", rule.Name, "tenant_id", req.TenantID, "endpoint", req.Endpoint)
		}
		l.record(ctx, rule, req, d.Allowed)
	}

	return d
}

func (l *Limiter) isExempt(endpoint string) bool {
	for _, pattern := range l.cfg.ExemptEndpoints {
		if matchEndpoint(pattern, endpoint) {
			return true
		}
	}
	return false
}

// matchRule returns the highest-priority active rule matching the request,
// or a synthetic default rule when none match.
func (l *Limiter) matchRule(ctx context.Context, req *RequestContext) *Rule {
	var matches []*Rule
	if l.rules != nil {
		rules, err := l.rules.List(ctx)
		if err != nil {
			// Fail toward the default limit rather than allowing unlimited.
			l.logger.Error("rule list failed, using default limit", "error", err)
		} else {
			for _, r := range rules {
				if l.ruleMatches(r, req) {
					matches = append(matches, r)
				}
			}
		}
	}

	if len(matches) == 0 {
		return l.defaultRule()
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Priority > matches[j].Priority
	})
	return matches[0]
}

func (l *Limiter) ruleMatches(r *Rule, req *RequestContext) bool {
	if !r.IsActive {
		return false
	}
	if r.EndpointPattern != "" && !matchEndpoint(r.EndpointPattern, req.Endpoint) {
		return false
	}
	if r.RiskLevel != "" && r.RiskLevel != req.RiskLevel {
		return false
	}
	if r.SaldoStatus != "" && r.SaldoStatus != req.SaldoStatus {
		return false
	}
	return true
}

func (l *Limiter) defaultRule() *Rule {
	return &Rule{
		ID:            "default",
		Name:          "default",
		ContextType:   ContextUser,
		MaxRequests:   l.cfg.DefaultMaxRequests,
		WindowSeconds: l.cfg.DefaultWindowSeconds,
		Algorithm:     AlgorithmSlidingWindow,
		Action:        ActionBlock,
		IsActive:      true,
	}
}

// consume applies the rule's algorithm to the request's counter key.
// Returns whether the hit fits the limit, and a retry-after hint when not.
func (l *Limiter) consume(rule *Rule, req *RequestContext) (bool, int) {
	state := l.state(counterKey(rule, req))
	state.mu.Lock()
	defer state.mu.Unlock()

	now := l.now()
	state.lastSeen = now

	switch rule.Algorithm {
	case AlgorithmTokenBucket:
		return l.consumeToken(state, rule, now)
	default:
		return l.consumeWindow(state, rule, now)
	}
}

// consumeWindow counts timestamped hits within the trailing window.
// The hit is recorded only on allow.
func (l *Limiter) consumeWindow(state *counterState, rule *Rule, now time.Time) (bool, int) {
	window := time.Duration(rule.WindowSeconds) * time.Second
	cutoff := now.Add(-window)

	kept := state.hits[:0]
	for _, hit := range state.hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	state.hits = kept

	if len(state.hits) >= rule.MaxRequests {
		oldest := state.hits[0]
		retry := int(math.Ceil(oldest.Add(window).Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return false, retry
	}

	state.hits = append(state.hits, now)
	return true, 0
}

// consumeToken refills at max_requests/window_seconds per second, capped
// at max_requests, and spends one token per allowed hit.
func (l *Limiter) consumeToken(state *counterState, rule *Rule, now time.Time) (bool, int) {
	ratePerSecond := float64(rule.MaxRequests) / float64(rule.WindowSeconds)

	if !state.refilled {
		state.tokens = float64(rule.MaxRequests)
		state.lastRefill = now
		state.refilled = true
	} else {
		elapsed := now.Sub(state.lastRefill).Seconds()
		state.tokens += elapsed * ratePerSecond
		if state.tokens > float64(rule.MaxRequests) {
			state.tokens = float64(rule.MaxRequests)
		}
		state.lastRefill = now
	}

	if state.tokens >= 1 {
		state.tokens--
		return true, 0
	}

	retry := int(math.Ceil((1 - state.tokens) / ratePerSecond))
	if retry < 1 {
		retry = 1
	}
	return false, retry
}

func (l *Limiter) state(key string) *counterState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.counters[key]
	if !ok {
		state = &counterState{}
		l.counters[key] = state
	}
	return state
}

// record appends the triggered decision to the log store. Best-effort:
// the decision has already been made.
func (l *Limiter) record(ctx context.Context, rule *Rule, req *RequestContext, allowed bool) {
	if l.log == nil {
		return
	}
	entry := &LogEntry{
		ID:        idgen.WithPrefix("rl_"),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		TenantID:  req.TenantID,
		IP:        req.IP,
		Endpoint:  req.Endpoint,
		Action:    rule.Action,
		Allowed:   allowed,
		CreatedAt: l.now(),
	}
	if err := l.log.Append(ctx, entry); err != nil {
		l.logger.Error("rate limit log append failed", "error", err)
	}
}

func counterKey(rule *Rule, req *RequestContext) string {
	switch rule.ContextType {
	case ContextIP:
		return rule.ID + "|ip:" + req.IP
	case ContextEndpoint:
		return rule.ID + "|ep:" + req.TenantID + ":" + req.Endpoint
	case ContextGlobal:
		return rule.ID + "|global"
	default:
		return rule.ID + "|user:" + req.TenantID
	}
}

func throttleDelay(rule *Rule) int {
	// One window's worth of spacing between excess requests.
	delay := rule.WindowSeconds / rule.MaxRequests
	if delay < 1 {
		delay = 1
	}
	return delay
}

// matchEndpoint matches a glob pattern against a request path. A trailing
// "/*" also matches nested segments, which path.Match alone does not.
func matchEndpoint(pattern, endpoint string) bool {
	if pattern == endpoint {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if strings.HasPrefix(endpoint, prefix+"/") {
			return true
		}
	}
	ok, err := path.Match(pattern, endpoint)
	return err == nil && ok
}
