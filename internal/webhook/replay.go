package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ReplayConfig bounds the freshness window and the dedup cache.
type ReplayConfig struct {
	// MaxAgeSeconds is how old a payload timestamp may be.
	MaxAgeSeconds int
	// ClockSkewSeconds tolerates provider clocks running ahead of ours.
	ClockSkewSeconds int
	// CacheTTL is the duplicate-suppression window. Entries expire by
	// TTL; this is a best-effort anti-replay window, not exactly-once
	// delivery.
	CacheTTL time.Duration
}

// DefaultReplayConfig returns the standard replay window.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		MaxAgeSeconds:    300,
		ClockSkewSeconds: 60,
		CacheTTL:         time.Hour,
	}
}

// ReplayResult is the structured outcome of a replay check.
type ReplayResult struct {
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	EventID string `json:"eventId"`
	// Warning is set when the check degraded (missing timestamp) but
	// still passed.
	Warning string `json:"warning,omitempty"`
}

// ReplayGuard combines timestamp freshness with TTL-bounded duplicate
// suppression. Both checks must pass.
type ReplayGuard struct {
	cfg    ReplayConfig
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]time.Time // event id -> expiry

	stop chan struct{}
	now  func() time.Time
}

// NewReplayGuard creates a replay guard and starts its cache janitor.
func NewReplayGuard(cfg ReplayConfig, logger *slog.Logger) *ReplayGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	g := &ReplayGuard{
		cfg:    cfg,
		logger: logger,
		seen:   make(map[string]time.Time),
		stop:   make(chan struct{}),
		now:    time.Now,
	}
	go g.cleanup()
	return g
}

// Stop stops the cache janitor.
func (g *ReplayGuard) Stop() {
	close(g.stop)
}

func (g *ReplayGuard) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := g.now()
			g.mu.Lock()
			for id, expiry := range g.seen {
				if now.After(expiry) {
					delete(g.seen, id)
				}
			}
			g.mu.Unlock()
		case <-g.stop:
			return
		}
	}
}

// Check runs both replay checks against a decoded payload. On pass the
// event id is marked processed for the TTL window.
func (g *ReplayGuard) Check(payload map[string]interface{}) *ReplayResult {
	id := EventID(payload)
	result := &ReplayResult{EventID: id}

	ts, found := extractTimestamp(payload)
	if !found {
		// Many legitimate provider payloads carry no timestamp.
		g.logger.Warn("webhook payload has no timestamp field", "event_id", id)
		result.Warning = "missing_timestamp"
	} else {
		now := g.now()
		if now.Sub(ts) > time.Duration(g.cfg.MaxAgeSeconds)*time.Second {
			result.Reason = "stale_timestamp"
			return result
		}
		if ts.Sub(now) > time.Duration(g.cfg.ClockSkewSeconds)*time.Second {
			result.Reason = "future_timestamp"
			return result
		}
	}

	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()
	if expiry, ok := g.seen[id]; ok && now.Before(expiry) {
		result.Reason = "duplicate"
		return result
	}
	g.seen[id] = now.Add(g.cfg.CacheTTL)
	result.OK = true
	return result
}

// timestampFields are tried in order; providers disagree on naming.
var timestampFields = []string{"timestamp", "ts", "created_at", "event_time", "time"}

func extractTimestamp(payload map[string]interface{}) (time.Time, bool) {
	for _, field := range timestampFields {
		v, ok := payload[field]
		if !ok {
			continue
		}
		if ts, ok := parseTimestamp(v); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64: // JSON numbers decode as float64
		return fromUnix(int64(t)), true
	case int64:
		return fromUnix(t), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return fromUnix(n), true
		}
	}
	return time.Time{}, false
}

// fromUnix accepts both second and millisecond precision.
func fromUnix(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// EventID derives a deterministic id for the payload: an explicit id
// field wins, otherwise a hash over the whole payload (Go serialises
// map keys in sorted order, so the hash is stable).
func EventID(payload map[string]interface{}) string {
	for _, field := range []string{"event_id", "id", "message_id"} {
		if v, ok := payload[field].(string); ok && v != "" {
			return v
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
