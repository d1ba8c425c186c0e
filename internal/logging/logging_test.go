package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		level        string
		debugEnabled bool
		infoEnabled  bool
	}{
		{"", false, true},
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"bogus", false, true},
	}
	for _, tt := range tests {
		logger := New(tt.level, "text")
		if logger == nil {
			t.Fatalf("level %q: expected non-nil logger", tt.level)
		}
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.debugEnabled {
			t.Errorf("level %q: debug enabled = %v, want %v", tt.level, got, tt.debugEnabled)
		}
		if got := logger.Enabled(context.Background(), slog.LevelInfo); got != tt.infoEnabled {
			t.Errorf("level %q: info enabled = %v, want %v", tt.level, got, tt.infoEnabled)
		}
	}
}

func TestNew_JSONFormat(t *testing.T) {
	if New("info", "json") == nil {
		t.Fatal("expected non-nil logger for JSON format")
	}
}

func TestRequestID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := RequestID(ctx); id != "" {
		t.Errorf("expected empty request ID, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := RequestID(ctx); id != "req-123" {
		t.Errorf("expected req-123, got %q", id)
	}

	ctx = WithRequestID(ctx, "req-456")
	if id := RequestID(ctx); id != "req-456" {
		t.Errorf("expected latest request ID req-456, got %q", id)
	}
}

func TestTenantID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := TenantID(ctx); id != "" {
		t.Errorf("expected empty tenant ID, got %q", id)
	}

	ctx = WithTenantID(ctx, "tn_9f2")
	if id := TenantID(ctx); id != "tn_9f2" {
		t.Errorf("expected tn_9f2, got %q", id)
	}

	// Tenant and request IDs live under separate keys.
	ctx = WithRequestID(ctx, "req-1")
	if id := TenantID(ctx); id != "tn_9f2" {
		t.Errorf("request ID clobbered tenant ID: got %q", id)
	}
}

func TestWithLogger_And_FromContext(t *testing.T) {
	ctx := context.Background()

	if FromContext(ctx) == nil {
		t.Fatal("expected default logger")
	}

	custom := New("debug", "json")
	ctx = WithLogger(ctx, custom)

	if FromContext(ctx) != custom {
		t.Error("expected custom logger from context")
	}
}

func TestL_AnnotatesRequestAndTenant(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-789")
	ctx = WithTenantID(ctx, "tn_abc")

	L(ctx).Info("admission denied")

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-789"`) {
		t.Errorf("expected request_id annotation, got %s", out)
	}
	if !strings.Contains(out, `"tenant_id":"tn_abc"`) {
		t.Errorf("expected tenant_id annotation, got %s", out)
	}
}

func TestL_OmitsAbsentIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	L(ctx).Info("startup")

	out := buf.String()
	if strings.Contains(out, "request_id") || strings.Contains(out, "tenant_id") {
		t.Errorf("expected no ID annotations, got %s", out)
	}
}

func TestL_WithoutContextLogger(t *testing.T) {
	ctx := WithTenantID(context.Background(), "tn_1")
	if L(ctx) == nil {
		t.Fatal("expected non-nil logger from L()")
	}
}
