package money

import (
	"math/big"
	"testing"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"whole rupiah", "1500", 150_000},
		{"with cents", "1500.50", 150_050},
		{"fifty cents", "0.50", 50},
		{"smallest unit", "0.01", 1},
		{"short frac", "1.5", 150},
		{"long frac trimmed", "1.509", 150},
		{"empty is zero", "", 0},
		{"zero", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if !ok {
				t.Fatalf("Parse(%q) failed", tt.input)
			}
			if got.Int64() != tt.expected {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got.Int64(), tt.expected)
			}
		})
	}
}

func TestParse_InvalidAmounts(t *testing.T) {
	for _, input := range []string{"-1", "-0.50", "1.2.3", "abc", "1,50"} {
		if _, ok := Parse(input); ok {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{150_000, "1500.00"},
		{150_050, "1500.50"},
		{1, "0.01"},
		{0, "0.00"},
		{-50, "-0.50"},
	}
	for _, tt := range tests {
		if got := Format(big.NewInt(tt.input)); got != tt.expected {
			t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.expected)
		}
	}
	if got := Format(nil); got != "0.00" {
		t.Errorf("Format(nil) = %q, want 0.00", got)
	}
}

func TestMulFloat(t *testing.T) {
	// 1500.00 * 1.5 = 2250.00
	got := MulFloat(big.NewInt(150_000), 1.5)
	if got.Int64() != 225_000 {
		t.Errorf("MulFloat = %d, want 225000", got.Int64())
	}
	// Rounds half up: 0.01 * 1.5 = 1.5 units -> 2
	got = MulFloat(big.NewInt(1), 1.5)
	if got.Int64() != 2 {
		t.Errorf("MulFloat rounding = %d, want 2", got.Int64())
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, s := range []string{"0.00", "1500.00", "99999999.99"} {
		v, ok := Parse(s)
		if !ok {
			t.Fatalf("Parse(%q) failed", s)
		}
		if Format(v) != s {
			t.Errorf("round trip %q -> %q", s, Format(v))
		}
	}
}
