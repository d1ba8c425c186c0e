package validation

import (
	"testing"
)

func TestIsValidTenantID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"tenant-001", true},
		{"acme_corp", true},
		{"abc", true},
		{"9lives", true},

		// Invalid cases
		{"ab", false},             // Too short
		{"Tenant-001", false},     // Uppercase
		{"-leading-dash", false},  // Must start alphanumeric
		{"_leading", false},       // Must start alphanumeric
		{"has space", false},      // Whitespace
		{"has.dot", false},        // Dots not allowed
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidTenantID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidTenantID(%q) = %v, want %v", tc.id, result, tc.valid)
		}
	}
}

func TestIsValidReference(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"topup-2026-001", true},
		{"INV.2026:08.31", true},
		{"a", true},

		{"", false},
		{"has space", false},
		{"-leading", false},
	}

	for _, tc := range tests {
		result := IsValidReference(tc.ref)
		if result != tc.valid {
			t.Errorf("IsValidReference(%q) = %v, want %v", tc.ref, result, tc.valid)
		}
	}
}

func TestSanitizeTenantID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"tenant-001", "tenant-001"},
		{"TENANT-001", "tenant-001"},
		{"  tenant-001  ", "tenant-001"},
	}

	for _, tc := range tests {
		result := SanitizeTenantID(tc.input)
		if result != tc.expected {
			t.Errorf("SanitizeTenantID(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	// Test valid input
	errors := Validate(
		Required("name", "John"),
		ValidTenant("tenant_id", "tenant-001"),
	)
	if len(errors) != 0 {
		t.Errorf("Expected no errors, got %v", errors)
	}

	// Test invalid input
	errors = Validate(
		Required("name", ""),
		ValidTenant("tenant_id", "NOT VALID"),
	)
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errors))
	}
}

func TestValidAmount(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"1.00", true},
		{"0.50", true},
		{"100", true},
		{"35000.00", true},

		// Invalid
		{".50", false},
		{"1.", false},
		{"abc", false},
		{"-1.00", false},
		{"1.2.3", false},
		{"0.00", false},
	}

	for _, tc := range tests {
		err := ValidAmount("amount", tc.value)()
		valid := err == nil
		if valid != tc.valid {
			t.Errorf("ValidAmount(%q) valid=%v, want %v", tc.value, valid, tc.valid)
		}
	}
}

func TestMaxLength(t *testing.T) {
	// Under limit
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("Expected no error for string under limit")
	}

	// At limit
	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("Expected no error for string at limit")
	}

	// Over limit
	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("Expected error for string over limit")
	}
}
