package validation

import (
	"strings"
	"testing"
)

func TestIsValidAgentID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"agent_a", true},
		{"agent_007", true},
		{"system_bank", true},

		{"Agent_A", false}, // uppercase
		{"agent a", false}, // space
		{"agent-a", false}, // hyphen
		{"", false},
		{strings.Repeat("a", 65), false}, // too long
	}

	for _, tc := range tests {
		result := IsValidAgentID(tc.id)
		if result != tc.valid {
			t.Errorf("IsValidAgentID(%q) = %v, want %v", tc.id, result, tc.valid)
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
	errors := Validate(
		Required("name", "agent_a"),
		ValidAgentID("agent_id", "agent_a"),
	)
	if len(errors) != 0 {
		t.Errorf("expected no errors, got %v", errors)
	}

	errors = Validate(
		Required("name", ""),
		ValidAgentID("agent_id", "Agent A"),
	)
	if len(errors) != 2 {
		t.Errorf("expected 2 errors, got %d", len(errors))
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
		{"0.000001", true},

		{".50", false},
		{"1.", false},
		{"abc", false},
		{"-1.00", false},
		{"1.2.3", false},
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
	err := MaxLength("field", "hello", 10)()
	if err != nil {
		t.Error("expected no error for string under limit")
	}

	err = MaxLength("field", "hello", 5)()
	if err != nil {
		t.Error("expected no error for string at limit")
	}

	err = MaxLength("field", "hello world", 5)()
	if err == nil {
		t.Error("expected error for string over limit")
	}
}
