package color

import (
	"testing"
)

func TestEnableDisable(t *testing.T) {
	Enable()
	if !Enabled() {
		t.Error("expected colors to be enabled after Enable()")
	}

	Disable()
	if Enabled() {
		t.Error("expected colors to be disabled after Disable()")
	}
	Enable()
}

func TestColorFuncs(t *testing.T) {
	Enable()

	tests := []struct {
		name     string
		fn       func(string) string
		input    string
		contains string
	}{
		{"Redf", Redf, "test", Red},
		{"Greenf", Greenf, "test", Green},
		{"Yellowf", Yellowf, "test", Yellow},
		{"Bluef", Bluef, "test", Blue},
		{"Cyanf", Cyanf, "test", Cyan},
		{"Boldf", Boldf, "test", Bold},
		{"Dimf", Dimf, "test", DimCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.fn(tt.input)
			if !containsString(result, tt.contains) {
				t.Errorf("%s(%q) = %q, expected to contain %q", tt.name, tt.input, result, tt.contains)
			}
			// Should always end with Reset
			if !containsString(result, Reset) {
				t.Errorf("%s(%q) = %q, expected to contain reset code", tt.name, tt.input, result)
			}
		})
	}
}

func TestColorFuncsDisabled(t *testing.T) {
	Disable()
	defer Enable()

	tests := []struct {
		name  string
		fn    func(string) string
		input string
	}{
		{"Redf", Redf, "test"},
		{"Greenf", Greenf, "test"},
		{"Success", Success, "test"},
		{"Error", Error, "test"},
		{"Warning", Warning, "test"},
		{"Info", Info, "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.fn(tt.input)
			if result != tt.input {
				t.Errorf("%s(%q) = %q, expected %q (no color when disabled)", tt.name, tt.input, result, tt.input)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	Enable()

	tests := []struct {
		severity string
		color    string
	}{
		{"critical", Red},
		{"critical", Bold},
		{"high", Red},
		{"medium", Yellow},
		{"low", Cyan},
		{"none", DimCode},
	}

	for _, tt := range tests {
		result := Severity(tt.severity)
		if !containsString(result, tt.color) {
			t.Errorf("Severity(%q) = %q, expected to contain %q", tt.severity, result, tt.color)
		}
	}

	if result := Severity("bogus"); result != "bogus" {
		t.Errorf("Severity should pass through unknown values, got %q", result)
	}
}

func TestStateName(t *testing.T) {
	Enable()

	if result := StateName("COMMITTED"); !containsString(result, Green) {
		t.Errorf("StateName(COMMITTED) should be green, got %q", result)
	}
	if result := StateName("FAILED"); !containsString(result, Red) {
		t.Errorf("StateName(FAILED) should be red, got %q", result)
	}
	if result := StateName("ROLLED_BACK"); !containsString(result, Yellow) {
		t.Errorf("StateName(ROLLED_BACK) should be yellow, got %q", result)
	}
	if result := StateName("RECEIVED"); result != "RECEIVED" {
		t.Errorf("StateName should pass through non-terminal states, got %q", result)
	}
}

func TestSpecializedFormatters(t *testing.T) {
	Enable()

	tests := []struct {
		name  string
		fn    func(string) string
		input string
		color string
	}{
		{"Success", Success, "ok", Green},
		{"Error", Error, "fail", Red},
		{"Warning", Warning, "warn", Yellow},
		{"Info", Info, "info", Cyan},
		{"AttemptID", AttemptID, "1708300800000-a3f7c1b2", Cyan},
		{"Version", Version, "2026.08.1", Blue},
		{"Header", Header, "Title", Bold},
		{"Dim", Dim, "subtle", DimCode},
		{"Highlight", Highlight, "important", Yellow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.fn(tt.input)
			if !containsString(result, tt.color) {
				t.Errorf("%s(%q) = %q, expected to contain color code", tt.name, tt.input, result)
			}
		})
	}
}

func TestFormattedFunctions(t *testing.T) {
	Enable()

	if result := Successf("test %d", 123); !containsString(result, Green) {
		t.Errorf("Successf() should contain green color code, got %q", result)
	}

	if result := Errorf("err %s", "x"); !containsString(result, Red) {
		t.Errorf("Errorf() should contain red color code, got %q", result)
	}

	if result := Warningf("warn %d", 42); !containsString(result, Yellow) {
		t.Errorf("Warningf() should contain yellow color code, got %q", result)
	}

	if result := Infof("info %s", "test"); !containsString(result, Cyan) {
		t.Errorf("Infof() should contain cyan color code, got %q", result)
	}
}

func TestCode(t *testing.T) {
	Enable()

	result := Code("quorum init")
	if !containsString(result, Bold) {
		t.Errorf("Code() should contain bold code, got %q", result)
	}
	if !containsString(result, Reset) {
		t.Errorf("Code() should contain reset code, got %q", result)
	}

	Disable()
	result = Code("test")
	if result != "test" {
		t.Errorf("Code() disabled should return plain text, got %q", result)
	}
	Enable()
}

func containsString(s, substr string) bool {
	return len(substr) > 0 && len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
