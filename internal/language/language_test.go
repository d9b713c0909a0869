package language

import "testing"

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// 2-letter codes pass through
		{"de", "de"},
		{"EN", "en"},
		// 3-letter codes convert
		{"deu", "de"},
		{"ger", "de"},
		{"fre", "fr"},
		{"dut", "nl"},
		// Word forms and endonyms
		{"German", "de"},
		{"deutsch", "de"},
		{"Français", "fr"},
		// BCP 47 tags fall back to the base language
		{"de-AT", "de"},
		{"pt_BR", "pt"},
		{"uk", "uk"},
		{"ukr", "uk"},
		// Unknown
		{"xyz", ""},
		{"not a language", ""},
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ToISO2(tt.input); got != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"", Auto, true},
		{"AUTO", Auto, true},
		{"german", "de", true},
		{"en-US", "en", true},
		{"klingon-ish", "", false},
	}
	for _, tt := range tests {
		got, ok := Normalize(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNormalizeOr(t *testing.T) {
	if got := NormalizeOr("bogus-value", "de"); got != "de" {
		t.Fatalf("expected fallback de, got %q", got)
	}
	if got := NormalizeOr("bogus-value", "also-bogus"); got != Auto {
		t.Fatalf("expected auto when both invalid, got %q", got)
	}
	if got := NormalizeOr("fr", "de"); got != "fr" {
		t.Fatalf("expected fr, got %q", got)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"de", "German"},
		{"ger", "German"},
		{"auto", "Auto-detect"},
		{"", "Auto-detect"},
		{"uk", "Ukrainian"},
	}
	for _, tt := range tests {
		if got := DisplayName(tt.input); got != tt.expected {
			t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
