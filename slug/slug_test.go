package slug

import "testing"

// TestGenerate tests basic slug generation
func TestGenerate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Hello World", "hello-world"},
		{"empty", "", ""},
		{"accents", "Café Crème", "cafe-creme"},
		{"underscores", "some_file_name", "some-file-name"},
		{"punctuation", "what?! a (test)", "what-a-test"},
		{"consecutive separators", "a  --  b", "a-b"},
		{"leading trailing", "--hello--", "hello"},
		{"arabic transliterates away", "مرحبا بالعالم", ""},
		{"mixed arabic latin", "clip مرحبا 42", "clip-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Generate(tt.input); got != tt.want {
				t.Errorf("Generate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestGenerateLengthLimit tests truncation of very long inputs
func TestGenerateLengthLimit(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcdefgh "
	}

	got := Generate(long)
	if len(got) > 100 {
		t.Errorf("Expected slug capped at 100 chars, got %d", len(got))
	}
	if got[len(got)-1] == '-' {
		t.Error("Expected no trailing hyphen after truncation")
	}
}

// TestGenerateWithFallback tests the fallback chain for non-Latin input
func TestGenerateWithFallback(t *testing.T) {
	if got := GenerateWithFallback("Hello", "fallback"); got != "hello" {
		t.Errorf("Expected primary slug, got %q", got)
	}
	if got := GenerateWithFallback("مرحبا", "capture-7f3a"); got != "capture-7f3a" {
		t.Errorf("Expected fallback slug, got %q", got)
	}
	if got := GenerateWithFallback("", ""); got != "" {
		t.Errorf("Expected empty slug, got %q", got)
	}
}

// TestFromMediaURL tests slug extraction from permalinks
func TestFromMediaURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"permalink", "https://example.com/@user/video/7234567890", "7234567890"},
		{"query params", "https://example.com/video/99?lang=ar", "99"},
		{"empty", "", ""},
		{"trailing slash", "https://example.com/video/42/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromMediaURL(tt.url); got != tt.want {
				t.Errorf("FromMediaURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}
