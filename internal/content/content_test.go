package content

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello World"},
		{"Script tag", "hello<script>alert(1)</script>", "hello"},
		{"Style tag", "<style>body{}</style>hi", "hi"},
		{"Link with javascript", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Bare javascript URI", "javascript:alert(1)", "alert(1)"},
		{"Event handler text", `see <img src=x onerror="alert(1)">this`, "see this"},
		{"Handler-like prose", `x onclick="steal()"`, `x onclick="steal()"`},
		{"Equals in prose", "set onion=3", "set onion=3"},
		{"Double encoded markup", "&amp;lt;b&amp;gt;bold&amp;lt;/b&amp;gt;", "bold"},
		{"Deeply encoded script", "&amp;amp;lt;script&amp;amp;gt;alert(1)&amp;amp;lt;/script&amp;amp;gt;", ""},
		{"Deeply encoded handler", "&amp;amp;lt;img src=x onerror=alert(1)&amp;amp;gt;", ""},
		{"Encoded markup", "&lt;b&gt;bold&lt;/b&gt;", "bold"},
		{"Ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"Less than", "1 < 2", "1 < 2"},
		{"Only markup", "<script>x</script>", ""},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestClean_Truncates(t *testing.T) {
	long := strings.Repeat("я", MaxLength+10)
	got := Clean(long)
	if n := utf8.RuneCountInString(got); n != MaxLength {
		t.Errorf("expected %d runes, got %d", MaxLength, n)
	}

	short := "hello"
	if got := Clean(short); got != short {
		t.Errorf("Clean() = %q, want %q", got, short)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello world", 5); got != "hello…" {
		t.Errorf("Preview() = %q", got)
	}
	if got := Preview("hi", 5); got != "hi" {
		t.Errorf("Preview() = %q", got)
	}
}

func TestValidateMediaURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"https://cdn.example.com/a.png", false},
		{"http://example.com/voice.ogg", false},
		{"ftp://example.com/a.png", true},
		{"/uploads/a.png", true},
		{"javascript:alert(1)", true},
		{"https://", true},
		{"not a url", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if err := ValidateMediaURL(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateMediaURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid alphanumeric", "user123", false},
		{"Valid with dot", "user.name", false},
		{"Invalid space", "user name", true},
		{"Invalid script", "<script>", true},
		{"Empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateUsername(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
