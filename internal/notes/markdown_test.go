package notes

import (
	"strings"
	"testing"
)

// =====================================================
// RenderHTML
// =====================================================

func TestRenderHTML(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"heading", "# Rent", "<h1>Rent</h1>"},
		{"emphasis", "pay *today*", "<em>today</em>"},
		{"list", "- one\n- two", "<li>two</li>"},
		{"link", "[bank](https://example.com)", `<a href="https://example.com">bank</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderHTML(tt.src)
			if err != nil {
				t.Fatalf("RenderHTML() failed: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("RenderHTML(%q) = %q, want it to contain %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestRenderHTMLOmitsRawHTML(t *testing.T) {
	got, err := RenderHTML("<script>alert(1)</script>")
	if err != nil {
		t.Fatalf("RenderHTML() failed: %v", err)
	}
	if strings.Contains(got, "<script>") {
		t.Errorf("RenderHTML() = %q, raw HTML should be omitted", got)
	}
}

// =====================================================
// PlainText / Summary
// =====================================================

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", "", ""},
		{"plain", "call the bank", "call the bank"},
		{"emphasis", "pay **before** noon", "pay before noon"},
		{"heading", "## Steps", "Steps"},
		{"link", "see [bank](https://example.com)", "see bank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.src); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestPlainTextList(t *testing.T) {
	got := PlainText("- milk\n- eggs")
	if !strings.Contains(got, "- milk") || !strings.Contains(got, "- eggs") {
		t.Errorf("PlainText() = %q, want both items", got)
	}
	if strings.Contains(got, "*") {
		t.Errorf("PlainText() = %q, should not contain markup", got)
	}
}

func TestSummary(t *testing.T) {
	if got := Summary("# Title\n\nbody", 0); got != "Title" {
		t.Errorf("Summary() = %q, want %q", got, "Title")
	}
	if got := Summary("abcdefghij", 5); got != "abcd…" {
		t.Errorf("Summary() = %q, want %q", got, "abcd…")
	}
	if got := Summary("short", 10); got != "short" {
		t.Errorf("Summary() = %q, want %q", got, "short")
	}
}
