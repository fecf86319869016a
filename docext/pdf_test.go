package docext

import (
	"strings"
	"testing"
)

func TestExtractTextFromStream(t *testing.T) {
	// WHAT: Content stream operators Tj, TJ, and T* yield joined text.
	stream := []byte("BT\n(Root cause:) Tj\n0 -14 Td\n[(expired) -50 (zone key)] TJ\nT*\n(Fix deployed) Tj\nET\n")
	got := extractTextFromStream(stream)
	for _, want := range []string{"Root cause:", "expired", "zone key", "Fix deployed"} {
		if !strings.Contains(got, want) {
			t.Errorf("stream text missing %q: %q", want, got)
		}
	}
}

func TestDecodePDFString(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`a\(b\)c`, "a(b)c"},
		{`line\nbreak`, "line\nbreak"},
		{`oct\040al`, "oct al"},
		{`back\\slash`, `back\slash`},
	}
	for _, c := range cases {
		if got := decodePDFString([]byte(c.in)); got != c.want {
			t.Errorf("decode %q: got %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCleanTextNormalisesWhitespace(t *testing.T) {
	got := cleanText("  a \t b\n\n c  ")
	if got != "a b c" {
		t.Errorf("clean: got %q", got)
	}
}

func TestPDFTextRejectsGarbage(t *testing.T) {
	// WHAT: Non-PDF bytes fail with an error, never silently.
	// WHY: Attachments are untrusted input.
	if _, err := PDFText([]byte("not a pdf"), 0); err == nil {
		t.Error("garbage input should fail")
	}
}
