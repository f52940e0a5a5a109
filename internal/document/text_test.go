package document

import "testing"

func TestFromTextAndPlainText(t *testing.T) {
	doc := FromText("first\r\nsecond\n\nfourth")
	if len(doc) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(doc))
	}
	for _, block := range doc {
		if block.Type != BlockTypeParagraph {
			t.Fatalf("expected paragraph blocks, got %q", block.Type)
		}
	}
	if text := PlainText(doc); text != "first\nsecond\n\nfourth" {
		t.Fatalf("unexpected plain text %q", text)
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name     string
		doc      Document
		maxRunes int
		expected string
	}{
		{name: "first-non-blank", doc: FromText("\n  \nhello world"), maxRunes: 40, expected: "hello world"},
		{name: "truncated", doc: FromText("abcdefgh"), maxRunes: 3, expected: "abc…"},
		{name: "unlimited", doc: FromText("abcdefgh"), maxRunes: 0, expected: "abcdefgh"},
		{name: "blank", doc: FromText(""), maxRunes: 10, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(tt.doc, tt.maxRunes); got != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
