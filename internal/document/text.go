package document

import "strings"

// FromText builds one paragraph per line of text.
func FromText(text string) Document {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(normalized, "\n")
	doc := make(Document, 0, len(lines))
	for _, line := range lines {
		doc = append(doc, Block{
			Type:     BlockTypeParagraph,
			Children: []Span{{Text: line}},
		})
	}
	return doc
}

// PlainText flattens the document, one line per block.
func PlainText(doc Document) string {
	lines := make([]string, 0, len(doc))
	for _, block := range doc {
		var builder strings.Builder
		for _, span := range block.Children {
			builder.WriteString(span.Text)
		}
		lines = append(lines, builder.String())
	}
	return strings.Join(lines, "\n")
}

// Preview returns the first non-blank line, cut to maxRunes with an ellipsis.
func Preview(doc Document, maxRunes int) string {
	for _, line := range strings.Split(PlainText(doc), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if maxRunes > 0 && len(runes) > maxRunes {
			return string(runes[:maxRunes]) + "…"
		}
		return trimmed
	}
	return ""
}
