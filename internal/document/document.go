package document

import (
	"encoding/json"
	"strings"
)

// BlockTypeParagraph is the only block type the editor produces.
const BlockTypeParagraph = "paragraph"

// DefaultText is the placeholder shown in a fresh or repaired document.
const DefaultText = "Start writing your notes here..."

// Span is a run of plain text inside a block.
type Span struct {
	Text string `json:"text"`
}

// Block is a top-level element of a document.
type Block struct {
	Type     string `json:"type"`
	Children []Span `json:"children"`
}

// Document is the ordered block sequence edited by the editor pane.
type Document []Block

// Default returns a fresh single-paragraph placeholder document.
func Default() Document {
	return Document{
		{
			Type:     BlockTypeParagraph,
			Children: []Span{{Text: DefaultText}},
		},
	}
}

// Deserialize decodes persisted content. Anything that is not a non-empty
// array of blocks yields Default.
func Deserialize(content string) Document {
	doc, ok := parse(content)
	if !ok {
		return Default()
	}
	return doc
}

// Valid reports whether content decodes to a usable document.
func Valid(content string) bool {
	_, ok := parse(content)
	return ok
}

// Serialize encodes the document verbatim.
func Serialize(doc Document) (string, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// MustSerialize encodes a document that is known to be encodable.
func MustSerialize(doc Document) string {
	encoded, err := Serialize(doc)
	if err != nil {
		panic(err)
	}
	return encoded
}

func parse(content string) (Document, bool) {
	if strings.TrimSpace(content) == "" {
		return nil, false
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	doc := make(Document, 0, len(raw))
	for _, element := range raw {
		var block Block
		if err := json.Unmarshal(element, &block); err != nil {
			return nil, false
		}
		if block.Type == "" {
			return nil, false
		}
		doc = append(doc, block)
	}
	return doc, true
}
