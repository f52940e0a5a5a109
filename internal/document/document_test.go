package document

import (
	"reflect"
	"testing"
)

func TestDeserializeRoundTripsWellFormedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{
			name: "default",
			doc:  Default(),
		},
		{
			name: "multiple-blocks",
			doc: Document{
				{Type: BlockTypeParagraph, Children: []Span{{Text: "first"}, {Text: " line"}}},
				{Type: BlockTypeParagraph, Children: []Span{{Text: ""}}},
				{Type: BlockTypeParagraph, Children: []Span{{Text: "ünïcode ✓"}}},
			},
		},
		{
			name: "empty-children",
			doc: Document{
				{Type: BlockTypeParagraph, Children: []Span{}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := Serialize(tt.doc)
			if err != nil {
				t.Fatalf("unexpected serialize error: %v", err)
			}
			decoded := Deserialize(encoded)
			if !reflect.DeepEqual(decoded, tt.doc) {
				t.Fatalf("round trip mismatch\nwant %#v\ngot  %#v", tt.doc, decoded)
			}
		})
	}
}

func TestDeserializeFallsBackToDefault(t *testing.T) {
	inputs := map[string]string{
		"empty":          "",
		"whitespace":     "   ",
		"not-json":       "{{not json",
		"number":         "5",
		"object":         `{"type":"paragraph","children":[]}`,
		"empty-array":    "[]",
		"null":           "null",
		"scalar-element": `[1, 2]`,
		"null-element":   `[null]`,
		"missing-type":   `[{"children":[{"text":"x"}]}]`,
		"bad-children":   `[{"type":"paragraph","children":"oops"}]`,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			decoded := Deserialize(input)
			if !reflect.DeepEqual(decoded, Default()) {
				t.Fatalf("expected default document for %q, got %#v", input, decoded)
			}
			if Valid(input) {
				t.Fatalf("expected %q to be reported invalid", input)
			}
		})
	}
}

func TestDefaultReturnsIndependentCopies(t *testing.T) {
	first := Default()
	first[0].Children[0].Text = "mutated"

	second := Default()
	if second[0].Children[0].Text != DefaultText {
		t.Fatalf("default document was mutated through a previous copy: %q", second[0].Children[0].Text)
	}
}

func TestDeserializeDropsUnmodeledSpanAttributes(t *testing.T) {
	decoded := Deserialize(`[{"type":"paragraph","children":[{"text":"bold","bold":true}]}]`)
	expected := Document{{Type: BlockTypeParagraph, Children: []Span{{Text: "bold"}}}}
	if !reflect.DeepEqual(decoded, expected) {
		t.Fatalf("unexpected document %#v", decoded)
	}
}

func TestMustSerializeDefault(t *testing.T) {
	expected := `[{"type":"paragraph","children":[{"text":"Start writing your notes here..."}]}]`
	if got := MustSerialize(Default()); got != expected {
		t.Fatalf("unexpected default serialization %s", got)
	}
}
