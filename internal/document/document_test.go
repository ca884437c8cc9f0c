package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_String(t *testing.T) {
	doc := Document{"title": "Hello", "count": 3}

	s, ok := doc.String("title")
	assert.True(t, ok)
	assert.Equal(t, "Hello", s)

	_, ok = doc.String("count")
	assert.False(t, ok)

	_, ok = doc.String("missing")
	assert.False(t, ok)
}

func TestDocument_Clone(t *testing.T) {
	orig := Document{
		"title": "a",
		"tags":  []string{"x", "y"},
		"mixed": []any{"p", 1},
		"meta":  map[string]any{"k": "v"},
	}

	cp := orig.Clone()
	require.Equal(t, orig, cp)

	cp["tags"].([]string)[0] = "changed"
	cp["mixed"].([]any)[0] = "changed"
	cp["meta"].(map[string]any)["k"] = "changed"

	assert.Equal(t, "x", orig["tags"].([]string)[0])
	assert.Equal(t, "p", orig["mixed"].([]any)[0])
	assert.Equal(t, "v", orig["meta"].(map[string]any)["k"])

	assert.Nil(t, Document(nil).Clone())
}

func TestDocument_MapText(t *testing.T) {
	upper := func(s string) string { return s + "!" }

	tests := []struct {
		name     string
		doc      Document
		field    string
		wantText bool
		want     any
	}{
		{name: "single string", doc: Document{"f": "a"}, field: "f", wantText: true, want: "a!"},
		{name: "string slice", doc: Document{"f": []string{"a", "b"}}, field: "f", wantText: true, want: []string{"a!", "b!"}},
		{name: "mixed slice", doc: Document{"f": []any{"a", 2}}, field: "f", wantText: true, want: []any{"a!", 2}},
		{name: "no text in slice", doc: Document{"f": []any{1, 2}}, field: "f", wantText: false, want: []any{1, 2}},
		{name: "number", doc: Document{"f": 42}, field: "f", wantText: false, want: 42},
		{name: "missing", doc: Document{}, field: "f", wantText: false, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.doc.MapText(tt.field, upper)
			assert.Equal(t, tt.wantText, got)
			assert.Equal(t, tt.want, tt.doc[tt.field])
		})
	}
}

func TestChanged(t *testing.T) {
	before := Document{"a": "1", "b": "2", "c": "3"}
	after := Document{"a": "1", "b": "x", "d": "4"}

	assert.Equal(t, []string{"b", "c", "d"}, Changed(before, after))
	assert.Empty(t, Changed(before, before.Clone()))
}
