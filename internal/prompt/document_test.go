package prompt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptkeep/internal/errors"
)

func TestDecodeDocument_JSON(t *testing.T) {
	data := []byte(`{"prompts":[{"id":"p1","text":"hi"}, 7],"categories":[{"id":"c1","name":"Work"},{"id":"","name":"x"}]}`)

	doc, err := DecodeDocument(data, FormatJSON)
	require.NoError(t, err)
	require.Len(t, doc.Prompts, 2)
	require.Len(t, doc.Categories, 2)

	require.True(t, ValidPromptShape(doc.Prompts[0]))
	require.False(t, ValidPromptShape(doc.Prompts[1]))
	require.True(t, ValidCategory(doc.Categories[0]))
	require.False(t, ValidCategory(doc.Categories[1]))
}

func TestDecodeDocument_YAML(t *testing.T) {
	data := []byte(`
prompts:
  - id: p1
    title: Summarize
    versions:
      - text: "Summarize this"
        timestamp: 1000
    copyCount: 3
categories:
  - id: c1
    name: Writing
`)

	doc, err := DecodeDocument(data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, doc.Prompts, 1)

	p, ok := Upgrade(doc.Prompts[0], testNow)
	require.True(t, ok)
	require.Equal(t, "Summarize this", CurrentText(p))
	require.Equal(t, 3, p.CopyCount)
	require.True(t, ValidCategory(doc.Categories[0]))
}

func TestDecodeDocument_RejectsBadShapes(t *testing.T) {
	cases := map[string]string{
		"array top level":      `[1,2]`,
		"prompts not an array": `{"prompts": {"id": "x"}}`,
		"malformed":            `{"prompts": [`,
		"null":                 `null`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDocument([]byte(body), FormatJSON)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Fatalf("DecodeDocument() error = %v, want INVALID_REQUEST", err)
			}
		})
	}
}

func TestEncodeDocument_RoundTrip(t *testing.T) {
	in := ExportDocument{
		Prompts: []Prompt{{
			ID: "p1", Title: "T", CategoryID: "c1", CopyCount: 2, CreatedAt: 1, UpdatedAt: 2,
			Versions: []Version{{Text: "a", Timestamp: 1}, {Text: "b", Timestamp: 2}},
		}},
		Categories: []Category{{ID: "c1", Name: "Work"}},
	}

	for _, format := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := EncodeDocument(in, format)
			require.NoError(t, err)

			doc, err := DecodeDocument(data, format)
			require.NoError(t, err)

			p, ok := Upgrade(doc.Prompts[0], testNow)
			require.True(t, ok)
			require.Equal(t, in.Prompts[0], p)

			var c Category
			require.NoError(t, json.Unmarshal(doc.Categories[0], &c))
			require.Equal(t, in.Categories[0], c)
		})
	}
}

func TestEncodeDocument_EmptyCollectionsAreArrays(t *testing.T) {
	data, err := EncodeDocument(ExportDocument{}, FormatJSON)
	require.NoError(t, err)
	require.JSONEq(t, `{"prompts":[],"categories":[]}`, string(data))
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{"a.json": FormatJSON, "a.YAML": FormatYAML, "a.yml": FormatYAML}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		if err != nil || got != want {
			t.Errorf("FormatFromPath(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := FormatFromPath("a.txt"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("FormatFromPath(a.txt) error = %v, want INVALID_REQUEST", err)
	}
}

func TestValidateCategoryCollection(t *testing.T) {
	require.NoError(t, ValidateCategoryCollection([]byte(`[{"id":"a","name":"A"}]`)))
	require.Error(t, ValidateCategoryCollection([]byte(`[{"id":"a","name":"A"},{"id":"b"}]`)))
	require.Error(t, ValidateCategoryCollection([]byte(`[{"id":"a","name":"   "}]`)))
	require.Error(t, ValidateCategoryCollection([]byte(`{"id":"a"}`)))
}
