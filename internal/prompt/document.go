package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/promptkeep/internal/errors"
)

// Format is a document serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension (.json, .yaml, .yml).
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", errors.NewInvalidRequest("file must have .json, .yaml or .yml extension")
}

// ParseFormat accepts "json", "yaml" or "yml". Empty means json.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (expected json or yaml)", s))
}

// Document is an import payload. Entries stay raw so legacy and partial
// shapes reach per-entry validation.
type Document struct {
	Prompts    []json.RawMessage `json:"prompts"`
	Categories []json.RawMessage `json:"categories"`
}

// ExportDocument is the serialized form of a whole library.
type ExportDocument struct {
	Prompts    []Prompt   `json:"prompts" yaml:"prompts"`
	Categories []Category `json:"categories" yaml:"categories"`
}

// ToDocument converts an export document into import form.
func (d ExportDocument) ToDocument() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return Document{}, err
	}
	return DecodeDocument(data, FormatJSON)
}

// DecodeDocument parses data as a {prompts, categories} document.
// The top level must be an object; prompts and categories must be arrays when present.
func DecodeDocument(data []byte, format Format) (Document, error) {
	var tree any
	switch format {
	case FormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&tree); err != nil {
			return Document{}, errors.NewInvalidRequest(fmt.Sprintf("invalid JSON: %v", err))
		}
	case FormatYAML:
		var y any
		if err := yaml.Unmarshal(data, &y); err != nil {
			return Document{}, errors.NewInvalidRequest(fmt.Sprintf("invalid YAML: %v", err))
		}
		converted, err := jsonCompatible(y)
		if err != nil {
			return Document{}, errors.NewInvalidRequest(fmt.Sprintf("invalid YAML: %v", err))
		}
		tree = converted
	default:
		return Document{}, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", format))
	}

	if err := validateDocument(tree); err != nil {
		return Document{}, errors.NewInvalidRequest("document must be an object with prompts and categories arrays")
	}

	root := tree.(map[string]any)
	var doc Document
	var err error
	if doc.Prompts, err = rawEntries(root["prompts"]); err != nil {
		return Document{}, errors.NewInvalidRequest(err.Error())
	}
	if doc.Categories, err = rawEntries(root["categories"]); err != nil {
		return Document{}, errors.NewInvalidRequest(err.Error())
	}
	return doc, nil
}

// EncodeDocument serializes doc. JSON output is indented.
func EncodeDocument(doc ExportDocument, format Format) ([]byte, error) {
	if doc.Prompts == nil {
		doc.Prompts = []Prompt{}
	}
	if doc.Categories == nil {
		doc.Categories = []Category{}
	}
	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	}
	return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown format %q", format))
}

func rawEntries(v any) ([]json.RawMessage, error) {
	items, _ := v.([]any)
	out := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// jsonCompatible converts a yaml.v3 tree into the shapes encoding/json produces
// (string-keyed maps, float64 numbers).
func jsonCompatible(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(k)] = c
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			c, err := jsonCompatible(val)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case float64, string, bool, nil:
		return t, nil
	default:
		// timestamps and other tagged scalars round-trip through their JSON form
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		var out any
		if err := json.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
