package prompt

import (
	"encoding/json"
	"math"
)

// Schema versions of a stored prompt record, detected from its shape.
//
//	0: legacy, no versions array (optionally a flat "text")
//	1: versions array present, metadata incomplete
//	2: current
const (
	schemaLegacy         = 0
	schemaVersioned      = 1
	CurrentSchemaVersion = 2
)

type record = map[string]any

// migration upgrades a record from schema version `from` to from+1.
type migration struct {
	from  int
	apply func(rec record, now int64)
}

var migrations = []migration{
	{from: schemaLegacy, apply: synthesizeVersions},
	{from: schemaVersioned, apply: fillDefaults},
}

// Upgrade decodes a stored or imported prompt of any known shape and brings
// it to the current schema. ok is false when raw is not a JSON object.
// A missing id is left empty for the caller to assign.
func Upgrade(raw json.RawMessage, now int64) (Prompt, bool) {
	p, _, ok := UpgradeFrom(raw, now)
	return p, ok
}

// UpgradeFrom is Upgrade that also reports the schema version raw was detected as.
func UpgradeFrom(raw json.RawMessage, now int64) (Prompt, int, bool) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return Prompt{}, 0, false
	}

	version := DetectSchemaVersion(rec)
	for _, m := range migrations {
		if m.from >= version {
			m.apply(rec, now)
		}
	}
	return fromRecord(rec), version, true
}

// DetectSchemaVersion classifies a decoded record.
func DetectSchemaVersion(rec map[string]any) int {
	versions, ok := rec["versions"].([]any)
	if !ok {
		return schemaLegacy
	}
	if _, ok := rec["id"].(string); !ok {
		return schemaVersioned
	}
	if _, ok := rec["title"].(string); !ok {
		return schemaVersioned
	}
	if _, ok := rec["isFavorite"].(bool); !ok {
		return schemaVersioned
	}
	if cat, ok := rec["categoryId"].(string); !ok || cat == "" {
		return schemaVersioned
	}
	if n, ok := number(rec["copyCount"]); !ok || n < 0 {
		return schemaVersioned
	}
	if _, ok := timestamp(rec["createdAt"]); !ok {
		return schemaVersioned
	}
	if _, ok := timestamp(rec["updatedAt"]); !ok {
		return schemaVersioned
	}
	if len(versions) == 0 {
		return schemaVersioned
	}
	for _, v := range versions {
		entry, ok := v.(map[string]any)
		if !ok {
			return schemaVersioned
		}
		if _, ok := entry["text"].(string); !ok {
			return schemaVersioned
		}
		if _, ok := timestamp(entry["timestamp"]); !ok {
			return schemaVersioned
		}
	}
	return CurrentSchemaVersion
}

// synthesizeVersions turns a legacy flat-text record into a one-entry ledger.
func synthesizeVersions(rec record, now int64) {
	text, _ := rec["text"].(string)
	ts, ok := timestamp(rec["updatedAt"])
	if !ok {
		ts, ok = timestamp(rec["createdAt"])
	}
	if !ok {
		ts = now
	}
	rec["versions"] = []any{map[string]any{"text": text, "timestamp": float64(ts)}}
	delete(rec, "text")
}

// fillDefaults supplies every missing or invalid field.
func fillDefaults(rec record, now int64) {
	if _, ok := rec["id"].(string); !ok {
		rec["id"] = ""
	}
	if _, ok := rec["title"].(string); !ok {
		rec["title"] = ""
	}
	if _, ok := rec["isFavorite"].(bool); !ok {
		rec["isFavorite"] = false
	}
	if cat, ok := rec["categoryId"].(string); !ok || cat == "" {
		rec["categoryId"] = CategoryAll
	}
	if n, ok := number(rec["copyCount"]); !ok || n < 0 {
		rec["copyCount"] = float64(0)
	} else {
		rec["copyCount"] = math.Floor(n)
	}

	createdAt, ok := timestamp(rec["createdAt"])
	if !ok {
		createdAt = now
	}
	rec["createdAt"] = float64(createdAt)
	updatedAt, ok := timestamp(rec["updatedAt"])
	if !ok {
		updatedAt = createdAt
	}
	rec["updatedAt"] = float64(updatedAt)

	raw, _ := rec["versions"].([]any)
	versions := make([]any, 0, len(raw))
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		text, _ := entry["text"].(string)
		ts, ok := timestamp(entry["timestamp"])
		if !ok {
			ts = updatedAt
		}
		versions = append(versions, map[string]any{"text": text, "timestamp": float64(ts)})
	}
	if len(versions) == 0 {
		versions = append(versions, map[string]any{"text": "", "timestamp": float64(updatedAt)})
	}
	rec["versions"] = versions
}

func fromRecord(rec record) Prompt {
	p := Prompt{}
	p.ID, _ = rec["id"].(string)
	p.Title, _ = rec["title"].(string)
	p.CategoryID, _ = rec["categoryId"].(string)
	p.IsFavorite, _ = rec["isFavorite"].(bool)
	if n, ok := number(rec["copyCount"]); ok {
		p.CopyCount = int(n)
	}
	p.CreatedAt, _ = timestamp(rec["createdAt"])
	p.UpdatedAt, _ = timestamp(rec["updatedAt"])

	raw, _ := rec["versions"].([]any)
	p.Versions = make([]Version, 0, len(raw))
	for _, v := range raw {
		entry := v.(map[string]any)
		text, _ := entry["text"].(string)
		ts, _ := timestamp(entry["timestamp"])
		p.Versions = append(p.Versions, Version{Text: text, Timestamp: ts})
	}
	return p
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// timestamp accepts positive epoch-millisecond numbers.
func timestamp(v any) (int64, bool) {
	n, ok := number(v)
	if !ok || n <= 0 {
		return 0, false
	}
	return int64(n), true
}
