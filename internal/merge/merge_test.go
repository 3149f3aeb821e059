package merge

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

const now = int64(1_700_000_000_000)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("new-%d", n)
	}
}

func existingPrompt(id, cat string) prompt.Prompt {
	return prompt.Prompt{
		ID:         id,
		Title:      "existing " + id,
		Versions:   []prompt.Version{{Text: "existing text " + id, Timestamp: 10}},
		CategoryID: cat,
		CreatedAt:  10,
		UpdatedAt:  10,
	}
}

func doc(t *testing.T, body string) prompt.Document {
	t.Helper()
	d, err := prompt.DecodeDocument([]byte(body), prompt.FormatJSON)
	require.NoError(t, err)
	return d
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" Merge ")
	require.NoError(t, err)
	require.Equal(t, PolicyMerge, p)

	p, err = ParsePolicy("replace")
	require.NoError(t, err)
	require.Equal(t, PolicyReplace, p)

	_, err = ParsePolicy("append")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestReconcile_NothingValid(t *testing.T) {
	_, err := Reconcile(Input{
		Incoming: doc(t, `{"prompts":[1,"x",null],"categories":[{"id":"c"}]}`),
		Policy:   PolicyMerge,
		NewID:    seqIDs(),
		Now:      now,
	})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestReconcile_ReplaceWipes(t *testing.T) {
	current := prompt.ExportDocument{
		Prompts:    []prompt.Prompt{existingPrompt("old1", "c-old"), existingPrompt("old2", prompt.CategoryAll)},
		Categories: []prompt.Category{{ID: "c-old", Name: "Old"}},
	}
	incoming := doc(t, `{
		"prompts": [
			{"id": "p1", "title": "One", "versions": [{"text": "one", "timestamp": 5}], "categoryId": "c1"},
			{"id": "p1", "title": "Dup", "text": "dup"},
			{"title": "No id", "text": "none", "categoryId": "c-old"}
		],
		"categories": [
			{"id": "c1", "name": "Work"},
			{"id": "c1", "name": "Shadow"}
		]
	}`)

	res, err := Reconcile(Input{Current: current, Incoming: incoming, Policy: PolicyReplace, NewID: seqIDs(), Now: now})
	require.NoError(t, err)

	require.Equal(t, []prompt.Category{{ID: "c1", Name: "Work"}}, res.Categories)
	require.Len(t, res.Prompts, 3)
	require.Equal(t, "p1", res.Prompts[0].ID)
	require.Equal(t, "c1", res.Prompts[0].CategoryID)
	require.Equal(t, "new-1", res.Prompts[1].ID)
	require.Equal(t, "new-2", res.Prompts[2].ID)
	require.Equal(t, prompt.CategoryAll, res.Prompts[2].CategoryID, "category from the wiped library must not survive")

	for _, p := range res.Prompts {
		require.NotEqual(t, "old1", p.ID)
		require.NotEqual(t, "old2", p.ID)
	}
	require.Equal(t, 3, res.ImportedPrompts)
	require.Equal(t, 1, res.ImportedCategories)
	require.Equal(t, 1, res.SkippedCategories)
	require.Equal(t, 2, res.RenamedPrompts)
}

func TestReconcile_MergeIDCollision(t *testing.T) {
	current := prompt.ExportDocument{
		Prompts: []prompt.Prompt{existingPrompt("a", prompt.CategoryAll), existingPrompt("b", prompt.CategoryAll)},
	}
	incoming := doc(t, `{"prompts": [
		{"id": "b", "title": "imported b", "text": "new b"},
		{"id": "c", "title": "imported c", "text": "new c"}
	]}`)

	res, err := Reconcile(Input{Current: current, Incoming: incoming, Policy: PolicyMerge, NewID: seqIDs(), Now: now})
	require.NoError(t, err)

	require.Len(t, res.Prompts, 4)
	require.Equal(t, current.Prompts[0], res.Prompts[0])
	require.Equal(t, current.Prompts[1], res.Prompts[1], "existing b must be untouched")
	require.Equal(t, "new-1", res.Prompts[2].ID)
	require.Equal(t, "new b", prompt.CurrentText(res.Prompts[2]))
	require.Equal(t, "c", res.Prompts[3].ID)
	require.Equal(t, 1, res.RenamedPrompts)
}

func TestReconcile_MergeCategoryByName(t *testing.T) {
	current := prompt.ExportDocument{
		Categories: []prompt.Category{{ID: "work", Name: "Work"}},
	}
	incoming := doc(t, `{
		"categories": [
			{"id": "imp-work", "name": "  WORK "},
			{"id": "imp-ideas", "name": "Ideas"},
			{"id": "imp-ideas-2", "name": "ideas"}
		],
		"prompts": [
			{"id": "p1", "text": "x", "categoryId": "imp-work"},
			{"id": "p2", "text": "y", "categoryId": "imp-ideas-2"},
			{"id": "p3", "text": "z", "categoryId": "nowhere"}
		]
	}`)

	res, err := Reconcile(Input{Current: current, Incoming: incoming, Policy: PolicyMerge, NewID: seqIDs(), Now: now})
	require.NoError(t, err)

	require.Equal(t, []prompt.Category{{ID: "work", Name: "Work"}, {ID: "imp-ideas", Name: "Ideas"}}, res.Categories)
	require.Equal(t, 2, res.MergedCategories)
	require.Equal(t, 1, res.ImportedCategories)

	byID := map[string]prompt.Prompt{}
	for _, p := range res.Prompts {
		byID[p.ID] = p
	}
	require.Equal(t, "work", byID["p1"].CategoryID)
	require.Equal(t, "imp-ideas", byID["p2"].CategoryID)
	require.Equal(t, prompt.CategoryAll, byID["p3"].CategoryID)
}

func TestReconcile_MergeCategoryIDCollisionKeepsExisting(t *testing.T) {
	current := prompt.ExportDocument{
		Categories: []prompt.Category{{ID: "c1", Name: "Work"}},
	}
	incoming := doc(t, `{
		"categories": [{"id": "c1", "name": "Personal"}],
		"prompts": [{"id": "p1", "text": "x", "categoryId": "c1"}]
	}`)

	res, err := Reconcile(Input{Current: current, Incoming: incoming, Policy: PolicyMerge, NewID: seqIDs(), Now: now})
	require.NoError(t, err)

	require.Equal(t, []prompt.Category{{ID: "c1", Name: "Work"}}, res.Categories)
	require.Equal(t, 1, res.SkippedCategories)
	require.Equal(t, "c1", res.Prompts[0].CategoryID)
}

func TestReconcile_DoesNotMutateCurrent(t *testing.T) {
	current := prompt.ExportDocument{
		Prompts:    []prompt.Prompt{existingPrompt("a", prompt.CategoryAll)},
		Categories: []prompt.Category{{ID: "c1", Name: "Work"}},
	}
	before, err := json.Marshal(current)
	require.NoError(t, err)

	res, err := Reconcile(Input{
		Current:  current,
		Incoming: doc(t, `{"prompts":[{"id":"b","text":"b"}],"categories":[{"id":"c2","name":"Play"}]}`),
		Policy:   PolicyMerge,
		NewID:    seqIDs(),
		Now:      now,
	})
	require.NoError(t, err)
	res.Prompts[0].Versions[0].Text = "mutated"

	after, err := json.Marshal(current)
	require.NoError(t, err)
	require.JSONEq(t, string(before), string(after))
}

func TestReconcile_CapsImportedLedger(t *testing.T) {
	versions := make([]prompt.Version, 30)
	for i := range versions {
		versions[i] = prompt.Version{Text: fmt.Sprintf("v%d", i), Timestamp: int64(i + 1)}
	}
	body, err := json.Marshal(map[string]any{"prompts": []any{map[string]any{"id": "p", "versions": versions}}})
	require.NoError(t, err)

	res, err := Reconcile(Input{Incoming: doc(t, string(body)), Policy: PolicyReplace, NewID: seqIDs(), Now: now})
	require.NoError(t, err)
	require.Len(t, res.Prompts[0].Versions, prompt.MaxVersions)
	require.Equal(t, "v29", prompt.CurrentText(res.Prompts[0]))
}

func TestReconcile_SkipsInvalidEntries(t *testing.T) {
	res, err := Reconcile(Input{
		Incoming: doc(t, `{"prompts":[{"id":"ok","text":"x"}, 42],"categories":[{"id":"","name":"x"}]}`),
		Policy:   PolicyMerge,
		NewID:    seqIDs(),
		Now:      now,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.ImportedPrompts)
	require.Equal(t, 1, res.SkippedPrompts)
	require.Equal(t, 1, res.SkippedCategories)
	require.NotEmpty(t, res.Issues)
}
