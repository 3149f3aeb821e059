// Package merge reconciles an imported document with the current library.
package merge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

// Policy controls how an import combines with the current library.
type Policy string

const (
	// PolicyMerge keeps existing records and appends imported ones.
	PolicyMerge Policy = "merge"

	// PolicyReplace discards the current library in favor of the import.
	PolicyReplace Policy = "replace"
)

// ParsePolicy accepts "merge" or "replace" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyMerge:
		return PolicyMerge, nil
	case PolicyReplace:
		return PolicyReplace, nil
	}
	return "", errors.NewInvalidRequest("policy must be one of: merge, replace")
}

// Input is everything Reconcile needs. NewID must return ids that are unique
// with overwhelming probability; Reconcile still guards against reuse.
type Input struct {
	Current  prompt.ExportDocument
	Incoming prompt.Document
	Policy   Policy
	NewID    func() string
	Now      int64
}

// Issue describes one imported entry that was skipped or altered.
type Issue struct {
	Kind    string `json:"kind"` // "prompt" or "category"
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Issue codes.
const (
	IssueInvalidPrompt   = "INVALID_PROMPT"
	IssueInvalidCategory = "INVALID_CATEGORY"
	IssueDuplicateID     = "DUPLICATE_ID"
	IssueIDCollision     = "ID_COLLISION"
	IssueNameMatch       = "NAME_MATCH"
	IssueReassigned      = "ID_REASSIGNED"
)

// Result is the reconciled library plus import statistics.
type Result struct {
	Prompts    []prompt.Prompt   `json:"-"`
	Categories []prompt.Category `json:"-"`

	Policy             Policy  `json:"policy"`
	ImportedPrompts    int     `json:"imported_prompts"`
	ImportedCategories int     `json:"imported_categories"`
	SkippedPrompts     int     `json:"skipped_prompts"`
	SkippedCategories  int     `json:"skipped_categories"`
	RenamedPrompts     int     `json:"renamed_prompts"`
	MergedCategories   int     `json:"merged_categories"`
	Issues             []Issue `json:"issues,omitempty"`
}

type validCategory struct {
	index int
	cat   prompt.Category
}

type validPrompt struct {
	index int
	p     prompt.Prompt
}

// Reconcile computes the library that results from importing in.Incoming
// under in.Policy. It does not touch in.Current.
func Reconcile(in Input) (Result, error) {
	if in.Policy != PolicyMerge && in.Policy != PolicyReplace {
		return Result{}, errors.NewInvalidRequest("policy must be one of: merge, replace")
	}
	if in.NewID == nil {
		return Result{}, errors.NewInternal(fmt.Errorf("merge: NewID is required"))
	}

	res := Result{Policy: in.Policy}
	cats := validateCategories(in.Incoming.Categories, &res)
	prompts := validatePrompts(in.Incoming.Prompts, in.Now, &res)

	if len(cats) == 0 && len(prompts) == 0 {
		return Result{}, errors.NewInvalidRequest("import contains no valid prompts or categories")
	}

	if in.Policy == PolicyReplace {
		replace(cats, prompts, in.NewID, &res)
	} else {
		mergeInto(in.Current, cats, prompts, in.NewID, &res)
	}
	return res, nil
}

func replace(cats []validCategory, prompts []validPrompt, newID func() string, res *Result) {
	catIDs := make(map[string]bool, len(cats))
	res.Categories = make([]prompt.Category, 0, len(cats))
	for _, vc := range cats {
		if catIDs[vc.cat.ID] {
			res.SkippedCategories++
			res.Issues = append(res.Issues, Issue{
				Kind: "category", Index: vc.index, ID: vc.cat.ID, Code: IssueDuplicateID,
				Message: "category id appears earlier in the import",
			})
			continue
		}
		catIDs[vc.cat.ID] = true
		res.Categories = append(res.Categories, vc.cat)
		res.ImportedCategories++
	}

	promptIDs := make(map[string]bool, len(prompts))
	res.Prompts = make([]prompt.Prompt, 0, len(prompts))
	for _, vp := range prompts {
		p := vp.p
		assignID(&p, vp.index, promptIDs, newID, res)
		if p.CategoryID != prompt.CategoryAll && !catIDs[p.CategoryID] {
			p.CategoryID = prompt.CategoryAll
		}
		res.Prompts = append(res.Prompts, p)
		res.ImportedPrompts++
	}
}

func mergeInto(current prompt.ExportDocument, cats []validCategory, prompts []validPrompt, newID func() string, res *Result) {
	res.Categories = prompt.CloneCategories(current.Categories)
	catIDs := make(map[string]bool, len(res.Categories)+len(cats))
	byName := make(map[string]string, len(res.Categories)+len(cats))
	for _, c := range res.Categories {
		catIDs[c.ID] = true
		key := prompt.Normalize(c.Name)
		if _, ok := byName[key]; !ok {
			byName[key] = c.ID
		}
	}

	remap := make(map[string]string)
	for _, vc := range cats {
		key := prompt.Normalize(vc.cat.Name)
		if target, ok := byName[key]; ok {
			if _, seen := remap[vc.cat.ID]; !seen {
				remap[vc.cat.ID] = target
			}
			res.MergedCategories++
			res.Issues = append(res.Issues, Issue{
				Kind: "category", Index: vc.index, ID: vc.cat.ID, Code: IssueNameMatch,
				Message: fmt.Sprintf("merged into existing category %s", target),
			})
			continue
		}
		if catIDs[vc.cat.ID] {
			res.SkippedCategories++
			res.Issues = append(res.Issues, Issue{
				Kind: "category", Index: vc.index, ID: vc.cat.ID, Code: IssueIDCollision,
				Message: "category id already exists; existing category kept",
			})
			continue
		}
		catIDs[vc.cat.ID] = true
		byName[key] = vc.cat.ID
		res.Categories = append(res.Categories, vc.cat)
		res.ImportedCategories++
	}

	res.Prompts = prompt.CloneAll(current.Prompts)
	promptIDs := make(map[string]bool, len(res.Prompts)+len(prompts))
	for _, p := range res.Prompts {
		promptIDs[p.ID] = true
	}
	for _, vp := range prompts {
		p := vp.p
		assignID(&p, vp.index, promptIDs, newID, res)
		if target, ok := remap[p.CategoryID]; ok {
			p.CategoryID = target
		}
		if p.CategoryID != prompt.CategoryAll && !catIDs[p.CategoryID] {
			p.CategoryID = prompt.CategoryAll
		}
		res.Prompts = append(res.Prompts, p)
		res.ImportedPrompts++
	}
}

// assignID gives p a fresh id when its own is missing or already taken, then claims it.
func assignID(p *prompt.Prompt, index int, taken map[string]bool, newID func() string, res *Result) {
	if p.ID != "" && !taken[p.ID] {
		taken[p.ID] = true
		return
	}

	old := p.ID
	id := newID()
	for taken[id] || id == "" {
		id = newID()
	}
	p.ID = id
	taken[id] = true
	res.RenamedPrompts++

	msg := "missing id; assigned " + id
	if old != "" {
		msg = fmt.Sprintf("id %s already in use; assigned %s", old, id)
	}
	res.Issues = append(res.Issues, Issue{Kind: "prompt", Index: index, ID: old, Code: IssueReassigned, Message: msg})
}

func validateCategories(raw []json.RawMessage, res *Result) []validCategory {
	out := make([]validCategory, 0, len(raw))
	for i, r := range raw {
		var c prompt.Category
		if !prompt.ValidCategory(r) || json.Unmarshal(r, &c) != nil {
			res.SkippedCategories++
			res.Issues = append(res.Issues, Issue{
				Kind: "category", Index: i, Code: IssueInvalidCategory,
				Message: "category needs a non-empty id and name",
			})
			continue
		}
		c.Name = strings.TrimSpace(c.Name)
		out = append(out, validCategory{index: i, cat: c})
	}
	return out
}

func validatePrompts(raw []json.RawMessage, now int64, res *Result) []validPrompt {
	out := make([]validPrompt, 0, len(raw))
	for i, r := range raw {
		if !prompt.ValidPromptShape(r) {
			res.SkippedPrompts++
			res.Issues = append(res.Issues, Issue{Kind: "prompt", Index: i, Code: IssueInvalidPrompt, Message: "prompt must be an object"})
			continue
		}
		p, ok := prompt.Upgrade(r, now)
		if !ok {
			res.SkippedPrompts++
			res.Issues = append(res.Issues, Issue{Kind: "prompt", Index: i, Code: IssueInvalidPrompt, Message: "prompt could not be decoded"})
			continue
		}
		// imported ledgers obey the same cap as edited ones
		if over := len(p.Versions) - prompt.MaxVersions; over > 0 {
			p.Versions = append([]prompt.Version(nil), p.Versions[over:]...)
		}
		out = append(out, validPrompt{index: i, p: p})
	}
	return out
}
