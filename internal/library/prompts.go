package library

import (
	"context"
	"strings"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// NewPrompt contains parameters for AddPrompt.
type NewPrompt struct {
	Title string
	Text  string

	// CategoryID is optional; empty means "all"
	CategoryID string
}

// PromptPatch lists the fields UpdatePrompt may change. Nil fields are left alone.
type PromptPatch struct {
	Title      *string
	Text       *string
	CategoryID *string
	IsFavorite *bool
}

// AddPrompt creates a prompt with a single version and puts it first in the list.
func (s *Store) AddPrompt(ctx context.Context, in NewPrompt) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "add prompt")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	categoryID := strings.TrimSpace(in.CategoryID)
	if categoryID == "" {
		categoryID = prompt.CategoryAll
	}
	if !categoryExists(cur.categories, categoryID) {
		return prompt.Prompt{}, errors.NewInvalidReference(categoryID)
	}

	taken := make(map[string]bool, len(cur.prompts))
	for _, p := range cur.prompts {
		taken[p.ID] = true
	}

	now := s.nowMs()
	p := prompt.Prompt{
		ID:         s.uniqueID(taken),
		Title:      strings.TrimSpace(in.Title),
		Versions:   []prompt.Version{{Text: in.Text, Timestamp: now}},
		CategoryID: categoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	next := cur
	next.prompts = make([]prompt.Prompt, 0, len(cur.prompts)+1)
	next.prompts = append(next.prompts, p)
	next.prompts = append(next.prompts, cur.prompts...)

	if err := s.commit(ctx, "add prompt", cur, next, storage.IncludePrompts); err != nil {
		return prompt.Prompt{}, err
	}
	return prompt.Clone(p), nil
}

// UpdatePrompt applies patch to the prompt with id. A text change appends a
// version; a patch that changes nothing is not persisted.
func (s *Store) UpdatePrompt(ctx context.Context, id string, patch PromptPatch) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "update prompt")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	return s.updateLocked(ctx, "update prompt", cur, id, patch)
}

func (s *Store) updateLocked(ctx context.Context, op string, cur state, id string, patch PromptPatch) (prompt.Prompt, error) {
	i := indexOfPrompt(cur.prompts, id)
	if i < 0 {
		return prompt.Prompt{}, errors.NewNotFound("prompt", id)
	}

	if patch.CategoryID != nil {
		categoryID := strings.TrimSpace(*patch.CategoryID)
		if categoryID == "" {
			categoryID = prompt.CategoryAll
		}
		if !categoryExists(cur.categories, categoryID) {
			return prompt.Prompt{}, errors.NewInvalidReference(categoryID)
		}
		patch.CategoryID = &categoryID
	}

	p := prompt.Clone(cur.prompts[i])
	now := s.nowMs()
	changed := false

	if patch.Title != nil {
		if title := strings.TrimSpace(*patch.Title); title != p.Title {
			p.Title = title
			changed = true
		}
	}
	if patch.Text != nil && *patch.Text != prompt.CurrentText(p) {
		prompt.AppendVersion(&p, *patch.Text, now)
		changed = true
	}
	if patch.CategoryID != nil && *patch.CategoryID != p.CategoryID {
		p.CategoryID = *patch.CategoryID
		changed = true
	}
	if patch.IsFavorite != nil && *patch.IsFavorite != p.IsFavorite {
		p.IsFavorite = *patch.IsFavorite
		changed = true
	}

	if !changed {
		return p, nil
	}
	p.UpdatedAt = now

	next := cur
	next.prompts = replaceAt(cur.prompts, i, p)
	if err := s.commit(ctx, op, cur, next, storage.IncludePrompts); err != nil {
		return prompt.Prompt{}, err
	}
	return prompt.Clone(p), nil
}

// IncrementCopyCount records one copy of the prompt. UpdatedAt is not touched.
func (s *Store) IncrementCopyCount(ctx context.Context, id string) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "copy prompt")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	i := indexOfPrompt(cur.prompts, id)
	if i < 0 {
		return prompt.Prompt{}, errors.NewNotFound("prompt", id)
	}

	p := prompt.Clone(cur.prompts[i])
	p.CopyCount++

	next := cur
	next.prompts = replaceAt(cur.prompts, i, p)
	if err := s.commit(ctx, "copy prompt", cur, next, storage.IncludePrompts); err != nil {
		return prompt.Prompt{}, err
	}
	return prompt.Clone(p), nil
}

// ReorderPrompts moves the prompt at oldIndex to newIndex, shifting the ones
// in between. Equal indices do nothing.
func (s *Store) ReorderPrompts(ctx context.Context, oldIndex, newIndex int) error {
	cur, err := s.begin(ctx, "reorder prompts")
	if err != nil {
		return err
	}
	defer s.writeMu.Unlock()

	n := len(cur.prompts)
	if oldIndex < 0 || oldIndex >= n {
		return errors.NewOutOfRange("prompt", oldIndex, n)
	}
	if newIndex < 0 || newIndex >= n {
		return errors.NewOutOfRange("prompt", newIndex, n)
	}
	if oldIndex == newIndex {
		return nil
	}

	moved := cur.prompts[oldIndex]
	rest := make([]prompt.Prompt, 0, n)
	rest = append(rest, cur.prompts[:oldIndex]...)
	rest = append(rest, cur.prompts[oldIndex+1:]...)

	reordered := make([]prompt.Prompt, 0, n)
	reordered = append(reordered, rest[:newIndex]...)
	reordered = append(reordered, moved)
	reordered = append(reordered, rest[newIndex:]...)

	next := cur
	next.prompts = reordered
	if err := s.commit(ctx, "reorder prompts", cur, next, storage.IncludePrompts); err != nil {
		return err
	}
	s.log.Debug("prompt moved", logger.String("prompt_id", moved.ID), logger.Int("from", oldIndex), logger.Int("to", newIndex))
	return nil
}

// replaceAt returns a copy of prompts with element i replaced by p.
func replaceAt(prompts []prompt.Prompt, i int, p prompt.Prompt) []prompt.Prompt {
	out := make([]prompt.Prompt, len(prompts))
	copy(out, prompts)
	out[i] = p
	return out
}
