package library

import (
	"context"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// DeletePromptVersion removes one entry from the prompt's history. The last
// remaining version cannot be removed. UpdatedAt changes only when the
// current version was the one removed.
func (s *Store) DeletePromptVersion(ctx context.Context, id string, index int) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "delete version")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	i := indexOfPrompt(cur.prompts, id)
	if i < 0 {
		return prompt.Prompt{}, errors.NewNotFound("prompt", id)
	}

	p := prompt.Clone(cur.prompts[i])
	removedCurrent, err := prompt.RemoveVersion(&p, index)
	if err != nil {
		return prompt.Prompt{}, err
	}
	if removedCurrent {
		p.UpdatedAt = s.nowMs()
	}

	next := cur
	next.prompts = replaceAt(cur.prompts, i, p)
	if err := s.commit(ctx, "delete version", cur, next, storage.IncludePrompts); err != nil {
		return prompt.Prompt{}, err
	}
	return prompt.Clone(p), nil
}

// RestorePromptVersion makes the text of versions[index] current again by
// appending it as a new version. Restoring the current text is a no-op.
func (s *Store) RestorePromptVersion(ctx context.Context, id string, index int) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "restore version")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	i := indexOfPrompt(cur.prompts, id)
	if i < 0 {
		return prompt.Prompt{}, errors.NewNotFound("prompt", id)
	}
	versions := cur.prompts[i].Versions
	if index < 0 || index >= len(versions) {
		return prompt.Prompt{}, errors.NewOutOfRange("version", index, len(versions))
	}

	text := versions[index].Text
	return s.updateLocked(ctx, "restore version", cur, id, PromptPatch{Text: &text})
}
