package library

import (
	"context"
	"fmt"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// DeletePrompt removes the prompt and records it in the undo buffer,
// replacing any earlier entry. Prompts and the buffer are saved together.
func (s *Store) DeletePrompt(ctx context.Context, id string) (prompt.Deleted, error) {
	cur, err := s.begin(ctx, "delete prompt")
	if err != nil {
		return prompt.Deleted{}, err
	}
	defer s.writeMu.Unlock()

	i := indexOfPrompt(cur.prompts, id)
	if i < 0 {
		return prompt.Deleted{}, errors.NewNotFound("prompt", id)
	}

	entry := &prompt.Deleted{
		Prompt:        prompt.Clone(cur.prompts[i]),
		OriginalIndex: i,
		DeletedAt:     s.nowMs(),
	}

	remaining := make([]prompt.Prompt, 0, len(cur.prompts)-1)
	remaining = append(remaining, cur.prompts[:i]...)
	remaining = append(remaining, cur.prompts[i+1:]...)

	next := cur
	next.prompts = remaining
	next.undo = entry
	if err := s.commit(ctx, "delete prompt", cur, next, storage.IncludePrompts|storage.IncludeUndo); err != nil {
		return prompt.Deleted{}, err
	}
	if cur.undo != nil {
		s.log.Debug("undo buffer overwritten", logger.String("discarded_id", cur.undo.Prompt.ID))
	}
	return *prompt.CloneDeleted(entry), nil
}

// RevertDeletedPrompt puts the buffered prompt back at its original index
// (clamped to the current length) and empties the buffer.
func (s *Store) RevertDeletedPrompt(ctx context.Context) (prompt.Prompt, error) {
	cur, err := s.begin(ctx, "undo delete")
	if err != nil {
		return prompt.Prompt{}, err
	}
	defer s.writeMu.Unlock()

	if cur.undo == nil {
		return prompt.Prompt{}, errors.NewUndoEmpty()
	}
	restored := prompt.Clone(cur.undo.Prompt)
	if indexOfPrompt(cur.prompts, restored.ID) >= 0 {
		return prompt.Prompt{}, errors.NewConflict(fmt.Sprintf("a prompt with id %s already exists", restored.ID))
	}
	// the category may have been deleted while the prompt sat in the buffer
	if !categoryExists(cur.categories, restored.CategoryID) {
		restored.CategoryID = prompt.CategoryAll
	}

	at := cur.undo.OriginalIndex
	if at > len(cur.prompts) {
		at = len(cur.prompts)
	}
	if at < 0 {
		at = 0
	}

	prompts := make([]prompt.Prompt, 0, len(cur.prompts)+1)
	prompts = append(prompts, cur.prompts[:at]...)
	prompts = append(prompts, restored)
	prompts = append(prompts, cur.prompts[at:]...)

	next := cur
	next.prompts = prompts
	next.undo = nil
	if err := s.commit(ctx, "undo delete", cur, next, storage.IncludePrompts|storage.IncludeUndo); err != nil {
		return prompt.Prompt{}, err
	}
	return prompt.Clone(restored), nil
}
