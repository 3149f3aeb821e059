package library

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/merge"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// MaxImportBytes is the largest import file ImportFile will read.
const MaxImportBytes int64 = 16 << 20

// ImportInput contains parameters for ImportFile.
type ImportInput struct {
	Path   string       // required; .json, .yaml or .yml
	Policy merge.Policy // default: merge
}

// Import reconciles doc with the library under policy and persists the result.
// The pending undo is cleared so it cannot resurrect a replaced prompt.
func (s *Store) Import(ctx context.Context, doc prompt.Document, policy merge.Policy) (merge.Result, error) {
	if policy == "" {
		policy = merge.PolicyMerge
	}
	if policy != merge.PolicyMerge && policy != merge.PolicyReplace {
		return merge.Result{}, errors.NewInvalidRequest("policy must be one of: merge, replace")
	}

	cur, err := s.begin(ctx, "import")
	if err != nil {
		return merge.Result{}, err
	}
	defer s.writeMu.Unlock()

	res, err := merge.Reconcile(merge.Input{
		Current:  prompt.ExportDocument{Prompts: cur.prompts, Categories: cur.categories},
		Incoming: doc,
		Policy:   policy,
		NewID:    s.newID,
		Now:      s.nowMs(),
	})
	if err != nil {
		return merge.Result{}, err
	}

	next := state{prompts: res.Prompts, categories: res.Categories}
	include := storage.IncludePrompts | storage.IncludeCategories | storage.IncludeUndo
	if err := s.commit(ctx, "import", cur, next, include); err != nil {
		return merge.Result{}, err
	}

	s.log.Info("library imported",
		logger.String("policy", string(policy)),
		logger.Int("prompts", res.ImportedPrompts),
		logger.Int("categories", res.ImportedCategories),
		logger.Int("skipped", res.SkippedPrompts+res.SkippedCategories))
	return res, nil
}

// ImportFile reads a document from disk and imports it.
func (s *Store) ImportFile(ctx context.Context, in ImportInput) (*merge.Result, error) {
	if err := ValidatePath(in.Path, PathCheckRead, s.exportsDir, s.cfg); err != nil {
		return nil, err
	}
	format, err := prompt.FormatFromPath(in.Path)
	if err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(in.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	data, err := readLimited(file, MaxImportBytes)
	if err != nil {
		return nil, err
	}

	doc, err := prompt.DecodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	res, err := s.Import(ctx, doc, in.Policy)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// readLimited reads all of f, failing with FILE_TOO_LARGE past max bytes.
func readLimited(f *os.File, max int64) ([]byte, error) {
	if info, err := f.Stat(); err == nil && info.Size() > max {
		return nil, errors.NewFileTooLarge(max, info.Size())
	}
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if int64(len(data)) > max {
		return nil, errors.NewFileTooLarge(max, int64(len(data)))
	}
	return data, nil
}
