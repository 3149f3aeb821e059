package library

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

// ExportInput contains parameters for ExportFile.
type ExportInput struct {
	Path   string        // optional, default: <exportsDir>/prompts-<timestamp>.<format>
	Format prompt.Format // used only when Path is empty; default json
}

// ExportOutput contains the result of ExportFile.
type ExportOutput struct {
	Path       string `json:"path"`
	Prompts    int    `json:"prompts"`
	Categories int    `json:"categories"`
	ExportedAt int64  `json:"exported_at"`
}

// Export encodes the live library as a document.
func (s *Store) Export(format prompt.Format) ([]byte, error) {
	return prompt.EncodeDocument(s.Snapshot(), format)
}

// ExportFile writes the library to disk. The file is written to a temp file
// and renamed into place, so an existing export survives a failed write.
func (s *Store) ExportFile(ctx context.Context, in ExportInput) (*ExportOutput, error) {
	now := s.now()

	exportPath := in.Path
	format := in.Format
	if exportPath == "" {
		if format == "" {
			format = prompt.FormatJSON
		}
		if s.exportsDir == "" {
			return nil, errors.NewInvalidRequest("path is required (no exports directory configured)")
		}
		exportPath = defaultExportPath(s.exportsDir, format, now)
	} else {
		var err error
		if format, err = prompt.FormatFromPath(exportPath); err != nil {
			return nil, err
		}
	}

	if err := ValidatePath(exportPath, PathCheckWrite, s.exportsDir, s.cfg); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("export")
	}

	doc := s.Snapshot()
	data, err := prompt.EncodeDocument(doc, format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}
	if err := writeFileAtomic(exportPath, data); err != nil {
		return nil, err
	}

	s.log.Info("library exported",
		logger.String("path", exportPath),
		logger.Int("prompts", len(doc.Prompts)),
		logger.Int("categories", len(doc.Categories)))

	return &ExportOutput{
		Path:       exportPath,
		Prompts:    len(doc.Prompts),
		Categories: len(doc.Categories),
		ExportedAt: now.UnixMilli(),
	}, nil
}

func defaultExportPath(dir string, format prompt.Format, now time.Time) string {
	ext := ".json"
	if format == prompt.FormatYAML {
		ext = ".yaml"
	}
	return filepath.Join(dir, "prompts-"+now.Format("2006-01-02T150405")+ext)
}

func writeFileAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("export path is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists. Fail and keep
	// the existing file rather than delete-then-rename.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}
