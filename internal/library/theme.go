package library

import (
	"context"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

// Theme returns the stored theme preference, or the default.
func (s *Store) Theme(ctx context.Context) prompt.Theme {
	return s.adapter.LoadThemePreference(ctx)
}

// SetTheme stores the theme preference.
func (s *Store) SetTheme(ctx context.Context, theme prompt.Theme) error {
	if !theme.Valid() {
		return errors.NewInvalidRequest("theme must be one of: light, dark, auto")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	return s.adapter.SaveThemePreference(pctx, theme)
}
