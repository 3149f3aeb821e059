package storage

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

// RetryPolicy controls how failed writes are retried.
type RetryPolicy struct {
	// Retries is the number of extra attempts after the first failure
	Retries int
	Delay   time.Duration
}

// Collection selects which parts of a Snapshot are written.
type Collection uint8

const (
	IncludePrompts Collection = 1 << iota
	IncludeCategories
	IncludeUndo
)

// Snapshot is a set of collections written in one atomic SetMany.
// Only the collections named in Include are touched; a nil Undo with
// IncludeUndo clears the pending undo.
type Snapshot struct {
	Prompts    []prompt.Prompt
	Categories []prompt.Category
	Undo       *prompt.Deleted
	Include    Collection
}

// Adapter is the typed load/save contract over a Backend.
type Adapter struct {
	backend Backend
	log     logger.Logger
	policy  RetryPolicy
}

// NewAdapter wraps backend. A nil log discards output.
func NewAdapter(backend Backend, log logger.Logger, policy RetryPolicy) *Adapter {
	if log == nil {
		log = logger.NewNop()
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &Adapter{backend: backend, log: log, policy: policy}
}

// Close closes the underlying backend.
func (a *Adapter) Close() error {
	return a.backend.Close()
}

// LoadPrompts returns the stored prompt records undecoded. A missing key is an
// empty library; a value that is not a JSON array is removed and treated as empty.
func (a *Adapter) LoadPrompts(ctx context.Context) ([]json.RawMessage, error) {
	data, found, err := a.backend.Get(ctx, KeyPrompts)
	if err != nil {
		return nil, err
	}
	if !found {
		return []json.RawMessage{}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		a.log.Warn("stored prompts are not an array; resetting", logger.String("key", KeyPrompts), logger.Error(err))
		a.reset(ctx, KeyPrompts)
		return []json.RawMessage{}, nil
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// SavePrompts replaces the stored prompt list.
func (a *Adapter) SavePrompts(ctx context.Context, prompts []prompt.Prompt) error {
	return a.SaveAll(ctx, Snapshot{Prompts: prompts, Include: IncludePrompts})
}

// LoadCategories returns the stored categories. If any entry lacks a
// non-empty id or name the whole collection is removed and treated as empty.
func (a *Adapter) LoadCategories(ctx context.Context) ([]prompt.Category, error) {
	data, found, err := a.backend.Get(ctx, KeyCategories)
	if err != nil {
		return nil, err
	}
	if !found {
		return []prompt.Category{}, nil
	}

	if err := prompt.ValidateCategoryCollection(data); err != nil {
		a.log.Warn("stored categories are invalid; resetting", logger.String("key", KeyCategories), logger.Error(err))
		a.reset(ctx, KeyCategories)
		return []prompt.Category{}, nil
	}

	var categories []prompt.Category
	if err := json.Unmarshal(data, &categories); err != nil {
		a.log.Warn("stored categories are invalid; resetting", logger.String("key", KeyCategories), logger.Error(err))
		a.reset(ctx, KeyCategories)
		return []prompt.Category{}, nil
	}
	return categories, nil
}

// SaveCategories replaces the stored category list.
func (a *Adapter) SaveCategories(ctx context.Context, categories []prompt.Category) error {
	return a.SaveAll(ctx, Snapshot{Categories: categories, Include: IncludeCategories})
}

// SavePromptsWithUndo writes the prompt list and the undo slot together.
func (a *Adapter) SavePromptsWithUndo(ctx context.Context, prompts []prompt.Prompt, undo *prompt.Deleted) error {
	return a.SaveAll(ctx, Snapshot{Prompts: prompts, Undo: undo, Include: IncludePrompts | IncludeUndo})
}

// SaveAll writes every collection named in snap.Include in one atomic SetMany.
func (a *Adapter) SaveAll(ctx context.Context, snap Snapshot) error {
	entries, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return a.write(ctx, collectionName(snap.Include), entries)
}

// Applied reports whether the backend already holds exactly what SaveAll
// would write for snap. A write whose deadline passed may still have landed;
// this tells the two cases apart.
func (a *Adapter) Applied(ctx context.Context, snap Snapshot) (bool, error) {
	entries, err := encodeSnapshot(snap)
	if err != nil {
		return false, err
	}
	for key, want := range entries {
		got, found, err := a.backend.Get(ctx, key)
		if err != nil {
			return false, err
		}
		if !found || !bytes.Equal(got, want) {
			return false, nil
		}
	}
	return true, nil
}

func encodeSnapshot(snap Snapshot) (map[string][]byte, error) {
	entries := make(map[string][]byte, 3)

	if snap.Include&IncludePrompts != 0 {
		prompts := snap.Prompts
		if prompts == nil {
			prompts = []prompt.Prompt{}
		}
		b, err := json.Marshal(prompts)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries[KeyPrompts] = b
	}
	if snap.Include&IncludeCategories != 0 {
		categories := snap.Categories
		if categories == nil {
			categories = []prompt.Category{}
		}
		b, err := json.Marshal(categories)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries[KeyCategories] = b
	}
	if snap.Include&IncludeUndo != 0 {
		b, err := json.Marshal(snap.Undo)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		entries[KeyPendingUndo] = b
	}
	return entries, nil
}

// LoadPendingUndo returns the persisted undo entry, or nil. Corrupt data is
// removed.
func (a *Adapter) LoadPendingUndo(ctx context.Context) (*prompt.Deleted, error) {
	data, found, err := a.backend.Get(ctx, KeyPendingUndo)
	if err != nil {
		return nil, err
	}
	if !found || string(data) == "null" {
		return nil, nil
	}

	var stored struct {
		Prompt        json.RawMessage `json:"prompt"`
		OriginalIndex int             `json:"originalIndex"`
		DeletedAt     int64           `json:"deletedAt"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		a.log.Warn("stored undo entry is invalid; clearing", logger.Error(err))
		a.reset(ctx, KeyPendingUndo)
		return nil, nil
	}
	p, ok := prompt.Upgrade(stored.Prompt, time.Now().UnixMilli())
	if !ok || p.ID == "" {
		a.log.Warn("stored undo entry has no prompt; clearing")
		a.reset(ctx, KeyPendingUndo)
		return nil, nil
	}
	if stored.OriginalIndex < 0 {
		stored.OriginalIndex = 0
	}
	return &prompt.Deleted{Prompt: p, OriginalIndex: stored.OriginalIndex, DeletedAt: stored.DeletedAt}, nil
}

// LoadThemePreference returns the stored theme, or the default when it is
// missing, invalid or unreadable.
func (a *Adapter) LoadThemePreference(ctx context.Context) prompt.Theme {
	data, found, err := a.backend.Get(ctx, KeyTheme)
	if err != nil {
		a.log.Warn("could not load theme preference", logger.Error(err))
		return prompt.DefaultTheme
	}
	if !found {
		return prompt.DefaultTheme
	}

	var theme prompt.Theme
	if err := json.Unmarshal(data, &theme); err != nil || !theme.Valid() {
		return prompt.DefaultTheme
	}
	return theme
}

// SaveThemePreference stores theme. Unknown themes are rejected.
func (a *Adapter) SaveThemePreference(ctx context.Context, theme prompt.Theme) error {
	if !theme.Valid() {
		return errors.NewInvalidRequest("theme must be one of: light, dark, auto")
	}
	b, err := json.Marshal(theme)
	if err != nil {
		return errors.NewInternal(err)
	}
	return a.write(ctx, "theme", map[string][]byte{KeyTheme: b})
}

func (a *Adapter) write(ctx context.Context, op string, entries map[string][]byte) error {
	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			return a.backend.SetMany(ctx, entries)
		},
		retry.Context(ctx),
		retry.Attempts(uint(a.policy.Retries+1)),
		retry.Delay(a.policy.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !isContextErr(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			a.log.Debug("retrying write", logger.String("op", op), logger.Int("attempt", int(n)+1), logger.Error(err))
		}),
	)
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.Canceled) {
		return errors.NewCancelled("save " + op)
	}
	a.log.Error("write failed", logger.String("op", op), logger.Int("attempts", attempt), logger.Error(err))
	return errors.NewPersistenceFailed(op, err)
}

func (a *Adapter) reset(ctx context.Context, key string) {
	if err := a.backend.Remove(ctx, key); err != nil {
		a.log.Warn("could not remove corrupt value", logger.String("key", key), logger.Error(err))
	}
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

func collectionName(c Collection) string {
	switch c {
	case IncludePrompts:
		return "prompts"
	case IncludeCategories:
		return "categories"
	case IncludePrompts | IncludeUndo:
		return "prompts and undo"
	case IncludePrompts | IncludeCategories:
		return "prompts and categories"
	default:
		return "library"
	}
}
