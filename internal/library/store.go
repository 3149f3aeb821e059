// Package library owns the in-memory prompt library and keeps it in step
// with the persistence backend.
package library

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// DefaultPersistTimeout bounds each persistence call when Options leave it unset.
const DefaultPersistTimeout = 5 * time.Second

// Options configures a Store. Zero values get sensible defaults.
type Options struct {
	Logger         logger.Logger
	Now            func() time.Time
	NewID          func() string
	PersistTimeout time.Duration

	// ExportsDir is the default directory for file exports and the first
	// allowed directory for file transfer.
	ExportsDir string

	Config *config.Config
}

// Store is the mutation engine. Every mutator applies its change in memory,
// persists, and restores the previous state if persisting fails.
type Store struct {
	adapter        *storage.Adapter
	log            logger.Logger
	now            func() time.Time
	newID          func() string
	persistTimeout time.Duration
	exportsDir     string
	cfg            *config.Config

	// writeMu admits one mutation at a time, held across apply, persist and rollback
	writeMu sync.Mutex

	mu         sync.RWMutex
	prompts    []prompt.Prompt
	categories []prompt.Category
	undo       *prompt.Deleted
	loaded     bool
}

// state is one consistent view of the three persisted collections.
type state struct {
	prompts    []prompt.Prompt
	categories []prompt.Category
	undo       *prompt.Deleted
}

// New creates a Store over adapter. Call Load before mutating.
func New(adapter *storage.Adapter, opts Options) *Store {
	s := &Store{
		adapter:        adapter,
		log:            opts.Logger,
		now:            opts.Now,
		newID:          opts.NewID,
		persistTimeout: opts.PersistTimeout,
		exportsDir:     opts.ExportsDir,
		cfg:            opts.Config,
		prompts:        []prompt.Prompt{},
		categories:     []prompt.Category{},
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = NewID
	}
	if s.persistTimeout <= 0 {
		s.persistTimeout = DefaultPersistTimeout
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	return s
}

// NewID returns a new ULID string.
func NewID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Load reads every collection from the backend, upgrading old prompt records.
// A corrupt collection is reset on its own; a backend read error fails the load.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	nowMs := s.now().UnixMilli()

	records, err := s.adapter.LoadPrompts(ctx)
	if err != nil {
		return errors.NewPersistenceFailed("load prompts", err)
	}
	categories, err := s.adapter.LoadCategories(ctx)
	if err != nil {
		return errors.NewPersistenceFailed("load categories", err)
	}
	undo, err := s.adapter.LoadPendingUndo(ctx)
	if err != nil {
		return errors.NewPersistenceFailed("load pending undo", err)
	}

	catIDs := categoryIDSet(categories)
	seen := make(map[string]bool, len(records))
	prompts := make([]prompt.Prompt, 0, len(records))
	repaired := false

	for i, raw := range records {
		p, version, ok := prompt.UpgradeFrom(raw, nowMs)
		if !ok {
			s.log.Warn("dropping unreadable prompt record", logger.Int("index", i))
			repaired = true
			continue
		}
		if version != prompt.CurrentSchemaVersion {
			repaired = true
		}
		if p.ID == "" || seen[p.ID] {
			p.ID = s.uniqueID(seen)
			repaired = true
		}
		seen[p.ID] = true
		if p.CategoryID != prompt.CategoryAll && !catIDs[p.CategoryID] {
			s.log.Warn("prompt references unknown category; moving to all",
				logger.String("prompt_id", p.ID), logger.String("category_id", p.CategoryID))
			p.CategoryID = prompt.CategoryAll
			repaired = true
		}
		if over := len(p.Versions) - prompt.MaxVersions; over > 0 {
			p.Versions = append([]prompt.Version(nil), p.Versions[over:]...)
			repaired = true
		}
		prompts = append(prompts, p)
	}

	if repaired {
		pctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
		if err := s.adapter.SavePrompts(pctx, prompts); err != nil {
			s.log.Warn("could not persist upgraded prompts", logger.Error(err))
		} else {
			s.log.Info("upgraded stored prompts", logger.Int("count", len(prompts)))
		}
		cancel()
	}

	s.mu.Lock()
	s.prompts = prompts
	s.categories = categories
	s.undo = undo
	s.loaded = true
	s.mu.Unlock()

	s.log.Debug("library loaded",
		logger.Int("prompts", len(prompts)),
		logger.Int("categories", len(categories)),
		logger.Bool("pending_undo", undo != nil))
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.adapter.Close()
}

// Prompts returns a copy of every prompt in stored (manual) order.
func (s *Store) Prompts() []prompt.Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prompt.CloneAll(s.prompts)
}

// Prompt returns a copy of the prompt with id.
func (s *Store) Prompt(id string) (prompt.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOfPrompt(s.prompts, id)
	if i < 0 {
		return prompt.Prompt{}, errors.NewNotFound("prompt", id)
	}
	return prompt.Clone(s.prompts[i]), nil
}

// Categories returns a copy of every category in stored order.
func (s *Store) Categories() []prompt.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prompt.CloneCategories(s.categories)
}

// Category returns the category with id. The "all" sentinel is not a stored category.
func (s *Store) Category(id string) (prompt.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOfCategory(s.categories, id)
	if i < 0 {
		return prompt.Category{}, errors.NewNotFound("category", id)
	}
	return s.categories[i], nil
}

// PendingUndo returns the undo entry, or nil when the buffer is empty.
func (s *Store) PendingUndo() *prompt.Deleted {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prompt.CloneDeleted(s.undo)
}

// Snapshot returns a copy of the whole library.
func (s *Store) Snapshot() prompt.ExportDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prompt.ExportDocument{
		Prompts:    prompt.CloneAll(s.prompts),
		Categories: prompt.CloneCategories(s.categories),
	}
}

// begin acquires the write gate and returns the current state. The caller
// must call s.writeMu.Unlock. Slices in the returned state are shared; clone
// before modifying.
func (s *Store) begin(ctx context.Context, op string) (state, error) {
	s.writeMu.Lock()
	if err := ctx.Err(); err != nil {
		s.writeMu.Unlock()
		return state{}, errors.NewCancelled(op)
	}
	if !s.loaded {
		s.writeMu.Unlock()
		return state{}, errors.NewInternal(fmt.Errorf("library not loaded"))
	}
	return state{prompts: s.prompts, categories: s.categories, undo: s.undo}, nil
}

// commit makes next visible, persists the collections named by include, and
// restores prev if the write fails.
func (s *Store) commit(ctx context.Context, op string, prev, next state, include storage.Collection) error {
	s.swap(next)

	pctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	snap := storage.Snapshot{
		Prompts:    next.prompts,
		Categories: next.categories,
		Undo:       next.undo,
		Include:    include,
	}
	err := s.adapter.SaveAll(pctx, snap)
	if err != nil && stderrors.Is(pctx.Err(), context.DeadlineExceeded) && s.landedLate(ctx, op, snap) {
		err = nil
	}
	if err != nil {
		s.swap(prev)
		s.log.Error("mutation rolled back", logger.String("op", op), logger.Error(err))
		return err
	}

	s.log.Debug("mutation committed", logger.String("op", op))
	return nil
}

// landedLate re-reads the written keys after a persist deadline. The backend
// may have applied the write after the client gave up (a Redis EXEC, say),
// and rolling back then would leave memory behind storage.
func (s *Store) landedLate(ctx context.Context, op string, snap storage.Snapshot) bool {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.persistTimeout)
	defer cancel()

	applied, err := s.adapter.Applied(vctx, snap)
	if err != nil {
		s.log.Warn("could not verify write after deadline", logger.String("op", op), logger.Error(err))
		return false
	}
	if applied {
		s.log.Warn("write landed after its deadline; keeping it", logger.String("op", op))
	}
	return applied
}

func (s *Store) swap(st state) {
	s.mu.Lock()
	s.prompts = st.prompts
	s.categories = st.categories
	s.undo = st.undo
	s.mu.Unlock()
}

func (s *Store) nowMs() int64 {
	return s.now().UnixMilli()
}

// uniqueID draws ids until one is not in taken.
func (s *Store) uniqueID(taken map[string]bool) string {
	id := s.newID()
	for taken[id] || id == "" {
		id = s.newID()
	}
	return id
}

// categoryExists reports whether id names a stored category or the "all" sentinel.
func categoryExists(categories []prompt.Category, id string) bool {
	return id == prompt.CategoryAll || indexOfCategory(categories, id) >= 0
}

func categoryIDSet(categories []prompt.Category) map[string]bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		set[c.ID] = true
	}
	return set
}

func indexOfPrompt(prompts []prompt.Prompt, id string) int {
	for i := range prompts {
		if prompts[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfCategory(categories []prompt.Category, id string) int {
	for i := range categories {
		if categories[i].ID == id {
			return i
		}
	}
	return -1
}
