package library

import (
	"context"
	"strings"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// NewCategory contains parameters for AddCategory.
type NewCategory struct {
	Name string
}

// CategoryPatch contains parameters for UpdateCategory.
type CategoryPatch struct {
	Name string
}

// DuplicateCategoryName reports whether another category (ignoring exceptID)
// already uses name, compared case-insensitively.
func (s *Store) DuplicateCategoryName(name, exceptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return duplicateName(s.categories, name, exceptID)
}

func duplicateName(categories []prompt.Category, name, exceptID string) bool {
	key := prompt.Normalize(name)
	for _, c := range categories {
		if c.ID != exceptID && prompt.Normalize(c.Name) == key {
			return true
		}
	}
	return false
}

// AddCategory appends a category. Duplicate names are allowed but logged.
func (s *Store) AddCategory(ctx context.Context, in NewCategory) (prompt.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return prompt.Category{}, errors.NewInvalidRequest("category name is required")
	}

	cur, err := s.begin(ctx, "add category")
	if err != nil {
		return prompt.Category{}, err
	}
	defer s.writeMu.Unlock()

	if duplicateName(cur.categories, name, "") {
		s.log.Warn("category name already in use", logger.String("name", name))
	}

	taken := categoryIDSet(cur.categories)
	taken[prompt.CategoryAll] = true
	c := prompt.Category{ID: s.uniqueID(taken), Name: name}

	next := cur
	next.categories = make([]prompt.Category, 0, len(cur.categories)+1)
	next.categories = append(next.categories, cur.categories...)
	next.categories = append(next.categories, c)

	if err := s.commit(ctx, "add category", cur, next, storage.IncludeCategories); err != nil {
		return prompt.Category{}, err
	}
	return c, nil
}

// UpdateCategory renames a category.
func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (prompt.Category, error) {
	name := strings.TrimSpace(patch.Name)
	if name == "" {
		return prompt.Category{}, errors.NewInvalidRequest("category name is required")
	}

	cur, err := s.begin(ctx, "update category")
	if err != nil {
		return prompt.Category{}, err
	}
	defer s.writeMu.Unlock()

	i := indexOfCategory(cur.categories, id)
	if i < 0 {
		return prompt.Category{}, errors.NewNotFound("category", id)
	}
	if cur.categories[i].Name == name {
		return cur.categories[i], nil
	}
	if duplicateName(cur.categories, name, id) {
		s.log.Warn("category name already in use", logger.String("name", name))
	}

	c := prompt.Category{ID: id, Name: name}
	next := cur
	next.categories = prompt.CloneCategories(cur.categories)
	next.categories[i] = c

	if err := s.commit(ctx, "update category", cur, next, storage.IncludeCategories); err != nil {
		return prompt.Category{}, err
	}
	return c, nil
}

// DeleteCategoryAndReassignPrompts removes the category and moves its prompts
// to "all". Both collections are saved in one write and restored together on
// failure.
func (s *Store) DeleteCategoryAndReassignPrompts(ctx context.Context, id string) (int, error) {
	cur, err := s.begin(ctx, "delete category")
	if err != nil {
		return 0, err
	}
	defer s.writeMu.Unlock()

	i := indexOfCategory(cur.categories, id)
	if id == prompt.CategoryAll || i < 0 {
		return 0, errors.NewNotFound("category", id)
	}

	reassigned := 0
	prompts := make([]prompt.Prompt, len(cur.prompts))
	for j, p := range cur.prompts {
		if p.CategoryID == id {
			p = prompt.Clone(p)
			p.CategoryID = prompt.CategoryAll
			reassigned++
		}
		prompts[j] = p
	}

	categories := make([]prompt.Category, 0, len(cur.categories)-1)
	categories = append(categories, cur.categories[:i]...)
	categories = append(categories, cur.categories[i+1:]...)

	next := cur
	next.prompts = prompts
	next.categories = categories
	if err := s.commit(ctx, "delete category", cur, next, storage.IncludePrompts|storage.IncludeCategories); err != nil {
		return 0, err
	}
	s.log.Debug("category deleted", logger.String("category_id", id), logger.Int("reassigned", reassigned))
	return reassigned, nil
}
