// Package view projects the prompt list through the transient filter state:
// category, search, date filter and sort. Nothing here is persisted.
package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

// Sort is a list ordering.
type Sort string

const (
	// SortCreatedAtDesc is the stored (manual) order. New prompts are
	// prepended, so this is newest first until the user reorders.
	SortCreatedAtDesc Sort = "createdAtDesc"
	SortUpdatedAtDesc Sort = "updatedAtDesc"
	SortTitleAsc      Sort = "titleAsc"
	SortTitleDesc     Sort = "titleDesc"
	SortCopyCountDesc Sort = "copyCountDesc"
)

// DateFilter restricts prompts by creation day.
type DateFilter string

const (
	DateAll       DateFilter = "all"
	DateToday     DateFilter = "today"
	DateYesterday DateFilter = "yesterday"
	DateThisWeek  DateFilter = "thisWeek" // weeks start Monday
)

var sorts = []Sort{SortCreatedAtDesc, SortUpdatedAtDesc, SortTitleAsc, SortTitleDesc, SortCopyCountDesc}

var dateFilters = []DateFilter{DateAll, DateToday, DateYesterday, DateThisWeek}

// State is the current filter selection.
type State struct {
	CategoryID string     `json:"categoryId"`
	Search     string     `json:"search"`
	Sort       Sort       `json:"sort"`
	DateFilter DateFilter `json:"dateFilter"`
}

// Default returns the initial state: everything, manual order.
func Default() State {
	return State{CategoryID: prompt.CategoryAll, Sort: SortCreatedAtDesc, DateFilter: DateAll}
}

// Parse builds a State from raw values. Empty values take the defaults.
func Parse(category, search, sortOption, date string) (State, error) {
	st := Default()

	if c := strings.TrimSpace(category); c != "" {
		st.CategoryID = c
	}
	st.Search = strings.TrimSpace(search)

	if s := strings.TrimSpace(sortOption); s != "" {
		st.Sort = Sort(s)
		if !containsSort(st.Sort) {
			return State{}, errors.NewInvalidRequest(fmt.Sprintf("sort must be one of: %s", joinSorts()))
		}
	}
	if d := strings.TrimSpace(date); d != "" {
		st.DateFilter = DateFilter(d)
		if !containsDate(st.DateFilter) {
			return State{}, errors.NewInvalidRequest(fmt.Sprintf("date filter must be one of: %s", joinDates()))
		}
	}
	return st, nil
}

// AllowsManualOrder reports whether list positions shown under st are the
// stored positions, so a drag-reorder maps to ReorderPrompts indices.
func AllowsManualOrder(st State) bool {
	return (st.Sort == SortCreatedAtDesc || st.Sort == "") &&
		(st.CategoryID == prompt.CategoryAll || st.CategoryID == "") &&
		strings.TrimSpace(st.Search) == "" &&
		(st.DateFilter == DateAll || st.DateFilter == "")
}

// Apply filters and sorts prompts. The input slice is not modified.
func Apply(prompts []prompt.Prompt, st State, now time.Time) []prompt.Prompt {
	out := make([]prompt.Prompt, 0, len(prompts))

	needle := strings.ToLower(strings.TrimSpace(st.Search))
	from, until := dateRange(st.DateFilter, now)

	for _, p := range prompts {
		if st.CategoryID != "" && st.CategoryID != prompt.CategoryAll && p.CategoryID != st.CategoryID {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(p.Title), needle) &&
			!strings.Contains(strings.ToLower(prompt.CurrentText(p)), needle) {
			continue
		}
		if !from.IsZero() {
			created := time.UnixMilli(p.CreatedAt).In(now.Location())
			if created.Before(from) || (!until.IsZero() && !created.Before(until)) {
				continue
			}
		}
		out = append(out, p)
	}

	switch st.Sort {
	case SortUpdatedAtDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	case SortTitleAsc:
		sort.SliceStable(out, func(i, j int) bool { return lessTitle(out[i], out[j]) })
	case SortTitleDesc:
		sort.SliceStable(out, func(i, j int) bool { return lessTitle(out[j], out[i]) })
	case SortCopyCountDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CopyCount > out[j].CopyCount })
	}
	return out
}

func lessTitle(a, b prompt.Prompt) bool {
	return strings.ToLower(a.Title) < strings.ToLower(b.Title)
}

// dateRange returns [from, until) in now's location. A zero from means no
// filter; a zero until means open-ended.
func dateRange(f DateFilter, now time.Time) (from, until time.Time) {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	switch f {
	case DateToday:
		return midnight, time.Time{}
	case DateYesterday:
		return time.Date(y, m, d-1, 0, 0, 0, 0, now.Location()), midnight
	case DateThisWeek:
		sinceMonday := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-sinceMonday, 0, 0, 0, 0, now.Location()), time.Time{}
	}
	return time.Time{}, time.Time{}
}

func containsSort(s Sort) bool {
	for _, v := range sorts {
		if v == s {
			return true
		}
	}
	return false
}

func containsDate(d DateFilter) bool {
	for _, v := range dateFilters {
		if v == d {
			return true
		}
	}
	return false
}

func joinSorts() string {
	names := make([]string, len(sorts))
	for i, s := range sorts {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func joinDates() string {
	names := make([]string, len(dateFilters))
	for i, d := range dateFilters {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
