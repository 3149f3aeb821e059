package view

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/prompt"
)

var zone = time.FixedZone("UTC+2", 2*60*60)

// Wednesday
var now = time.Date(2024, time.May, 15, 10, 0, 0, 0, zone)

func at(y int, m time.Month, d, h int) int64 {
	return time.Date(y, m, d, h, 0, 0, 0, zone).UnixMilli()
}

func mk(id, title, text, cat string, created int64, copies int) prompt.Prompt {
	return prompt.Prompt{
		ID:         id,
		Title:      title,
		Versions:   []prompt.Version{{Text: text, Timestamp: created}},
		CategoryID: cat,
		CopyCount:  copies,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
}

func library() []prompt.Prompt {
	return []prompt.Prompt{
		mk("today", "beta", "Write a haiku", "poems", at(2024, time.May, 15, 0), 3),
		mk("yesterday", "Alpha", "Summarize this", prompt.CategoryAll, at(2024, time.May, 14, 23), 7),
		mk("monday", "gamma", "review HAIKU", "poems", at(2024, time.May, 13, 0), 3),
		mk("lastweek", "Delta", "plan", "work", at(2024, time.May, 12, 23), 0),
	}
}

func idsOf(prompts []prompt.Prompt) []string {
	out := make([]string, len(prompts))
	for i, p := range prompts {
		out[i] = p.ID
	}
	return out
}

func TestParse(t *testing.T) {
	st, err := Parse("", "  hi ", "", "")
	require.NoError(t, err)
	require.Equal(t, State{CategoryID: prompt.CategoryAll, Search: "hi", Sort: SortCreatedAtDesc, DateFilter: DateAll}, st)

	st, err = Parse("work", "", "titleDesc", "thisWeek")
	require.NoError(t, err)
	require.Equal(t, SortTitleDesc, st.Sort)
	require.Equal(t, DateThisWeek, st.DateFilter)

	_, err = Parse("", "", "random", "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	_, err = Parse("", "", "", "lastYear")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestApply_DefaultKeepsStoredOrder(t *testing.T) {
	in := library()
	require.Equal(t, idsOf(in), idsOf(Apply(in, Default(), now)))
}

func TestApply_Category(t *testing.T) {
	st := Default()
	st.CategoryID = "poems"
	require.Equal(t, []string{"today", "monday"}, idsOf(Apply(library(), st, now)))
}

func TestApply_SearchTitleOrCurrentText(t *testing.T) {
	st := Default()
	st.Search = "haiku"
	require.Equal(t, []string{"today", "monday"}, idsOf(Apply(library(), st, now)))

	st.Search = "ALPHA"
	require.Equal(t, []string{"yesterday"}, idsOf(Apply(library(), st, now)))

	// only the current version is searched
	p := mk("old", "x", "first", prompt.CategoryAll, at(2024, time.May, 1, 0), 0)
	p.Versions = append(p.Versions, prompt.Version{Text: "second", Timestamp: p.CreatedAt + 1})
	st.Search = "first"
	require.Empty(t, Apply([]prompt.Prompt{p}, st, now))
}

func TestApply_DateFilters(t *testing.T) {
	cases := map[DateFilter][]string{
		DateAll:       {"today", "yesterday", "monday", "lastweek"},
		DateToday:     {"today"},
		DateYesterday: {"yesterday"},
		DateThisWeek:  {"today", "yesterday", "monday"},
	}
	for filter, want := range cases {
		st := Default()
		st.DateFilter = filter
		require.Equal(t, want, idsOf(Apply(library(), st, now)), filter)
	}
}

func TestApply_WeekStartsMonday(t *testing.T) {
	sunday := time.Date(2024, time.May, 19, 12, 0, 0, 0, zone)
	st := Default()
	st.DateFilter = DateThisWeek
	require.Equal(t, []string{"today", "yesterday", "monday"}, idsOf(Apply(library(), st, sunday)))

	monday := time.Date(2024, time.May, 13, 8, 0, 0, 0, zone)
	require.Equal(t, []string{"today", "yesterday", "monday"}, idsOf(Apply(library(), st, monday)),
		"prompts from later in the week still count")
}

func TestApply_Sorts(t *testing.T) {
	cases := map[Sort][]string{
		SortTitleAsc:      {"yesterday", "today", "lastweek", "monday"},
		SortTitleDesc:     {"monday", "lastweek", "today", "yesterday"},
		SortUpdatedAtDesc: {"today", "yesterday", "monday", "lastweek"},
		SortCopyCountDesc: {"yesterday", "today", "monday", "lastweek"}, // stable on ties
	}
	for s, want := range cases {
		st := Default()
		st.Sort = s
		require.Equal(t, want, idsOf(Apply(library(), st, now)), s)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := library()
	before := idsOf(in)
	st := Default()
	st.Sort = SortTitleAsc
	Apply(in, st, now)
	require.Equal(t, before, idsOf(in))
}

func TestAllowsManualOrder(t *testing.T) {
	require.True(t, AllowsManualOrder(Default()))
	require.True(t, AllowsManualOrder(State{}))

	for _, mod := range []func(*State){
		func(s *State) { s.Sort = SortTitleAsc },
		func(s *State) { s.CategoryID = "work" },
		func(s *State) { s.Search = "x" },
		func(s *State) { s.DateFilter = DateToday },
	} {
		st := Default()
		mod(&st)
		require.False(t, AllowsManualOrder(st), "%+v", st)
	}
}

func TestSummarize(t *testing.T) {
	p := mk("p", "T", "héllo\n\n  world", prompt.CategoryAll, 5, 2)
	p.Versions = append([]prompt.Version{{Text: "old", Timestamp: 1}}, p.Versions...)

	s := Summarize(p)
	require.Equal(t, 2, s.Versions)
	require.Equal(t, 14, s.Chars)
	require.Equal(t, "héllo world", s.Preview)

	long := mk("l", "T", strings.Repeat("ab ", 100), prompt.CategoryAll, 5, 0)
	s = Summarize(long)
	require.Equal(t, MaxPreviewChars, len([]rune(s.Preview)))
	require.True(t, strings.HasSuffix(s.Preview, "…"))
}
