package view

import (
	"strings"

	"github.com/hpungsan/promptkeep/internal/prompt"
)

// MaxPreviewChars bounds Summary.Preview.
const MaxPreviewChars = 120

// Summary is the list form of a prompt: metadata plus a short preview of
// the current text, without the version history.
type Summary struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CategoryID string `json:"categoryId"`
	IsFavorite bool   `json:"isFavorite"`
	CopyCount  int    `json:"copyCount"`
	Versions   int    `json:"versions"`
	Chars      int    `json:"chars"`
	Preview    string `json:"preview"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// Summarize builds the list form of p.
func Summarize(p prompt.Prompt) Summary {
	text := prompt.CurrentText(p)
	return Summary{
		ID:         p.ID,
		Title:      p.Title,
		CategoryID: p.CategoryID,
		IsFavorite: p.IsFavorite,
		CopyCount:  p.CopyCount,
		Versions:   len(p.Versions),
		Chars:      prompt.CountChars(text),
		Preview:    preview(text, MaxPreviewChars),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// SummarizeAll maps Summarize over prompts.
func SummarizeAll(prompts []prompt.Prompt) []Summary {
	out := make([]Summary, len(prompts))
	for i, p := range prompts {
		out[i] = Summarize(p)
	}
	return out
}

// preview collapses whitespace and truncates to max runes.
func preview(text string, max int) string {
	s := strings.Join(strings.Fields(text), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
