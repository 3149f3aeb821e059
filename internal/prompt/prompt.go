package prompt

// MaxVersions is the number of versions kept per prompt. Older entries are
// evicted from the front.
const MaxVersions = 20

// CategoryAll is the sentinel category. It is never stored as a Category and
// always resolves.
const CategoryAll = "all"

// Version is one saved revision of a prompt's text.
type Version struct {
	Text string `json:"text" yaml:"text"`

	// Timestamp is epoch milliseconds
	Timestamp int64 `json:"timestamp" yaml:"timestamp"`
}

// Prompt is a reusable text prompt with a bounded edit history.
// The position of a prompt in the stored slice is its manual sort key.
type Prompt struct {
	// ID is a ULID assigned at creation and never changed
	ID string `json:"id" yaml:"id"`

	Title string `json:"title" yaml:"title"`

	// Versions is never empty; the last entry is the current text
	Versions []Version `json:"versions" yaml:"versions"`

	// CategoryID is an existing category id or CategoryAll
	CategoryID string `json:"categoryId" yaml:"categoryId"`

	IsFavorite bool `json:"isFavorite" yaml:"isFavorite"`
	CopyCount  int  `json:"copyCount" yaml:"copyCount"`

	// CreatedAt and UpdatedAt are epoch milliseconds
	CreatedAt int64 `json:"createdAt" yaml:"createdAt"`
	UpdatedAt int64 `json:"updatedAt" yaml:"updatedAt"`
}

// Category is a named bucket. Every prompt belongs to exactly one category or to CategoryAll.
type Category struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Deleted is the single-slot undo entry recorded by a prompt delete.
type Deleted struct {
	Prompt        Prompt `json:"prompt"`
	OriginalIndex int    `json:"originalIndex"`
	DeletedAt     int64  `json:"deletedAt"`
}

// Theme is the stored display preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// DefaultTheme is used when nothing valid is stored.
const DefaultTheme = ThemeLight

// Valid reports whether t is one of the known themes.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeAuto:
		return true
	}
	return false
}

// Clone returns a deep copy of p.
func Clone(p Prompt) Prompt {
	out := p
	if p.Versions != nil {
		out.Versions = make([]Version, len(p.Versions))
		copy(out.Versions, p.Versions)
	}
	return out
}

// CloneAll deep-copies a prompt slice. A nil input yields an empty slice.
func CloneAll(prompts []Prompt) []Prompt {
	out := make([]Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = Clone(p)
	}
	return out
}

// CloneCategories copies a category slice. A nil input yields an empty slice.
func CloneCategories(categories []Category) []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CloneDeleted deep-copies an undo entry; nil stays nil.
func CloneDeleted(d *Deleted) *Deleted {
	if d == nil {
		return nil
	}
	out := *d
	out.Prompt = Clone(d.Prompt)
	return &out
}
