package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/merge"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/view"
)

// maxBodyBytes caps JSON request bodies other than imports.
const maxBodyBytes = 1 << 20

// Handlers contains the HTTP route handlers.
type Handlers struct {
	store   *library.Store
	log     logger.Logger
	version string
	now     func() time.Time
	started time.Time
}

// Request bodies

// AddPromptBody is the body of POST /prompts.
type AddPromptBody struct {
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	CategoryID string `json:"category_id,omitempty"`
}

// UpdatePromptBody is the body of PATCH /prompts/{id}. Absent fields are left alone.
type UpdatePromptBody struct {
	Title      *string `json:"title,omitempty"`
	Text       *string `json:"text,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	IsFavorite *bool   `json:"is_favorite,omitempty"`
}

// ReorderBody is the body of POST /prompts/reorder.
type ReorderBody struct {
	OldIndex *int `json:"old_index"`
	NewIndex *int `json:"new_index"`
}

// CategoryBody is the body of POST /categories and PATCH /categories/{id}.
type CategoryBody struct {
	Name string `json:"name"`
}

// ThemeBody is the body of PUT /theme and the GET /theme response.
type ThemeBody struct {
	Theme prompt.Theme `json:"theme"`
}

// Responses

// PromptList is the GET /prompts response.
type PromptList struct {
	Items       []view.Summary `json:"items"`
	Count       int            `json:"count"`
	ManualOrder bool           `json:"manual_order"`
	View        view.State     `json:"view"`
}

// CopyResult is the POST /prompts/{id}/copy response.
type CopyResult struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CopyCount int    `json:"copy_count"`
}

// CategoryResult wraps a category with an optional duplicate-name warning.
type CategoryResult struct {
	prompt.Category
	Warning string `json:"warning,omitempty"`
}

// CategoryDeleteResult is the DELETE /categories/{id} response.
type CategoryDeleteResult struct {
	ID         string `json:"id"`
	Reassigned int    `json:"reassigned"`
}

type healthzResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Prompts       int     `json:"prompts"`
	Categories    int     `json:"categories"`
}

// HandleHealthz handles GET /healthz.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.started).Seconds(),
		Prompts:       len(h.store.Prompts()),
		Categories:    len(h.store.Categories()),
	})
}

// HandleListPrompts handles GET /prompts with optional category, search,
// sort and date query parameters.
func (h *Handlers) HandleListPrompts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := view.Parse(q.Get("category"), q.Get("search"), q.Get("sort"), q.Get("date"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	items := view.SummarizeAll(view.Apply(h.store.Prompts(), st, h.now()))
	writeJSON(w, http.StatusOK, PromptList{
		Items:       items,
		Count:       len(items),
		ManualOrder: view.AllowsManualOrder(st),
		View:        st,
	})
}

// HandleAddPrompt handles POST /prompts.
func (h *Handlers) HandleAddPrompt(w http.ResponseWriter, r *http.Request) {
	var body AddPromptBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if body.Text == "" {
		writeError(w, h.log, errors.NewInvalidRequest("text is required"))
		return
	}

	p, err := h.store.AddPrompt(r.Context(), library.NewPrompt{
		Title:      body.Title,
		Text:       body.Text,
		CategoryID: body.CategoryID,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleGetPrompt handles GET /prompts/{id}.
func (h *Handlers) HandleGetPrompt(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Prompt(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdatePrompt handles PATCH /prompts/{id}.
func (h *Handlers) HandleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var body UpdatePromptBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	p, err := h.store.UpdatePrompt(r.Context(), chi.URLParam(r, "id"), library.PromptPatch{
		Title:      body.Title,
		Text:       body.Text,
		CategoryID: body.CategoryID,
		IsFavorite: body.IsFavorite,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDeletePrompt handles DELETE /prompts/{id}. The response is the undo entry.
func (h *Handlers) HandleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeletePrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

// HandleUndoDelete handles POST /prompts/undo.
func (h *Handlers) HandleUndoDelete(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.RevertDeletedPrompt(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleReorder handles POST /prompts/reorder.
func (h *Handlers) HandleReorder(w http.ResponseWriter, r *http.Request) {
	var body ReorderBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	if body.OldIndex == nil || body.NewIndex == nil {
		writeError(w, h.log, errors.NewInvalidRequest("old_index and new_index are required"))
		return
	}

	if err := h.store.ReorderPrompts(r.Context(), *body.OldIndex, *body.NewIndex); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCopy handles POST /prompts/{id}/copy. The current text is returned
// for the client to place on its clipboard.
func (h *Handlers) HandleCopy(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.IncrementCopyCount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CopyResult{ID: p.ID, Text: prompt.CurrentText(p), CopyCount: p.CopyCount})
}

// HandlePreview handles GET /prompts/{id}/preview, rendering the current
// text as markdown.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Prompt(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	title := p.Title
	if title == "" {
		title = "Untitled prompt"
	}

	var buf bytes.Buffer
	err = previewTemplate.Execute(&buf, previewData{
		Title:     title,
		Updated:   formatMillis(p.UpdatedAt),
		Versions:  len(p.Versions),
		CopyCount: p.CopyCount,
		Body:      renderMarkdown(prompt.CurrentText(p)),
	})
	if err != nil {
		writeError(w, h.log, errors.NewInternal(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// HandleDeleteVersion handles DELETE /prompts/{id}/versions/{index}.
func (h *Handlers) HandleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	p, err := h.store.DeletePromptVersion(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleRestoreVersion handles POST /prompts/{id}/versions/{index}/restore.
func (h *Handlers) HandleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	p, err := h.store.RestorePromptVersion(r.Context(), chi.URLParam(r, "id"), index)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleListCategories handles GET /categories.
func (h *Handlers) HandleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.store.Categories()})
}

// HandleAddCategory handles POST /categories.
func (h *Handlers) HandleAddCategory(w http.ResponseWriter, r *http.Request) {
	var body CategoryBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	dup := h.store.DuplicateCategoryName(body.Name, "")
	c, err := h.store.AddCategory(r.Context(), library.NewCategory{Name: body.Name})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, categoryResult(c, dup))
}

// HandleUpdateCategory handles PATCH /categories/{id}.
func (h *Handlers) HandleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var body CategoryBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	id := chi.URLParam(r, "id")
	dup := h.store.DuplicateCategoryName(body.Name, id)
	c, err := h.store.UpdateCategory(r.Context(), id, library.CategoryPatch{Name: body.Name})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryResult(c, dup))
}

// HandleDeleteCategory handles DELETE /categories/{id}.
func (h *Handlers) HandleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.store.DeleteCategoryAndReassignPrompts(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryDeleteResult{ID: id, Reassigned: n})
}

// HandleExport handles GET /export?format=json|yaml.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	format, err := prompt.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	data, err := h.store.Export(format)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	ext, contentType := "json", "application/json"
	if format == prompt.FormatYAML {
		ext, contentType = "yaml", "application/yaml"
	}
	filename := fmt.Sprintf("prompts-%s.%s", h.now().Format("2006-01-02T150405"), ext)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleImport handles POST /import?policy=merge|replace. The body is a
// document; its format comes from ?format= or else the Content-Type.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	policy := merge.PolicyMerge
	if raw := q.Get("policy"); raw != "" {
		var err error
		if policy, err = merge.ParsePolicy(raw); err != nil {
			writeError(w, h.log, err)
			return
		}
	}

	format, err := requestFormat(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, library.MaxImportBytes+1))
	if err != nil {
		writeError(w, h.log, errors.NewInvalidRequest("failed to read request body"))
		return
	}
	if int64(len(data)) > library.MaxImportBytes {
		writeError(w, h.log, errors.NewFileTooLarge(library.MaxImportBytes, int64(len(data))))
		return
	}

	doc, err := prompt.DecodeDocument(data, format)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	res, err := h.store.Import(r.Context(), doc, policy)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetTheme handles GET /theme.
func (h *Handlers) HandleGetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ThemeBody{Theme: h.store.Theme(r.Context())})
}

// HandleSetTheme handles PUT /theme.
func (h *Handlers) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	var body ThemeBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.store.SetTheme(r.Context(), body.Theme); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func categoryResult(c prompt.Category, duplicate bool) CategoryResult {
	out := CategoryResult{Category: c}
	if duplicate {
		out.Warning = "another category already uses this name"
	}
	return out
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return errors.NewInvalidRequest("request body is required")
		}
		return errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func indexParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("version index must be an integer: %q", raw))
	}
	return index, nil
}

// requestFormat picks the import format from ?format= or the Content-Type.
func requestFormat(r *http.Request) (prompt.Format, error) {
	if raw := r.URL.Query().Get("format"); raw != "" {
		return prompt.ParseFormat(raw)
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return prompt.FormatJSON, nil
	}
	if strings.Contains(mediaType, "yaml") {
		return prompt.FormatYAML, nil
	}
	return prompt.FormatJSON, nil
}
