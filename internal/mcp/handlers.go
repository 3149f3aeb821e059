package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/merge"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/view"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store *library.Store
	cfg   *config.Config
	now   func() time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *library.Store, cfg *config.Config) *Handlers {
	return &Handlers{store: store, cfg: cfg, now: time.Now}
}

// Request types for each tool

// PromptAddRequest represents the arguments for prompt_add.
type PromptAddRequest struct {
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	CategoryID string `json:"category_id,omitempty"`
}

// IDRequest is shared by tools addressing one record.
type IDRequest struct {
	ID string `json:"id"`
}

// PromptListRequest represents the arguments for prompt_list.
type PromptListRequest struct {
	CategoryID string `json:"category_id,omitempty"`
	Search     string `json:"search,omitempty"`
	Sort       string `json:"sort,omitempty"`
	DateFilter string `json:"date_filter,omitempty"`
}

// PromptUpdateRequest represents the arguments for prompt_update.
type PromptUpdateRequest struct {
	ID         string  `json:"id"`
	Title      *string `json:"title,omitempty"`
	Text       *string `json:"text,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	IsFavorite *bool   `json:"is_favorite,omitempty"`
}

// VersionRequest represents the arguments for the version tools.
type VersionRequest struct {
	ID    string `json:"id"`
	Index *int   `json:"index"`
}

// ReorderRequest represents the arguments for prompt_reorder.
type ReorderRequest struct {
	OldIndex *int `json:"old_index"`
	NewIndex *int `json:"new_index"`
}

// CategoryRequest represents the arguments for category_add and category_update.
type CategoryRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// ExportRequest represents the arguments for library_export.
type ExportRequest struct {
	Path   string `json:"path,omitempty"`
	Format string `json:"format,omitempty"`
}

// ImportRequest represents the arguments for library_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// Response types

// PromptListOutput is the prompt_list result.
type PromptListOutput struct {
	Items []view.Summary `json:"items"`
	Count int            `json:"count"`
	// ManualOrder is true when positions in Items are valid prompt_reorder indices
	ManualOrder bool       `json:"manual_order"`
	View        view.State `json:"view"`
}

// CopyOutput is the prompt_copy result.
type CopyOutput struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CopyCount int    `json:"copy_count"`
}

// CategoryOutput wraps a category with an optional duplicate-name warning.
type CategoryOutput struct {
	prompt.Category
	Warning string `json:"warning,omitempty"`
}

// CategoryDeleteOutput is the category_delete result.
type CategoryDeleteOutput struct {
	ID         string `json:"id"`
	Reassigned int    `json:"reassigned"`
}

// ReorderOutput is the prompt_reorder result.
type ReorderOutput struct {
	OldIndex int `json:"old_index"`
	NewIndex int `json:"new_index"`
}

// Handler implementations

// HandlePromptAdd handles the prompt_add tool call.
func (h *Handlers) HandlePromptAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptAddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Text == "" {
		return errorResult(errors.NewInvalidRequest("text is required")), nil
	}

	p, err := h.store.AddPrompt(ctx, library.NewPrompt{
		Title:      input.Title,
		Text:       input.Text,
		CategoryID: input.CategoryID,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptGet handles the prompt_get tool call.
func (h *Handlers) HandlePromptGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.store.Prompt(input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptList handles the prompt_list tool call.
func (h *Handlers) HandlePromptList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	st, err := view.Parse(input.CategoryID, input.Search, input.Sort, input.DateFilter)
	if err != nil {
		return errorResult(err), nil
	}

	items := view.SummarizeAll(view.Apply(h.store.Prompts(), st, h.now()))
	return successResult(PromptListOutput{
		Items:       items,
		Count:       len(items),
		ManualOrder: view.AllowsManualOrder(st),
		View:        st,
	})
}

// HandlePromptUpdate handles the prompt_update tool call.
func (h *Handlers) HandlePromptUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PromptUpdateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.store.UpdatePrompt(ctx, input.ID, library.PromptPatch{
		Title:      input.Title,
		Text:       input.Text,
		CategoryID: input.CategoryID,
		IsFavorite: input.IsFavorite,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptDelete handles the prompt_delete tool call.
func (h *Handlers) HandlePromptDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	deleted, err := h.store.DeletePrompt(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(deleted)
}

// HandlePromptUndoDelete handles the prompt_undo_delete tool call.
func (h *Handlers) HandlePromptUndoDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.store.RevertDeletedPrompt(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptDeleteVersion handles the prompt_delete_version tool call.
func (h *Handlers) HandlePromptDeleteVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VersionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Index == nil {
		return errorResult(errors.NewInvalidRequest("index is required")), nil
	}

	p, err := h.store.DeletePromptVersion(ctx, input.ID, *input.Index)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptRestoreVersion handles the prompt_restore_version tool call.
func (h *Handlers) HandlePromptRestoreVersion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VersionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Index == nil {
		return errorResult(errors.NewInvalidRequest("index is required")), nil
	}

	p, err := h.store.RestorePromptVersion(ctx, input.ID, *input.Index)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(p)
}

// HandlePromptReorder handles the prompt_reorder tool call.
func (h *Handlers) HandlePromptReorder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReorderRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.OldIndex == nil || input.NewIndex == nil {
		return errorResult(errors.NewInvalidRequest("old_index and new_index are required")), nil
	}

	if err := h.store.ReorderPrompts(ctx, *input.OldIndex, *input.NewIndex); err != nil {
		return errorResult(err), nil
	}
	return successResult(ReorderOutput{OldIndex: *input.OldIndex, NewIndex: *input.NewIndex})
}

// HandlePromptCopy handles the prompt_copy tool call.
func (h *Handlers) HandlePromptCopy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	p, err := h.store.IncrementCopyCount(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(CopyOutput{ID: p.ID, Text: prompt.CurrentText(p), CopyCount: p.CopyCount})
}

// HandleCategoryList handles the category_list tool call.
func (h *Handlers) HandleCategoryList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{"items": h.store.Categories()})
}

// HandleCategoryAdd handles the category_add tool call.
func (h *Handlers) HandleCategoryAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CategoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	dup := h.store.DuplicateCategoryName(input.Name, "")
	c, err := h.store.AddCategory(ctx, library.NewCategory{Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(categoryOutput(c, dup))
}

// HandleCategoryUpdate handles the category_update tool call.
func (h *Handlers) HandleCategoryUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CategoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	dup := h.store.DuplicateCategoryName(input.Name, input.ID)
	c, err := h.store.UpdateCategory(ctx, input.ID, library.CategoryPatch{Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(categoryOutput(c, dup))
}

// HandleCategoryDelete handles the category_delete tool call.
func (h *Handlers) HandleCategoryDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[IDRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	n, err := h.store.DeleteCategoryAndReassignPrompts(ctx, input.ID)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(CategoryDeleteOutput{ID: input.ID, Reassigned: n})
}

// HandleLibraryExport handles the library_export tool call.
func (h *Handlers) HandleLibraryExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	format, err := prompt.ParseFormat(input.Format)
	if err != nil {
		return errorResult(err), nil
	}

	out, err := h.store.ExportFile(ctx, library.ExportInput{Path: input.Path, Format: format})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleLibraryImport handles the library_import tool call.
func (h *Handlers) HandleLibraryImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	policy := merge.PolicyMerge
	if input.Mode != "" {
		if policy, err = merge.ParsePolicy(input.Mode); err != nil {
			return errorResult(err), nil
		}
	}

	res, err := h.store.ImportFile(ctx, library.ImportInput{Path: input.Path, Policy: policy})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(res)
}

func categoryOutput(c prompt.Category, duplicate bool) CategoryOutput {
	out := CategoryOutput{Category: c}
	if duplicate {
		out.Warning = "another category already uses this name"
	}
	return out
}

// Result helpers

// errorResult creates an MCP error result from any error.
// IsError is set so clients recognize the failure. INTERNAL details are
// dropped; they may hold file paths or SQL errors.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if pErr, ok := errors.As(err); ok {
		msg := pErr.Message
		// keep wrapper context such as "items[2]: ..."
		if err != error(pErr) && pErr.Code != errors.ErrInternal {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    pErr.Code,
			"message": msg,
			"status":  pErr.Status,
		}
		if pErr.Code != errors.ErrInternal && pErr.Details != nil {
			errorObj["details"] = pErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
