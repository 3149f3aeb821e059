package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/db"
	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/storage"
)

// testSetup opens a store over a temporary SQLite database.
func testSetup(t *testing.T) (*library.Store, *config.Config, string) {
	t.Helper()

	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()

	backend, err := db.Open(tmpDir, cfg)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}

	exportsDir := filepath.Join(tmpDir, "exports")
	store := library.New(storage.NewAdapter(backend, nil, storage.RetryPolicy{}), library.Options{
		ExportsDir: exportsDir,
		Config:     cfg,
	})
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, cfg, exportsDir
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

// addPrompt adds a prompt through the handler and returns its id.
func addPrompt(t *testing.T, h *Handlers, args map[string]any) string {
	t.Helper()
	result, err := h.HandlePromptAdd(context.Background(), makeRequest(args))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return parseOutput(t, result)["id"].(string)
}

func TestHandlePromptAdd(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{
			name:      "valid prompt",
			args:      map[string]any{"title": "Greeting", "text": "Say hello"},
			wantError: false,
		},
		{
			name:      "missing text",
			args:      map[string]any{"title": "Empty"},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
		{
			name:      "unknown category",
			args:      map[string]any{"text": "x", "category_id": "nope"},
			wantError: true,
			errorCode: "INVALID_REFERENCE",
		},
		{
			name:      "wrong argument type",
			args:      map[string]any{"text": 42},
			wantError: true,
			errorCode: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandlePromptAdd(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}

			output := parseOutput(t, result)
			if output["categoryId"] != "all" {
				t.Errorf("categoryId = %v, want all", output["categoryId"])
			}
			versions := output["versions"].([]any)
			if len(versions) != 1 {
				t.Errorf("versions = %d, want 1", len(versions))
			}
		})
	}
}

func TestHandlePromptGetAndUpdate(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	id := addPrompt(t, h, map[string]any{"title": "T", "text": "one"})

	result, err := h.HandlePromptUpdate(ctx, makeRequest(map[string]any{
		"id":          id,
		"text":        "two",
		"is_favorite": true,
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["isFavorite"] != true {
		t.Errorf("isFavorite = %v, want true", output["isFavorite"])
	}

	result, err = h.HandlePromptGet(ctx, makeRequest(map[string]any{"id": id}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output = parseOutput(t, result)
	versions := output["versions"].([]any)
	if len(versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(versions))
	}
	if got := versions[1].(map[string]any)["text"]; got != "two" {
		t.Errorf("current text = %v, want two", got)
	}

	result, _ = h.HandlePromptGet(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandlePromptList(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	addPrompt(t, h, map[string]any{"title": "beta", "text": "write a haiku"})
	addPrompt(t, h, map[string]any{"title": "alpha", "text": "summarize"})

	result, err := h.HandlePromptList(ctx, makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["count"] != float64(2) {
		t.Errorf("count = %v, want 2", output["count"])
	}
	if output["manual_order"] != true {
		t.Errorf("manual_order = %v, want true", output["manual_order"])
	}

	result, _ = h.HandlePromptList(ctx, makeRequest(map[string]any{"search": "HAIKU", "sort": "titleAsc"}))
	output = parseOutput(t, result)
	items := output["items"].([]any)
	if len(items) != 1 || items[0].(map[string]any)["title"] != "beta" {
		t.Errorf("items = %v, want only beta", items)
	}
	if output["manual_order"] != false {
		t.Errorf("manual_order = %v, want false", output["manual_order"])
	}

	result, _ = h.HandlePromptList(ctx, makeRequest(map[string]any{"sort": "shuffle"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleDeleteAndUndo(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	first := addPrompt(t, h, map[string]any{"text": "first"})
	addPrompt(t, h, map[string]any{"text": "second"})

	result, err := h.HandlePromptDelete(ctx, makeRequest(map[string]any{"id": first}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["originalIndex"] != float64(1) {
		t.Errorf("originalIndex = %v, want 1", output["originalIndex"])
	}

	result, _ = h.HandlePromptUndoDelete(ctx, makeRequest(nil))
	output = parseOutput(t, result)
	if output["id"] != first {
		t.Errorf("restored id = %v, want %s", output["id"], first)
	}

	result, _ = h.HandlePromptUndoDelete(ctx, makeRequest(nil))
	assertErrorCode(t, result, "UNDO_EMPTY")

	result, _ = h.HandlePromptDelete(ctx, makeRequest(map[string]any{"id": "missing"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleVersions(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	id := addPrompt(t, h, map[string]any{"text": "v0"})
	if _, err := h.HandlePromptUpdate(ctx, makeRequest(map[string]any{"id": id, "text": "v1"})); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	result, _ := h.HandlePromptRestoreVersion(ctx, makeRequest(map[string]any{"id": id, "index": 0}))
	output := parseOutput(t, result)
	if n := len(output["versions"].([]any)); n != 3 {
		t.Errorf("versions after restore = %d, want 3", n)
	}

	result, _ = h.HandlePromptDeleteVersion(ctx, makeRequest(map[string]any{"id": id, "index": 1}))
	output = parseOutput(t, result)
	if n := len(output["versions"].([]any)); n != 2 {
		t.Errorf("versions after delete = %d, want 2", n)
	}

	result, _ = h.HandlePromptDeleteVersion(ctx, makeRequest(map[string]any{"id": id, "index": 7}))
	assertErrorCode(t, result, "OUT_OF_RANGE")

	result, _ = h.HandlePromptDeleteVersion(ctx, makeRequest(map[string]any{"id": id}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandlePromptDeleteVersion(ctx, makeRequest(map[string]any{"id": id, "index": 0.5}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleReorderAndCopy(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	a := addPrompt(t, h, map[string]any{"text": "a"})
	b := addPrompt(t, h, map[string]any{"text": "b"})

	result, _ := h.HandlePromptReorder(ctx, makeRequest(map[string]any{"old_index": 0, "new_index": 1}))
	parseOutput(t, result)
	prompts := store.Prompts()
	if prompts[0].ID != a || prompts[1].ID != b {
		t.Errorf("order = [%s %s], want [%s %s]", prompts[0].ID, prompts[1].ID, a, b)
	}

	result, _ = h.HandlePromptReorder(ctx, makeRequest(map[string]any{"old_index": 0, "new_index": 5}))
	assertErrorCode(t, result, "OUT_OF_RANGE")

	result, _ = h.HandlePromptReorder(ctx, makeRequest(map[string]any{"old_index": 0}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandlePromptCopy(ctx, makeRequest(map[string]any{"id": b}))
	output := parseOutput(t, result)
	if output["text"] != "b" || output["copy_count"] != float64(1) {
		t.Errorf("copy output = %v", output)
	}
}

func TestHandleCategories(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	result, _ := h.HandleCategoryAdd(ctx, makeRequest(map[string]any{"name": "Work"}))
	output := parseOutput(t, result)
	catID := output["id"].(string)
	if _, ok := output["warning"]; ok {
		t.Errorf("unexpected warning on first category")
	}

	result, _ = h.HandleCategoryAdd(ctx, makeRequest(map[string]any{"name": "work"}))
	output = parseOutput(t, result)
	if _, ok := output["warning"]; !ok {
		t.Errorf("expected duplicate-name warning")
	}

	result, _ = h.HandleCategoryAdd(ctx, makeRequest(map[string]any{"name": "  "}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleCategoryUpdate(ctx, makeRequest(map[string]any{"id": catID, "name": "Job"}))
	output = parseOutput(t, result)
	if output["name"] != "Job" {
		t.Errorf("name = %v, want Job", output["name"])
	}

	addPrompt(t, h, map[string]any{"text": "x", "category_id": catID})

	result, _ = h.HandleCategoryList(ctx, makeRequest(nil))
	output = parseOutput(t, result)
	if n := len(output["items"].([]any)); n != 2 {
		t.Errorf("categories = %d, want 2", n)
	}

	result, _ = h.HandleCategoryDelete(ctx, makeRequest(map[string]any{"id": catID}))
	output = parseOutput(t, result)
	if output["reassigned"] != float64(1) {
		t.Errorf("reassigned = %v, want 1", output["reassigned"])
	}

	result, _ = h.HandleCategoryDelete(ctx, makeRequest(map[string]any{"id": "all"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleExportImport(t *testing.T) {
	store, cfg, exportsDir := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx := context.Background()

	addPrompt(t, h, map[string]any{"title": "keep", "text": "keep me"})

	exportPath := filepath.Join(exportsDir, "backup.yaml")
	result, err := h.HandleLibraryExport(ctx, makeRequest(map[string]any{"path": exportPath}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["prompts"] != float64(1) {
		t.Errorf("exported prompts = %v, want 1", output["prompts"])
	}
	if _, err := os.Stat(exportPath); err != nil {
		t.Fatalf("export file missing: %v", err)
	}

	addPrompt(t, h, map[string]any{"text": "added after export"})

	result, _ = h.HandleLibraryImport(ctx, makeRequest(map[string]any{"path": exportPath, "mode": "replace"}))
	output = parseOutput(t, result)
	if output["imported_prompts"] != float64(1) {
		t.Errorf("imported_prompts = %v, want 1", output["imported_prompts"])
	}
	if n := len(store.Prompts()); n != 1 {
		t.Errorf("prompts after replace = %d, want 1", n)
	}

	result, _ = h.HandleLibraryImport(ctx, makeRequest(map[string]any{"path": exportPath, "mode": "upsert"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleLibraryImport(ctx, makeRequest(map[string]any{"path": filepath.Join(exportsDir, "nope.json")}))
	assertErrorCode(t, result, "FILE_NOT_FOUND")

	result, _ = h.HandleLibraryExport(ctx, makeRequest(map[string]any{"path": "/etc/evil.json"}))
	assertErrorCode(t, result, "INVALID_REQUEST")

	result, _ = h.HandleLibraryExport(ctx, makeRequest(map[string]any{"format": "xml"}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandle_CancelledContext(t *testing.T) {
	store, cfg, _ := testSetup(t)
	h := NewHandlers(store, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.HandlePromptAdd(ctx, makeRequest(map[string]any{"text": "x"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "CANCELLED")
}

func TestServerRegistration(t *testing.T) {
	store, cfg, _ := testSetup(t)

	s := NewServer(store, cfg, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"prompt_add",
		"prompt_get",
		"prompt_list",
		"prompt_update",
		"prompt_delete",
		"prompt_undo_delete",
		"prompt_delete_version",
		"prompt_restore_version",
		"prompt_reorder",
		"prompt_copy",
		"category_list",
		"category_add",
		"category_update",
		"category_delete",
		"library_export",
		"library_import",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	store, cfg, _ := testSetup(t)

	cfg.DisabledTools = []string{"library_import", "prompt_delete", "prompt_delete"}
	tools := NewServer(store, cfg, "test").ListTools()

	if len(tools) != 14 {
		t.Errorf("registered tool count = %d, want 14", len(tools))
	}
	for _, name := range []string{"library_import", "prompt_delete"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestServerRegistration_WithDisabledTypes(t *testing.T) {
	store, cfg, _ := testSetup(t)

	cfg.DisabledTypes = []string{"library", "category"}
	tools := NewServer(store, cfg, "test").ListTools()

	if len(tools) != 10 {
		t.Errorf("registered tool count = %d, want 10", len(tools))
	}
	for name := range tools {
		if typ := GetTypeForTool(name); typ != "prompt" {
			t.Errorf("tool %q of type %q should be disabled", name, typ)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	store, cfg, _ := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	if tools := NewServer(store, cfg, "test").ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabled(t *testing.T) {
	if unknown := ValidateDisabledTools([]string{"prompt_add", "snippet_store"}); len(unknown) != 1 || unknown[0] != "snippet_store" {
		t.Errorf("ValidateDisabledTools() = %v, want [snippet_store]", unknown)
	}
	if unknown := ValidateDisabledTypes([]string{"prompt", "tag"}); len(unknown) != 1 || unknown[0] != "tag" {
		t.Errorf("ValidateDisabledTypes() = %v, want [tag]", unknown)
	}
	if unknown := ValidateDisabledTools(AllToolNames()); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	if ExpandTypesToTools(nil) != nil {
		t.Error("ExpandTypesToTools(nil) should be nil")
	}
}

func TestGetTypeForTool(t *testing.T) {
	cases := map[string]string{
		"prompt_undo_delete": "prompt",
		"category_add":       "category",
		"library_export":     "library",
		"noprefix":           "",
		"_leading":           "",
	}
	for name, want := range cases {
		if got := GetTypeForTool(name); got != want {
			t.Errorf("GetTypeForTool(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
	if strings.Contains(errObj["message"].(string), "secret") {
		t.Fatal("internal message leaked")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrapped := fmt.Errorf("prompts[2]: %w", errors.NewInvalidReference("gone"))

	errObj := errorObject(t, errorResult(wrapped))
	if errObj["code"] != string(errors.ErrInvalidReference) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInvalidReference)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "prompts[2]") {
		t.Errorf("message should contain wrapper context, got: %s", msg)
	}
}

func TestErrorResult_PlainError(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) || errObj["message"] != "an internal error occurred" {
		t.Errorf("plain error payload = %v", errObj)
	}
}

// Helper functions

func errorObject(t *testing.T, r *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	return payload["error"].(map[string]any)
}

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(resultText(t, result)), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

// resultText returns the first text content of a result.
func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			return text.Text
		}
	}
	t.Fatalf("no text content in result")
	return ""
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if !result.IsError {
		t.Errorf("expected error %s, got success", expectedCode)
		return
	}
	errObj := errorObject(t, result)
	code, ok := errObj["code"].(string)
	if !ok {
		t.Errorf("no code in error object")
		return
	}
	if code != expectedCode {
		t.Errorf("got error code %q, want %q (%v)", code, expectedCode, errObj["message"])
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}
	return text.Text
}
