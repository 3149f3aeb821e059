package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/library"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"prompt", "category", "library"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"prompt_add": {
		def:     promptAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptAdd },
	},
	"prompt_get": {
		def:     promptGetToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptGet },
	},
	"prompt_list": {
		def:     promptListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptList },
	},
	"prompt_update": {
		def:     promptUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUpdate },
	},
	"prompt_delete": {
		def:     promptDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptDelete },
	},
	"prompt_undo_delete": {
		def:     promptUndoDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptUndoDelete },
	},
	"prompt_delete_version": {
		def:     promptDeleteVersionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptDeleteVersion },
	},
	"prompt_restore_version": {
		def:     promptRestoreVersionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptRestoreVersion },
	},
	"prompt_reorder": {
		def:     promptReorderToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptReorder },
	},
	"prompt_copy": {
		def:     promptCopyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePromptCopy },
	},
	"category_list": {
		def:     categoryListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryList },
	},
	"category_add": {
		def:     categoryAddToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryAdd },
	},
	"category_update": {
		def:     categoryUpdateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryUpdate },
	},
	"category_delete": {
		def:     categoryDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCategoryDelete },
	},
	"library_export": {
		def:     libraryExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryExport },
	},
	"library_import": {
		def:     libraryImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryImport },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name
// ("prompt_add" → "prompt").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates an MCP server with the prompt library tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are left out.
func NewServer(store *library.Store, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"promptkeep",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(store, cfg)

	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves the tools over stdio until stdin closes.
func Run(store *library.Store, cfg *config.Config, version string) error {
	return server.ServeStdio(NewServer(store, cfg, version))
}
