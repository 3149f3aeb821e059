package mcp

import "github.com/mark3labs/mcp-go/mcp"

var promptAddToolDef = mcp.NewTool("prompt_add",
	mcp.WithDescription("Add a prompt to the library. New prompts go to the top of the manual order."),
	mcp.WithString("text", mcp.Required(), mcp.Description("Prompt text (becomes the first version)")),
	mcp.WithString("title", mcp.Description("Short title")),
	mcp.WithString("category_id", mcp.Description(`Category id, default "all"`)),
)

var promptGetToolDef = mcp.NewTool("prompt_get",
	mcp.WithDescription("Fetch one prompt with its full version history."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var promptListToolDef = mcp.NewTool("prompt_list",
	mcp.WithDescription("List prompt summaries, optionally filtered and sorted."),
	mcp.WithString("category_id", mcp.Description(`Category id; "all" or empty for every category`)),
	mcp.WithString("search", mcp.Description("Case-insensitive match on title or current text")),
	mcp.WithString("sort", mcp.Description("Sort order"),
		mcp.Enum("createdAtDesc", "updatedAtDesc", "titleAsc", "titleDesc", "copyCountDesc")),
	mcp.WithString("date_filter", mcp.Description("Creation date filter"),
		mcp.Enum("all", "today", "yesterday", "thisWeek")),
)

var promptUpdateToolDef = mcp.NewTool("prompt_update",
	mcp.WithDescription("Update a prompt. Changed text is saved as a new version; omitted fields are left alone."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
	mcp.WithString("title", mcp.Description("New title")),
	mcp.WithString("text", mcp.Description("New text")),
	mcp.WithString("category_id", mcp.Description(`New category id, or "all"`)),
	mcp.WithBoolean("is_favorite", mcp.Description("Favorite flag")),
)

var promptDeleteToolDef = mcp.NewTool("prompt_delete",
	mcp.WithDescription("Delete a prompt. The most recent deletion can be undone with prompt_undo_delete."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var promptUndoDeleteToolDef = mcp.NewTool("prompt_undo_delete",
	mcp.WithDescription("Restore the most recently deleted prompt at its original position."),
)

var promptDeleteVersionToolDef = mcp.NewTool("prompt_delete_version",
	mcp.WithDescription("Remove one version from a prompt's history. The only remaining version cannot be removed."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
	mcp.WithNumber("index", mcp.Required(), mcp.Description("Version index, 0 is the oldest")),
)

var promptRestoreVersionToolDef = mcp.NewTool("prompt_restore_version",
	mcp.WithDescription("Make an earlier version current again by saving its text as a new version."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
	mcp.WithNumber("index", mcp.Required(), mcp.Description("Version index, 0 is the oldest")),
)

var promptReorderToolDef = mcp.NewTool("prompt_reorder",
	mcp.WithDescription("Move a prompt within the manual order."),
	mcp.WithNumber("old_index", mcp.Required(), mcp.Description("Current position")),
	mcp.WithNumber("new_index", mcp.Required(), mcp.Description("Target position")),
)

var promptCopyToolDef = mcp.NewTool("prompt_copy",
	mcp.WithDescription("Return a prompt's current text and count the copy."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Prompt id")),
)

var categoryListToolDef = mcp.NewTool("category_list",
	mcp.WithDescription("List categories."),
)

var categoryAddToolDef = mcp.NewTool("category_add",
	mcp.WithDescription("Create a category."),
	mcp.WithString("name", mcp.Required(), mcp.Description("Category name")),
)

var categoryUpdateToolDef = mcp.NewTool("category_update",
	mcp.WithDescription("Rename a category."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Category id")),
	mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
)

var categoryDeleteToolDef = mcp.NewTool("category_delete",
	mcp.WithDescription(`Delete a category. Its prompts move to "all".`),
	mcp.WithString("id", mcp.Required(), mcp.Description("Category id")),
)

var libraryExportToolDef = mcp.NewTool("library_export",
	mcp.WithDescription("Export every prompt and category to a JSON or YAML file."),
	mcp.WithString("path", mcp.Description("Destination (.json, .yaml, .yml); default is the exports directory")),
	mcp.WithString("format", mcp.Description("Format when path is omitted"), mcp.Enum("json", "yaml")),
)

var libraryImportToolDef = mcp.NewTool("library_import",
	mcp.WithDescription("Import prompts and categories from a JSON or YAML file."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source file (.json, .yaml, .yml)")),
	mcp.WithString("mode", mcp.Description("merge keeps the library and appends; replace discards it"),
		mcp.Enum("merge", "replace")),
)
