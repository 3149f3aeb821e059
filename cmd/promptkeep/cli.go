package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/promptkeep/internal/config"
	"github.com/hpungsan/promptkeep/internal/errors"
	"github.com/hpungsan/promptkeep/internal/httpapi"
	"github.com/hpungsan/promptkeep/internal/library"
	"github.com/hpungsan/promptkeep/internal/logger"
	"github.com/hpungsan/promptkeep/internal/mcp"
	"github.com/hpungsan/promptkeep/internal/merge"
	"github.com/hpungsan/promptkeep/internal/prompt"
	"github.com/hpungsan/promptkeep/internal/view"
)

// stdout is where command output goes. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// stdin is where prompt text is read from. Tests swap it for a reader.
var stdin io.Reader = os.Stdin

// newCLIApp creates the CLI application with all commands.
func newCLIApp(store *library.Store, cfg *config.Config, log logger.Logger) *cli.App {
	app := &cli.App{
		Name:    "promptkeep",
		Usage:   "Local prompt library",
		Version: Version,
		Commands: []*cli.Command{
			addCmd(store),
			listCmd(store),
			showCmd(store),
			updateCmd(store),
			deleteCmd(store),
			undoCmd(store),
			versionsCmd(store),
			versionDeleteCmd(store),
			versionRestoreCmd(store),
			reorderCmd(store),
			copyCmd(store),
			categoryCmd(store),
			exportCmd(store),
			importCmd(store),
			themeCmd(store),
			serveCmd(store, cfg, log),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// addCmd creates the add command.
func addCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a prompt (text from --text or stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Prompt title"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category id (default: all)"},
			&cli.StringFlag{Name: "text", Usage: "Prompt text (overrides stdin)"},
		},
		Action: func(c *cli.Context) error {
			text, err := textInput(c)
			if err != nil {
				return outputError(err)
			}
			if text == nil || *text == "" {
				return outputError(errors.NewInvalidRequest("text is required (use --text or pipe via stdin)"))
			}

			p, err := store.AddPrompt(c.Context, library.NewPrompt{
				Title:      c.String("title"),
				Text:       *text,
				CategoryID: c.String("category"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(p)
		},
	}
}

// listCmd creates the list command.
func listCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List prompts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Category id (default: all)"},
			&cli.StringFlag{Name: "search", Aliases: []string{"s"}, Usage: "Case-insensitive match on title or current text"},
			&cli.StringFlag{Name: "sort", Usage: "createdAtDesc|updatedAtDesc|titleAsc|titleDesc|copyCountDesc"},
			&cli.StringFlag{Name: "date", Usage: "all|today|yesterday|thisWeek"},
		},
		Action: func(c *cli.Context) error {
			st, err := view.Parse(c.String("category"), c.String("search"), c.String("sort"), c.String("date"))
			if err != nil {
				return outputError(err)
			}

			items := view.SummarizeAll(view.Apply(store.Prompts(), st, time.Now()))
			return outputJSON(mcp.PromptListOutput{
				Items:       items,
				Count:       len(items),
				ManualOrder: view.AllowsManualOrder(st),
				View:        st,
			})
		},
	}
}

// showCmd creates the show command.
func showCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a prompt",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "html", Usage: "Render the current text as HTML"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "id")
			if err != nil {
				return outputError(err)
			}

			p, err := store.Prompt(id)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("html") {
				var buf bytes.Buffer
				if err := goldmark.Convert([]byte(prompt.CurrentText(p)), &buf); err != nil {
					return outputError(errors.NewInternal(err))
				}
				_, err = buf.WriteTo(stdout)
				return err
			}
			return outputJSON(p)
		},
	}
}

// updateCmd creates the update command.
func updateCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update a prompt (new text from --text or stdin adds a version)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "New title"},
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "New category id"},
			&cli.StringFlag{Name: "text", Usage: "New text (overrides stdin)"},
			&cli.BoolFlag{Name: "favorite", Usage: "Mark as favorite"},
			&cli.BoolFlag{Name: "unfavorite", Usage: "Clear favorite"},
		},
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "id")
			if err != nil {
				return outputError(err)
			}
			if c.Bool("favorite") && c.Bool("unfavorite") {
				return outputError(errors.NewInvalidRequest("--favorite and --unfavorite are mutually exclusive"))
			}

			var patch library.PromptPatch
			if patch.Text, err = textInput(c); err != nil {
				return outputError(err)
			}
			if patch.Text != nil && *patch.Text == "" {
				patch.Text = nil
			}
			if c.IsSet("title") {
				title := c.String("title")
				patch.Title = &title
			}
			if c.IsSet("category") {
				category := c.String("category")
				patch.CategoryID = &category
			}
			if c.Bool("favorite") || c.Bool("unfavorite") {
				favorite := c.Bool("favorite")
				patch.IsFavorite = &favorite
			}

			p, err := store.UpdatePrompt(c.Context, id, patch)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(p)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a prompt (recoverable with undo until the next delete)",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "id")
			if err != nil {
				return outputError(err)
			}

			deleted, err := store.DeletePrompt(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(deleted)
		},
	}
}

// undoCmd creates the undo command.
func undoCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "undo",
		Usage: "Restore the most recently deleted prompt",
		Action: func(c *cli.Context) error {
			p, err := store.RevertDeletedPrompt(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(p)
		},
	}
}

// versionEntry is one line of the versions output.
type versionEntry struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Current   bool   `json:"current"`
}

// versionsCmd creates the versions command.
func versionsCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "versions",
		Usage:     "List the saved versions of a prompt, oldest first",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "id")
			if err != nil {
				return outputError(err)
			}

			p, err := store.Prompt(id)
			if err != nil {
				return outputError(err)
			}

			entries := make([]versionEntry, len(p.Versions))
			for i, v := range p.Versions {
				entries[i] = versionEntry{
					Index:     i,
					Text:      v.Text,
					Timestamp: v.Timestamp,
					Current:   i == len(p.Versions)-1,
				}
			}
			return outputJSON(map[string]any{"id": p.ID, "versions": entries})
		},
	}
}

// versionDeleteCmd creates the version-delete command.
func versionDeleteCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "version-delete",
		Usage:     "Delete one version of a prompt",
		ArgsUsage: "<id> <index>",
		Action: func(c *cli.Context) error {
			id, index, err := idAndIndex(c)
			if err != nil {
				return outputError(err)
			}

			p, err := store.DeletePromptVersion(c.Context, id, index)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(p)
		},
	}
}

// versionRestoreCmd creates the version-restore command.
func versionRestoreCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "version-restore",
		Usage:     "Make an earlier version current again",
		ArgsUsage: "<id> <index>",
		Action: func(c *cli.Context) error {
			id, index, err := idAndIndex(c)
			if err != nil {
				return outputError(err)
			}

			p, err := store.RestorePromptVersion(c.Context, id, index)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(p)
		},
	}
}

// reorderCmd creates the reorder command.
func reorderCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "Move the prompt at <old> to <new> in the stored order",
		ArgsUsage: "<old> <new>",
		Action: func(c *cli.Context) error {
			oldIndex, err := intArg(c, 0, "old")
			if err != nil {
				return outputError(err)
			}
			newIndex, err := intArg(c, 1, "new")
			if err != nil {
				return outputError(err)
			}

			if err := store.ReorderPrompts(c.Context, oldIndex, newIndex); err != nil {
				return outputError(err)
			}
			return outputJSON(mcp.ReorderOutput{OldIndex: oldIndex, NewIndex: newIndex})
		},
	}
}

// copyCmd creates the copy command.
func copyCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "copy",
		Usage:     "Print the current text of a prompt and count the copy",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, 0, "id")
			if err != nil {
				return outputError(err)
			}

			p, err := store.IncrementCopyCount(c.Context, id)
			if err != nil {
				return outputError(err)
			}
			_, err = fmt.Fprint(stdout, prompt.CurrentText(p))
			return err
		},
	}
}

// categoryCmd creates the category command and its subcommands.
func categoryCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "category",
		Usage: "Manage categories",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List categories",
				Action: func(c *cli.Context) error {
					return outputJSON(map[string]any{"items": store.Categories()})
				},
			},
			{
				Name:      "add",
				Usage:     "Add a category",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					name, err := requireArg(c, 0, "name")
					if err != nil {
						return outputError(err)
					}

					dup := store.DuplicateCategoryName(name, "")
					cat, err := store.AddCategory(c.Context, library.NewCategory{Name: name})
					if err != nil {
						return outputError(err)
					}
					warnDuplicate(dup)
					return outputJSON(cat)
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a category",
				ArgsUsage: "<id> <name>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, 0, "id")
					if err != nil {
						return outputError(err)
					}
					name, err := requireArg(c, 1, "name")
					if err != nil {
						return outputError(err)
					}

					dup := store.DuplicateCategoryName(name, id)
					cat, err := store.UpdateCategory(c.Context, id, library.CategoryPatch{Name: name})
					if err != nil {
						return outputError(err)
					}
					warnDuplicate(dup)
					return outputJSON(cat)
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a category and move its prompts to all",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					id, err := requireArg(c, 0, "id")
					if err != nil {
						return outputError(err)
					}

					n, err := store.DeleteCategoryAndReassignPrompts(c.Context, id)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(mcp.CategoryDeleteOutput{ID: id, Reassigned: n})
				},
			},
		},
	}
}

// exportCmd creates the export command.
func exportCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export the library to a JSON or YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.promptkeep/exports/prompts-<timestamp>.json)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "json|yaml, used when --path is not given"},
		},
		Action: func(c *cli.Context) error {
			format, err := prompt.ParseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			out, err := store.ExportFile(c.Context, library.ExportInput{Path: c.String("path"), Format: format})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// importCmd creates the import command.
func importCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import prompts and categories from a JSON or YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "merge", Usage: "merge|replace"},
		},
		Action: func(c *cli.Context) error {
			policy, err := merge.ParsePolicy(c.String("mode"))
			if err != nil {
				return outputError(err)
			}

			out, err := store.ImportFile(c.Context, library.ImportInput{Path: c.String("path"), Policy: policy})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// themeCmd creates the theme command.
func themeCmd(store *library.Store) *cli.Command {
	return &cli.Command{
		Name:      "theme",
		Usage:     "Show or set the display theme",
		ArgsUsage: "[light|dark|auto]",
		Action: func(c *cli.Context) error {
			if c.NArg() > 0 {
				theme := prompt.Theme(strings.ToLower(strings.TrimSpace(c.Args().First())))
				if err := store.SetTheme(c.Context, theme); err != nil {
					return outputError(err)
				}
			}
			return outputJSON(map[string]any{"theme": store.Theme(c.Context)})
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(store *library.Store, cfg *config.Config, log logger.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the library over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Address to bind (default: config http_bind or 127.0.0.1)"},
			&cli.IntFlag{Name: "port", Usage: "Port to listen on (default: config http_port or 8787)"},
		},
		Action: func(c *cli.Context) error {
			if cfg == nil {
				cfg = config.DefaultConfig()
			}
			serveCfg := *cfg
			if c.IsSet("bind") {
				serveCfg.HTTPBind = c.String("bind")
			}
			if c.IsSet("port") {
				serveCfg.HTTPPort = c.Int("port")
			}

			srv := httpapi.NewServer(store, &serveCfg, log, Version)
			if err := httpapi.Run(srv, log); err != nil {
				return cli.Exit(fmt.Sprintf("server error: %v", err), 1)
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pErr.Code, pErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// warnDuplicate notes on stderr that a category name is shared.
func warnDuplicate(dup bool) {
	if dup {
		fmt.Fprintln(os.Stderr, "warning: another category already uses this name")
	}
}

// textInput returns --text when set, else piped stdin, else nil.
func textInput(c *cli.Context) (*string, error) {
	if c.IsSet("text") {
		text := c.String("text")
		return &text, nil
	}
	if !stdinHasData() {
		return nil, nil
	}
	text, err := readStdin()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &text, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	f, ok := stdin.(*os.File)
	if !ok {
		return stdin != nil
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin, dropping trailing line breaks.
func readStdin() (string, error) {
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// requireArg returns positional argument i. urfave/cli stops parsing flags at
// the first positional argument, so a flag written after it would be dropped
// silently; those are rejected instead.
func requireArg(c *cli.Context, i int, name string) (string, error) {
	for _, arg := range c.Args().Slice() {
		if strings.HasPrefix(arg, "--") {
			return "", errors.NewInvalidRequest(fmt.Sprintf("flags must precede <%s>: got %q after it", name, arg))
		}
	}
	if c.NArg() <= i {
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s is required", name))
	}
	return c.Args().Get(i), nil
}

func intArg(c *cli.Context, i int, name string) (int, error) {
	raw, err := requireArg(c, i, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s must be an integer: %q", name, raw))
	}
	return n, nil
}

func idAndIndex(c *cli.Context) (string, int, error) {
	id, err := requireArg(c, 0, "id")
	if err != nil {
		return "", 0, err
	}
	index, err := intArg(c, 1, "index")
	if err != nil {
		return "", 0, err
	}
	return id, index, nil
}
