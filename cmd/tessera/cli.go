package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/tessera/internal/editor"
	"github.com/hpungsan/tessera/internal/errors"
	"github.com/hpungsan/tessera/internal/mcp"
	"github.com/hpungsan/tessera/internal/ops"
	"github.com/hpungsan/tessera/internal/web"
)

// newCLIApp creates the CLI application with all commands. svc is nil when
// only help or version output is needed.
func newCLIApp(svc *services) *cli.App {
	app := &cli.App{
		Name:    "tessera",
		Usage:   "Landing page layouts with undo/redo",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(svc),
			mcpCmd(svc),
			pagesCmd(svc),
			pageCmd(svc),
			layoutCmd(svc),
			exportCmd(svc),
			importCmd(svc),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the landing pages and the layout editor over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(web.Deps{
				Manager: svc.manager,
				Source:  svc.source,
				Config:  svc.cfg,
			}, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv, svc.manager.Close)
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Run the MCP tool server on stdio",
		Action: func(c *cli.Context) error {
			return runMCP(svc)
		},
	}
}

func runMCP(svc *services) error {
	return mcp.Run(mcp.Deps{
		Manager: svc.manager,
		Source:  svc.source,
		Config:  svc.cfg,
	}, Version)
}

// pagesCmd creates the pages command.
func pagesCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "pages",
		Usage: "List landing page slugs",
		Action: func(c *cli.Context) error {
			output, err := ops.ListPages(c.Context, svc.source)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// pageCmd creates the page command.
func pageCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:      "page",
		Usage:     "Render a landing page as hydrated JSON",
		ArgsUsage: "<slug>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "site-url", Usage: "Public origin for metadata (default: config site_url)"},
		},
		Action: func(c *cli.Context) error {
			siteURL := c.String("site-url")
			if siteURL == "" {
				siteURL = svc.cfg.SiteURL
			}
			output, err := ops.RenderPage(c.Context, svc.source, ops.RenderPageInput{
				Slug:    c.Args().First(),
				SiteURL: siteURL,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// layoutCmd creates the layout command and its subcommands. Every edit is
// written before the command returns.
func layoutCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "layout",
		Usage: "Show and edit the layout of a page entry",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the layout and undo/redo availability",
				ArgsUsage: "<entry-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "history", Usage: "Include past and future snapshots"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ShowLayout(c.Context, svc.manager, ops.ShowLayoutInput{
						EntryID:        c.Args().First(),
						IncludeHistory: c.Bool("history"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "add",
				Usage:     "Create a content entry and append it to the layout",
				ArgsUsage: "<entry-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Required: true, Usage: "Block type: heroBlock|twoColumnRow|imageGrid"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.AddComponent(c.Context, svc.manager, ops.AddComponentInput{
						EntryID: c.Args().First(),
						Type:    c.String("type"),
						Flush:   true,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "move",
				Usage:     "Move one component",
				ArgsUsage: "<entry-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "from", Required: true, Usage: "Current index"},
					&cli.IntFlag{Name: "to", Usage: "Index after removal (omit to leave the list unchanged)"},
				},
				Action: func(c *cli.Context) error {
					input := ops.ReorderInput{
						EntryID: c.Args().First(),
						Source:  c.Int("from"),
						Flush:   true,
					}
					if c.IsSet("to") {
						to := c.Int("to")
						input.Destination = &to
					}
					output, err := ops.ReorderComponents(c.Context, svc.manager, input)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			historyCmd(svc, "undo", "Step the layout back one snapshot", ops.Undo),
			historyCmd(svc, "redo", "Step the layout forward one snapshot", ops.Redo),
		},
	}
}

// historyCmd creates the undo and redo subcommands. Each CLI process starts a
// fresh session, so these only see edits made earlier in the same process.
func historyCmd(svc *services, name, usage string, op func(context.Context, *editor.Manager, ops.HistoryInput) (*ops.ChangeOutput, error)) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<entry-id>",
		Action: func(c *cli.Context) error {
			output, err := op(c.Context, svc.manager, ops.HistoryInput{
				EntryID: c.Args().First(),
				Flush:   true,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export local entries to a JSONL seed file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.tessera/seeds/entries-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, svc.local, ops.ExportInput{
				Path:    c.String("path"),
				BaseDir: svc.baseDir,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(svc *services) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import local entries from a JSONL seed file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|skip|replace"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, svc.local, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			if svc.cache != nil && output.Imported > 0 {
				if err := svc.cache.InvalidatePages(c.Context); err != nil {
					fmt.Fprintf(os.Stderr, "warning: cache not cleared: %v\n", err)
				}
			}
			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if tErr := errors.As(err); tErr != nil {
		return cli.Exit(fmt.Sprintf("[%s] %s", tErr.Code, tErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
