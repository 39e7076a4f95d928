package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/internal/store"
)

func newCatalogCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and manage capability catalogs",
	}
	cmd.AddCommand(
		newCatalogListCommand(a),
		newCatalogShowCommand(a),
		newCatalogImportCommand(a),
		newCatalogDeleteCommand(a),
	)
	return cmd
}

func newCatalogListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the built-in catalog and stored snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builtin, err := catalog.Builtin()
			if err != nil {
				return newFailure("load built-in catalog", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFUNCTIONS\tSOURCE\tUPDATED")
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", "builtin", builtin.Count(), "embedded", "-")

			if a.cfg.Catalog.DB != "" {
				ctx := cmd.Context()
				st, err := a.openStore(ctx)
				if err != nil {
					return newFailure("open catalog database", err)
				}
				defer st.Close()

				snaps, err := st.ListCatalogs(ctx)
				if err != nil {
					return newFailure("list snapshots", err)
				}
				for _, s := range snaps {
					source := s.Source
					if source == "" {
						source = "-"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", s.Name, s.Functions, source, s.UpdatedAt.Format(time.RFC3339))
				}
			}
			return w.Flush()
		},
	}
}

func newCatalogShowCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show [category[.module]]",
		Short: "Show the configured catalog or one category or module of it",
		Example: `  flowcheck catalog show
  flowcheck catalog show data
  flowcheck catalog show data.json --catalog-db flows.db --catalog-snapshot prod`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return newFailure("load catalog", err)
			}

			tree := cat.Tree()
			if len(args) == 1 {
				tree, err = selectTree(cat, args[0])
				if err != nil {
					return err
				}
			}

			var out []byte
			switch format {
			case "yaml":
				out, err = yaml.Marshal(catalog.File{Categories: tree})
			case "json":
				out, err = json.MarshalIndent(catalog.File{Categories: tree}, "", "  ")
				out = append(out, '\n')
			default:
				return newFailure(fmt.Sprintf("unknown format %q (want yaml or json)", format), nil)
			}
			if err != nil {
				return newFailure("encode catalog", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	return cmd
}

// selectTree narrows the catalog tree to one category or one module.
func selectTree(cat *catalog.Catalog, sel string) ([]catalog.Category, error) {
	category, module, hasModule := strings.Cut(sel, ".")

	var found *catalog.Category
	for _, c := range cat.Tree() {
		if c.Name == category {
			found = &c
			break
		}
	}
	if found == nil {
		return nil, newFailure(fmt.Sprintf("unknown category %q. Available categories: %s.",
			category, strings.Join(cat.Categories(), ", ")), nil)
	}
	if !hasModule {
		return []catalog.Category{*found}, nil
	}

	for _, m := range found.Modules {
		if m.Name == module {
			only := *found
			only.Modules = []catalog.Module{m}
			return []catalog.Category{only}, nil
		}
	}
	mods, _ := cat.Modules(category)
	return nil, newFailure(fmt.Sprintf("unknown module %q in category %q. Available modules: %s.",
		module, category, strings.Join(mods, ", ")), nil)
}

func newCatalogImportCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Store a catalog file as a named snapshot",
		Long: `Parse a catalog file (YAML or JSON) and store it in the catalog database
under a name. Importing an existing name replaces the snapshot.`,
		Example: `  flowcheck catalog import crm.yaml --catalog-db flows.db --name crm`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			cat, err := catalog.LoadFile(path)
			if err != nil {
				return newFailure("load catalog", err)
			}
			snap, err := store.NewCatalogSnapshot(name, path, cat)
			if err != nil {
				return newFailure("snapshot catalog", err)
			}

			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return newFailure("open catalog database", err)
			}
			defer st.Close()

			if err := st.SaveCatalog(ctx, snap); err != nil {
				return newFailure("save snapshot", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Imported %s (%d functions)\n",
				StatusOK.Render(symbolOK), Bold.Render(name), snap.Functions)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Snapshot name (default: file name without extension)")
	return cmd
}

func newCatalogDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return newFailure("open catalog database", err)
			}
			defer st.Close()

			if err := st.DeleteCatalog(ctx, args[0]); err != nil {
				return newFailure("delete snapshot", err)
			}
			if err := st.Vacuum(ctx); err != nil {
				a.logger.Warn("vacuum after delete failed", "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", StatusOK.Render(symbolOK), Bold.Render(args[0]))
			return nil
		},
	}
}
