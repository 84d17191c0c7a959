package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/permission"
)

type storeOptions struct {
	driver string
	dsn    string
}

func (o *storeOptions) open() (*permission.Store, error) {
	s, err := permission.Open(o.driver, o.dsn, core.Permission{})
	if err != nil {
		return nil, withCode(exitStore, err)
	}
	return s, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newGrantCmd() *cobra.Command {
	var opts storeOptions

	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Manage import permissions per actor and table",
	}
	cmd.PersistentFlags().StringVar(&opts.driver, "driver", envOr("PERMISSION_DRIVER", "sqlite"), "Permission store driver: sqlite or postgres")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", envOr("PERMISSION_DSN", "permissions.db"), "Permission store DSN")

	cmd.AddCommand(newGrantSetCmd(&opts), newGrantListCmd(&opts), newGrantRevokeCmd(&opts))
	return cmd
}

func newGrantSetCmd(store *storeOptions) *cobra.Command {
	var (
		actor, table    string
		formats, tables string
		perm            core.Permission
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or replace the grant for an actor",
		Long: "Set stores the grant for --actor on --table. Without --table the grant\n" +
			"applies to every table the actor has no specific grant for.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range splitFlag(formats) {
				f, ok := core.ParseFormat(name)
				if !ok {
					return withCode(exitUsage, fmt.Errorf("unknown format %q", name))
				}
				perm.AllowedFormats = append(perm.AllowedFormats, f)
			}
			perm.AllowedTables = splitFlag(tables)

			s, err := store.open()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Upsert(cmd.Context(), permission.GrantFor(actor, table, perm)); err != nil {
				return withCode(exitStore, err)
			}
			scope := table
			if scope == "" {
				scope = "all tables"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s on %s\n", actor, scope)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&actor, "actor", "", "Actor the grant applies to (required)")
	f.StringVar(&table, "table", "", "Table key (empty for all tables)")
	f.BoolVar(&perm.CanImport, "import", false, "Allow imports")
	f.BoolVar(&perm.CanValidate, "validate", true, "Allow validation")
	f.BoolVar(&perm.CanPreview, "preview", true, "Allow parsing and preview")
	f.BoolVar(&perm.CanApprove, "approve", false, "Allow approving imports held for approval")
	f.Int64Var(&perm.MaxFileSize, "max-file-size", 0, "Maximum file size in bytes (0 for no limit)")
	f.IntVar(&perm.MaxRows, "max-rows", 0, "Maximum rows per file (0 for no limit)")
	f.StringVar(&formats, "formats", "", "Comma-separated allowed formats (empty for all)")
	f.StringVar(&tables, "tables", "", "Comma-separated allowed tables (empty for all)")
	f.BoolVar(&perm.RequireApproval, "require-approval", false, "Hold imports for approval")
	f.IntVar(&perm.MaxImportsPerHour, "per-hour", 0, "Imports allowed per hour (0 for no limit)")
	f.IntVar(&perm.MaxImportsPerDay, "per-day", 0, "Imports allowed per day (0 for no limit)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newGrantListCmd(store *storeOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.open()
			if err != nil {
				return err
			}
			defer s.Close()

			grants, err := s.List(cmd.Context(), actor)
			if err != nil {
				return withCode(exitStore, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACTOR\tTABLE\tIMPORT\tVALIDATE\tPREVIEW\tAPPROVE\tAPPROVAL\tFORMATS")
			for _, g := range grants {
				table := g.TableKey
				if table == "" {
					table = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t\t%t\t%t\t%s\n",
					g.Actor, table, g.CanImport, g.CanValidate, g.CanPreview, g.CanApprove, g.RequireApproval, g.AllowedFormats)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Only list grants for this actor")
	return cmd
}

func newGrantRevokeCmd(store *storeOptions) *cobra.Command {
	var actor, table string

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Delete the grant for an actor and table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.open()
			if err != nil {
				return err
			}
			defer s.Close()

			err = s.Delete(cmd.Context(), actor, table)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return withCode(exitUsage, fmt.Errorf("no grant for %s on %q", actor, table))
			}
			if err != nil {
				return withCode(exitStore, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s on %q\n", actor, table)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Actor (required)")
	cmd.Flags().StringVar(&table, "table", "", "Table key (empty for the catch-all grant)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func splitFlag(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
