// Command importctl runs the import pipeline locally: format detection,
// parsing, field mapping and validation against the registered tables. It
// also manages the permission grants the server enforces.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/JonMunkholm/dataimport/internal/logging"
	"github.com/JonMunkholm/dataimport/internal/schema"
)

const (
	exitUsage      = 2
	exitValidation = 3
	exitStore      = 4
)

// exitError carries the process exit code for an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

type rootOptions struct {
	schemaDir string
	builtin   bool
	logLevel  string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Parse, map and validate import files against table schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, "text"))

			core.Clear()
			if _, err := schema.Setup(opts.builtin, opts.schemaDir); err != nil {
				return withCode(exitUsage, fmt.Errorf("load tables: %w", err))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.schemaDir, "schema-dir", os.Getenv("SCHEMA_DIR"), "Directory of YAML table definitions")
	cmd.PersistentFlags().BoolVar(&opts.builtin, "builtin", true, "Register the built-in tables")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newDetectCmd(),
		newParseCmd(),
		newMapCmd(),
		newValidateCmd(),
		newTablesCmd(),
		newGrantCmd(),
	)
	return cmd
}

func main() {
	_ = godotenv.Load()

	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if core.IsUserFacing(err) {
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
	}

	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(1)
}
