package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// fileOptions are the parse flags shared by the file commands.
type fileOptions struct {
	format     string
	delimiter  string
	encoding   string
	dateFormat string
	skipFirst  int
	maxRows    int
	noHeaders  bool
}

func (o *fileOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.format, "format", "", "Force the format: csv, json, spreadsheet or markup")
	cmd.Flags().StringVar(&o.delimiter, "delimiter", "", "CSV delimiter (detected when empty)")
	cmd.Flags().StringVar(&o.encoding, "encoding", "", "Text encoding of the file (default utf-8)")
	cmd.Flags().StringVar(&o.dateFormat, "date-format", "", "Date layout tried first for date columns")
	cmd.Flags().IntVar(&o.skipFirst, "skip", 0, "Records to skip before the header")
	cmd.Flags().IntVar(&o.maxRows, "max-rows", 0, "Stop after this many data rows")
	cmd.Flags().BoolVar(&o.noHeaders, "no-headers", false, "The file has no header record")
}

func (o *fileOptions) importOptions() (core.ImportOptions, error) {
	opts := core.ImportOptions{
		Delimiter:     o.delimiter,
		Encoding:      o.encoding,
		DateFormat:    o.dateFormat,
		SkipFirstRows: o.skipFirst,
		MaxRows:       o.maxRows,
	}
	if o.format != "" {
		f, ok := core.ParseFormat(o.format)
		if !ok {
			return opts, withCode(exitUsage, fmt.Errorf("unknown --format %q", o.format))
		}
		opts.Format = f
	}
	if o.noHeaders {
		hasHeaders := false
		opts.HasHeaders = &hasHeaders
	}
	return opts, nil
}

func readInput(path string) (core.FileInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return core.FileInput{}, withCode(exitUsage, err)
	}
	return core.FileInput{Name: filepath.Base(path), Content: content}, nil
}

// parseInput reads and parses path. Parse failures exit with the
// validation code.
func parseInput(path string, o *fileOptions) (*core.ParsedData, core.ImportOptions, error) {
	opts, err := o.importOptions()
	if err != nil {
		return nil, opts, err
	}
	file, err := readInput(path)
	if err != nil {
		return nil, opts, err
	}
	pd, err := core.ParseFile(file, opts)
	if err != nil {
		return nil, opts, withCode(exitValidation, err)
	}
	return pd, opts, nil
}

func lookupTable(key string) (core.TableSchema, error) {
	t, err := core.Lookup(key)
	if err != nil {
		return t, withCode(exitUsage, err)
	}
	return t, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newDetectCmd() *cobra.Command {
	var contentType string

	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Print the format a file would be parsed as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := core.DetectFormat(filepath.Base(args[0]), contentType)
			fmt.Fprintln(cmd.OutOrStdout(), format)
			return nil
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "Declared content type")
	return cmd
}

type parseSummary struct {
	Format     core.Format     `json:"format"`
	Headers    []string        `json:"headers"`
	TotalRows  int             `json:"totalRows"`
	SampleRows []core.Row      `json:"sampleRows"`
	Errors     []core.RowError `json:"errors"`
	Warnings   []core.Warning  `json:"warnings"`
}

func newParseCmd() *cobra.Command {
	var (
		opts   fileOptions
		sample int
	)

	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Parse a file and print its headers, row count and problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pd, _, err := parseInput(args[0], &opts)
			if err != nil {
				return err
			}
			rows := pd.Rows
			if len(rows) > sample {
				rows = rows[:sample]
			}
			return printJSON(cmd.OutOrStdout(), parseSummary{
				Format:     pd.Format,
				Headers:    pd.Headers,
				TotalRows:  pd.TotalRows,
				SampleRows: rows,
				Errors:     pd.Errors,
				Warnings:   pd.Warnings,
			})
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVar(&sample, "rows", 5, "Sample rows to print")
	return cmd
}

func newMapCmd() *cobra.Command {
	var (
		opts  fileOptions
		table string
	)

	cmd := &cobra.Command{
		Use:   "map <file>",
		Short: "Suggest field mappings from a file's headers to a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(table)
			if err != nil {
				return err
			}
			pd, _, err := parseInput(args[0], &opts)
			if err != nil {
				return err
			}
			mappings := core.AutoMap(pd.Headers, t.Columns)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"mappings": mappings,
				"warnings": core.CheckMappings(pd.Headers, mappings, t.Columns),
			})
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&table, "table", "", "Target table key (required)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var (
		opts         fileOptions
		table        string
		mappingsPath string
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a file against a table and print every row error",
		Long: "Validate parses the file, maps its columns to the table and runs the\n" +
			"validation engine. It exits with status 3 when any row is invalid.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupTable(table)
			if err != nil {
				return err
			}
			pd, importOpts, err := parseInput(args[0], &opts)
			if err != nil {
				return err
			}

			var mappings []core.FieldMapping
			if mappingsPath != "" {
				raw, err := os.ReadFile(mappingsPath)
				if err != nil {
					return withCode(exitUsage, err)
				}
				if err := json.Unmarshal(raw, &mappings); err != nil {
					return withCode(exitUsage, fmt.Errorf("decode %s: %w", mappingsPath, err))
				}
			} else {
				mappings = core.AutoMap(pd.Headers, t.Columns)
			}

			v := core.NewValidator(core.WithDateFormat(importOpts.DateFormat))
			result := v.ValidateParsed(pd, mappings, t.Columns)
			result.Rows = nil
			if err := printJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return withCode(exitValidation, fmt.Errorf("%d of %d rows failed validation", result.ErrorRows, result.TotalRows))
			}
			return nil
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&table, "table", "", "Target table key (required)")
	cmd.Flags().StringVar(&mappingsPath, "mappings", "", "JSON file of field mappings (auto-mapped when empty)")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func newTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the registered tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tKEY\tLABEL\tCOLUMNS")
			for _, t := range core.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.Group, t.Key, t.Label, len(t.Columns))
			}
			return tw.Flush()
		},
	}
}
