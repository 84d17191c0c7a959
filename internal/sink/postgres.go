package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/dataimport/internal/core"
	"github.com/jackc/pgx/v5"
)

// ErrNotAsync is returned by the status operations of sinks that finish
// every import inline.
var ErrNotAsync = errors.New("sink completes imports inline")

// TxBeginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Postgres writes rows into a table of the same name as the target schema.
//
// Each chunk of BatchSize rows runs in its own transaction. The chunk is
// first sent as one pgx.Batch; if any statement fails, the chunk is replayed
// row by row behind savepoints so good rows still land and bad rows are
// reported as row errors.
type Postgres struct {
	db     TxBeginner
	schema string
	log    *slog.Logger
}

// PostgresOption configures a Postgres sink.
type PostgresOption func(*Postgres)

// WithSchema sets the database schema holding the target tables.
func WithSchema(name string) PostgresOption {
	return func(p *Postgres) { p.schema = name }
}

// WithLogger sets the logger for chunk failures.
func WithLogger(l *slog.Logger) PostgresOption {
	return func(p *Postgres) { p.log = l }
}

// NewPostgres creates a Postgres sink on db.
func NewPostgres(db TxBeginner, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Import writes rows and reports how many were written.
func (p *Postgres) Import(ctx context.Context, rows []core.MappedRow, opts core.SinkOptions) (core.SinkResult, error) {
	res := core.SinkResult{Errors: []core.RowError{}}
	if len(rows) == 0 {
		return res, nil
	}

	columns := presentColumns(opts.Columns, rows)
	if len(columns) == 0 {
		return res, fmt.Errorf("no target columns present in rows for %s", opts.Table)
	}
	stmt := buildInsert(p.schema, opts.Table, columns, opts.UniqueColumns, opts.OnDuplicate)

	size := opts.BatchSize
	if size <= 0 {
		size = core.DefaultBatchSize
	}
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		written, rowErrs, err := p.importChunk(ctx, stmt, columns, rows[start:end], start)
		if err != nil {
			return res, fmt.Errorf("rows %d-%d: %w", start+1, end, err)
		}
		res.ImportedRows += written
		res.Errors = append(res.Errors, rowErrs...)
		if opts.Progress != nil {
			opts.Progress(end)
		}
	}
	return res, nil
}

func (p *Postgres) importChunk(ctx context.Context, stmt string, columns []core.TargetColumn, rows []core.MappedRow, offset int) (int, []core.RowError, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if _, err := tx.Exec(ctx, "SAVEPOINT chunk"); err != nil {
		return 0, nil, fmt.Errorf("failed to create savepoint: %w", err)
	}

	written, batchErr := sendBatch(ctx, tx, stmt, columns, rows)
	var rowErrs []core.RowError
	if batchErr != nil {
		p.log.Debug("batch insert failed, retrying row by row", "rows", len(rows), "error", batchErr)
		if _, err := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT chunk"); err != nil {
			return 0, nil, fmt.Errorf("failed to rollback savepoint: %w", err)
		}
		written, rowErrs, err = insertRows(ctx, tx, stmt, columns, rows, offset)
		if err != nil {
			return 0, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return written, rowErrs, nil
}

// sendBatch queues every row in one round trip.
func sendBatch(ctx context.Context, tx pgx.Tx, stmt string, columns []core.TargetColumn, rows []core.MappedRow) (int, error) {
	b := &pgx.Batch{}
	for _, row := range rows {
		b.Queue(stmt, rowArgs(columns, row)...)
	}

	br := tx.SendBatch(ctx, b)
	written := 0
	for range rows {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, err
		}
		written += int(tag.RowsAffected())
	}
	return written, br.Close()
}

// insertRows isolates every insert in a savepoint; Postgres aborts the whole
// transaction on any error otherwise.
func insertRows(ctx context.Context, tx pgx.Tx, stmt string, columns []core.TargetColumn, rows []core.MappedRow, offset int) (int, []core.RowError, error) {
	written := 0
	var rowErrs []core.RowError
	for i, row := range rows {
		rowNum := offset + i + 1
		if err := ctx.Err(); err != nil {
			return 0, nil, fmt.Errorf("operation cancelled at row %d: %w", rowNum, err)
		}

		if _, err := tx.Exec(ctx, "SAVEPOINT row"); err != nil {
			return 0, nil, fmt.Errorf("failed to create savepoint at row %d: %w", rowNum, err)
		}
		tag, err := tx.Exec(ctx, stmt, rowArgs(columns, row)...)
		if err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT row"); rbErr != nil {
				return 0, nil, fmt.Errorf("failed to rollback savepoint at row %d: %w", rowNum, rbErr)
			}
			rowErrs = append(rowErrs, core.RowError{
				Row:     rowNum,
				Code:    core.MapError(err).Code,
				Message: "db error: " + err.Error(),
			})
			continue
		}
		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT row"); err != nil {
			return 0, nil, fmt.Errorf("failed to release savepoint at row %d: %w", rowNum, err)
		}
		written += int(tag.RowsAffected())
	}
	return written, rowErrs, nil
}

func rowArgs(columns []core.TargetColumn, row core.MappedRow) []any {
	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = pgValue(c.Type, row[c.Key])
	}
	return args
}

// presentColumns returns the schema columns that at least one row carries, in
// schema order. Columns no row mentions keep their database default.
func presentColumns(schema []core.TargetColumn, rows []core.MappedRow) []core.TargetColumn {
	var out []core.TargetColumn
	for _, c := range schema {
		for _, r := range rows {
			if _, ok := r[c.Key]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// buildInsert renders the parameterized INSERT for one row.
//
// skip ignores rows hitting any unique constraint. update upserts on the
// first unique column present. error adds no conflict clause.
func buildInsert(schema, table string, columns []core.TargetColumn, unique []string, action core.DuplicateAction) string {
	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}

	names := make([]string, len(columns))
	params := make([]string, len(columns))
	present := make(map[string]bool, len(columns))
	for i, c := range columns {
		names[i] = pgx.Identifier{c.Key}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
		present[c.Key] = true
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		ident.Sanitize(), strings.Join(names, ", "), strings.Join(params, ", "))

	switch action {
	case core.DuplicateSkip:
		sb.WriteString(" ON CONFLICT DO NOTHING")
	case core.DuplicateUpdate:
		var target string
		for _, u := range unique {
			if present[u] {
				target = u
				break
			}
		}
		if target == "" {
			break
		}
		var sets []string
		for _, c := range columns {
			if c.Key == target {
				continue
			}
			q := pgx.Identifier{c.Key}.Sanitize()
			sets = append(sets, q+" = EXCLUDED."+q)
		}
		conflict := pgx.Identifier{target}.Sanitize()
		if len(sets) == 0 {
			fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", conflict)
		} else {
			fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", conflict, strings.Join(sets, ", "))
		}
	}
	return sb.String()
}

// PollStatus is not supported; Postgres imports finish inline.
func (p *Postgres) PollStatus(context.Context, string) (core.ImportJob, error) {
	return core.ImportJob{}, ErrNotAsync
}

// Cancel is not supported; Postgres imports finish inline.
func (p *Postgres) Cancel(context.Context, string) error {
	return ErrNotAsync
}
