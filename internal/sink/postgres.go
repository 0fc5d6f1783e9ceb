package sink

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/csvquery/csvscan/internal/parser"
)

// DefaultBatch is the number of rows per COPY when none is given.
const DefaultBatch = 10000

// PostgresSink loads rows into a table with COPY FROM. Fields are sent as
// text and null fields as SQL NULL. When no columns are given, row 1 of
// every input is a header: the first one names the columns and later ones
// must repeat it.
type PostgresSink struct {
	ctx     context.Context
	conn    *pgx.Conn
	table   pgx.Identifier
	columns []string
	header  bool // columns come from the input
	batch   int
	pending [][]any

	// Copied is the number of rows stored so far.
	Copied int64
}

// NewPostgresSink connects to uri and prepares to copy into table, which
// may be schema-qualified ("schema.table").
func NewPostgresSink(ctx context.Context, uri, table string, columns []string, batch int) (*PostgresSink, error) {
	if table == "" {
		return nil, fmt.Errorf("no table given")
	}
	if batch <= 0 {
		batch = DefaultBatch
	}
	conn, err := pgx.Connect(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return newPostgresSink(ctx, conn, table, columns, batch), nil
}

func newPostgresSink(ctx context.Context, conn *pgx.Conn, table string, columns []string, batch int) *PostgresSink {
	return &PostgresSink{
		ctx:     ctx,
		conn:    conn,
		table:   pgx.Identifier(strings.Split(table, ".")),
		columns: columns,
		header:  len(columns) == 0,
		batch:   batch,
		pending: make([][]any, 0, batch),
	}
}

func (s *PostgresSink) WriteRow(rownum int64, row parser.Row) error {
	if s.header && rownum == 1 {
		names := row.Strings(nil)
		if s.columns == nil {
			s.columns = names
		} else if !slices.Equal(names, s.columns) {
			return fmt.Errorf("header %q does not match columns %q", names, s.columns)
		}
		return nil
	}
	if row.Len() != len(s.columns) {
		return fmt.Errorf("row has %d fields, table %s has %d columns", row.Len(), s.table.Sanitize(), len(s.columns))
	}
	s.pending = append(s.pending, appendValues(make([]any, 0, row.Len()), row))
	if len(s.pending) >= s.batch {
		return s.Flush()
	}
	return nil
}

// Flush copies the pending rows.
func (s *PostgresSink) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	n, err := s.conn.CopyFrom(s.ctx, s.table, s.columns, pgx.CopyFromRows(s.pending))
	s.Copied += n
	s.pending = s.pending[:0]
	if err != nil {
		return fmt.Errorf("copy into %s: %w", s.table.Sanitize(), err)
	}
	return nil
}

// Columns returns the target column names.
func (s *PostgresSink) Columns() []string {
	return s.columns
}

func (s *PostgresSink) Close() error {
	err := s.Flush()
	if cerr := s.conn.Close(context.Background()); err == nil {
		err = cerr
	}
	return err
}
