// Package frame is the columnar execution substrate for the segment
// insight engine (SPEC_FULL.md §11). A Frame loads an uploaded CSV into a
// private sqlite3 database, one row per CSV row in a table named "rows",
// and answers group-by aggregation queries per dimension subset. SQLite
// does the per-subset GROUP BY; the engine does the outer join and
// weighted statistics in Go, since those aren't expressible in SQL.
package frame

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ColumnType is the inferred SQLite storage class for a CSV column.
type ColumnType string

const (
	ColumnText    ColumnType = "TEXT"
	ColumnReal    ColumnType = "REAL"
	ColumnInteger ColumnType = "INTEGER"
)

// Column describes one column of the loaded frame.
type Column struct {
	Name string
	Type ColumnType
}

// DateColumnType selects how DateColumn values are interpreted (spec.md §4.1).
type DateColumnType string

const (
	DateTypeDate         DateColumnType = "date"
	DateTypeTimestampMS  DateColumnType = "timestamp-ms"
	DateTypeTimestampS   DateColumnType = "timestamp-s"
	DateTypeEpochInt     DateColumnType = "epoch-int"
)

// Frame wraps a private sqlite3-backed table holding the uploaded rows.
type Frame struct {
	db       *sql.DB
	path     string
	columns  []Column
	rowCount int
}

// quoteIdent quotes a SQL identifier; columns come from the CSV header or
// the request's own field names, never directly from untrusted free text
// interpolated as a value.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Open loads the CSV at csvPath into a fresh sqlite3 database at dbPath
// (use ":memory:" for an ephemeral frame). Column types are inferred: a
// column is REAL if every non-empty value parses as a float, else TEXT.
func Open(ctx context.Context, csvPath, dbPath string) (*Frame, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	records := make([][]string, 0, 1024)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		records = append(records, rec)
	}

	columns := inferColumns(header, records)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	f := &Frame{db: db, path: dbPath, columns: columns, rowCount: len(records)}
	if err := f.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	if err := f.loadRows(ctx, records); err != nil {
		db.Close()
		return nil, err
	}
	return f, nil
}

func inferColumns(header []string, records [][]string) []Column {
	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Type: ColumnReal}
	}

	for _, rec := range records {
		for i := range header {
			if i >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[i])
			if v == "" {
				continue
			}
			if columns[i].Type == ColumnReal {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					columns[i].Type = ColumnText
				}
			}
		}
	}
	return columns
}

func (f *Frame) createTable() error {
	defs := make([]string, len(f.columns))
	for i, c := range f.columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Type)
	}
	ddl := fmt.Sprintf("CREATE TABLE rows (%s)", strings.Join(defs, ", "))
	_, err := f.db.Exec(ddl)
	return err
}

func (f *Frame) loadRows(ctx context.Context, records [][]string) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	placeholders := make([]string, len(f.columns))
	names := make([]string, len(f.columns))
	for i, c := range f.columns {
		placeholders[i] = "?"
		names[i] = quoteIdent(c.Name)
	}
	insertSQL := fmt.Sprintf("INSERT INTO rows (%s) VALUES (%s)", strings.Join(names, ","), strings.Join(placeholders, ","))

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		args := make([]interface{}, len(f.columns))
		for i, c := range f.columns {
			if i >= len(rec) || rec[i] == "" {
				args[i] = nil
				continue
			}
			if c.Type == ColumnReal {
				v, err := strconv.ParseFloat(rec[i], 64)
				if err != nil {
					args[i] = nil
					continue
				}
				args[i] = v
			} else {
				args[i] = rec[i]
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert row: %w", err)
		}
	}

	return tx.Commit()
}

// Columns returns the frame's inferred schema.
func (f *Frame) Columns() []Column { return f.columns }

// HasColumn reports whether name is a column of the frame.
func (f *Frame) HasColumn(name string) bool {
	for _, c := range f.columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// RowCount returns the total number of loaded rows (before any filter).
func (f *Frame) RowCount() int { return f.rowCount }

// Close releases the underlying sqlite connection.
func (f *Frame) Close() error { return f.db.Close() }

// DistinctValues returns up to limit distinct non-null values of column,
// for schema introspection.
func (f *Frame) DistinctValues(ctx context.Context, column string, limit int) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT %s FROM rows WHERE %s IS NOT NULL LIMIT ?", quoteIdent(column), quoteIdent(column))
	rows, err := f.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, stringify(v))
	}
	return out, rows.Err()
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// CanonicalDateExpr returns the SQL expression that truncates dateColumn
// (interpreted per dateType) to a calendar date string (spec.md §4.2).
func CanonicalDateExpr(dateColumn string, dateType DateColumnType) string {
	col := quoteIdent(dateColumn)
	switch dateType {
	case DateTypeTimestampMS:
		return fmt.Sprintf("date(%s / 1000, 'unixepoch')", col)
	case DateTypeTimestampS, DateTypeEpochInt:
		return fmt.Sprintf("date(%s, 'unixepoch')", col)
	default:
		return fmt.Sprintf("date(%s)", col)
	}
}

// DB exposes the underlying connection; engine code should prefer the
// View/GroupBy API in view.go.
func (f *Frame) DB() *sql.DB { return f.db }
