package storage

import (
	"context"
	"database/sql"
	"fmt"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"regexp"

	_ "github.com/mattn/go-sqlite3"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource pulls records from a local SQLite archive, typically an offline
// export of the records table. Columns are passed through untyped.
type SQLiteSource struct {
	db    *sql.DB
	path  string
	table string
}

func NewSQLiteSource(path, table string) (*SQLiteSource, error) {
	if table == "" {
		table = DefaultRecordsTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &SQLiteSource{db: db, path: path, table: table}, nil
}

var _ repository.RecordSource = (*SQLiteSource)(nil)

func (s *SQLiteSource) Name() string {
	return "sqlite:" + s.path
}

func (s *SQLiteSource) FetchAll(ctx context.Context) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []model.RawRecord
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		raw := make(model.RawRecord, len(cols))
		for i, col := range cols {
			raw[col] = values[i]
		}
		out = append(out, raw)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
