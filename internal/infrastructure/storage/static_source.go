package storage

import (
	"context"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
)

// StaticSource serves a fixed set of rows, such as seed rows from the
// reference file.
type StaticSource struct {
	name string
	rows []model.RawRecord
}

func NewStaticSource(name string, rows []model.RawRecord) *StaticSource {
	return &StaticSource{name: name, rows: rows}
}

var _ repository.RecordSource = (*StaticSource)(nil)

func (s *StaticSource) Name() string {
	return s.name
}

// FetchAll returns a copy of every row so callers can mutate them freely.
func (s *StaticSource) FetchAll(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.RawRecord, len(s.rows))
	for i, row := range s.rows {
		cp := make(model.RawRecord, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}
