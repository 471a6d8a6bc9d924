// Package sheet pulls bond rows from a published spreadsheet endpoint that
// answers GET with a JSON array of row objects.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/repository"
	"net/http"
	"time"
)

const maxBody = 32 << 20

type Source struct {
	url    string
	client *http.Client
}

var _ repository.RecordSource = (*Source)(nil)

func NewSource(url string, timeout time.Duration) *Source {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Source{url: url, client: &http.Client{Timeout: timeout}}
}

func (s *Source) Name() string {
	return "sheet"
}

// FetchAll downloads the sheet. Anything but a JSON array is an error.
func (s *Source) FetchAll(ctx context.Context) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch sheet: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode sheet: %w", err)
	}

	out := make([]model.RawRecord, 0, len(rows))
	for _, row := range rows {
		if row != nil {
			out = append(out, model.RawRecord(row))
		}
	}
	return out, nil
}
