package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"isinFlow/internal/domain/model"
)

// ChangeDTO represents a change-feed event on the wire
type ChangeDTO struct {
	EventID         string         `json:"eventId,omitempty"`
	EventType       string         `json:"eventType"`
	Schema          string         `json:"schema,omitempty"`
	Table           string         `json:"table,omitempty"`
	Record          map[string]any `json:"record,omitempty"`
	OldRecord       map[string]any `json:"oldRecord,omitempty"`
	CommitTimestamp *time.Time     `json:"commitTimestamp,omitempty"`
}

// ToModel converts a ChangeDTO to a domain model
func (dto *ChangeDTO) ToModel() *model.ChangeEvent {
	table := dto.Table
	if table == "" {
		table = dto.Schema
	}
	return &model.ChangeEvent{
		ID:        dto.EventID,
		Type:      model.EventType(strings.ToLower(strings.TrimSpace(dto.EventType))),
		Schema:    dto.Schema,
		Table:     table,
		Record:    model.RawRecord(dto.Record),
		OldRecord: model.RawRecord(dto.OldRecord),
	}
}

// FromModel creates a ChangeDTO from a domain model
func FromModel(event *model.ChangeEvent) *ChangeDTO {
	return &ChangeDTO{
		EventID:   event.ID,
		EventType: string(event.Type),
		Schema:    event.Schema,
		Table:     event.Table,
		Record:    event.Record,
		OldRecord: event.OldRecord,
	}
}

// Decode parses a wire payload. Numbers are kept as json.Number so large
// amounts survive unchanged into the normalizer.
func Decode(data []byte) (*ChangeDTO, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var dto ChangeDTO
	if err := dec.Decode(&dto); err != nil {
		return nil, err
	}
	return &dto, nil
}
