package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"isinFlow/internal/domain/model"
)

func TestDecode_SchemaFallsBackToTable(t *testing.T) {
	d, err := Decode([]byte(`{"eventType":"INSERT","schema":"scraped_bond_isins","record":{"isin":"XS0001","amount":200000}}`))
	require.NoError(t, err)

	event := d.ToModel()
	assert.Equal(t, model.EventInsert, event.Type)
	assert.Equal(t, "scraped_bond_isins", event.Table)
	assert.Equal(t, "XS0001", event.Record["isin"])
	assert.Nil(t, event.OldRecord)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestFromModel_Delete(t *testing.T) {
	d := FromModel(&model.ChangeEvent{ID: "1", Type: model.EventDelete, Table: "t", OldRecord: model.RawRecord{"id": "x"}})
	assert.Equal(t, "delete", d.EventType)
	assert.Equal(t, "x", d.OldRecord["id"])
	assert.Nil(t, d.Record)
}
