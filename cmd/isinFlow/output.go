package main

import (
	"encoding/json"
	"fmt"
	"io"
	"isinFlow/internal/domain/model"

	"github.com/fatih/color"
	"github.com/gocarina/gocsv"
)

const (
	formatJSON  = "json"
	formatCSV   = "csv"
	formatTable = "table"
)

func writeRecords(w io.Writer, format string, records []model.BondRecord) error {
	if records == nil {
		records = []model.BondRecord{}
	}
	switch format {
	case formatCSV:
		return gocsv.Marshal(&records, w)
	case formatJSON, "":
		return writeJSON(w, records)
	default:
		return fmt.Errorf("unsupported format %q for records", format)
	}
}

func writeAggregates(w io.Writer, format string, aggs []model.BookrunnerAggregate) error {
	if aggs == nil {
		aggs = []model.BookrunnerAggregate{}
	}
	switch format {
	case formatCSV:
		return gocsv.Marshal(&aggs, w)
	case formatJSON:
		return writeJSON(w, aggs)
	case formatTable, "":
		return writeAggregateTable(w, aggs)
	default:
		return fmt.Errorf("unsupported format %q for bookrunners", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAggregateTable(w io.Writer, aggs []model.BookrunnerAggregate) error {
	header := color.New(color.Bold)
	if _, err := header.Fprintf(w, "%-4s %-28s %6s %8s  %s\n", "#", "BOOKRUNNER", "DEALS", "SHARE", "LAST ACTIVE"); err != nil {
		return err
	}
	for i, a := range aggs {
		share := color.GreenString("%7.2f%%", a.MarketSharePercent)
		if _, err := fmt.Fprintf(w, "%-4d %-28s %6d %s  %s\n", i+1, a.Name, a.DealCount, share, a.LastActiveDate); err != nil {
			return err
		}
	}
	return nil
}
