package main

import (
	"encoding/json"
	"fmt"
	"io"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"os"

	"github.com/spf13/cobra"
)

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a JSON array of raw rows read from a file or stdin",
		Long: `normalize applies the same field resolution, status classification and
date formatting the engine uses to every row of a JSON array. Empty rows
are dropped. Reads stdin when no file is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			rows, err := decodeRows(in)
			if err != nil {
				return err
			}
			records := normalize.New(opts.cfg.Location()).NormalizeAll(rows)
			return writeRecords(cmd.OutOrStdout(), format, records)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatJSON, "output format: json or csv")
	return cmd
}

func decodeRows(r io.Reader) ([]model.RawRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []model.RawRecord
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	out := rows[:0]
	for _, row := range rows {
		if row != nil {
			out = append(out, row)
		}
	}
	return out, nil
}
