package main

import (
	"context"
	"errors"
	"fmt"
	"isinFlow/internal/app"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run one full refresh against the configured sources and print the canonical records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			application, err := app.NewApp(ctx, opts.log, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup(application, opts.log)

			if err := application.Engine.Refresh(ctx); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			return writeRecords(cmd.OutOrStdout(), format, application.Engine.Records())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatJSON, "output format: json or csv")
	return cmd
}

func newBookrunnersCmd(opts *rootOptions) *cobra.Command {
	var from, to, currency, format string

	cmd := &cobra.Command{
		Use:   "bookrunners",
		Short: "Print the bookrunner market-share league table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := opts.cfg.Location()
			rng, err := parseRange(from, to, loc)
			if err != nil {
				return err
			}

			ctx := cmdContext(cmd)
			application, err := app.NewApp(ctx, opts.log, opts.cfg)
			if err != nil {
				return err
			}
			defer cleanup(application, opts.log)

			// records fill in issuer and currency the associations lack
			if err := application.Engine.Refresh(ctx); err != nil {
				opts.log.Warn("refresh failed, aggregating without record fallback", slog.String("error", err.Error()))
			}

			aggs, err := application.Engine.Aggregates(ctx, rng, currency)
			if err != nil {
				return err
			}
			return writeAggregates(cmd.OutOrStdout(), format, aggs)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "start date, YYYY-MM-DD or DD.MM.YYYY")
	cmd.Flags().StringVar(&to, "to", "", "end date, YYYY-MM-DD or DD.MM.YYYY")
	cmd.Flags().StringVar(&currency, "currency", normalize.CurrencyAll, "currency filter: all, EUR, USD, ...")
	cmd.Flags().StringVarP(&format, "format", "o", formatTable, "output format: table, json or csv")
	return cmd
}

func parseRange(from, to string, loc *time.Location) (model.DateRange, error) {
	var rng model.DateRange
	for _, bound := range []struct {
		value string
		dst   **time.Time
	}{{from, &rng.Start}, {to, &rng.End}} {
		v := strings.TrimSpace(bound.value)
		if v == "" {
			continue
		}
		t, err := parseDate(v, loc)
		if err != nil {
			return model.DateRange{}, err
		}
		*bound.dst = &t
	}
	if rng.Start != nil && rng.End != nil && rng.End.Before(*rng.Start) {
		return model.DateRange{}, errors.New("--to is before --from")
	}
	return rng, nil
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	if t, ok := normalize.ParseDisplayDate(v, loc); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func cleanup(application *app.AppContext, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Cleanup(ctx); err != nil {
		log.Warn("cleanup failed", slog.String("error", err.Error()))
	}
}
