package main

import (
	"io"
	"isinFlow/config"
	"log/slog"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfg       *config.Config
	log       *slog.Logger
	env       string
	reference string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "isinflow",
		Short: "Bond listing board sync engine",
		Long: `isinflow keeps a canonical collection of newly announced bond listings
in sync with its upstream sources, serves it over HTTP and WebSocket and
derives bookrunner market-share statistics.

Without a subcommand it runs the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.LoadConfig()
			if opts.env != "" {
				opts.cfg.Env = opts.env
			}
			if opts.reference != "" {
				opts.cfg.ReferenceFile = opts.reference
			}

			// one-shot commands print results on stdout, so their logs go to stderr
			var out io.Writer = cmd.ErrOrStderr()
			if cmd.Name() == "serve" || !cmd.HasParent() {
				out = cmd.OutOrStdout()
			}
			opts.log = setupLogger(opts.cfg, out)
			slog.SetDefault(opts.log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.env, "env", "", "environment: local, dev or prod (overrides ENV)")
	root.PersistentFlags().StringVar(&opts.reference, "reference", "", "YAML reference file with aliases, rules and seed rows")

	root.AddCommand(
		newServeCmd(opts),
		newRefreshCmd(opts),
		newBookrunnersCmd(opts),
		newNormalizeCmd(opts),
	)
	return root
}
