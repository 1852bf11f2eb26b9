package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatmood/internal/config"
	"github.com/eldtechnologies/chatmood/internal/models"
	"github.com/eldtechnologies/chatmood/internal/parser"
	"github.com/eldtechnologies/chatmood/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the analysis table and add missing columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.ValidateStore(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			logger.Info().Str("driver", cfg.StoreDriver).Msg("schema up to date")
			return nil
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify one message and print the parsed result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.ValidateInference(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			raw, err := newClassifier(cfg, logger).Classify(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c, err := parser.NewLinePrefixParser().Parse(raw)
			if err != nil {
				return fmt.Errorf("%w\nraw reply:\n%s", err, raw)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(c)
		},
	}
}

func newRecentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent analyses",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.ValidateStore(); err != nil {
				return err
			}

			db, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.RecentAnalyses(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CREATED\tSENTIMENT\tEMOTION\tUSER\tMESSAGE")
			for _, r := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.CreatedAt.Format("2006-01-02 15:04:05"),
					models.PrimarySentiment(r.Sentiment),
					r.Emotion,
					r.UserName,
					r.Message,
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", store.DefaultRecentLimit, "number of analyses to print")
	return cmd
}
