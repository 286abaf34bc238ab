package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"drowsy-monitor/internal/config"
	"drowsy-monitor/internal/logger"
	"drowsy-monitor/internal/storage"
)

var breaksLimit int

var breaksCmd = &cobra.Command{
	Use:   "breaks",
	Short: "List recent breaks from the local journal.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cmd.Flags().Changed("journal") {
			cfg.Journal.Path = journalPath
		}

		journal, err := storage.Open(cfg.Journal.Path, logger.NewLogger(nil, logger.LogLevelNone))
		if err != nil {
			return err
		}
		defer journal.Close()

		breaks, err := journal.Recent(context.Background(), breaksLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tDURATION\tRESTED\tLOCATION")
		for _, b := range breaks {
			duration := "open"
			if b.EndedAt != nil {
				duration = b.Duration.String()
			}
			rested := "no"
			if b.ThresholdAt != nil {
				rested = "yes"
			}
			location := "-"
			if b.Location != nil {
				location = fmt.Sprintf("%.5f,%.5f", b.Location.Latitude, b.Location.Longitude)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.StartedAt.Local().Format(time.DateTime), duration, rested, location)
		}
		return w.Flush()
	},
}

func init() {
	breaksCmd.Flags().IntVarP(&breaksLimit, "limit", "n", 20, "number of breaks to show")
}
