package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestURL      string
	ingestPriority int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest food-truck pages",
	Long:  "With --url, scrapes and ingests a single page immediately. Without it, processes the batch of due queued jobs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if ingestURL != "" {
			outcome, err := env.Coordinator.ProcessURL(ctx, ingestURL, ingestPriority)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", ingestURL)
			}
			zap.L().Info("ingest complete",
				zap.String("url", ingestURL),
				zap.String("action", string(outcome.Action)),
				zap.String("truck_id", outcome.TruckID),
			)
			return enc.Encode(outcome)
		}

		summary, err := env.Coordinator.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "ingestion run")
		}
		return enc.Encode(summary)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "single page URL to ingest immediately")
	ingestCmd.Flags().IntVar(&ingestPriority, "priority", 0, "job priority for --url")
	rootCmd.AddCommand(ingestCmd)
}
