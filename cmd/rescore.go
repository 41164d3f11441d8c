package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/store"
)

var rescoreBatch int

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute data quality scores for all stored trucks",
	Long:  "Walks the directory and re-runs the completeness scorer on every record. Run after tuning rule weights so stored scores match current rules.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		scored, changed := 0, 0
		for offset := 0; ; offset += rescoreBatch {
			trucks, err := env.Store.ListTrucks(ctx, store.TruckFilter{
				Limit:  rescoreBatch,
				Offset: offset,
			})
			if err != nil {
				return eris.Wrap(err, "list trucks")
			}
			if len(trucks) == 0 {
				break
			}

			for i := range trucks {
				t := &trucks[i]
				result := env.Scorer.Score(t)
				scored++

				next := result.NormalizedScore()
				if next == t.DataQualityScore {
					continue
				}
				t.DataQualityScore = next
				if err := env.Store.UpdateTruck(ctx, t); err != nil {
					return eris.Wrapf(err, "update truck %s", t.ID)
				}
				changed++
			}

			if len(trucks) < rescoreBatch {
				break
			}
		}

		zap.L().Info("rescore complete",
			zap.Int("scored", scored),
			zap.Int("changed", changed),
		)
		return nil
	},
}

func init() {
	rescoreCmd.Flags().IntVar(&rescoreBatch, "batch", 200, "trucks per page")
	rootCmd.AddCommand(rescoreCmd)
}
