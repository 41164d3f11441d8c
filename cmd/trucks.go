package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/store"
)

var (
	trucksID       string
	trucksMinScore float64
	trucksStatus   string
	trucksLimit    int
	trucksOffset   int
	trucksGrade    bool
)

var trucksCmd = &cobra.Command{
	Use:   "trucks",
	Short: "Inspect stored food trucks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if trucksID != "" {
			truck, err := env.Store.GetTruck(ctx, trucksID)
			if err != nil {
				return eris.Wrapf(err, "get truck %s", trucksID)
			}
			if trucksGrade {
				return enc.Encode(struct {
					Truck   *model.StoredTruck `json:"truck"`
					Quality any                `json:"quality"`
				}{truck, env.Scorer.Score(truck)})
			}
			return enc.Encode(truck)
		}

		trucks, err := env.Store.ListTrucks(ctx, store.TruckFilter{
			MinQualityScore:    trucksMinScore,
			VerificationStatus: model.VerificationStatus(trucksStatus),
			Limit:              trucksLimit,
			Offset:             trucksOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list trucks")
		}
		return enc.Encode(trucks)
	},
}

func init() {
	trucksCmd.Flags().StringVar(&trucksID, "id", "", "show a single truck by id")
	trucksCmd.Flags().BoolVar(&trucksGrade, "grade", false, "include the full quality breakdown with --id")
	trucksCmd.Flags().Float64Var(&trucksMinScore, "min-score", 0, "minimum data quality score (0-1)")
	trucksCmd.Flags().StringVar(&trucksStatus, "status", "", "filter by verification status (pending, verified, flagged)")
	trucksCmd.Flags().IntVar(&trucksLimit, "limit", 50, "maximum trucks to list")
	trucksCmd.Flags().IntVar(&trucksOffset, "offset", 0, "list offset")
	rootCmd.AddCommand(trucksCmd)
}
