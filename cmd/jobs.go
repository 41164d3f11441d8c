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
	jobsStatus string
	jobsURL    string
	jobsLimit  int
	jobsOffset int
	jobsID     string
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect scraping jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if jobsID != "" {
			job, err := st.GetJob(ctx, jobsID)
			if err != nil {
				return eris.Wrapf(err, "get job %s", jobsID)
			}
			return enc.Encode(job)
		}

		jobs, err := st.ListJobs(ctx, store.JobFilter{
			Status:    model.JobStatus(jobsStatus),
			TargetURL: jobsURL,
			Limit:     jobsLimit,
			Offset:    jobsOffset,
		})
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}
		return enc.Encode(jobs)
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsID, "id", "", "show a single job by id")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (pending, running, completed, failed)")
	jobsCmd.Flags().StringVar(&jobsURL, "url", "", "filter by target URL")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	jobsCmd.Flags().IntVar(&jobsOffset, "offset", 0, "list offset")
	rootCmd.AddCommand(jobsCmd)
}
