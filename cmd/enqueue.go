package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	enqueueURLs     []string
	enqueueFile     string
	enqueuePriority int
	enqueueDelay    time.Duration
)

// seedFile is the YAML format accepted by --file.
type seedFile struct {
	Jobs []seedJob `yaml:"jobs"`
}

type seedJob struct {
	URL      string `yaml:"url"`
	Priority int    `yaml:"priority"`
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue scraping jobs without running them",
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

		seeds := make([]seedJob, 0, len(enqueueURLs))
		for _, u := range enqueueURLs {
			seeds = append(seeds, seedJob{URL: u, Priority: enqueuePriority})
		}

		if enqueueFile != "" {
			data, err := os.ReadFile(enqueueFile)
			if err != nil {
				return eris.Wrap(err, "read seed file")
			}
			var sf seedFile
			if err := yaml.Unmarshal(data, &sf); err != nil {
				return eris.Wrap(err, "parse seed file")
			}
			seeds = append(seeds, sf.Jobs...)
		}

		if len(seeds) == 0 {
			return eris.New("nothing to enqueue: pass --url or --file")
		}

		scheduledAt := time.Now().UTC().Add(enqueueDelay)
		created := 0
		for _, seed := range seeds {
			if seed.URL == "" {
				zap.L().Warn("skipping seed without url")
				continue
			}
			job, err := st.CreateJob(ctx, seed.URL, seed.Priority, scheduledAt)
			if err != nil {
				return eris.Wrapf(err, "enqueue %s", seed.URL)
			}
			created++
			zap.L().Debug("job enqueued",
				zap.String("job_id", job.ID),
				zap.String("url", job.TargetURL),
				zap.Int("priority", job.Priority),
			)
		}

		zap.L().Info("enqueue complete",
			zap.Int("created", created),
			zap.Time("scheduled_at", scheduledAt),
		)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().StringSliceVar(&enqueueURLs, "url", nil, "page URL to queue (repeatable)")
	enqueueCmd.Flags().StringVar(&enqueueFile, "file", "", "YAML seed file with a jobs list")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "priority for --url jobs")
	enqueueCmd.Flags().DurationVar(&enqueueDelay, "delay", 0, "delay before jobs become due")
	rootCmd.AddCommand(enqueueCmd)
}
