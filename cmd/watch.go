// cmd/watch.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/tui"
)

var watchInterval time.Duration

var jobsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of import jobs",
	Long: `Opens a full-screen dashboard that refreshes the job listing and lets
you pause, resume and cancel jobs with the keyboard.`,
	Run: func(cmd *cobra.Command, args []string) {
		if !tui.IsTTY() {
			fmt.Fprintln(os.Stderr, "Error: watch needs a terminal; use 'vecimport jobs list' instead")
			os.Exit(1)
		}

		ctx := context.Background()
		_, store, svc := newQueueService(ctx)
		defer store.Close()

		cfg := tui.WatchConfig{
			RefreshEvery: watchInterval,
			RefreshFn: func() ([]tui.JobRow, error) {
				listings, err := svc.ListJobs(ctx)
				if err != nil {
					return nil, err
				}
				rows := make([]tui.JobRow, 0, len(listings))
				for _, listing := range listings {
					rows = append(rows, tui.JobRow{
						ID:      listing.JobID,
						Status:  string(listing.Progress.Status),
						Current: listing.Progress.Current,
						Total:   listing.Progress.Total,
						Message: listing.Progress.Message,
						Updated: time.UnixMilli(listing.Progress.Timestamp),
					})
				}
				return rows, nil
			},
			ActionFn: func(action, jobID string) error {
				return applyJobAction(ctx, svc, action, jobID)
			},
		}

		if err := tui.RunWatch(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// applyJobAction is the dashboard counterpart of controlJobStatus: the same
// guards, with errors returned instead of printed.
func applyJobAction(ctx context.Context, svc *queue.Service, action, jobID string) error {
	var next jobs.Status
	switch action {
	case "pause":
		next = jobs.StatusPaused
	case "resume":
		next = jobs.StatusProcessing
	case "cancel":
		next = jobs.StatusCancelled
	default:
		return fmt.Errorf("unknown action %q", action)
	}

	progress, err := svc.GetProgress(ctx, jobID)
	if err != nil {
		return err
	}
	if progress == nil {
		return fmt.Errorf("unknown job %s", jobID)
	}
	if progress.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, progress.Status)
	}
	_, err = svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &next})
	return err
}

func init() {
	jobsCmd.AddCommand(jobsWatchCmd)
	jobsWatchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "Auto-refresh interval")
}
