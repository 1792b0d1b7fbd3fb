// cmd/jobs.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/jobs"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
	noColor     bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control import jobs",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}
	},
}

var jobsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List jobs with persisted state",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		_, store, svc := newQueueService(ctx)
		defer store.Close()

		listings, err := svc.ListJobs(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(listings) == 0 {
			fmt.Println("No jobs found. Completed jobs are removed; see 'vecimport log' for history.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintln(w, "JOB ID\tSTATUS\tPROGRESS\tUPDATED\tMESSAGE")
		for _, listing := range listings {
			p := listing.Progress
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
				listing.JobID,
				colorizeStatus(p.Status),
				p.Current, p.Total,
				humanizeSince(p.Timestamp),
				p.Message,
			)
		}
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <jobID>",
	Short: "Show one job's progress and configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		_, store, svc := newQueueService(ctx)
		defer store.Close()
		jobID := args[0]

		progress, err := svc.GetProgress(ctx, jobID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if progress == nil {
			fmt.Fprintf(os.Stderr, "Error: unknown job %s (completed jobs are removed; see 'vecimport log')\n", jobID)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		headerColor.Fprintf(w, "--- 📋 Job %s ---\n", jobID)
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Status"), colorizeStatus(progress.Status))
		fmt.Fprintf(w, "  %s:\t%d / %d\n", labelColor.Sprint("Progress"), progress.Current, progress.Total)
		if progress.Message != "" {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Last step"), progress.Message)
		}
		if progress.Error != "" {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Error"), badColor.Sprint(progress.Error))
		}
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Updated"), humanizeSince(progress.Timestamp))

		meta, err := svc.GetMetadata(ctx, jobID)
		if err != nil || meta == nil {
			return
		}
		headerColor.Fprintln(w, "\n  CONFIGURATION")
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Format"), meta.Format)
		if meta.ExportMode == jobs.ExportFile {
			fmt.Fprintf(w, "  %s:\tfile (%s)\n", labelColor.Sprint("Export"), meta.OutputName)
		} else {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Destination"), meta.Destination)
		}
		fmt.Fprintf(w, "  %s:\t%s / %s\n", labelColor.Sprint("Embedding"), meta.Embedding.Provider, meta.Embedding.Model)
		if meta.ElementTemplate != "" {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Element"), meta.ElementTemplate)
		} else if meta.ElementColumn != "" {
			fmt.Fprintf(w, "  %s:\tcolumn %q\n", labelColor.Sprint("Element"), meta.ElementColumn)
		}
		if meta.TextTemplate != "" {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Text"), meta.TextTemplate)
		} else if meta.TextColumn != "" {
			fmt.Fprintf(w, "  %s:\tcolumn %q\n", labelColor.Sprint("Text"), meta.TextColumn)
		}
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Created"), humanizeSince(meta.CreatedAt))
	},
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <jobID>",
	Short: "Pause a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controlJobStatus(args[0], jobs.StatusPaused, "⏸️ Paused")
	},
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <jobID>",
	Short: "Resume a paused job",
	Long: `Marks a paused job as processing again. A running daemon's processor
picks the change up on its next poll; without a daemon the job starts
when one is next launched.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controlJobStatus(args[0], jobs.StatusProcessing, "▶️ Resumed")
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <jobID>",
	Short: "Cancel a job",
	Long: `Cancels a job terminally. Its remaining queue and state stay in Redis
for inspection and are not re-run.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		controlJobStatus(args[0], jobs.StatusCancelled, "🛑 Cancelled")
	},
}

// controlJobStatus writes a control status directly to the job store,
// refusing to touch unknown or finished jobs.
func controlJobStatus(jobID string, next jobs.Status, verb string) {
	ctx := context.Background()
	_, store, svc := newQueueService(ctx)
	defer store.Close()

	progress, err := svc.GetProgress(ctx, jobID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if progress == nil {
		fmt.Fprintf(os.Stderr, "Error: unknown job %s\n", jobID)
		os.Exit(1)
	}
	if progress.Status.Terminal() {
		fmt.Fprintf(os.Stderr, "Error: job %s is already %s\n", jobID, progress.Status)
		os.Exit(1)
	}

	if _, err := svc.UpdateProgress(ctx, jobID, jobs.ProgressPatch{Status: &next}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s job %s\n", verb, jobID)
}

// colorizeStatus renders a job status in its conventional color.
func colorizeStatus(s jobs.Status) string {
	switch s {
	case jobs.StatusProcessing, jobs.StatusCompleted:
		return goodColor.Sprint(string(s))
	case jobs.StatusPending, jobs.StatusPaused:
		return warnColor.Sprint(string(s))
	case jobs.StatusCancelled, jobs.StatusFailed:
		return badColor.Sprint(string(s))
	}
	return string(s)
}

// humanizeSince renders a unix-millisecond timestamp as a relative time.
func humanizeSince(millis int64) string {
	if millis == 0 {
		return "-"
	}
	d := time.Since(time.UnixMilli(millis)).Round(time.Second)
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}
