// cmd/log.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recently completed imports",
	Long: `Shows the shared log of completed imports, newest first. The log is
length-bounded; old entries age out as new imports finish.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		_, store, svc := newQueueService(ctx)
		defer store.Close()

		entries, err := svc.RecentCompletions(ctx, logLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			fmt.Println("No completed imports yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()
		headerColor.Fprintln(w, "FINISHED\tDESTINATION\tFORMAT\tELEMENTS\tJOB ID")
		for _, entry := range entries {
			destination := entry.Destination
			if entry.OutputPath != "" {
				destination = entry.OutputPath
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				humanizeSince(entry.FinishedAt),
				destination,
				entry.Format,
				entry.Total,
				entry.JobID,
			)
		}
	},
}

func init() {
	rootCmd.AddCommand(logCmd)

	logCmd.Flags().IntVar(&logLimit, "limit", 20, "Maximum entries to show")
}
