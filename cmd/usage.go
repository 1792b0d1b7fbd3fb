// cmd/usage.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/config"
	"github.com/openvectors/vecimport/internal/usage"
)

var usageLimit int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show totals for finished import jobs",
	Long: `Shows the local usage ledger: every job the daemon carried to an
outcome, with totals by embedding provider. The ledger lives in SQLite
under the config directory and survives job cleanup in Redis.`,
	Run: func(cmd *cobra.Command, args []string) {
		store, err := usage.Open(filepath.Join(config.Dir(), "usage.db"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		sum, err := store.Summarize()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if sum.Jobs == 0 {
			fmt.Println("No finished jobs recorded yet.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		headerColor.Fprintln(w, "--- 📊 Import Usage ---")
		fmt.Fprintf(w, "  %s:\t%d\n", labelColor.Sprint("Jobs"), sum.Jobs)
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Completed"), goodColor.Sprintf("%d", sum.Completed))
		if sum.Failed > 0 {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Failed"), badColor.Sprintf("%d", sum.Failed))
		}
		if sum.Cancelled > 0 {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Cancelled"), warnColor.Sprintf("%d", sum.Cancelled))
		}
		fmt.Fprintf(w, "  %s:\t%d\n", labelColor.Sprint("Elements"), sum.Elements)

		providers, err := store.ByProvider()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(providers) > 0 {
			headerColor.Fprintln(w, "\n  BY PROVIDER")
			fmt.Fprintln(w, "  PROVIDER\tMODEL\tJOBS\tELEMENTS")
			for _, p := range providers {
				provider := p.Provider
				if provider == "" {
					provider = "(precomputed)"
				}
				fmt.Fprintf(w, "  %s\t%s\t%d\t%d\n", provider, p.Model, p.Jobs, p.Elements)
			}
		}

		recent, err := store.Recent(usageLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(recent) > 0 {
			headerColor.Fprintln(w, "\n  RECENT JOBS")
			fmt.Fprintln(w, "  JOB ID\tDESTINATION\tSTATUS\tELEMENTS\tDURATION\tFINISHED")
			for _, r := range recent {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%d/%d\t%s\t%s\n",
					r.JobID,
					r.Destination,
					colorizeUsageStatus(r.Status),
					r.Elements, r.Total,
					(time.Duration(r.DurationMs) * time.Millisecond).Round(time.Millisecond),
					r.CompletedAt.Local().Format("2006-01-02 15:04"),
				)
			}
		}
	},
}

func colorizeUsageStatus(s string) string {
	switch s {
	case "completed":
		return goodColor.Sprint(s)
	case "cancelled":
		return warnColor.Sprint(s)
	case "failed":
		return badColor.Sprint(s)
	}
	return s
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.Flags().IntVar(&usageLimit, "limit", 10, "Number of recent jobs to show")
}
