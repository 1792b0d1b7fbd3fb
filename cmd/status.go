// cmd/status.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/status"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show daemon and store health",
	Long: `Queries the running daemon's health endpoint and reports its vitals.
When no daemon is reachable, falls back to checking the Redis connection
directly.`,
	Run: func(cmd *cobra.Command, args []string) {
		if noColor {
			color.NoColor = true
		}

		cfg := mustLoadConfig()
		addr := cfg.Server.Addr
		if statusAddr != "" {
			addr = statusAddr
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		defer w.Flush()

		headerColor.Fprintf(w, "--- 📊 vecimport Status ---\n")

		snapshot, err := fetchDaemonStatus(addr)
		if err != nil {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Daemon"), badColor.Sprintf("not reachable at %s", addr))

			// No daemon; check the store directly so the user still
			// learns something useful.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store := connectStore(ctx, cfg)
			defer store.Close()
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Redis"), goodColor.Sprint("reachable"))
			return
		}

		fmt.Fprintf(w, "  %s:\t%s (version %s)\n", labelColor.Sprint("Daemon"), goodColor.Sprint("running"), snapshot.Version)
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Uptime"), (time.Duration(snapshot.UptimeSeconds) * time.Second).String())
		if snapshot.StoreOK {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Redis"), goodColor.Sprint("reachable"))
		} else {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Redis"), badColor.Sprint(snapshot.StoreError))
		}
		fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("CPU"), colorizePercent(snapshot.CPUPercent))
		fmt.Fprintf(w, "  %s:\t%s (%.1f / %.1f GiB)\n", labelColor.Sprint("Memory"),
			colorizePercent(snapshot.MemoryPercent), snapshot.MemoryUsedGB, snapshot.MemoryTotalGB)
		fmt.Fprintf(w, "  %s:\t%d\n", labelColor.Sprint("Goroutines"), snapshot.Goroutines)

		if len(snapshot.ActiveJobs) > 0 {
			fmt.Fprintf(w, "  %s:\t%s\n", labelColor.Sprint("Active jobs"), strings.Join(snapshot.ActiveJobs, ", "))
		} else {
			fmt.Fprintf(w, "  %s:\t(none)\n", labelColor.Sprint("Active jobs"))
		}
	},
}

// fetchDaemonStatus reads the daemon's health endpoint.
func fetchDaemonStatus(addr string) (*status.DaemonStatus, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var snapshot status.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("could not decode health response: %w", err)
	}
	return &snapshot, nil
}

func colorizePercent(p float64) string {
	s := fmt.Sprintf("%.1f%%", p)
	if p > 90.0 {
		return badColor.Sprint(s)
	}
	if p > 75.0 {
		return warnColor.Sprint(s)
	}
	return goodColor.Sprint(s)
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Daemon address to query (default from config)")
	statusCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}
