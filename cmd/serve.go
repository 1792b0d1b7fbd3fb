// cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/config"
	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/httpapi"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/jobstore"
	"github.com/openvectors/vecimport/internal/manager"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/status"
	"github.com/openvectors/vecimport/internal/usage"
	"github.com/openvectors/vecimport/internal/vectorstore"
)

var (
	serveAddr          string
	serveMaxConcurrent int
	serveExportDir     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import daemon",
	Long: `Runs the vecimport daemon: an HTTP API for creating and controlling
import jobs, plus a worker pool that processes them in the background.

Jobs keep all their state in Redis. The daemon can be restarted at any
time; pending and paused jobs survive, and cancelled or failed jobs stay
inspectable until cleaned up.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	fmt.Println("--- 🚀 Starting vecimport daemon ---")

	cfg := mustLoadConfig()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveMaxConcurrent > 0 {
		cfg.Server.MaxConcurrent = serveMaxConcurrent
	}
	if serveExportDir != "" {
		cfg.Server.ExportDir = serveExportDir
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("   - Connecting to Redis...\n")
	rdb, err := jobstore.Open(ctx, cfg.Redis.URL, cfg.Redis.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ❌ Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	store := jobstore.NewFromClient(rdb)
	defer store.Close()
	fmt.Printf("   - ✅ Connected to Redis\n")

	svc := queue.NewService(store)
	sink := vectorstore.NewRedisSink(rdb)

	// Jobs snapshot their embedding settings at creation, minus the API
	// key. The daemon's key is overlaid here so it never touches Redis.
	newGenerator := func(genCfg embed.Config) (embed.Generator, error) {
		if genCfg.APIKey == "" {
			genCfg.APIKey = cfg.Embedding.APIKey
		}
		return embed.NewGenerator(genCfg)
	}

	// The usage ledger is best effort; the daemon runs fine without it.
	var recordUsage func(usage.Record)
	ledger, err := usage.Open(filepath.Join(config.Dir(), "usage.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ⚠️ Usage ledger unavailable: %v\n", err)
	} else {
		defer ledger.Close()
		recordUsage = func(r usage.Record) {
			if err := ledger.Insert(r); err != nil {
				logger.Warn("failed to record job usage", "jobId", r.JobID, "error", err)
			}
		}
	}

	mgr, err := manager.New(manager.Options{
		Queue:         svc,
		Sink:          sink,
		ExportDir:     cfg.Server.ExportDir,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		NewGenerator:  newGenerator,
		RecordUsage:   recordUsage,
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ❌ Failed to start job manager: %v\n", err)
		os.Exit(1)
	}

	resumed, err := resumeInterrupted(ctx, svc, mgr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ⚠️ Could not scan for interrupted jobs: %v\n", err)
	} else if resumed > 0 {
		fmt.Printf("   - ▶️ Rescheduled %d interrupted job(s)\n", resumed)
	}

	collector := status.NewCollector(Version, store, mgr.ActiveJobs)
	api := httpapi.New(httpapi.Options{
		Queue:     svc,
		Manager:   mgr,
		Collector: collector,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("   - ✅ API listening on http://%s\n", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	go checkForUpdateInBackground()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	fmt.Printf("\n   - Received signal %v, shutting down...\n", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stops job contexts; in-flight jobs freeze in place and are picked
	// up again on the next start.
	if err := mgr.Close(); err != nil {
		logger.Error("job manager shutdown", "error", err)
	}

	fmt.Println("--- 🛑 Daemon shutdown complete ---")
}

// resumeInterrupted reschedules jobs a previous daemon run left in
// pending or processing state. Paused jobs stay paused until an explicit
// resume.
func resumeInterrupted(ctx context.Context, svc *queue.Service, mgr *manager.Manager) (int, error) {
	listings, err := svc.ListJobs(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, listing := range listings {
		switch listing.Progress.Status {
		case jobs.StatusPending, jobs.StatusProcessing:
			if err := mgr.StartJob(listing.JobID); err != nil {
				slog.Warn("could not reschedule job", "jobId", listing.JobID, "error", err)
				continue
			}
			resumed++
		}
	}
	return resumed, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().IntVar(&serveMaxConcurrent, "max-concurrent", 0, "Maximum jobs processing at once (default from config)")
	serveCmd.Flags().StringVar(&serveExportDir, "export-dir", "", "Directory for file-export output (default from config)")
}
