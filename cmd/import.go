// cmd/import.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/config"
	"github.com/openvectors/vecimport/internal/embed"
	"github.com/openvectors/vecimport/internal/jobs"
	"github.com/openvectors/vecimport/internal/jobstore"
	"github.com/openvectors/vecimport/internal/normalize"
	"github.com/openvectors/vecimport/internal/processor"
	"github.com/openvectors/vecimport/internal/queue"
	"github.com/openvectors/vecimport/internal/vectorstore"
)

var (
	importDest       string
	importElementCol string
	importElementTpl string
	importTextCol    string
	importTextTpl    string
	importAttrs      []string
	importProvider   string
	importModel      string
	importBaseURL    string
	importDimension  int
	importRPS        float64
	importExportFile string

	importDelimiter string
	importNoHeader  bool
	importSkipRows  int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run a one-shot import from a local file",
	Long: `Imports a local data source into a Redis vector set, processing the
job in the foreground. The job is the same kind the daemon runs: its
state lives in Redis, and interrupting the import leaves a job that the
daemon can pick up and finish.`,
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <file>",
	Short: "Import a CSV file",
	Example: `  # Embed the "description" column, element ids from "sku"
  vecimport import csv products.csv --dest products --element-column sku --text-column description

  # Semicolon-delimited file without a header row
  vecimport import csv dump.csv --dest items --delimiter ";" --no-header`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not read %s: %v\n", args[0], err)
			os.Exit(1)
		}
		src := normalize.CSV(string(data), jobs.ParseOptions{
			Delimiter: importDelimiter,
			NoHeader:  importNoHeader,
			SkipRows:  importSkipRows,
		})
		runImport(src, filepath.Base(args[0]))
	},
}

var importJSONCmd = &cobra.Command{
	Use:   "json <file>",
	Short: "Import a JSON file (object or array of records)",
	Example: `  # Records with a "vector" field skip the embedding call
  vecimport import json reviews.json --dest reviews`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not read %s: %v\n", args[0], err)
			os.Exit(1)
		}
		runImport(normalize.JSON(data), filepath.Base(args[0]))
	},
}

var importImagesCmd = &cobra.Command{
	Use:   "images <file>...",
	Short: "Embed image files and import the vectors",
	Long: `Embeds each image through the configured provider, then imports the
resulting vectors as one batch. Embedding happens before the job is
created, so the queued records carry precomputed vectors.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		gen, err := newEmbedGenerator()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		ctx := context.Background()
		vectors := make([][]float32, 0, len(args))
		for i, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: could not read %s: %v\n", path, err)
				os.Exit(1)
			}
			vector, err := gen.EmbedImage(ctx, data, imageMIMEType(path))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: embedding %s failed: %v\n", path, err)
				os.Exit(1)
			}
			vectors = append(vectors, vector)
			fmt.Printf("   - 🖼️ Embedded %s (%d/%d)\n", filepath.Base(path), i+1, len(args))
		}

		runImport(normalize.Images(vectors, importAttrs), fmt.Sprintf("%d image(s)", len(args)))
	},
}

// imageMIMEType maps an image file extension to its MIME type.
func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// importEmbedConfig merges the embedding flags over the configured defaults.
func importEmbedConfig(cfg *config.Config) embed.Config {
	out := cfg.Embedding
	if importProvider != "" {
		out.Provider = importProvider
	}
	if importModel != "" {
		out.Model = importModel
	}
	if importBaseURL != "" {
		out.BaseURL = importBaseURL
	}
	if importDimension > 0 {
		out.Dimension = importDimension
	}
	if importRPS > 0 {
		out.RequestsPerSecond = importRPS
	}
	return out
}

func newEmbedGenerator() (embed.Generator, error) {
	return embed.NewGenerator(importEmbedConfig(mustLoadConfig()))
}

func runImport(src normalize.Source, sourceName string) {
	fmt.Printf("--- 📦 Importing %s ---\n", sourceName)

	cfg := mustLoadConfig()
	logger := newLogger(cfg)

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

	svc := queue.NewService(store)

	exportMode := jobs.ExportStore
	if importExportFile != "" {
		exportMode = jobs.ExportFile
	}

	meta := jobs.Metadata{
		Destination:      importDest,
		Embedding:        importEmbedConfig(cfg),
		ElementColumn:    importElementCol,
		ElementTemplate:  importElementTpl,
		TextColumn:       importTextCol,
		TextTemplate:     importTextTpl,
		AttributeColumns: importAttrs,
		ExportMode:       exportMode,
		OutputName:       importExportFile,
	}
	if src.Format == jobs.FormatCSV && src.CSV != nil {
		meta.Parsing = src.CSV.Options
	}

	jobID, err := svc.CreateJob(ctx, src, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   - ✅ Job %s created\n", jobID)

	proc := processor.New(jobID, processor.Options{
		Queue:    svc,
		Sink:     vectorstore.NewRedisSink(rdb),
		Exporter: vectorstore.NewExporter(cfg.Server.ExportDir),
		NewGenerator: func(genCfg embed.Config) (embed.Generator, error) {
			if genCfg.APIKey == "" {
				genCfg.APIKey = cfg.Embedding.APIKey
			}
			return embed.NewGenerator(genCfg)
		},
		Logger: logger,
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigs
		if !ok {
			return
		}
		fmt.Printf("\n   - Received signal %v, stopping...\n", sig)
		cancel()
	}()

	done := make(chan struct{})
	go renderProgress(ctx, svc, jobID, done)

	runErr := proc.Run(ctx)
	close(done)
	signal.Stop(sigs)
	close(sigs)
	fmt.Println()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "   - ❌ Import failed: %v\n", runErr)
		os.Exit(1)
	}

	reportOutcome(svc, jobID)
}

// renderProgress repaints a single progress line until done closes.
func renderProgress(ctx context.Context, svc *queue.Service, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			progress, err := svc.GetProgress(ctx, jobID)
			if err != nil || progress == nil {
				continue
			}
			message := progress.Message
			if len(message) > 48 {
				message = message[:45] + "..."
			}
			fmt.Printf("\r   - ⏳ %d/%d %-48s", progress.Current, progress.Total, message)
		}
	}
}

// reportOutcome prints the terminal state of the job. Completed jobs have
// had their keys cleaned, so the completion log is the source of truth.
func reportOutcome(svc *queue.Service, jobID string) {
	ctx := context.Background()

	progress, err := svc.GetProgress(ctx, jobID)
	if err == nil && progress == nil {
		entries, err := svc.RecentCompletions(ctx, 0)
		if err == nil {
			for _, entry := range entries {
				if entry.JobID != jobID {
					continue
				}
				if entry.OutputPath != "" {
					fmt.Printf("   - ✅ Exported %d element(s) to %s\n", entry.Total, entry.OutputPath)
				} else {
					fmt.Printf("   - ✅ Imported %d element(s) into %s\n", entry.Total, color.CyanString(entry.Destination))
				}
				return
			}
		}
		fmt.Println("   - ✅ Import complete")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "   - ⚠️ Could not read final job state: %v\n", err)
		return
	}

	switch progress.Status {
	case jobs.StatusCancelled:
		fmt.Printf("   - 🛑 Import cancelled at %d/%d; job %s keeps its state\n", progress.Current, progress.Total, jobID)
	case jobs.StatusFailed:
		fmt.Printf("   - ❌ Import failed: %s\n", progress.Error)
	default:
		fmt.Printf("   - ⚠️ Import interrupted at %d/%d; job %s remains resumable\n", progress.Current, progress.Total, jobID)
	}
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importCSVCmd)
	importCmd.AddCommand(importJSONCmd)
	importCmd.AddCommand(importImagesCmd)

	importCmd.PersistentFlags().StringVar(&importDest, "dest", "", "Destination vector set name")
	importCmd.PersistentFlags().StringVar(&importElementCol, "element-column", "", "Column holding the element identifier")
	importCmd.PersistentFlags().StringVar(&importElementTpl, "element-template", "", "Template for element identifiers, e.g. \"${category}:${id}\"")
	importCmd.PersistentFlags().StringVar(&importTextCol, "text-column", "", "Column holding the text to embed")
	importCmd.PersistentFlags().StringVar(&importTextTpl, "text-template", "", "Template for the text to embed")
	importCmd.PersistentFlags().StringSliceVar(&importAttrs, "attr", nil, "Columns stored as element attributes (repeatable)")
	importCmd.PersistentFlags().StringVar(&importProvider, "provider", "", "Embedding provider (default from config)")
	importCmd.PersistentFlags().StringVar(&importModel, "model", "", "Embedding model (default from config)")
	importCmd.PersistentFlags().StringVar(&importBaseURL, "base-url", "", "Embedding API base URL (for OpenAI-compatible servers)")
	importCmd.PersistentFlags().IntVar(&importDimension, "dimension", 0, "Expected vector dimension (0 disables the check)")
	importCmd.PersistentFlags().Float64Var(&importRPS, "rps", 0, "Embedding requests per second (0 disables throttling)")
	importCmd.PersistentFlags().StringVar(&importExportFile, "export-file", "", "Write elements to this JSON file instead of the vector store")

	importCSVCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "Column delimiter (default \",\")")
	importCSVCmd.Flags().BoolVar(&importNoHeader, "no-header", false, "Treat the first row as data, not a header")
	importCSVCmd.Flags().IntVar(&importSkipRows, "skip-rows", 0, "Rows to skip before the header")
}
