package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/converter"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/statistics"
	"desk-assistant-go/internal/storage"
	"desk-assistant-go/internal/worker"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "desk-assistant",
	Short: "Personal assistant for files, mail, calendar and notices",
	Long: `desk-assistant compresses and converts images and PDFs, answers questions
through an OpenAI compatible model, manages Gmail, Calendar and Tasks, and
watches notice boards for new links.

It runs as a chat bot, as an HTTP API, or as one-shot commands.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(announcementsCmd)
	rootCmd.AddCommand(googleAuthCmd)
	rootCmd.AddCommand(secretCmd)
}

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	stats     *statistics.Statistics
	pipeline  *compressor.Pipeline
	converter *converter.Converter
	meta      *compressor.ExiftoolCopier
	pool      *worker.Pool
	db        *storage.Database
}

// newApp loads the configuration and builds the compression stack. The
// worker pool and database are only created on request.
func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)
	stats := statistics.NewStatistics()

	a := &app{cfg: cfg, log: log, stats: stats}
	opts := []compressor.Option{compressor.WithStatistics(stats)}
	if cfg.Compression.PreserveMetadata {
		a.meta = compressor.NewExiftoolCopier()
		opts = append(opts, compressor.WithMetadataCopier(a.meta))
	}
	a.pipeline = compressor.NewPipeline(log, opts...)
	a.converter = converter.New(float64(cfg.Compression.DPI), cfg.Compression.Quality, log)
	return a, nil
}

func (a *app) startPool(onDone worker.DoneHook) {
	a.pool = worker.NewPool(a.cfg.Performance.WorkerThreads, a.cfg.Performance.JobTimeout, a.log, onDone)
}

func (a *app) openDB() error {
	db, err := storage.Open(a.cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Stop()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warnf("close database: %v", err)
		}
	}
	if a.meta != nil {
		a.meta.Close()
	}
}

// setupLogger applies --verbose and --quiet to the logging section.
func setupLogger(cfg *config.Config) *logrus.Logger {
	return logger.MustLogger(logger.FromConfig(cfg.Logging, verbose, quiet))
}

// fileExists returns true if the given path exists and is a file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
