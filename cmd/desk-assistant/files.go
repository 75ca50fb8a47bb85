package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/media"
)

var (
	outputDir string
	maxSizeKB int
	threshold float64
)

// compressCmd compresses one file.
var compressCmd = &cobra.Command{
	Use:   "compress <file>",
	Short: "Compress an image or PDF",
	Long: `Compresses an image to fit the size budget by lowering JPEG quality, or a
PDF by recompressing its streams and then its embedded images. When no step
helps enough the PDF is copied unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(args[0])
	},
}

// convertCmd converts between images and PDFs.
var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert an image to PDF, or a PDF to page images",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{compressCmd, convertCmd} {
		c.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default is <work_dir>/output)")
	}
	compressCmd.Flags().IntVar(&maxSizeKB, "max-kb", 0, "image size budget in KB (default from config)")
	compressCmd.Flags().Float64Var(&threshold, "threshold", 0, "PDF acceptance threshold in (0,1] (default from config)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCompress(path string) error {
	if !fileExists(path) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := compressor.OptionsFromConfig(a.cfg.Compression)
	if maxSizeKB > 0 {
		opts.MaxBytes = int64(maxSizeKB) * 1024
	}
	if threshold > 0 {
		if threshold > 1 {
			return fmt.Errorf("threshold must be in (0,1], got %v", threshold)
		}
		opts.Threshold = threshold
	}
	out := outputDir
	if out == "" {
		out = a.cfg.OutputDir()
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := a.pipeline.Compress(ctx, compressor.NewJob(path, out, opts))
	if err != nil {
		return fmt.Errorf("compression failed: %w", err)
	}

	if !quiet {
		fmt.Printf("Tier:     %s\n", res.Tier)
		fmt.Printf("Output:   %s\n", res.Path)
		fmt.Printf("Size:     %d -> %d bytes (%.1f%% saved)\n", res.OriginalSize, res.Size, res.PercentageSaved())
		fmt.Printf("Duration: %s\n", res.FinishedAt.Sub(res.StartedAt))
	}
	return nil
}

func runConvert(path string) error {
	if !fileExists(path) {
		return fmt.Errorf("file does not exist: %s", path)
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := outputDir
	if out == "" {
		out = a.cfg.OutputDir()
	}
	ctx, cancel := signalContext()
	defer cancel()

	kind, err := media.Detect(path)
	if err != nil {
		return err
	}
	switch kind {
	case media.KindImage:
		pdf, err := a.converter.ImageToPDF(ctx, path, out)
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
		if !quiet {
			fmt.Println(pdf)
		}
	case media.KindPDF:
		dir, pages, err := a.converter.PDFToImages(ctx, path, out)
		if err != nil {
			return fmt.Errorf("conversion failed: %w", err)
		}
		if !quiet {
			fmt.Printf("%d page(s) written to %s\n", len(pages), dir)
		}
	default:
		return fmt.Errorf("%s: %w", path, compressor.ErrUnsupportedFormat)
	}
	a.stats.IncrementConversions()
	return nil
}
