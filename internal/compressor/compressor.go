package compressor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"desk-assistant-go/internal/config"
)

// TierName identifies the strategy that produced a CompressionResult.
type TierName string

const (
	TierNoOp          TierName = "no-op"
	TierQualitySearch TierName = "quality-search"
	TierStream        TierName = "stream"
	TierImage         TierName = "image"
	TierFallback      TierName = "fallback"
)

var (
	// ErrSearchExhausted means the quality floor was reached without meeting
	// the byte budget. It is a distinct outcome, not an I/O failure.
	ErrSearchExhausted = errors.New("quality floor reached without meeting size budget")

	// ErrNotApplicable is returned by the image tier for documents that have
	// no embedded image it could shrink.
	ErrNotApplicable = errors.New("tier not applicable to document")

	// ErrTierUnavailable wraps format level failures inside a tier.
	ErrTierUnavailable = errors.New("tier unavailable")

	// ErrUnsupportedFormat is returned for inputs that are neither image nor PDF.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Options carries the knobs of one compression run.
type Options struct {
	MaxBytes     int64   // image budget
	Quality      int     // starting JPEG quality for the image search
	QualityStep  int     // decrement per search attempt
	QualityFloor int     // lowest quality tried
	Threshold    float64 // PDF tiers must produce less than original*Threshold
	ImageQuality int     // JPEG quality for images embedded in PDFs
}

// DefaultOptions mirrors the defaults of config.DefaultConfig.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Compression)
}

// OptionsFromConfig converts the compression config section.
func OptionsFromConfig(c config.CompressionConfig) Options {
	return Options{
		MaxBytes:     int64(c.MaxSizeKB) * 1024,
		Quality:      c.Quality,
		QualityStep:  c.QualityStep,
		QualityFloor: c.QualityFloor,
		Threshold:    c.ReductionThreshold,
		ImageQuality: c.ImageQuality,
	}
}

// Job describes one invocation of the pipeline. It is passed by value and
// never modified once created.
type Job struct {
	ID        string
	InputPath string
	OutputDir string
	Options   Options
	CreatedAt time.Time
}

// NewJob creates a job with a fresh identifier.
func NewJob(inputPath, outputDir string, opts Options) Job {
	return Job{
		ID:        uuid.NewString(),
		InputPath: inputPath,
		OutputDir: outputDir,
		Options:   opts,
		CreatedAt: time.Now(),
	}
}

// CompressionResult describes the artifact handed back to the caller, who
// owns the file from then on.
type CompressionResult struct {
	JobID        string
	InputPath    string
	Path         string
	OriginalSize int64
	Size         int64
	Tier         TierName
	StartedAt    time.Time
	FinishedAt   time.Time
}

// PercentageSaved returns the size reduction in percent.
func (r CompressionResult) PercentageSaved() float64 {
	if r.OriginalSize <= 0 {
		return 0
	}
	return float64(r.OriginalSize-r.Size) * 100 / float64(r.OriginalSize)
}

// Compressor is implemented by Pipeline.
type Compressor interface {
	// Compress picks the image or PDF path from the input type.
	Compress(ctx context.Context, job Job) (CompressionResult, error)
}

// Tier is one PDF compression strategy. A tier returns the path of the file
// it produced, or an error when it has nothing to offer.
type Tier interface {
	Name() TierName
	Compress(ctx context.Context, inputPath, outputDir string) (string, error)
}

// UserMessage converts a pipeline error into text fit for an end user.
// Internal tier failures are never shown verbatim.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSearchExhausted):
		return "Sorry, I could not compress this image to the requested size."
	case errors.Is(err, ErrUnsupportedFormat):
		return "Sorry, I can only process images and PDF files."
	case errors.Is(err, context.DeadlineExceeded):
		return "Sorry, processing took too long. Please try a smaller file."
	default:
		return "Sorry, I could not process this file."
	}
}
