package compressor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/media"
	"desk-assistant-go/internal/statistics"
)

// Pipeline is the compression orchestrator. It holds no per-job state, so a
// single Pipeline serves any number of concurrent jobs.
type Pipeline struct {
	log    logrus.FieldLogger
	stream Tier
	image  Tier
	opener DocumentOpener
	meta   MetadataCopier
	stats  *statistics.Statistics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStreamTier replaces the stream tier.
func WithStreamTier(t Tier) Option {
	return func(p *Pipeline) { p.stream = t }
}

// WithImageTier replaces the image tier. Without it an ImageTier is built per
// job at the job's ImageQuality.
func WithImageTier(t Tier) Option {
	return func(p *Pipeline) { p.image = t }
}

// WithDocumentOpener sets the opener used by the per-job image tier.
func WithDocumentOpener(open DocumentOpener) Option {
	return func(p *Pipeline) { p.opener = open }
}

// WithStatistics records every outcome in s.
func WithStatistics(s *statistics.Statistics) Option {
	return func(p *Pipeline) { p.stats = s }
}

// WithMetadataCopier enables metadata carry-over for recompressed images.
func WithMetadataCopier(m MetadataCopier) Option {
	return func(p *Pipeline) { p.meta = m }
}

// NewPipeline returns an orchestrator with the default pdfcpu backed tiers.
func NewPipeline(log logrus.FieldLogger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	p := &Pipeline{log: log}
	for _, opt := range opts {
		opt(p)
	}
	if p.stream == nil {
		p.stream = NewStreamTier(log)
	}
	if p.stats == nil {
		p.stats = statistics.NewStatistics()
	}
	return p
}

// Statistics returns the counters the pipeline records into.
func (p *Pipeline) Statistics() *statistics.Statistics {
	return p.stats
}

// Compress picks the image or PDF path from the content of the input.
func (p *Pipeline) Compress(ctx context.Context, job Job) (CompressionResult, error) {
	kind, err := media.Detect(job.InputPath)
	if err != nil {
		return CompressionResult{}, err
	}
	switch kind {
	case media.KindImage:
		return p.CompressImage(ctx, job)
	case media.KindPDF:
		return p.CompressPDF(ctx, job)
	default:
		return CompressionResult{}, fmt.Errorf("%s: %w", job.InputPath, ErrUnsupportedFormat)
	}
}

// CompressImage returns the input path unchanged when the image already fits
// the budget. Otherwise it runs the quality search, which may fail with
// ErrSearchExhausted.
func (p *Pipeline) CompressImage(ctx context.Context, job Job) (CompressionResult, error) {
	log := logger.WithJob(p.log, job.ID).WithField("file", job.InputPath)
	res, err := p.begin(job)
	if err != nil {
		return res, err
	}
	p.stats.IncrementImagesProcessed()

	needs, err := NeedsCompression(job.InputPath, job.Options.MaxBytes)
	if err != nil {
		return p.fail(res, "gate", err)
	}
	if !needs {
		log.Debug("image within budget, returning original")
		p.stats.IncrementNoOps()
		return p.done(res, job.InputPath, res.OriginalSize, TierNoOp)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(res, "compress", err)
	}
	if err := ensureDir(job.OutputDir); err != nil {
		return p.fail(res, "compress", err)
	}

	search := NewQualitySearch(job.Options.QualityStep, job.Options.QualityFloor, log)
	out, err := search.Compress(job.InputPath, job.OutputDir, job.Options.MaxBytes, job.Options.Quality)
	if err != nil {
		if errors.Is(err, ErrSearchExhausted) {
			p.stats.IncrementSearchExhausted()
		}
		return p.fail(res, "quality-search", err)
	}

	if p.meta != nil {
		if err := p.meta.Copy(job.InputPath, out); err != nil {
			log.Warnf("metadata not copied: %v", err)
		}
	}

	size, err := fileSize(out)
	if err != nil {
		_ = os.Remove(out)
		return p.fail(res, "quality-search", err)
	}
	return p.done(res, out, size, TierQualitySearch)
}

// CompressPDF runs the stream tier, then the image tier, then the verbatim
// copy. A tier is accepted only if its artifact beats the threshold; rejected
// artifacts are removed before the next tier runs. Only a failing copy is a
// hard error.
func (p *Pipeline) CompressPDF(ctx context.Context, job Job) (CompressionResult, error) {
	log := logger.WithJob(p.log, job.ID).WithField("file", job.InputPath)
	res, err := p.begin(job)
	if err != nil {
		return res, err
	}
	p.stats.IncrementPDFsProcessed()

	if err := ensureDir(job.OutputDir); err != nil {
		return p.fail(res, "compress", err)
	}

	image := p.image
	if image == nil {
		image = NewImageTier(job.Options.ImageQuality, p.opener, log)
	}

	for _, tier := range []Tier{p.stream, image} {
		if err := ctx.Err(); err != nil {
			return p.fail(res, string(tier.Name()), err)
		}

		tlog := log.WithField("tier", tier.Name())
		tlog.Debug("trying tier")

		out, err := tier.Compress(ctx, job.InputPath, job.OutputDir)
		if err != nil {
			if !isTierMiss(err) {
				tlog.Warnf("tier failed: %v", err)
			} else if errors.Is(err, ErrTierUnavailable) {
				tlog.Warnf("tier unavailable: %v", err)
			} else {
				tlog.Info("tier not applicable")
			}
			continue
		}

		size, err := fileSize(out)
		if err != nil || size == 0 {
			tlog.Warn("tier produced no usable file")
			_ = os.Remove(out)
			continue
		}

		if MeetsThreshold(res.OriginalSize, size, job.Options.Threshold) {
			tlog.WithFields(logrus.Fields{"original": res.OriginalSize, "size": size}).Info("tier accepted")
			return p.done(res, out, size, tier.Name())
		}

		tlog.WithFields(logrus.Fields{
			"original":  res.OriginalSize,
			"size":      size,
			"threshold": job.Options.Threshold,
		}).Info("tier rejected")
		if err := os.Remove(out); err != nil {
			tlog.Warnf("remove rejected artifact: %v", err)
		}
	}

	out, err := CopyVerbatim(job.InputPath, job.OutputDir)
	if err != nil {
		return p.fail(res, "fallback", err)
	}
	log.Info("no tier met the threshold, returning original copy")
	return p.done(res, out, res.OriginalSize, TierFallback)
}

func (p *Pipeline) begin(job Job) (CompressionResult, error) {
	p.stats.IncrementJobsStarted()
	res := CompressionResult{
		JobID:     job.ID,
		InputPath: job.InputPath,
		StartedAt: time.Now(),
	}
	size, err := fileSize(job.InputPath)
	if err != nil {
		return p.fail(res, "read", err)
	}
	if size == 0 {
		return p.fail(res, "read", fmt.Errorf("input %s is empty", job.InputPath))
	}
	res.OriginalSize = size
	return res, nil
}

func (p *Pipeline) done(res CompressionResult, path string, size int64, tier TierName) (CompressionResult, error) {
	res.Path = path
	res.Size = size
	res.Tier = tier
	res.FinishedAt = time.Now()
	p.stats.IncrementJobsCompleted()
	p.stats.IncrementTier(string(tier))
	p.stats.AddBytes(res.OriginalSize, size)
	return res, nil
}

func (p *Pipeline) fail(res CompressionResult, op string, err error) (CompressionResult, error) {
	res.FinishedAt = time.Now()
	logger.WithFileOperation(p.log, res.InputPath, op).WithField("job", res.JobID).Warnf("job failed: %v", err)
	p.stats.IncrementJobsFailed()
	p.stats.AddError(res.InputPath, op, err.Error())
	return res, err
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
