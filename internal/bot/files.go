package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"desk-assistant-go/internal/ai"
	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/media"
	"desk-assistant-go/internal/session"
	"desk-assistant-go/internal/storage"
)

// maxPages caps how many rendered pages are sent back for one PDF.
const maxPages = 20

var errWrongKind = errors.New("file does not match the requested action")

// handleFile runs the pending action on the file, or forwards the file to
// the assistant when no action is pending.
func (b *Bot) handleFile(ctx context.Context, u Update) {
	action := b.Sessions.Take(u.UserID)
	if action == session.ActionNone {
		b.askAboutFile(ctx, u)
		return
	}

	log := logger.WithUser(b.log, u.UserID).WithField("action", action.String())
	jobDir := filepath.Join(b.cfg.Bot.DownloadDir, uuid.NewString())
	defer func() {
		if err := os.RemoveAll(jobDir); err != nil {
			log.Warnf("clean job dir: %v", err)
		}
	}()

	b.reply(ctx, u, "Processing your file...")

	var outputs []string
	var caption string
	res := b.Pool.Run(ctx, action.String(), func(ctx context.Context) error {
		in, err := b.Transport.Download(ctx, u.File.ID, filepath.Join(jobDir, "in"))
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		outputs, caption, err = b.runAction(ctx, u.UserID, action, in, filepath.Join(jobDir, "out"))
		return err
	})
	if res.Err != nil {
		log.WithField("job_id", res.JobID).Warnf("file job failed: %v", res.Err)
		b.reply(ctx, u, failureMessage(res.Err))
		return
	}

	for i, path := range outputs {
		c := ""
		if i == 0 {
			c = caption
		}
		if err := b.Transport.SendFile(ctx, u.ChatID, path, c); err != nil {
			log.Warnf("send file: %v", err)
			b.reply(ctx, u, "Sorry, I could not send the result.")
			return
		}
	}
}

// runAction executes action on the downloaded input and returns the files to
// send back.
func (b *Bot) runAction(ctx context.Context, user int64, action session.Action, in, outDir string) ([]string, string, error) {
	kind, err := media.Detect(in)
	if err != nil {
		return nil, "", err
	}

	switch action {
	case session.ActionCompressImage, session.ActionCompressPDF:
		want := media.KindImage
		if action == session.ActionCompressPDF {
			want = media.KindPDF
		}
		if kind != want {
			return nil, "", fmt.Errorf("%w: got %s", errWrongKind, kind)
		}
		job := compressor.NewJob(in, outDir, b.optionsFor(user))
		res, err := b.Compressor.Compress(ctx, job)
		if err != nil {
			return nil, "", err
		}
		return []string{res.Path}, compressionCaption(res), nil

	case session.ActionImageToPDF:
		if kind != media.KindImage {
			return nil, "", fmt.Errorf("%w: got %s", errWrongKind, kind)
		}
		out, err := b.Converter.ImageToPDF(ctx, in, outDir)
		if err != nil {
			return nil, "", err
		}
		b.Stats.IncrementConversions()
		return []string{out}, "Here is your PDF.", nil

	case session.ActionPDFToImages:
		if kind != media.KindPDF {
			return nil, "", fmt.Errorf("%w: got %s", errWrongKind, kind)
		}
		_, pages, err := b.Converter.PDFToImages(ctx, in, outDir)
		if err != nil {
			return nil, "", err
		}
		b.Stats.IncrementConversions()
		caption := fmt.Sprintf("%d page(s).", len(pages))
		if len(pages) > maxPages {
			caption = fmt.Sprintf("%d pages, sending the first %d.", len(pages), maxPages)
			pages = pages[:maxPages]
		}
		return pages, caption, nil

	default:
		return nil, "", fmt.Errorf("unhandled action %s", action)
	}
}

// optionsFor applies the stored preferences of user to the configured
// compression options.
func (b *Bot) optionsFor(user int64) compressor.Options {
	opts := b.opts
	if b.Store == nil {
		return opts
	}
	prefs, err := b.Store.Preferences(user, b.defaultPreferences())
	if err != nil {
		logger.WithUser(b.log, user).Warnf("load preferences: %v", err)
		return opts
	}
	if prefs.MaxSizeKB > 0 {
		opts.MaxBytes = int64(prefs.MaxSizeKB) * 1024
	}
	if prefs.Quality > 0 {
		opts.Quality = prefs.Quality
	}
	if prefs.Threshold > 0 {
		opts.Threshold = prefs.Threshold
	}
	return opts
}

func (b *Bot) defaultPreferences() storage.Preferences {
	return storage.Preferences{
		MaxSizeKB: b.cfg.Compression.MaxSizeKB,
		Quality:   b.cfg.Compression.Quality,
		Threshold: b.cfg.Compression.ReductionThreshold,
	}
}

func (b *Bot) askAboutFile(ctx context.Context, u Update) {
	if b.Assistant == nil {
		b.reply(ctx, u, "Choose an action first, for example /compress_image or /compress_pdf.")
		return
	}
	dir := filepath.Join(b.cfg.Bot.DownloadDir, uuid.NewString())
	defer os.RemoveAll(dir)

	path, err := b.Transport.Download(ctx, u.File.ID, dir)
	if err != nil {
		logger.WithUser(b.log, u.UserID).Warnf("download: %v", err)
		b.reply(ctx, u, "Sorry, I could not download your file.")
		return
	}
	b.ask(ctx, u, ai.Request{Prompt: u.Text, FilePath: path})
}

func compressionCaption(res compressor.CompressionResult) string {
	if res.Tier == compressor.TierNoOp {
		return "The file is already within the size limit."
	}
	if res.Tier == compressor.TierFallback {
		return "The file could not be made meaningfully smaller, here is the original."
	}
	return fmt.Sprintf("Compressed from %s to %s (%.1f%% smaller).",
		formatKB(res.OriginalSize), formatKB(res.Size), res.PercentageSaved())
}

func formatKB(n int64) string {
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}

// failureMessage never exposes internal error text.
func failureMessage(err error) string {
	if errors.Is(err, errWrongKind) {
		return "This file does not match the chosen action. Start again with the right command."
	}
	return compressor.UserMessage(err)
}
