// Package bot turns chat updates into file jobs, assistant answers and
// Google workspace calls.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/ai"
	"desk-assistant-go/internal/announcements"
	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/google"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/session"
	"desk-assistant-go/internal/statistics"
	"desk-assistant-go/internal/storage"
	"desk-assistant-go/internal/worker"
)

// FileKind tells how a file was attached.
type FileKind string

const (
	FilePhoto    FileKind = "photo"
	FileDocument FileKind = "document"
)

// File is an attachment that still lives on the chat platform.
type File struct {
	ID   string
	Name string
	Kind FileKind
}

// Update is one incoming message. Text holds the caption for attachments.
type Update struct {
	ChatID int64
	UserID int64
	Text   string
	File   *File
}

// Transport is the chat platform.
type Transport interface {
	Updates(ctx context.Context) (<-chan Update, error)
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, path, caption string) error
	// Download stores the file in dir and returns its local path.
	Download(ctx context.Context, fileID, dir string) (string, error)
}

// Converter turns images into PDFs and back.
type Converter interface {
	ImageToPDF(ctx context.Context, imagePath, outDir string) (string, error)
	PDFToImages(ctx context.Context, pdfPath, outDir string) (string, []string, error)
}

// Assistant answers free text and attachments.
type Assistant interface {
	Generate(ctx context.Context, req ai.Request) (string, error)
}

// Workspace is the Google surface the commands use.
type Workspace interface {
	Draft(ctx context.Context, to, subject, body string) (string, error)
	Read(ctx context.Context, max int64, query string) ([]google.Mail, error)
	Label(ctx context.Context, id, action, value string) error
	CreateEvent(ctx context.Context, in google.EventInput) (google.Event, error)
	Events(ctx context.Context, max int64, from time.Time) ([]google.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	CreateTask(ctx context.Context, list, title, notes, due string) (google.Task, error)
	Tasks(ctx context.Context, list string, max int64, completed bool) ([]google.Task, error)
	ModifyTask(ctx context.Context, action, list, id, value string) error
}

// Announcements reports notice board links not seen before.
type Announcements interface {
	Check(ctx context.Context) ([]announcements.Link, error)
}

// Store persists preferences and the message log.
type Store interface {
	Preferences(user int64, defaults storage.Preferences) (storage.Preferences, error)
	SavePreferences(prefs storage.Preferences) error
	DeletePreferences(user int64) error
	RecordMessage(user int64, kind, content string) error
}

// Deps are the collaborators of a Bot. Assistant, Workspace and
// Announcements are optional; their commands answer that the feature is not
// configured.
type Deps struct {
	Transport     Transport
	Compressor    compressor.Compressor
	Converter     Converter
	Assistant     Assistant
	Workspace     Workspace
	Announcements Announcements
	Store         Store
	Sessions      *session.Store
	Pool          *worker.Pool
	Stats         *statistics.Statistics
}

// Bot dispatches updates.
type Bot struct {
	Deps
	cfg  *config.Config
	opts compressor.Options
	log  logrus.FieldLogger
	now  func() time.Time
	wg   sync.WaitGroup
}

// New returns a bot. A nil Sessions store is replaced by one sized from cfg.
func New(cfg *config.Config, deps Deps, log logrus.FieldLogger) *Bot {
	if log == nil {
		log = logger.Discard()
	}
	if deps.Stats == nil {
		deps.Stats = statistics.NewStatistics()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewStore(cfg.Bot.HistoryLimit, cfg.Bot.MaxSessions)
	}
	return &Bot{
		Deps: deps,
		cfg:  cfg,
		opts: compressor.OptionsFromConfig(cfg.Compression),
		log:  log,
		now:  time.Now,
	}
}

// Run handles updates until ctx is cancelled, then waits for the handlers
// still running.
func (b *Bot) Run(ctx context.Context) error {
	updates, err := b.Transport.Updates(ctx)
	if err != nil {
		return fmt.Errorf("receive updates: %w", err)
	}
	b.log.Info("bot started")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopping")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.Handle(ctx, u)
			}()
		}
	}
}

// Handle processes one update to completion.
func (b *Bot) Handle(ctx context.Context, u Update) {
	log := logger.WithUser(b.log, u.UserID)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("handler panic: %v", r)
			b.reply(ctx, u, "Sorry, something went wrong.")
		}
	}()

	b.record(u)

	switch {
	case u.File != nil:
		b.handleFile(ctx, u)
	case strings.HasPrefix(u.Text, "/"):
		b.handleCommand(ctx, u)
	case strings.TrimSpace(u.Text) != "":
		b.handleText(ctx, u)
	}
}

// Publish sends announcement links to chatID. It serves as the Watcher
// callback.
func (b *Bot) Publish(ctx context.Context, chatID int64, links []announcements.Link) {
	if len(links) == 0 {
		return
	}
	if err := b.Transport.SendText(ctx, chatID, formatLinks(links)); err != nil {
		b.log.Warnf("publish announcements: %v", err)
	}
}

func (b *Bot) record(u Update) {
	if b.Store == nil {
		return
	}
	kind, content := "text", u.Text
	if u.File != nil {
		kind, content = string(u.File.Kind), u.File.ID
	}
	if err := b.Store.RecordMessage(u.UserID, kind, content); err != nil {
		b.log.Warnf("record message: %v", err)
	}
}

func (b *Bot) handleText(ctx context.Context, u Update) {
	b.ask(ctx, u, ai.Request{Prompt: u.Text})
}

// ask sends req with the recent history of the user and stores the exchange.
func (b *Bot) ask(ctx context.Context, u Update, req ai.Request) {
	if b.Assistant == nil {
		b.reply(ctx, u, "The AI assistant is not configured.")
		return
	}

	for _, e := range b.Sessions.History(u.UserID, 0) {
		role := ai.RoleUser
		if e.Role == session.RoleAssistant {
			role = ai.RoleAssistant
		}
		req.History = append(req.History, ai.Message{Role: role, Text: e.Text})
	}

	answer, err := b.Assistant.Generate(ctx, req)
	if err != nil {
		logger.WithUser(b.log, u.UserID).Warnf("generate: %v", err)
		if errors.Is(err, ai.ErrUnsupportedFile) {
			b.reply(ctx, u, "I can only look at images and PDF files.")
			return
		}
		b.reply(ctx, u, "Sorry, I could not answer that right now.")
		return
	}

	prompt := req.Prompt
	if prompt == "" && req.FilePath != "" {
		prompt = "[file]"
	}
	b.Sessions.Append(u.UserID, session.RoleUser, prompt)
	b.Sessions.Append(u.UserID, session.RoleAssistant, answer)
	b.reply(ctx, u, answer)
}

func (b *Bot) reply(ctx context.Context, u Update, text string) {
	if err := b.Transport.SendText(ctx, u.ChatID, text); err != nil {
		logger.WithUser(b.log, u.UserID).Warnf("send reply: %v", err)
	}
}

func formatLinks(links []announcements.Link) string {
	var sb strings.Builder
	page := ""
	for _, l := range links {
		if l.Page != page {
			if page != "" {
				sb.WriteString("\n")
			}
			page = l.Page
			sb.WriteString(page + ":\n")
		}
		fmt.Fprintf(&sb, "- %s\n  %s\n", l.Text, l.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}
