package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"desk-assistant-go/internal/ai"
	"desk-assistant-go/internal/announcements"
	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/google"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/storage"
	"desk-assistant-go/internal/worker"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	pdfBytes = []byte("%PDF-1.4\n%fake\n")
)

type sentFile struct {
	path    string
	caption string
	data    []byte
}

type fakeTransport struct {
	mu    sync.Mutex
	files map[string][]byte
	texts []string
	sent  []sentFile
}

func (f *fakeTransport) Updates(ctx context.Context) (<-chan Update, error) {
	return nil, errors.New("not used")
}

func (f *fakeTransport) SendText(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeTransport) SendFile(_ context.Context, _ int64, path, caption string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFile{path: path, caption: caption, data: data})
	return nil
}

func (f *fakeTransport) Download(_ context.Context, fileID, dir string) (string, error) {
	data, ok := f.files[fileID]
	if !ok {
		return "", fmt.Errorf("no file %s", fileID)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, fileID)
	return p, os.WriteFile(p, data, 0644)
}

func (f *fakeTransport) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeCompressor struct {
	jobs []compressor.Job
	err  error
}

func (f *fakeCompressor) Compress(_ context.Context, job compressor.Job) (compressor.CompressionResult, error) {
	f.jobs = append(f.jobs, job)
	if f.err != nil {
		return compressor.CompressionResult{}, f.err
	}
	if err := os.MkdirAll(job.OutputDir, 0755); err != nil {
		return compressor.CompressionResult{}, err
	}
	out := filepath.Join(job.OutputDir, "small.jpg")
	if err := os.WriteFile(out, []byte("small"), 0644); err != nil {
		return compressor.CompressionResult{}, err
	}
	return compressor.CompressionResult{JobID: job.ID, Path: out, OriginalSize: 1000, Size: 500, Tier: compressor.TierQualitySearch}, nil
}

type fakeConverter struct {
	pages int
}

func (f *fakeConverter) ImageToPDF(_ context.Context, _, outDir string) (string, error) {
	out := filepath.Join(outDir, "converted.pdf")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, pdfBytes, 0644)
}

func (f *fakeConverter) PDFToImages(_ context.Context, _, outDir string) (string, []string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", nil, err
	}
	var pages []string
	for i := 1; i <= f.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page_%d.jpg", i))
		if err := os.WriteFile(p, []byte("page"), 0644); err != nil {
			return "", nil, err
		}
		pages = append(pages, p)
	}
	return outDir, pages, nil
}

type fakeAssistant struct {
	requests []ai.Request
}

func (f *fakeAssistant) Generate(_ context.Context, req ai.Request) (string, error) {
	f.requests = append(f.requests, req)
	return fmt.Sprintf("answer %d", len(f.requests)), nil
}

type fakeWorkspace struct {
	calls []string
}

func (f *fakeWorkspace) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeWorkspace) Draft(_ context.Context, to, subject, body string) (string, error) {
	f.record("draft %s %s %s", to, subject, body)
	if to == "" {
		return "", google.ErrMissingArgument
	}
	return "d1", nil
}

func (f *fakeWorkspace) Read(_ context.Context, max int64, query string) ([]google.Mail, error) {
	f.record("read %d %q", max, query)
	return []google.Mail{{ID: "m1", From: "a@b", Subject: "Hi"}}, nil
}

func (f *fakeWorkspace) Label(_ context.Context, id, action, value string) error {
	f.record("label %s %s %s", id, action, value)
	return nil
}

func (f *fakeWorkspace) CreateEvent(_ context.Context, in google.EventInput) (google.Event, error) {
	f.record("event %s", in.Summary)
	return google.Event{ID: "e1", Summary: in.Summary, MeetLink: "https://meet"}, nil
}

func (f *fakeWorkspace) Events(_ context.Context, max int64, _ time.Time) ([]google.Event, error) {
	f.record("events %d", max)
	return nil, nil
}

func (f *fakeWorkspace) DeleteEvent(_ context.Context, id string) error {
	f.record("delete_event %s", id)
	return nil
}

func (f *fakeWorkspace) CreateTask(_ context.Context, list, title, notes, due string) (google.Task, error) {
	f.record("task %s %s %s", title, notes, due)
	return google.Task{ID: "t1", Title: title}, nil
}

func (f *fakeWorkspace) Tasks(_ context.Context, list string, max int64, completed bool) ([]google.Task, error) {
	f.record("tasks %v", completed)
	return []google.Task{{ID: "t1", Title: "Buy milk"}}, nil
}

func (f *fakeWorkspace) ModifyTask(_ context.Context, action, list, id, value string) error {
	f.record("modify %s %s %s", action, id, value)
	return nil
}

type fakeAnnouncements struct {
	links []announcements.Link
}

func (f *fakeAnnouncements) Check(context.Context) ([]announcements.Link, error) {
	return f.links, nil
}

type harness struct {
	bot       *Bot
	transport *fakeTransport
	comp      *fakeCompressor
	conv      *fakeConverter
	assistant *fakeAssistant
	ws        *fakeWorkspace
	db        *storage.Database
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Bot.DownloadDir = t.TempDir()

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	pool := worker.NewPool(2, time.Minute, logger.Discard(), nil)
	t.Cleanup(pool.Stop)

	h := &harness{
		transport: &fakeTransport{files: map[string][]byte{"img": pngBytes, "doc": pdfBytes}},
		comp:      &fakeCompressor{},
		conv:      &fakeConverter{pages: 3},
		assistant: &fakeAssistant{},
		ws:        &fakeWorkspace{},
		db:        db,
	}
	h.bot = New(cfg, Deps{
		Transport:     h.transport,
		Compressor:    h.comp,
		Converter:     h.conv,
		Assistant:     h.assistant,
		Workspace:     h.ws,
		Announcements: &fakeAnnouncements{},
		Store:         db,
		Pool:          pool,
	}, logger.Discard())
	return h
}

func (h *harness) send(text string) {
	h.bot.Handle(context.Background(), Update{ChatID: 1, UserID: 42, Text: text})
}

func (h *harness) sendFile(id string, kind FileKind) {
	h.bot.Handle(context.Background(), Update{ChatID: 1, UserID: 42, File: &File{ID: id, Kind: kind}})
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in, name, args string
	}{
		{"/help", "help", ""},
		{"/Draft a@b|Hi|Body", "draft", "a@b|Hi|Body"},
		{"/tasks@desk_bot completed", "tasks", "completed"},
		{"  /events   3 ", "events", "3"},
	}
	for _, tt := range tests {
		name, args := splitCommand(tt.in)
		if name != tt.name || args != tt.args {
			t.Errorf("splitCommand(%q) = %q, %q; want %q, %q", tt.in, name, args, tt.name, tt.args)
		}
	}
}

func TestCompressImageFlow(t *testing.T) {
	h := newHarness(t)

	h.send("/compress_image")
	if !strings.Contains(h.transport.lastText(), "image") {
		t.Errorf("prompt = %q", h.transport.lastText())
	}
	h.sendFile("img", FilePhoto)

	if len(h.comp.jobs) != 1 {
		t.Fatalf("compressor called %d times", len(h.comp.jobs))
	}
	if got := h.comp.jobs[0].Options.MaxBytes; got != 500*1024 {
		t.Errorf("MaxBytes = %d, want default", got)
	}
	if len(h.transport.sent) != 1 || string(h.transport.sent[0].data) != "small" {
		t.Fatalf("sent = %+v", h.transport.sent)
	}
	if !strings.Contains(h.transport.sent[0].caption, "50.0%") {
		t.Errorf("caption = %q", h.transport.sent[0].caption)
	}

	entries, _ := os.ReadDir(h.bot.cfg.Bot.DownloadDir)
	if len(entries) != 0 {
		t.Errorf("job dir left behind: %d entries", len(entries))
	}
}

func TestPendingActionIsOneShot(t *testing.T) {
	h := newHarness(t)

	h.send("/compress_image")
	h.sendFile("img", FilePhoto)
	h.sendFile("img", FilePhoto)

	if len(h.comp.jobs) != 1 {
		t.Errorf("compressor called %d times, want 1", len(h.comp.jobs))
	}
	if len(h.assistant.requests) != 1 || h.assistant.requests[0].FilePath == "" {
		t.Errorf("second file should go to the assistant: %+v", h.assistant.requests)
	}
}

func TestWrongFileKind(t *testing.T) {
	h := newHarness(t)

	h.send("/compress_pdf")
	h.sendFile("img", FilePhoto)

	if len(h.comp.jobs) != 0 {
		t.Error("compressor must not run for a mismatched file")
	}
	if !strings.Contains(h.transport.lastText(), "does not match") {
		t.Errorf("reply = %q", h.transport.lastText())
	}
}

func TestCompressionFailureHidesError(t *testing.T) {
	h := newHarness(t)
	h.comp.err = fmt.Errorf("encode at quality 10: %w", compressor.ErrSearchExhausted)

	h.send("/compress_image")
	h.sendFile("img", FilePhoto)

	got := h.transport.lastText()
	if got != compressor.UserMessage(compressor.ErrSearchExhausted) {
		t.Errorf("reply = %q", got)
	}
	if len(h.transport.sent) != 0 {
		t.Error("no file should be sent")
	}
}

func TestConversions(t *testing.T) {
	h := newHarness(t)

	h.send("/img2pdf")
	h.sendFile("img", FilePhoto)
	if len(h.transport.sent) != 1 || !strings.HasSuffix(h.transport.sent[0].path, ".pdf") {
		t.Fatalf("img2pdf sent %+v", h.transport.sent)
	}

	h.conv.pages = maxPages + 5
	h.send("/pdf2img")
	h.sendFile("doc", FileDocument)
	if got := len(h.transport.sent) - 1; got != maxPages {
		t.Errorf("pdf2img sent %d pages, want %d", got, maxPages)
	}
	if n := h.bot.Stats.Snapshot().Conversions; n != 2 {
		t.Errorf("conversions = %d, want 2", n)
	}
}

func TestSettingsApplyToJobs(t *testing.T) {
	h := newHarness(t)

	h.send("/settings 300 80 0.5")
	if h.transport.lastText() != "Settings saved." {
		t.Fatalf("reply = %q", h.transport.lastText())
	}
	h.send("/compress_image")
	h.sendFile("img", FilePhoto)

	opts := h.comp.jobs[0].Options
	if opts.MaxBytes != 300*1024 || opts.Quality != 80 || opts.Threshold != 0.5 {
		t.Errorf("options = %+v", opts)
	}

	h.send("/settings reset")
	h.send("/settings")
	if !strings.Contains(h.transport.lastText(), "500 KB") {
		t.Errorf("after reset = %q", h.transport.lastText())
	}
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{"abc", "max_kb"},
		{"100 0", "quality"},
		{"100 90 1.5", "threshold"},
		{"1 2 3 4", "usage"},
	}
	for _, tt := range tests {
		h := newHarness(t)
		h.send("/settings " + tt.args)
		if !strings.Contains(h.transport.lastText(), tt.want) {
			t.Errorf("/settings %s -> %q, want mention of %q", tt.args, h.transport.lastText(), tt.want)
		}
	}
}

func TestTextUsesHistory(t *testing.T) {
	h := newHarness(t)

	h.send("hello")
	h.send("and again")

	if len(h.assistant.requests) != 2 {
		t.Fatalf("requests = %d", len(h.assistant.requests))
	}
	second := h.assistant.requests[1]
	if len(second.History) != 2 || second.History[0].Text != "hello" || second.History[1].Role != ai.RoleAssistant {
		t.Errorf("history = %+v", second.History)
	}
	if h.transport.lastText() != "answer 2" {
		t.Errorf("reply = %q", h.transport.lastText())
	}

	h.send("/cancel")
	h.send("fresh start")
	if n := len(h.assistant.requests[2].History); n != 0 {
		t.Errorf("history after cancel = %d entries", n)
	}
}

func TestOptionalServicesNotConfigured(t *testing.T) {
	h := newHarness(t)
	h.bot.Assistant = nil
	h.bot.Workspace = nil
	h.bot.Announcements = nil

	tests := []struct {
		text string
		want string
	}{
		{"hi", "not configured"},
		{"/draft a@b|s|b", "google-auth"},
		{"/updates", "not configured"},
	}
	for _, tt := range tests {
		h.send(tt.text)
		if !strings.Contains(h.transport.lastText(), tt.want) {
			t.Errorf("%q -> %q", tt.text, h.transport.lastText())
		}
	}
}

func TestWorkspaceCommands(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		text  string
		call  string
		reply string
	}{
		{"/draft a@b.c|Hi|Body", "draft a@b.c Hi Body", "Draft created: d1"},
		{"/draft", "draft  No Subject ", "missing"},
		{"/emails 3 from:boss", `read 3 "from:boss"`, "1. Hi"},
		{"/emails is:unread", `read 5 "is:unread"`, "1. Hi"},
		{"/label m1|star", "label m1 star ", "updated"},
		{"/event Sync|||x@y.z", "event Sync", "Meet: https://meet"},
		{"/events 2", "events 2", "No upcoming events."},
		{"/delete_event e1", "delete_event e1", "Event deleted."},
		{"/task Buy milk|2 litres", "task Buy milk 2 litres ", "Task added: Buy milk"},
		{"/tasks completed", "tasks true", "Buy milk"},
		{"/done_task t1", "modify complete t1 ", "Task updated."},
		{"/done_task t1 postpone|2030-01-01T00:00:00Z", "modify postpone t1 2030-01-01T00:00:00Z", "Task updated."},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			before := len(h.ws.calls)
			h.send(tt.text)
			if len(h.ws.calls) != before+1 || h.ws.calls[before] != tt.call {
				t.Errorf("calls = %q, want %q", h.ws.calls[before:], tt.call)
			}
			if !strings.Contains(h.transport.lastText(), tt.reply) {
				t.Errorf("reply = %q, want %q", h.transport.lastText(), tt.reply)
			}
		})
	}
}

func TestEventBadTime(t *testing.T) {
	h := newHarness(t)
	h.send("/event Sync|tomorrow")
	if len(h.ws.calls) != 0 {
		t.Errorf("calls = %v", h.ws.calls)
	}
	if !strings.Contains(h.transport.lastText(), "RFC") && !strings.Contains(h.transport.lastText(), "2024-05-01") {
		t.Errorf("reply = %q", h.transport.lastText())
	}
}

func TestUpdatesCommand(t *testing.T) {
	h := newHarness(t)
	h.send("/updates")
	if h.transport.lastText() != "No new announcements." {
		t.Errorf("reply = %q", h.transport.lastText())
	}

	h.bot.Announcements = &fakeAnnouncements{links: []announcements.Link{
		{Page: "Notices", Text: "Exam", URL: "https://x/1"},
		{Page: "Notices", Text: "Fees", URL: "https://x/2"},
	}}
	h.send("/updates")
	want := "Notices:\n- Exam\n  https://x/1\n- Fees\n  https://x/2"
	if h.transport.lastText() != want {
		t.Errorf("reply = %q, want %q", h.transport.lastText(), want)
	}
}

func TestMessagesAreRecorded(t *testing.T) {
	h := newHarness(t)
	h.send("/help")
	h.sendFile("img", FilePhoto)

	msgs, err := h.db.Messages(42, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Type != "text" || msgs[1].Type != "photo" || msgs[1].Content != "img" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.send("/frobnicate")
	if !strings.Contains(h.transport.lastText(), "/help") {
		t.Errorf("reply = %q", h.transport.lastText())
	}
}
