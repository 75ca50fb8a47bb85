package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"desk-assistant-go/internal/google"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/session"
	"desk-assistant-go/internal/storage"
)

const helpText = `Files:
/compress_image - compress an image to the size limit
/compress_pdf - compress a PDF
/img2pdf - convert an image to PDF
/pdf2img - convert a PDF to images
/cancel - forget the pending action and the conversation
/settings [max_kb quality threshold | reset] - compression preferences

Google:
/draft to|subject|body - create a mail draft
/emails [count] [query] - list recent mail
/label id|action|value - star, unstar, mark_read, mark_unread, add_label, remove_label
/event summary|start|end|attendees|description - create a meeting (RFC 3339 times)
/events [count] - upcoming events
/delete_event id - delete an event
/task title|notes|due - add a task
/tasks [completed] - list tasks
/done_task id [action|value] - complete a task, or uncomplete, delete, postpone, update_title

Other:
/updates - new notice board links

Any other message or file goes to the assistant.`

type commandFunc func(b *Bot, ctx context.Context, u Update, args string)

var commands = map[string]commandFunc{
	"start":        (*Bot).cmdStart,
	"help":         (*Bot).cmdHelp,
	"cancel":       (*Bot).cmdCancel,
	"settings":     (*Bot).cmdSettings,
	"draft":        (*Bot).cmdDraft,
	"emails":       (*Bot).cmdEmails,
	"label":        (*Bot).cmdLabel,
	"event":        (*Bot).cmdEvent,
	"events":       (*Bot).cmdEvents,
	"delete_event": (*Bot).cmdDeleteEvent,
	"task":         (*Bot).cmdTask,
	"tasks":        (*Bot).cmdTasks,
	"done_task":    (*Bot).cmdDoneTask,
	"updates":      (*Bot).cmdUpdates,
}

// splitCommand turns "/cmd@botname rest" into ("cmd", "rest").
func splitCommand(text string) (string, string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	name, args, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (b *Bot) handleCommand(ctx context.Context, u Update) {
	name, args := splitCommand(u.Text)

	if action := session.ParseAction(name); action != session.ActionNone {
		b.Sessions.SetPending(u.UserID, action)
		b.reply(ctx, u, action.Prompt())
		return
	}

	cmd, ok := commands[name]
	if !ok {
		b.reply(ctx, u, "Unknown command. Send /help for the list.")
		return
	}
	cmd(b, ctx, u, args)
}

func (b *Bot) cmdStart(ctx context.Context, u Update, _ string) {
	b.reply(ctx, u, "Hello! I can compress and convert files, manage your mail, calendar and tasks, and answer questions.\n\n"+helpText)
}

func (b *Bot) cmdHelp(ctx context.Context, u Update, _ string) {
	b.reply(ctx, u, helpText)
}

func (b *Bot) cmdCancel(ctx context.Context, u Update, _ string) {
	b.Sessions.Reset(u.UserID)
	b.reply(ctx, u, "Cancelled. The pending action and the conversation were cleared.")
}

func (b *Bot) cmdSettings(ctx context.Context, u Update, args string) {
	if b.Store == nil {
		b.reply(ctx, u, "Settings are not available.")
		return
	}
	fields := strings.Fields(args)

	switch {
	case len(fields) == 0:
		prefs, err := b.Store.Preferences(u.UserID, b.defaultPreferences())
		if err != nil {
			b.fail(ctx, u, "load preferences", err)
			return
		}
		b.reply(ctx, u, fmt.Sprintf("Max size: %d KB\nQuality: %d\nThreshold: %.2f\n\nChange with /settings <max_kb> <quality> <threshold>.",
			prefs.MaxSizeKB, prefs.Quality, prefs.Threshold))

	case len(fields) == 1 && strings.EqualFold(fields[0], "reset"):
		if err := b.Store.DeletePreferences(u.UserID); err != nil {
			b.fail(ctx, u, "delete preferences", err)
			return
		}
		b.reply(ctx, u, "Settings reset to defaults.")

	default:
		prefs, err := parsePreferences(fields, b.defaultPreferences())
		if err != nil {
			b.reply(ctx, u, err.Error())
			return
		}
		prefs.UserID = u.UserID
		if err := b.Store.SavePreferences(prefs); err != nil {
			b.fail(ctx, u, "save preferences", err)
			return
		}
		b.reply(ctx, u, "Settings saved.")
	}
}

// parsePreferences reads "max_kb [quality [threshold]]". Missing fields keep
// their defaults.
func parsePreferences(fields []string, prefs storage.Preferences) (storage.Preferences, error) {
	if len(fields) > 3 {
		return prefs, errors.New("usage: /settings <max_kb> <quality> <threshold>")
	}
	kb, err := strconv.Atoi(fields[0])
	if err != nil || kb <= 0 {
		return prefs, errors.New("max_kb must be a positive number")
	}
	prefs.MaxSizeKB = kb
	if len(fields) > 1 {
		q, err := strconv.Atoi(fields[1])
		if err != nil || q < 1 || q > 100 {
			return prefs, errors.New("quality must be between 1 and 100")
		}
		prefs.Quality = q
	}
	if len(fields) > 2 {
		t, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || t <= 0 || t > 1 {
			return prefs, errors.New("threshold must be above 0 and at most 1")
		}
		prefs.Threshold = t
	}
	return prefs, nil
}

func (b *Bot) workspace(ctx context.Context, u Update) (Workspace, bool) {
	if b.Workspace == nil {
		b.reply(ctx, u, "Google services are not configured. Run `desk-assistant google-auth` first.")
		return nil, false
	}
	return b.Workspace, true
}

func (b *Bot) cmdDraft(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	a := google.SplitArgs(args)
	id, err := ws.Draft(ctx, google.Arg(a, 0, ""), google.Arg(a, 1, "No Subject"), google.Arg(a, 2, ""))
	if err != nil {
		b.fail(ctx, u, "draft", err)
		return
	}
	b.reply(ctx, u, "Draft created: "+id)
}

func (b *Bot) cmdEmails(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	limit, query := int64(5), args
	if first, rest, _ := strings.Cut(args, " "); first != "" {
		if n, err := strconv.ParseInt(first, 10, 64); err == nil {
			limit, query = n, strings.TrimSpace(rest)
		}
	}
	mails, err := ws.Read(ctx, limit, query)
	if err != nil {
		b.fail(ctx, u, "read mail", err)
		return
	}
	if len(mails) == 0 {
		b.reply(ctx, u, "No messages found.")
		return
	}
	var sb strings.Builder
	for i, m := range mails {
		fmt.Fprintf(&sb, "%d. %s\nFrom: %s\nDate: %s\nID: %s\n\n", i+1, m.Subject, m.From, m.Date, m.ID)
	}
	b.reply(ctx, u, strings.TrimSpace(sb.String()))
}

func (b *Bot) cmdLabel(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	a := google.SplitArgs(args)
	if err := ws.Label(ctx, google.Arg(a, 0, ""), google.Arg(a, 1, ""), google.Arg(a, 2, "")); err != nil {
		b.fail(ctx, u, "label", err)
		return
	}
	b.reply(ctx, u, "Message updated.")
}

func (b *Bot) cmdEvent(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	in, err := google.ParseEventArgs(google.SplitArgs(args), b.now())
	if err != nil {
		b.reply(ctx, u, "Times must look like 2024-05-01T15:00:00+05:30.")
		return
	}
	ev, err := ws.CreateEvent(ctx, in)
	if err != nil {
		b.fail(ctx, u, "create event", err)
		return
	}
	msg := fmt.Sprintf("Event created: %s\n%s", ev.Summary, ev.Link)
	if ev.MeetLink != "" {
		msg += "\nMeet: " + ev.MeetLink
	}
	b.reply(ctx, u, msg)
}

func (b *Bot) cmdEvents(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	limit := int64(5)
	if n, err := strconv.ParseInt(args, 10, 64); err == nil && n > 0 {
		limit = n
	}
	events, err := ws.Events(ctx, limit, b.now())
	if err != nil {
		b.fail(ctx, u, "list events", err)
		return
	}
	if len(events) == 0 {
		b.reply(ctx, u, "No upcoming events.")
		return
	}
	var sb strings.Builder
	for _, e := range events {
		fmt.Fprintf(&sb, "%s\n%s - %s\nID: %s\n\n", e.Summary, e.Start, e.End, e.ID)
	}
	b.reply(ctx, u, strings.TrimSpace(sb.String()))
}

func (b *Bot) cmdDeleteEvent(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	if args == "" {
		b.reply(ctx, u, "Usage: /delete_event <id>")
		return
	}
	if err := ws.DeleteEvent(ctx, args); err != nil {
		b.fail(ctx, u, "delete event", err)
		return
	}
	b.reply(ctx, u, "Event deleted.")
}

func (b *Bot) cmdTask(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	a := google.SplitArgs(args)
	t, err := ws.CreateTask(ctx, "", google.Arg(a, 0, ""), google.Arg(a, 1, ""), google.Arg(a, 2, ""))
	if err != nil {
		b.fail(ctx, u, "create task", err)
		return
	}
	b.reply(ctx, u, fmt.Sprintf("Task added: %s (ID: %s)", t.Title, t.ID))
}

func (b *Bot) cmdTasks(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	completed := strings.EqualFold(args, "completed")
	tasks, err := ws.Tasks(ctx, "", 10, completed)
	if err != nil {
		b.fail(ctx, u, "list tasks", err)
		return
	}
	if len(tasks) == 0 {
		b.reply(ctx, u, "No tasks.")
		return
	}
	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- %s", t.Title)
		if t.Due != "" {
			fmt.Fprintf(&sb, " (due %s)", t.Due)
		}
		fmt.Fprintf(&sb, "\n  ID: %s\n", t.ID)
	}
	b.reply(ctx, u, strings.TrimSpace(sb.String()))
}

func (b *Bot) cmdDoneTask(ctx context.Context, u Update, args string) {
	ws, ok := b.workspace(ctx, u)
	if !ok {
		return
	}
	id, rest, _ := strings.Cut(args, " ")
	if id == "" {
		b.reply(ctx, u, "Usage: /done_task <id> [action|value]")
		return
	}
	a := google.SplitArgs(rest)
	action := google.Arg(a, 0, "complete")
	if err := ws.ModifyTask(ctx, action, "", id, google.Arg(a, 1, "")); err != nil {
		b.fail(ctx, u, "modify task", err)
		return
	}
	b.reply(ctx, u, "Task updated.")
}

func (b *Bot) cmdUpdates(ctx context.Context, u Update, _ string) {
	if b.Announcements == nil {
		b.reply(ctx, u, "Announcement checks are not configured.")
		return
	}
	links, err := b.Announcements.Check(ctx)
	if err != nil {
		b.fail(ctx, u, "check announcements", err)
		return
	}
	if len(links) == 0 {
		b.reply(ctx, u, "No new announcements.")
		return
	}
	b.reply(ctx, u, formatLinks(links))
}

// fail logs err and tells the user which kind of input was wrong, when that
// is known, without exposing the error text.
func (b *Bot) fail(ctx context.Context, u Update, op string, err error) {
	logger.WithUser(b.log, u.UserID).WithField("op", op).Warnf("command failed: %v", err)
	switch {
	case errors.Is(err, google.ErrMissingArgument):
		b.reply(ctx, u, "Some required values are missing. Send /help for the format.")
	case errors.Is(err, google.ErrUnknownAction):
		b.reply(ctx, u, "Unknown action. Send /help for the supported ones.")
	case errors.Is(err, google.ErrNoTaskList):
		b.reply(ctx, u, "You have no task list yet.")
	default:
		b.reply(ctx, u, "Sorry, that did not work. Please try again later.")
	}
}
