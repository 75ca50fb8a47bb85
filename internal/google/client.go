package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"desk-assistant-go/internal/config"
)

var (
	// ErrNotConfigured is returned when the credential files are missing.
	ErrNotConfigured = errors.New("google services not configured")
	// ErrUnknownAction is returned for an unsupported modify action.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingArgument is returned when a required argument is empty.
	ErrMissingArgument = errors.New("missing argument")
	// ErrNoTaskList is returned when the account has no task list.
	ErrNoTaskList = errors.New("no task list found")
)

// Client groups the three services.
type Client struct {
	gmail    *gmail.Service
	calendar *calendar.Service
	tasks    *tasks.Service
	log      logrus.FieldLogger
}

// New builds a client from the configured OAuth files.
func New(ctx context.Context, cfg config.GoogleConfig, log logrus.FieldLogger) (*Client, error) {
	if cfg.CredentialsFile == "" || cfg.TokenFile == "" {
		return nil, ErrNotConfigured
	}
	ts, err := TokenSource(ctx, cfg.CredentialsFile, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	return NewWithOptions(ctx, log, option.WithTokenSource(ts))
}

// NewWithOptions builds a client with explicit API options.
func NewWithOptions(ctx context.Context, log logrus.FieldLogger, opts ...option.ClientOption) (*Client, error) {
	gm, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("calendar service: %w", err)
	}
	ts, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tasks service: %w", err)
	}
	return &Client{gmail: gm, calendar: cal, tasks: ts, log: log}, nil
}

// SplitArgs splits a "|" separated command argument string. Fields are
// trimmed; empty input yields no fields.
func SplitArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Arg returns args[i], or def when it is missing or empty.
func Arg(args []string, i int, def string) string {
	if i < len(args) && args[i] != "" {
		return args[i]
	}
	return def
}
