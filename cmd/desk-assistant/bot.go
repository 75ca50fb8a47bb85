package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"desk-assistant-go/internal/ai"
	"desk-assistant-go/internal/announcements"
	"desk-assistant-go/internal/bot"
	"desk-assistant-go/internal/bot/telegram"
	"desk-assistant-go/internal/google"
	"desk-assistant-go/internal/session"
)

// botCmd runs the Telegram bot.
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot",
	Long: `Runs the chat bot until interrupted. The AI assistant, Google services and
scheduled announcement updates are enabled when configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBot()
	},
}

func runBot() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.cfg.Bot.Token == "" {
		return errors.New("bot token missing: set bot.token, DESK_ASSISTANT_BOT_TOKEN or `desk-assistant secret set bot_token`")
	}
	if err := a.openDB(); err != nil {
		return err
	}
	a.startPool(nil)

	ctx, cancel := signalContext()
	defer cancel()

	transport, err := telegram.New(a.cfg.Bot.Token, a.log)
	if err != nil {
		return err
	}

	deps := bot.Deps{
		Transport:  transport,
		Compressor: a.pipeline,
		Converter:  a.converter,
		Store:      a.db,
		Sessions:   session.NewStore(a.cfg.Bot.HistoryLimit, a.cfg.Bot.MaxSessions),
		Pool:       a.pool,
		Stats:      a.stats,
	}

	if assistant, err := ai.New(a.cfg.AI, a.converter, a.cfg.Compression.WorkDir, a.log); err == nil {
		deps.Assistant = assistant
	} else {
		a.log.Warnf("AI assistant disabled: %v", err)
	}

	if ws, err := google.New(ctx, a.cfg.Google, a.log); err == nil {
		deps.Workspace = ws
	} else {
		a.log.Warnf("Google services disabled: %v", err)
	}

	scraper := announcements.NewScraper(nil, a.log)
	var b *bot.Bot
	watcher := announcements.NewWatcher(a.cfg.Announcements, scraper, a.db, func(links []announcements.Link) {
		b.Publish(ctx, a.cfg.Bot.AnnounceChatID, links)
	}, a.log)
	deps.Announcements = watcher

	b = bot.New(a.cfg, deps, a.log)

	if a.cfg.Bot.AnnounceChatID != 0 && a.cfg.Announcements.Schedule != "" {
		if err := watcher.Start(ctx, a.cfg.Announcements.Schedule); err != nil {
			return fmt.Errorf("start announcement watcher: %w", err)
		}
		defer watcher.Stop()
	}

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if !quiet {
		fmt.Println("\n" + a.stats.Report())
	}
	return nil
}
