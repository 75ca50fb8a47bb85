package announcements

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/storage"
)

// SeenStore remembers which links were already reported.
type SeenStore interface {
	MarkSeen(links []storage.Link) ([]storage.Link, error)
}

// Publisher receives the links found by a scheduled run.
type Publisher func(links []Link)

// Watcher checks the configured pages and reports links it has not seen.
type Watcher struct {
	scraper *Scraper
	store   SeenStore
	pages   []config.AnnouncementPage
	limit   int
	publish Publisher
	log     logrus.FieldLogger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewWatcher returns a watcher over cfg.Pages.
func NewWatcher(cfg config.AnnouncementsConfig, scraper *Scraper, store SeenStore, publish Publisher, log logrus.FieldLogger) *Watcher {
	return &Watcher{
		scraper: scraper,
		store:   store,
		pages:   cfg.Pages,
		limit:   cfg.Limit,
		publish: publish,
		log:     log,
	}
}

// Check scrapes every page and returns only unseen links, in page order.
func (w *Watcher) Check(ctx context.Context) ([]Link, error) {
	found := w.scraper.Scrape(ctx, w.pages, w.limit)

	var all []storage.Link
	for _, p := range w.pages {
		for _, l := range found[p.Title] {
			all = append(all, storage.Link{Page: l.Page, Title: l.Text, URL: l.URL})
		}
	}
	if len(all) == 0 {
		return nil, nil
	}

	fresh, err := w.store.MarkSeen(all)
	if err != nil {
		return nil, fmt.Errorf("record links: %w", err)
	}
	out := make([]Link, 0, len(fresh))
	for _, l := range fresh {
		out = append(out, Link{Page: l.Page, Text: l.Title, URL: l.URL})
	}
	return out, nil
}

// Start runs Check on schedule until Stop. schedule accepts the standard
// five-field syntax and descriptors such as "@every 6h".
func (w *Watcher) Start(ctx context.Context, schedule string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return fmt.Errorf("watcher already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		links, err := w.Check(ctx)
		if err != nil {
			w.log.Warnf("announcement check failed: %v", err)
			return
		}
		w.log.WithField("new_links", len(links)).Info("announcement check completed")
		if len(links) > 0 && w.publish != nil {
			w.publish(links)
		}
	})
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	c.Start()
	w.cron = c
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
