// Package announcements scrapes notice boards for their newest links and
// reports the ones not seen before.
package announcements

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/config"
)

// UserAgent is sent with every request; some sites refuse Go's default.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultTimeout bounds one page fetch.
const DefaultTimeout = 15 * time.Second

// Link is one anchor found on a page.
type Link struct {
	Page string
	Text string
	URL  string
}

// Scraper fetches pages and extracts links.
type Scraper struct {
	client *http.Client
	log    logrus.FieldLogger
}

// NewScraper returns a scraper with the default timeout. A nil client uses a
// fresh http.Client.
func NewScraper(client *http.Client, log logrus.FieldLogger) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Scraper{client: client, log: log}
}

// TopLinks returns the first limit anchors inside page.Selector, resolved
// against the page URL. Anchors without text or href are dropped after the
// limit is applied. A selector that matches nothing yields no links and no
// error.
func (s *Scraper) TopLinks(ctx context.Context, page config.AnnouncementPage, limit int) ([]Link, error) {
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %s: %w", page.URL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", page.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", page.URL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page.URL, err)
	}

	area := doc.Find(page.Selector).First()
	if area.Length() == 0 {
		s.log.WithFields(logrus.Fields{"url": page.URL, "selector": page.Selector}).Warn("content area not found")
		return nil, nil
	}

	anchors := area.Find("a")
	if limit > 0 {
		anchors = anchors.Slice(0, min(limit, anchors.Length()))
	}

	var links []Link
	anchors.Each(func(_ int, a *goquery.Selection) {
		text := strings.Join(strings.Fields(a.Text()), " ")
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if text == "" || !ok || href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, Link{Page: page.Title, Text: text, URL: base.ResolveReference(ref).String()})
	})
	return links, nil
}

// Scrape runs TopLinks over every page. A failing page is logged and skipped
// so one unreachable site does not hide the others.
func (s *Scraper) Scrape(ctx context.Context, pages []config.AnnouncementPage, limit int) map[string][]Link {
	out := make(map[string][]Link, len(pages))
	for _, p := range pages {
		links, err := s.TopLinks(ctx, p, limit)
		if err != nil {
			s.log.WithField("page", p.Title).Warnf("scrape failed: %v", err)
			continue
		}
		out[p.Title] = links
	}
	return out
}

// WriteLinks writes the links of every page, in page order, one
// "('text', 'url')" tuple per line. Pages without links get a notice line.
func WriteLinks(w io.Writer, pages []config.AnnouncementPage, links map[string][]Link) error {
	for _, p := range pages {
		found := links[p.Title]
		if len(found) == 0 {
			if _, err := fmt.Fprint(w, "No links were found on this page.\n\n"); err != nil {
				return err
			}
			continue
		}
		for _, l := range found {
			if _, err := fmt.Fprintf(w, "('%s', '%s')\n", l.Text, l.URL); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteLinksFile writes WriteLinks output to path, replacing the file.
func WriteLinksFile(path string, pages []config.AnnouncementPage, links map[string][]Link) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteLinks(f, pages, links); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Sync()
}
