package announcements

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/logger"
	"desk-assistant-go/internal/storage"
)

const boardHTML = `<html><body>
<nav><a href="/home">Home</a></nav>
<div class="entry-content">
  <a href="/notice/1.pdf">Exam   schedule</a>
  <a href="https://other.example/form">Admission form</a>
  <a href="/empty"></a>
  <a href="/notice/3.pdf">Holiday list</a>
  <a href="/notice/4.pdf">Results</a>
</div>
</body></html>`

func newBoard(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != UserAgent {
			t.Errorf("user agent = %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(boardHTML))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTopLinks(t *testing.T) {
	srv := newBoard(t)
	s := NewScraper(srv.Client(), logger.Discard())
	page := config.AnnouncementPage{Title: "Board", URL: srv.URL + "/news/", Selector: ".entry-content"}

	links, err := s.TopLinks(context.Background(), page, 3)
	if err != nil {
		t.Fatalf("TopLinks: %v", err)
	}
	// The third anchor is empty and dropped after the limit is applied.
	if len(links) != 2 {
		t.Fatalf("links = %+v, want 2", links)
	}
	if links[0].Text != "Exam schedule" || links[0].URL != srv.URL+"/notice/1.pdf" {
		t.Errorf("first link = %+v", links[0])
	}
	if links[1].URL != "https://other.example/form" {
		t.Errorf("absolute link rewritten: %s", links[1].URL)
	}
	if links[0].Page != "Board" {
		t.Errorf("page = %q", links[0].Page)
	}
}

func TestTopLinksMissingSelector(t *testing.T) {
	srv := newBoard(t)
	s := NewScraper(srv.Client(), logger.Discard())

	links, err := s.TopLinks(context.Background(), config.AnnouncementPage{URL: srv.URL, Selector: "#nope"}, 5)
	if err != nil {
		t.Fatalf("TopLinks: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("links = %v, want none", links)
	}
}

func TestTopLinksHTTPError(t *testing.T) {
	srv := newBoard(t)
	s := NewScraper(srv.Client(), logger.Discard())
	if _, err := s.TopLinks(context.Background(), config.AnnouncementPage{URL: srv.URL + "/missing", Selector: "a"}, 5); err == nil {
		t.Error("expected error for 404")
	}
}

func TestWriteLinks(t *testing.T) {
	pages := []config.AnnouncementPage{{Title: "A"}, {Title: "B"}}
	links := map[string][]Link{"A": {{Page: "A", Text: "One", URL: "https://x/1"}}}

	var buf bytes.Buffer
	if err := WriteLinks(&buf, pages, links); err != nil {
		t.Fatal(err)
	}
	want := "('One', 'https://x/1')\nNo links were found on this page.\n\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestWatcherReportsOnlyUnseenLinks(t *testing.T) {
	srv := newBoard(t)
	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.AnnouncementsConfig{
		Limit: 5,
		Pages: []config.AnnouncementPage{
			{Title: "Board", URL: srv.URL, Selector: ".entry-content"},
			{Title: "Down", URL: srv.URL + "/missing", Selector: ".entry-content"},
		},
	}
	w := NewWatcher(cfg, NewScraper(srv.Client(), logger.Discard()), db, nil, logger.Discard())

	first, err := w.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("first check = %d links, want 4", len(first))
	}

	second, err := w.Check(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("second check = %v, want nothing new", second)
	}
}

func TestWatcherRejectsBadSchedule(t *testing.T) {
	w := NewWatcher(config.AnnouncementsConfig{}, NewScraper(nil, logger.Discard()), nil, nil, logger.Discard())
	err := w.Start(context.Background(), "every now and then")
	if err == nil || !strings.Contains(err.Error(), "schedule") {
		t.Errorf("err = %v, want schedule error", err)
	}
	w.Stop()
}

func TestWatcherStartStop(t *testing.T) {
	w := NewWatcher(config.AnnouncementsConfig{}, NewScraper(nil, logger.Discard()), nil, nil, logger.Discard())
	if err := w.Start(context.Background(), "@every 1h"); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background(), "@every 1h"); err == nil {
		t.Error("second Start should fail")
	}
	w.Stop()
}
