package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"desk-assistant-go/internal/announcements"
)

var (
	linksFile string
	linkLimit int
	newOnly   bool
)

// announcementsCmd scrapes the configured notice boards once.
var announcementsCmd = &cobra.Command{
	Use:   "announcements",
	Short: "Scrape the configured notice boards once",
	Long: `Fetches the newest links of every configured page, prints them and writes
them to a links file. With --new-only only links not reported before are
shown, and they are remembered in the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnnouncements()
	},
}

func init() {
	announcementsCmd.Flags().StringVar(&linksFile, "out", "hbtu_links.txt", "file the links are written to (empty to skip)")
	announcementsCmd.Flags().IntVar(&linkLimit, "limit", 0, "links per page (default from config)")
	announcementsCmd.Flags().BoolVar(&newOnly, "new-only", false, "only show links not seen before")
}

func runAnnouncements() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg.Announcements
	if linkLimit > 0 {
		cfg.Limit = linkLimit
	}
	scraper := announcements.NewScraper(nil, a.log)

	ctx, cancel := signalContext()
	defer cancel()

	if newOnly {
		if err := a.openDB(); err != nil {
			return err
		}
		links, err := announcements.NewWatcher(cfg, scraper, a.db, nil, a.log).Check(ctx)
		if err != nil {
			return err
		}
		if len(links) == 0 {
			fmt.Println("No new links.")
			return nil
		}
		byPage := map[string][]announcements.Link{}
		for _, l := range links {
			byPage[l.Page] = append(byPage[l.Page], l)
		}
		return announcements.WriteLinks(os.Stdout, cfg.Pages, byPage)
	}

	found := scraper.Scrape(ctx, cfg.Pages, cfg.Limit)
	for _, p := range cfg.Pages {
		fmt.Printf("%s\n", p.Title)
		for _, l := range found[p.Title] {
			fmt.Printf("  %s\n    %s\n", l.Text, l.URL)
		}
	}
	if linksFile != "" {
		if err := announcements.WriteLinksFile(linksFile, cfg.Pages, found); err != nil {
			return err
		}
		if !quiet {
			fmt.Printf("Links written to %s\n", linksFile)
		}
	}
	return nil
}
