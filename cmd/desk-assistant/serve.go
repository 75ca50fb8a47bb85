package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"desk-assistant-go/internal/web"
)

var port int

// serveCmd starts the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the compression HTTP API",
	Long: `Starts an HTTP server exposing:
- POST /api/compress   multipart "file", optional max_size_kb and threshold
- GET  /api/status     counters and uptime
- GET  /api/files/{n}  download a produced file
- /ws                  websocket with job_completed events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config)")
}

func runServe() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	hub := web.NewHub(a.log)
	a.startPool(hub.JobDone)
	server := web.NewServer(a.cfg, a.pipeline, a.pool, a.stats, hub, a.log)

	if port == 0 {
		port = a.cfg.Web.Port
	}

	ctx, cancel := signalContext()
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(port) }()

	if !quiet {
		fmt.Printf("API listening on http://localhost:%d, press Ctrl+C to stop\n", port)
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Stop(shutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if !quiet {
		fmt.Println("\n" + a.stats.Report())
	}
	return nil
}
