// Package web exposes the compression pipeline over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/compressor"
	"desk-assistant-go/internal/config"
	"desk-assistant-go/internal/statistics"
	"desk-assistant-go/internal/worker"
)

// maxUploadBytes bounds one uploaded file.
const maxUploadBytes = 64 << 20

// Server serves the compression API.
type Server struct {
	cfg        *config.Config
	log        logrus.FieldLogger
	compressor compressor.Compressor
	pool       *worker.Pool
	stats      *statistics.Statistics
	hub        *Hub
	router     *mux.Router
	httpServer *http.Server
	started    time.Time
}

// APIResponse is the envelope of every JSON answer.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CompressResponse describes a finished compression.
type CompressResponse struct {
	JobID           string  `json:"job_id"`
	Tier            string  `json:"tier"`
	OriginalSize    int64   `json:"original_size"`
	Size            int64   `json:"size"`
	PercentageSaved float64 `json:"percentage_saved"`
	File            string  `json:"file"`
	DownloadURL     string  `json:"download_url"`
}

// NewServer wires the routes. The pool's DoneHook should be hub.JobDone so
// websocket clients hear about every job.
func NewServer(cfg *config.Config, c compressor.Compressor, pool *worker.Pool, stats *statistics.Statistics, hub *Hub, log logrus.FieldLogger) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		compressor: c,
		pool:       pool,
		stats:      stats,
		hub:        hub,
		router:     mux.NewRouter(),
		started:    time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/files/{name}", s.handleFile).Methods("GET")

	s.router.Handle("/ws", s.hub)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on port until Stop.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, "Multipart field 'file' is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	opts := compressor.OptionsFromConfig(s.cfg.Compression)
	if v := r.FormValue("max_size_kb"); v != "" {
		kb, err := strconv.Atoi(v)
		if err != nil || kb <= 0 {
			s.writeError(w, "max_size_kb must be a positive integer", http.StatusBadRequest)
			return
		}
		opts.MaxBytes = int64(kb) * 1024
	}
	if v := r.FormValue("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || t <= 0 || t > 1 {
			s.writeError(w, "threshold must be in (0, 1]", http.StatusBadRequest)
			return
		}
		opts.Threshold = t
	}

	uploadDir := filepath.Join(s.cfg.Compression.WorkDir, "uploads", uuid.NewString())
	defer os.RemoveAll(uploadDir)
	input, err := saveUpload(file, uploadDir, header.Filename)
	if err != nil {
		s.log.Errorf("save upload: %v", err)
		s.writeError(w, "Could not store the upload", http.StatusInternalServerError)
		return
	}

	outDir := s.cfg.OutputDir()
	job := compressor.NewJob(input, outDir, opts)
	var result compressor.CompressionResult
	res := s.pool.Run(r.Context(), "compress", func(ctx context.Context) error {
		var err error
		result, err = s.compressor.Compress(ctx, job)
		if err != nil {
			return err
		}
		// The no-op result points at the upload, which is removed below.
		if filepath.Dir(result.Path) != filepath.Clean(outDir) {
			result.Path, err = compressor.CopyVerbatim(result.Path, outDir)
		}
		return err
	})
	if res.Err != nil {
		s.log.WithField("job_id", job.ID).Warnf("compress failed: %v", res.Err)
		s.writeError(w, compressor.UserMessage(res.Err), statusFor(res.Err))
		return
	}

	name := filepath.Base(result.Path)
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: CompressResponse{
			JobID:           result.JobID,
			Tier:            string(result.Tier),
			OriginalSize:    result.OriginalSize,
			Size:            result.Size,
			PercentageSaved: result.PercentageSaved(),
			File:            name,
			DownloadURL:     "/api/files/" + name,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"uptime":     time.Since(s.started).Round(time.Second).String(),
			"ws_clients": s.hub.Clients(),
			"statistics": s.stats.Snapshot(),
			"summary":    s.stats.GetSummary(),
		},
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		s.writeError(w, "Invalid file name", http.StatusBadRequest)
		return
	}
	path := filepath.Join(s.cfg.OutputDir(), name)
	if _, err := os.Stat(path); err != nil {
		s.writeError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, path)
}

func saveUpload(src io.Reader, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	path := filepath.Join(dir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return path, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, compressor.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, compressor.ErrSearchExhausted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
