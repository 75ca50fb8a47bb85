package statistics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics collects counters over every job handled since start.
type Statistics struct {
	JobsStarted   int64
	JobsCompleted int64
	JobsFailed    int64

	ImagesProcessed int64
	PDFsProcessed   int64
	Conversions     int64

	// Pass-through results of the size gate.
	NoOps int64
	// Images whose quality search reached the floor.
	SearchExhausted int64

	BytesIn  int64
	BytesOut int64

	StartTime time.Time

	Errors []StatError

	mutex sync.RWMutex

	TierStats map[string]int64
}

// StatError represents an error that occurred during processing.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// Snapshot is a point in time copy, safe to encode as JSON.
type Snapshot struct {
	JobsStarted     int64            `json:"jobs_started"`
	JobsCompleted   int64            `json:"jobs_completed"`
	JobsFailed      int64            `json:"jobs_failed"`
	ImagesProcessed int64            `json:"images_processed"`
	PDFsProcessed   int64            `json:"pdfs_processed"`
	Conversions     int64            `json:"conversions"`
	NoOps           int64            `json:"no_ops"`
	SearchExhausted int64            `json:"search_exhausted"`
	BytesIn         int64            `json:"bytes_in"`
	BytesOut        int64            `json:"bytes_out"`
	BytesSaved      int64            `json:"bytes_saved"`
	Uptime          string           `json:"uptime"`
	Tiers           map[string]int64 `json:"tiers"`
	ErrorCount      int              `json:"error_count"`
}

// maxErrors bounds the error log kept in memory.
const maxErrors = 100

// NewStatistics returns a new Statistics instance.
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime: time.Now(),
		TierStats: make(map[string]int64),
		Errors:    make([]StatError, 0),
	}
}

// IncrementJobsStarted increases the count of started jobs by 1.
func (s *Statistics) IncrementJobsStarted() {
	atomic.AddInt64(&s.JobsStarted, 1)
}

// IncrementJobsCompleted increases the count of completed jobs by 1.
func (s *Statistics) IncrementJobsCompleted() {
	atomic.AddInt64(&s.JobsCompleted, 1)
}

// IncrementJobsFailed increases the count of failed jobs by 1.
func (s *Statistics) IncrementJobsFailed() {
	atomic.AddInt64(&s.JobsFailed, 1)
}

func (s *Statistics) IncrementImagesProcessed() {
	atomic.AddInt64(&s.ImagesProcessed, 1)
}

func (s *Statistics) IncrementPDFsProcessed() {
	atomic.AddInt64(&s.PDFsProcessed, 1)
}

func (s *Statistics) IncrementConversions() {
	atomic.AddInt64(&s.Conversions, 1)
}

func (s *Statistics) IncrementNoOps() {
	atomic.AddInt64(&s.NoOps, 1)
}

func (s *Statistics) IncrementSearchExhausted() {
	atomic.AddInt64(&s.SearchExhausted, 1)
}

// IncrementTier increases the count for the tier that produced an artifact.
func (s *Statistics) IncrementTier(tier string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.TierStats[tier]++
}

// AddBytes records the sizes of one input and its artifact.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// AddError records an error that occurred during processing.
func (s *Statistics) AddError(filePath, operation, errorMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errorMsg,
		Timestamp: time.Now(),
	})
	if len(s.Errors) > maxErrors {
		s.Errors = s.Errors[len(s.Errors)-maxErrors:]
	}
}

// Snapshot returns a copy of the current counters.
func (s *Statistics) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tiers := make(map[string]int64, len(s.TierStats))
	for k, v := range s.TierStats {
		tiers[k] = v
	}
	in := atomic.LoadInt64(&s.BytesIn)
	out := atomic.LoadInt64(&s.BytesOut)

	return Snapshot{
		JobsStarted:     atomic.LoadInt64(&s.JobsStarted),
		JobsCompleted:   atomic.LoadInt64(&s.JobsCompleted),
		JobsFailed:      atomic.LoadInt64(&s.JobsFailed),
		ImagesProcessed: atomic.LoadInt64(&s.ImagesProcessed),
		PDFsProcessed:   atomic.LoadInt64(&s.PDFsProcessed),
		Conversions:     atomic.LoadInt64(&s.Conversions),
		NoOps:           atomic.LoadInt64(&s.NoOps),
		SearchExhausted: atomic.LoadInt64(&s.SearchExhausted),
		BytesIn:         in,
		BytesOut:        out,
		BytesSaved:      in - out,
		Uptime:          time.Since(s.StartTime).Round(time.Second).String(),
		Tiers:           tiers,
		ErrorCount:      len(s.Errors),
	}
}

// GetSummary returns a formatted summary of all statistics.
func (s *Statistics) GetSummary() string {
	snap := s.Snapshot()
	return fmt.Sprintf(`Desk Assistant Statistics Summary:

Jobs:
		Started: %d
		Completed: %d
		Failed: %d

Files:
		Images: %d
		PDFs: %d
		Conversions: %d
		Already Small: %d
		Search Exhausted: %d

Bytes:
		In: %s
		Out: %s
		Saved: %s

%s
Uptime: %s`,
		snap.JobsStarted,
		snap.JobsCompleted,
		snap.JobsFailed,
		snap.ImagesProcessed,
		snap.PDFsProcessed,
		snap.Conversions,
		snap.NoOps,
		snap.SearchExhausted,
		formatBytes(snap.BytesIn),
		formatBytes(snap.BytesOut),
		formatBytes(snap.BytesSaved),
		s.GetTierBreakdown(),
		snap.Uptime)
}

// GetTierBreakdown returns a formatted breakdown of artifacts per tier.
func (s *Statistics) GetTierBreakdown() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.TierStats) == 0 {
		return "No tier statistics available\n"
	}

	names := make([]string, 0, len(s.TierStats))
	for name := range s.TierStats {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Tier Breakdown:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %d\n", name, s.TierStats[name])
	}
	return b.String()
}

// GetErrorSummary returns a summary of errors that occurred during processing.
func (s *Statistics) GetErrorSummary() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.Errors) == 0 {
		return "No errors occurred during processing"
	}

	result := fmt.Sprintf("Errors (%d total):\n", len(s.Errors))
	for i, err := range s.Errors {
		if i >= 10 {
			result += fmt.Sprintf("  ... and %d more errors\n", len(s.Errors)-10)
			break
		}
		result += fmt.Sprintf("  [%s] %s: %s - %s\n",
			err.Timestamp.Format("15:04:05"),
			err.Operation,
			err.FilePath,
			err.Error)
	}
	return result
}

// Report returns the summary, followed by the error summary when any job
// failed.
func (s *Statistics) Report() string {
	report := s.GetSummary()
	s.mutex.RLock()
	failed := len(s.Errors) > 0
	s.mutex.RUnlock()
	if failed {
		report += "\n\n" + s.GetErrorSummary()
	}
	return report
}

// FormatBytes returns a human-readable string for a byte count.
func FormatBytes(bytes int64) string {
	return formatBytes(bytes)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < 0 {
		return "-" + formatBytes(-bytes)
	}
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
