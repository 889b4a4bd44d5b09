// internal/scraper/report.go
package scraper

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Report aggregates the outcome of one ingestion stage. Per-entity failures
// are isolated and counted; a run with partial failures is still a
// completed run, and the counts let an operator decide whether to re-run.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Reconciled int `json:"reconciled"`
	Sampled    int `json:"sampled"`
	Skipped    int `json:"skipped"`
	Stale      int `json:"stale"`
	Failed     int `json:"failed"`
}

func newReport(stage string) *Report {
	return &Report{
		RunID:     uuid.New(),
		Stage:     stage,
		StartedAt: time.Now(),
	}
}

func (r *Report) finish() *Report {
	r.FinishedAt = time.Now()
	return r
}

func (r *Report) merge(other *Report) {
	r.Reconciled += other.Reconciled
	r.Sampled += other.Sampled
	r.Skipped += other.Skipped
	r.Stale += other.Stale
	r.Failed += other.Failed
}

// Log emits the run summary.
func (r *Report) Log() {
	logrus.WithFields(logrus.Fields{
		"run_id":     r.RunID,
		"stage":      r.Stage,
		"duration":   r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		"reconciled": r.Reconciled,
		"sampled":    r.Sampled,
		"skipped":    r.Skipped,
		"stale":      r.Stale,
		"failed":     r.Failed,
	}).Info("Run completed")
}
