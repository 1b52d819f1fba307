// Package report accumulates the outcome of one synchronization run. The
// SyncReport is the only output of the engine beyond the mutated store
// itself; a run that touches the store always produces one.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names the component an error descriptor originated from.
type Stage string

const (
	StageReconcile Stage = "reconcile"
	StageGate      Stage = "gate"
	StageExtract   Stage = "extract"
	StageClean     Stage = "clean"
	StageUpsert    Stage = "upsert"
	StageVerify    Stage = "verify"
)

// ErrorDetail is one structured error descriptor.
type ErrorDetail struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// EntityResult accumulates one entity's counters over the run.
type EntityResult struct {
	Entity    string        `json:"entity"`
	Attempted int           `json:"records_attempted"`
	Loaded    int           `json:"records_loaded"`
	Rejected  int           `json:"records_rejected"`
	Skipped   int64         `json:"records_skipped"`
	Failed    int           `json:"records_failed"`
	RowCount  int64         `json:"row_count"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Errors    []ErrorDetail `json:"errors,omitempty"`
}

// AddError appends a structured error descriptor.
func (r *EntityResult) AddError(stage Stage, err error) {
	r.Errors = append(r.Errors, ErrorDetail{Stage: stage, Message: err.Error(), At: time.Now().UTC()})
}

// Degraded reports whether the entity's load was anything short of clean.
func (r *EntityResult) Degraded() bool {
	return r.Failed > 0 || len(r.Errors) > 0
}

// SyncReport is the final report of one synchronization run.
type SyncReport struct {
	RunID           string          `json:"run_id"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	SchemaIntegrity bool            `json:"schema_integrity"`
	Failed          bool            `json:"failed"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Entities        []*EntityResult `json:"entities"`
}

// New creates a report for a run starting now.
func New() *SyncReport {
	return &SyncReport{
		RunID:           uuid.NewString(),
		StartedAt:       time.Now().UTC(),
		SchemaIntegrity: true,
	}
}

// Entity returns the accumulator for the named entity, creating it on first
// use so every component folds into the same counters.
func (s *SyncReport) Entity(name string) *EntityResult {
	for _, r := range s.Entities {
		if r.Entity == name {
			return r
		}
	}
	r := &EntityResult{Entity: name}
	s.Entities = append(s.Entities, r)
	return r
}

// Finish stamps the end of the run.
func (s *SyncReport) Finish() {
	s.FinishedAt = time.Now().UTC()
}

// Fail marks the run as fatally failed. Only connectivity loss at run start
// takes this path; all later errors fold into per-entity counters instead.
func (s *SyncReport) Fail(reason string) {
	s.Failed = true
	s.FailureReason = reason
	s.Finish()
}

// TotalLoaded sums records_loaded across entities.
func (s *SyncReport) TotalLoaded() int {
	n := 0
	for _, r := range s.Entities {
		n += r.Loaded
	}
	return n
}

// TotalRejected sums records_rejected across entities.
func (s *SyncReport) TotalRejected() int {
	n := 0
	for _, r := range s.Entities {
		n += r.Rejected
	}
	return n
}

// DegradedEntities returns the names of entities whose load was degraded,
// sorted by name.
func (s *SyncReport) DegradedEntities() []string {
	var out []string
	for _, r := range s.Entities {
		if r.Degraded() {
			out = append(out, r.Entity)
		}
	}
	sort.Strings(out)
	return out
}

// WriteJSON writes the report as JSON.
func WriteJSON(s *SyncReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*SyncReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	s := &SyncReport{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return s, nil
}

// WriteText writes the report as human-readable text.
func WriteText(s *SyncReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, []byte(FormatText(s)), 0o644)
}

// FormatText renders the report as human-readable text.
func FormatText(s *SyncReport) string {
	var b strings.Builder

	b.WriteString("=== Datasync Run Report ===\n")
	b.WriteString(fmt.Sprintf("Run:     %s\n", s.RunID))
	b.WriteString(fmt.Sprintf("Started: %s\n", s.StartedAt.Format(time.RFC3339)))
	if !s.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Elapsed: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))
	}

	if s.Failed {
		b.WriteString(fmt.Sprintf("\nFAILED: %s\n", s.FailureReason))
		return b.String()
	}

	if s.SchemaIntegrity {
		b.WriteString("Schema:  ok\n\n")
	} else {
		b.WriteString("Schema:  INTEGRITY PROBLEMS\n\n")
	}

	for _, r := range s.Entities {
		b.WriteString(fmt.Sprintf("%s:\n", r.Entity))
		b.WriteString(fmt.Sprintf("  attempted: %d  loaded: %d  rejected: %d  failed: %d  skipped: %d\n",
			r.Attempted, r.Loaded, r.Rejected, r.Failed, r.Skipped))
		b.WriteString(fmt.Sprintf("  rows: %d  elapsed: %s\n", r.RowCount, r.Elapsed.Round(time.Millisecond)))
		for _, e := range r.Errors {
			b.WriteString(fmt.Sprintf("  [%s] %s\n", e.Stage, e.Message))
		}
	}

	b.WriteString(fmt.Sprintf("\nTotals: %d loaded, %d rejected\n", s.TotalLoaded(), s.TotalRejected()))
	if degraded := s.DegradedEntities(); len(degraded) > 0 {
		b.WriteString(fmt.Sprintf("Degraded entities: %s\n", strings.Join(degraded, ", ")))
	}

	return b.String()
}
