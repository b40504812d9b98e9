package numguess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Metadata describes what the experiment was run against.
type Metadata struct {
	Provider string            `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	Labels   map[string]string `json:"labels,omitempty"`
}

// Record is the serializable form of a Result, consumed by plotting tools.
type Record struct {
	Counts          map[int]int    `json:"counts"`
	Anomalies       map[string]int `json:"anomalies"`
	TrialsRequested int            `json:"trialsRequested"`
	TrialsCompleted int            `json:"trialsCompleted"`

	Provider             string            `json:"provider,omitempty"`
	Model                string            `json:"model,omitempty"`
	Labels               map[string]string `json:"labels,omitempty"`
	Range                Range             `json:"range"`
	Status               Status            `json:"status"`
	StartedAt            time.Time         `json:"startedAt"`
	EndedAt              time.Time         `json:"endedAt"`
	CumulativePercentage []float64         `json:"cumulativePercentage"`
}

// Export converts the result into a Record.
func (r *Result) Export(meta Metadata) *Record {
	rec := &Record{
		Counts:               make(map[int]int, len(r.Counts)),
		Anomalies:            make(map[string]int, len(r.Anomalies)),
		TrialsRequested:      r.TrialsRequested,
		TrialsCompleted:      r.TrialsCompleted,
		Provider:             meta.Provider,
		Model:                meta.Model,
		Labels:               meta.Labels,
		Range:                r.Range,
		Status:               r.Status,
		StartedAt:            r.StartedAt,
		EndedAt:              r.EndedAt,
		CumulativePercentage: r.CumulativePercentage(),
	}
	for idx, c := range r.Counts {
		rec.Counts[idx] = c
	}
	for reason, c := range r.Anomalies {
		rec.Anomalies[string(reason)] = c
	}
	return rec
}

// Result converts the record back into a Result.
func (rec *Record) Result() *Result {
	r := &Result{
		Range:           rec.Range,
		Counts:          make(map[int]int, len(rec.Counts)),
		Anomalies:       make(map[AnomalyReason]int, len(rec.Anomalies)),
		TrialsRequested: rec.TrialsRequested,
		TrialsCompleted: rec.TrialsCompleted,
		Status:          rec.Status,
		StartedAt:       rec.StartedAt,
		EndedAt:         rec.EndedAt,
	}
	for idx, c := range rec.Counts {
		r.Counts[idx] = c
	}
	for reason, c := range rec.Anomalies {
		r.Anomalies[AnomalyReason(reason)] = c
	}
	return r
}

// RecordFileName returns results_<provider>_<model>_<timestamp>.json with '-' and '.' of the model replaced by '_'.
func RecordFileName(rec *Record, ts time.Time) string {
	model := strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(rec.Model)
	provider := rec.Provider
	if provider == "" {
		provider = "unknown"
	}
	if model == "" {
		model = "default"
	}
	return fmt.Sprintf("results_%s_%s_%s.json", provider, model, ts.Format("20060102_150405"))
}

// WriteRecord writes rec as indented JSON into dir and returns the file path.
func WriteRecord(dir string, rec *Record) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", goerr.Wrap(err, "failed to create result directory", goerr.V("dir", dir))
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal result")
	}

	ts := rec.EndedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	path := filepath.Join(dir, RecordFileName(rec, ts))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", goerr.Wrap(err, "failed to write result file", goerr.V("path", path))
	}
	return path, nil
}

// ReadRecord loads a Record written by WriteRecord. A record whose range is invalid is rejected with
// ErrInvalidRange.
func ReadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read result file", goerr.V("path", path))
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal result file", goerr.V("path", path))
	}
	if err := rec.Range.Validate(); err != nil {
		return nil, goerr.Wrap(err, "result file has an invalid range", goerr.V("path", path))
	}
	return &rec, nil
}
