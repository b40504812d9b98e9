package numguess_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/numguess"
)

func TestRecordFileName(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	testCases := map[string]struct {
		rec  numguess.Record
		want string
	}{
		"openai": {
			rec:  numguess.Record{Provider: "openai", Model: "gpt-4.1-mini"},
			want: "results_openai_gpt_4_1_mini_20250304_050607.json",
		},
		"gemini path style model": {
			rec:  numguess.Record{Provider: "gemini", Model: "models/gemini-2.5-flash"},
			want: "results_gemini_models_gemini_2_5_flash_20250304_050607.json",
		},
		"empty": {
			rec:  numguess.Record{},
			want: "results_unknown_default_20250304_050607.json",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			gt.Equal(t, numguess.RecordFileName(&tc.rec, ts), tc.want)
		})
	}
}

func TestWriteAndReadRecord(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	endedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	result := &numguess.Result{
		Range:  numguess.Range{Low: 1, High: 3},
		Counts: map[int]int{1: 1, 2: 2},
		Anomalies: map[numguess.AnomalyReason]int{
			numguess.AnomalyMalformed: 1,
		},
		TrialsRequested: 4,
		TrialsCompleted: 4,
		Status:          numguess.StatusCompleted,
		StartedAt:       endedAt.Add(-time.Minute),
		EndedAt:         endedAt,
	}

	rec := result.Export(numguess.Metadata{Provider: "claude", Model: "claude-sonnet-4-20250514"})
	approxEqual(t, rec.CumulativePercentage, []float64{25, 75, 75})
	gt.Equal(t, rec.Anomalies["malformed_response"], 1)

	path, err := numguess.WriteRecord(dir, rec)
	gt.NoError(t, err)
	gt.Equal(t, filepath.Base(path), "results_claude_claude_sonnet_4_20250514_20250102_030405.json")

	loaded, err := numguess.ReadRecord(path)
	gt.NoError(t, err)
	gt.Equal(t, loaded.Provider, "claude")
	gt.Equal(t, loaded.Counts, rec.Counts)
	gt.Equal(t, loaded.TrialsCompleted, 4)

	back := loaded.Result()
	gt.Equal(t, back.Counts, result.Counts)
	gt.Equal(t, back.Anomalies, result.Anomalies)
	gt.Equal(t, back.Range, result.Range)
	gt.Equal(t, back.Status, numguess.StatusCompleted)
	gt.True(t, back.EndedAt.Equal(endedAt))

	_, err = numguess.ReadRecord(filepath.Join(dir, "missing.json"))
	gt.Error(t, err)
}

func TestReadRecordInvalidRange(t *testing.T) {
	dir := t.TempDir()

	for name, body := range map[string]string{
		"inverted":    `{"counts":{},"anomalies":{},"range":{"low":10,"high":1}}`,
		"overflowing": `{"counts":{},"anomalies":{},"range":{"low":-9223372036854775808,"high":0}}`,
		"missing":     `{"counts":{"1":3}}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "results_"+name+".json")
			gt.NoError(t, os.WriteFile(path, []byte(body), 0600))

			_, err := numguess.ReadRecord(path)
			gt.True(t, errors.Is(err, numguess.ErrInvalidRange))
		})
	}
}
