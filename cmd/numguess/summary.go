package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess"
	"github.com/urfave/cli/v3"
)

const recordPattern = "results_*.json"

// recordFile is one results file found in a directory.
type recordFile struct {
	Name   string           `json:"name"`
	Record *numguess.Record `json:"record"`
}

// listRecords reads every results file of dir ordered by file name, which is also the order of their timestamps
// for one provider and model. Files that cannot be read or hold an invalid range are skipped.
func listRecords(dir string) ([]recordFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, goerr.Wrap(err, "failed to open result directory", goerr.V("dir", dir))
	}

	paths, err := filepath.Glob(filepath.Join(dir, recordPattern))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list result files", goerr.V("dir", dir))
	}
	sort.Strings(paths)

	files := make([]recordFile, 0, len(paths))
	for _, path := range paths {
		rec, err := numguess.ReadRecord(path)
		if err != nil {
			slog.Warn("skipping unreadable result file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		files = append(files, recordFile{Name: filepath.Base(path), Record: rec})
	}
	return files, nil
}

func summaryCommand() *cli.Command {
	return &cli.Command{
		Name:  "summary",
		Usage: "Print the distribution of match positions of saved results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Value:   "results",
				Sources: cli.EnvVars("NUMGUESS_RESULT_DIR"),
				Usage:   "Directory containing results_*.json files",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			files, err := listRecords(cmd.String("dir"))
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return goerr.New("no result files found", goerr.V("dir", cmd.String("dir")))
			}

			for i, f := range files {
				if i > 0 {
					fmt.Fprintln(cmd.Root().Writer)
				}
				if err := writeSummary(cmd.Root().Writer, f.Name, f.Record); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// writeSummary prints the header of rec and one row per guess index with count, percentage and cumulative
// percentage of completed trials.
func writeSummary(w io.Writer, name string, rec *numguess.Record) error {
	result := rec.Result()

	fmt.Fprintf(w, "%s\n", name)
	fmt.Fprintf(w, "provider=%s model=%s range=%s trials=%d/%d status=%s\n",
		rec.Provider, rec.Model, rec.Range, rec.TrialsCompleted, rec.TrialsRequested, rec.Status)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "attempt\tcount\tpercent\tcumulative\t")
	hist := result.Histogram()
	pct := result.Percentage()
	cum := result.CumulativePercentage()
	for i := range hist {
		fmt.Fprintf(tw, "%d\t%d\t%.1f%%\t%.1f%%\t\n", i+1, hist[i], pct[i], cum[i])
	}
	if err := tw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to write summary")
	}

	if anomalies := formatAnomalies(result); anomalies != "" {
		fmt.Fprintf(w, "anomalies: %s\n", anomalies)
	}
	return nil
}

func formatAnomalies(result *numguess.Result) string {
	var parts []string
	for _, reason := range numguess.AnomalyReasons() {
		if c := result.Anomalies[reason]; c > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, c))
		}
	}
	return strings.Join(parts, " ")
}
