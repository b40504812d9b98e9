package main

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/numguess/trace"
	"github.com/urfave/cli/v3"
)

func viewCommand() *cli.Command {
	return &cli.Command{
		Name:  "view",
		Usage: "Serve saved traces and results as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":18901",
				Sources: cli.EnvVars("NUMGUESS_VIEW_ADDR"),
				Usage:   "Server listen address",
			},
			&cli.StringFlag{
				Name:    "trace-dir",
				Sources: cli.EnvVars("NUMGUESS_TRACE_DIR"),
				Usage:   "Directory containing trace JSON files",
			},
			&cli.StringFlag{
				Name:    "result-dir",
				Sources: cli.EnvVars("NUMGUESS_RESULT_DIR"),
				Usage:   "Directory containing results_*.json files",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			traceDir := cmd.String("trace-dir")
			resultDir := cmd.String("result-dir")
			if traceDir == "" && resultDir == "" {
				return goerr.New("either --trace-dir or --result-dir must be specified")
			}

			opts := []serverOption{withAddr(cmd.String("addr"))}
			if traceDir != "" {
				opts = append(opts, withTraces(trace.NewFileRepository(traceDir)))
			}
			if resultDir != "" {
				opts = append(opts, withResultDir(resultDir))
			}

			return newServer(opts...).start(ctx)
		},
	}
}
