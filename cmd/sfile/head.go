package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/mbaird/sfile/pkg/rec"
	"github.com/mbaird/sfile/pkg/sfile"
)

func headCmd() *cli.Command {
	var (
		path    string
		n       int64
		columns string
	)

	return &cli.Command{
		Name:  "head",
		Usage: "Print the first records of a file",
		Flags: append(commonLogFlags(),
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to record file",
				Destination: &path,
				Required:    true,
			},
			&cli.Int64Flag{
				Name:        "rows",
				Aliases:     []string{"n"},
				Usage:       "number of records to print",
				Value:       10,
				Destination: &n,
			},
			&cli.StringFlag{
				Name:        "columns",
				Aliases:     []string{"c"},
				Usage:       "comma-separated field names (default: all)",
				Destination: &columns,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyLogConfig(cmd, cfg)
			applyHeadConfig(cmd, cfg, &n)

			f, err := sfile.Open(path, sfile.ModeRead, sfile.WithLogger(newLogger().Slog()))
			if err != nil {
				return err
			}
			defer f.Close()

			var cols []string
			if columns != "" {
				for _, c := range strings.Split(columns, ",") {
					cols = append(cols, strings.TrimSpace(c))
				}
			}
			return printRows(f, sfile.Span(0, n).Rows(f.Size()), cols)
		},
	}
}

// printRows renders a selection as a whitespace-aligned table.
func printRows(f *sfile.File, rows []int64, cols []string) error {
	var (
		recs *rec.Records
		err  error
	)
	switch {
	case cols != nil:
		recs, err = f.Read(sfile.Rows(rows), cols)
	default:
		recs, err = f.Read(sfile.Rows(rows))
	}
	if err != nil {
		return err
	}
	if !recs.Descriptor().HasFields() && rows != nil && int64(recs.Len()) > int64(len(rows)) {
		// simple arrays always read whole; trim to the requested rows
		if recs, err = recs.Select(rows, nil); err != nil {
			return err
		}
	}

	names := recs.Descriptor().Names()
	if recs.Descriptor().HasFields() {
		fmt.Println(strings.Join(names, "\t"))
	}
	for i := 0; i < recs.Len(); i++ {
		parts := make([]string, len(names))
		for j, name := range names {
			v, err := recs.Value(i, name)
			if err != nil {
				return err
			}
			parts[j] = fmt.Sprint(v)
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
	return nil
}
