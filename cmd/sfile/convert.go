package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mbaird/sfile/pkg/sfile"
)

func convertCmd() *cli.Command {
	var (
		inPath     string
		outPath    string
		delim      string
		toBinary   bool
		padNull    bool
		ignoreNull bool
	)

	return &cli.Command{
		Name:  "convert",
		Usage: "Rewrite a record file between binary and delimited form",
		Flags: append(commonLogFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"in"},
				Usage:       "source record file",
				Destination: &inPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"out"},
				Usage:       "destination record file",
				Destination: &outPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "delim",
				Usage:       "field delimiter for delimited output (e.g. ',' or 'tab')",
				Value:       ",",
				Destination: &delim,
			},
			&cli.BoolFlag{
				Name:        "binary",
				Usage:       "write binary output instead of delimited",
				Destination: &toBinary,
			},
			&cli.BoolFlag{
				Name:        "padnull",
				Usage:       "write NUL padding of string fields as spaces",
				Destination: &padNull,
			},
			&cli.BoolFlag{
				Name:        "ignorenull",
				Usage:       "drop NUL padding of string fields",
				Destination: &ignoreNull,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyLogConfig(cmd, LoadConfig())
			log := newLogger()

			recs, hdr, err := sfile.ReadWithHeader(inPath)
			if err != nil {
				return err
			}

			extra := make(map[string]any)
			for _, k := range hdr.Keys() {
				if sfile.IsReservedKey(k) {
					continue
				}
				v, _ := hdr.Get(k)
				extra[k] = v
			}

			opts := []sfile.Option{sfile.WithLogger(log.Slog())}
			if !toBinary {
				d := delim
				if d == "tab" || d == "\\t" {
					d = "\t"
				}
				opts = append(opts,
					sfile.WithDelim(d),
					sfile.WithPadNull(padNull),
					sfile.WithIgnoreNull(ignoreNull))
			}
			if err := sfile.Write(outPath, recs, extra, opts...); err != nil {
				return err
			}
			fmt.Printf("wrote %d records to %s\n", recs.Len(), outPath)
			return nil
		},
	}
}
