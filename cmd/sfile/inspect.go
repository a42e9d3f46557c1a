package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/mbaird/sfile/pkg/sfile"
)

func inspectCmd() *cli.Command {
	var (
		path     string
		asJSON   bool
		showHdr  bool
		showRows int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the header and layout of a record file",
		Flags: append(commonLogFlags(),
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to record file",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit machine-readable JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "header",
				Usage:       "dump every header entry",
				Destination: &showHdr,
			},
			&cli.Int64Flag{
				Name:        "sample",
				Usage:       "also print the first N records",
				Destination: &showRows,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyLogConfig(cmd, LoadConfig())
			log := newLogger()

			f, err := sfile.Open(path, sfile.ModeRead, sfile.WithLogger(log.Slog()))
			if err != nil {
				return err
			}
			defer f.Close()

			d := f.Descriptor()
			if asJSON {
				out := map[string]any{
					"path":       path,
					"size":       f.Size(),
					"delim":      f.Delim(),
					"has_fields": d.HasFields(),
					"header":     f.ReadHeader().Map(),
				}
				if d.HasFields() {
					fields := make([]map[string]any, d.NumFields())
					for i, fd := range d.Fields() {
						fields[i] = map[string]any{
							"name":  fd.Name,
							"type":  fd.Tag.String(),
							"bytes": fd.Tag.Size(),
						}
					}
					out["fields"] = fields
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			mode := "binary"
			if f.Delim() != "" {
				mode = fmt.Sprintf("delimited (%q)", f.Delim())
			}
			fmt.Printf("file:    %s\n", path)
			fmt.Printf("records: %d\n", f.Size())
			fmt.Printf("mode:    %s\n", mode)
			if d.HasFields() {
				fmt.Printf("fields:  %d (%d bytes/record)\n", d.NumFields(), d.Size())
				for _, fd := range d.Fields() {
					fmt.Printf("  %-16s %s\n", fd.Name, fd.Tag.String())
				}
			} else {
				fmt.Printf("element: %s\n", d.At(0).Tag.String())
			}
			if showHdr {
				fmt.Println("header:")
				hdr := f.ReadHeader()
				for _, k := range hdr.Keys() {
					v, _ := hdr.Get(k)
					fmt.Printf("  %-16s %v\n", k, v)
				}
			}
			if showRows > 0 {
				return printRows(f, sfile.Span(0, showRows).Rows(f.Size()), nil)
			}
			return nil
		},
	}
}
