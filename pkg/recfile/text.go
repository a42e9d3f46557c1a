package recfile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mbaird/sfile/pkg/rec"
)

// parseTextRecord splits one line into field tokens and stores the fields
// present in outDescr into every destination row index in dsts.
func parseTextRecord(line string, d, outDescr *rec.Descriptor, delim string, out *rec.Records, dsts []int) error {
	tokens := strings.Split(line, delim)
	perRecord := 0
	for _, f := range d.Fields() {
		perRecord += f.Tag.Repeat
	}
	if len(tokens) != perRecord {
		return fmt.Errorf("%d tokens, want %d", len(tokens), perRecord)
	}

	pos := 0
	for _, f := range d.Fields() {
		n := f.Tag.Repeat
		if outDescr.IndexOf(f.Name) < 0 {
			pos += n
			continue
		}
		v, err := parseTokens(f.Tag, tokens[pos:pos+n])
		if err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
		pos += n
		for _, dst := range dsts {
			if err := out.Set(dst, f.Name, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseTokens(tag rec.TypeTag, tokens []string) (any, error) {
	if tag.Repeat == 1 {
		return parseToken(tag, tokens[0])
	}
	vals := make([]any, len(tokens))
	for i, tok := range tokens {
		v, err := parseToken(tag, tok)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func parseToken(tag rec.TypeTag, token string) (any, error) {
	switch tag.Kind {
	case rec.KindFloat:
		return strconv.ParseFloat(strings.TrimSpace(token), 64)
	case rec.KindInt:
		return strconv.ParseInt(strings.TrimSpace(token), 10, 64)
	case rec.KindUint:
		return strconv.ParseUint(strings.TrimSpace(token), 10, 64)
	default:
		return strings.TrimRight(token, "\x00"), nil
	}
}

func writeText(w io.Writer, records *rec.Records, cfg Config) error {
	bw := bufio.NewWriter(w)
	d := records.Descriptor()
	for row := 0; row < records.Len(); row++ {
		first := true
		for _, f := range d.Fields() {
			v, err := records.Value(row, f.Name)
			if err != nil {
				return err
			}
			for _, tok := range formatTokens(f.Tag, v, cfg) {
				if !first {
					if _, err := bw.WriteString(cfg.Delim); err != nil {
						return err
					}
				}
				first = false
				if _, err := bw.WriteString(tok); err != nil {
					return err
				}
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatTokens(tag rec.TypeTag, v any, cfg Config) []string {
	if tag.Repeat == 1 {
		return []string{formatToken(tag, v, cfg)}
	}
	switch vals := v.(type) {
	case []float64:
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i] = formatToken(tag, e, cfg)
		}
		return out
	case []int64:
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i] = formatToken(tag, e, cfg)
		}
		return out
	case []uint64:
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i] = formatToken(tag, e, cfg)
		}
		return out
	case []string:
		out := make([]string, len(vals))
		for i, e := range vals {
			out[i] = formatToken(tag, e, cfg)
		}
		return out
	}
	return []string{formatToken(tag, v, cfg)}
}

func formatToken(tag rec.TypeTag, v any, cfg Config) string {
	switch tag.Kind {
	case rec.KindFloat:
		bits := 64
		if tag.Width == 4 {
			bits = 32
		}
		return strconv.FormatFloat(v.(float64), 'g', -1, bits)
	case rec.KindInt:
		return strconv.FormatInt(v.(int64), 10)
	case rec.KindUint:
		return strconv.FormatUint(v.(uint64), 10)
	default:
		s := v.(string)
		switch {
		case cfg.IgnoreNull:
			return s
		case cfg.PadNull:
			return s + strings.Repeat(" ", tag.Width-len(s))
		default:
			return s + strings.Repeat("\x00", tag.Width-len(s))
		}
	}
}

func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
