package sfile

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// The header body is a literal expression: nested mappings, lists, tuples,
// strings, numbers, booleans and none. The legacy tool evaluated this text
// directly; here it is handled by a closed little parser that evaluates
// nothing. The writer emits the same dialect the legacy tool produced
// (single-quoted strings, Python spellings of the constants) so files
// interoperate in both directions, and JSON-shaped bodies parse as well.

// tuple distinguishes parenthesized sequences from lists so descriptor
// entries round-trip in their original spelling.
type tuple []any

type litParser struct {
	s   string
	pos int
}

func parseLiteral(s string) (any, error) {
	p := &litParser{s: s}
	p.ws()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.ws()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("trailing data at offset %d", p.pos)
	}
	return v, nil
}

func (p *litParser) ws() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *litParser) peek() (byte, bool) {
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *litParser) expect(c byte) error {
	if b, ok := p.peek(); !ok || b != c {
		return fmt.Errorf("expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *litParser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of input")
	}
	switch {
	case c == '{':
		return p.mapping()
	case c == '[':
		seq, err := p.sequence('[', ']')
		return seq, err
	case c == '(':
		seq, err := p.sequence('(', ')')
		if err != nil {
			return nil, err
		}
		return tuple(seq), nil
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || (c >= '0' && c <= '9') || c == '.':
		return p.number()
	default:
		return p.ident()
	}
}

func (p *litParser) mapping() (map[string]any, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	m := make(map[string]any)
	p.ws()
	if c, ok := p.peek(); ok && c == '}' {
		p.pos++
		return m, nil
	}
	for {
		p.ws()
		key, err := p.str()
		if err != nil {
			return nil, fmt.Errorf("mapping key: %w", err)
		}
		p.ws()
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		p.ws()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		m[key] = v
		p.ws()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated mapping")
		}
		p.pos++
		if c == '}' {
			return m, nil
		}
		if c != ',' {
			return nil, fmt.Errorf("expected ',' or '}' at offset %d", p.pos-1)
		}
		p.ws()
		// tolerate a trailing comma
		if c, ok := p.peek(); ok && c == '}' {
			p.pos++
			return m, nil
		}
	}
}

func (p *litParser) sequence(open, close byte) ([]any, error) {
	if err := p.expect(open); err != nil {
		return nil, err
	}
	seq := []any{}
	p.ws()
	if c, ok := p.peek(); ok && c == close {
		p.pos++
		return seq, nil
	}
	for {
		p.ws()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		seq = append(seq, v)
		p.ws()
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated sequence")
		}
		p.pos++
		if c == close {
			return seq, nil
		}
		if c != ',' {
			return nil, fmt.Errorf("expected ',' or %q at offset %d", string(close), p.pos-1)
		}
		p.ws()
		if c, ok := p.peek(); ok && c == close {
			p.pos++
			return seq, nil
		}
	}
}

func (p *litParser) str() (string, error) {
	quote, ok := p.peek()
	if !ok || (quote != '\'' && quote != '"') {
		return "", fmt.Errorf("expected string at offset %d", p.pos)
	}
	p.pos++
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		p.pos++
		switch c {
		case quote:
			return b.String(), nil
		case '\\':
			if p.pos >= len(p.s) {
				return "", fmt.Errorf("unterminated escape")
			}
			e := p.s[p.pos]
			p.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			case '\\', '\'', '"':
				b.WriteByte(e)
			case 'x':
				if p.pos+2 > len(p.s) {
					return "", fmt.Errorf("short hex escape")
				}
				n, err := strconv.ParseUint(p.s[p.pos:p.pos+2], 16, 8)
				if err != nil {
					return "", fmt.Errorf("bad hex escape: %w", err)
				}
				p.pos += 2
				b.WriteByte(byte(n))
			default:
				return "", fmt.Errorf("unknown escape \\%s", string(e))
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *litParser) number() (any, error) {
	start := p.pos
	if c, ok := p.peek(); ok && (c == '-' || c == '+') {
		p.pos++
	}
	float := false
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			float = true
			p.pos++
			if c != '.' && p.pos < len(p.s) && (p.s[p.pos] == '-' || p.s[p.pos] == '+') {
				p.pos++
			}
			continue
		}
		break
	}
	text := p.s[start:p.pos]
	if float {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad number %q", text)
	}
	return n, nil
}

func (p *litParser) ident() (any, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	switch p.s[start:p.pos] {
	case "True", "true":
		return true, nil
	case "False", "false":
		return false, nil
	case "None", "null":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown token at offset %d", start)
}

// formatLiteral renders v in the dialect parseLiteral reads back.
func formatLiteral(v any) string {
	var b strings.Builder
	appendLiteral(&b, v)
	return b.String()
}

func appendLiteral(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case string:
		quoteLiteral(b, x)
	case int:
		b.WriteString(strconv.Itoa(x))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		appendFloat(b, float64(x))
	case float64:
		appendFloat(b, x)
	case tuple:
		b.WriteByte('(')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			appendLiteral(b, e)
		}
		if len(x) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			appendLiteral(b, e)
		}
		b.WriteByte(']')
	case []int64:
		appendLiteral(b, anySlice(x))
	case []int:
		appendLiteral(b, anySlice(x))
	case []float64:
		appendLiteral(b, anySlice(x))
	case []string:
		appendLiteral(b, anySlice(x))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			quoteLiteral(b, k)
			b.WriteString(": ")
			appendLiteral(b, x[k])
		}
		b.WriteByte('}')
	default:
		// last resort; keeps the header writable for odd caller values
		quoteLiteral(b, fmt.Sprint(x))
	}
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, e := range in {
		out[i] = e
	}
	return out
}

func appendFloat(b *strings.Builder, f float64) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		// not representable in the closed grammar
		b.WriteString("None")
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	b.WriteString(s)
	if !strings.ContainsAny(s, ".eE") {
		b.WriteString(".0")
	}
}

func quoteLiteral(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\'':
			b.WriteString("\\'")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\t':
			b.WriteString("\\t")
		case '\r':
			b.WriteString("\\r")
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(b, "\\x%02x", c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	b.WriteByte('\'')
}
