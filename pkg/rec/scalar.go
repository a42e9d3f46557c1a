package rec

import (
	"fmt"
	"math"
	"strings"
)

// decodeScalar reads one element at the start of b according to tag.
func decodeScalar(tag TypeTag, b []byte) any {
	order := tag.ByteOrder()
	switch tag.Kind {
	case KindFloat:
		if tag.Width == 4 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}
		return math.Float64frombits(order.Uint64(b))
	case KindInt:
		switch tag.Width {
		case 1:
			return int64(int8(b[0]))
		case 2:
			return int64(int16(order.Uint16(b)))
		case 4:
			return int64(int32(order.Uint32(b)))
		default:
			return int64(order.Uint64(b))
		}
	case KindUint:
		switch tag.Width {
		case 1:
			return uint64(b[0])
		case 2:
			return uint64(order.Uint16(b))
		case 4:
			return uint64(order.Uint32(b))
		default:
			return order.Uint64(b)
		}
	default:
		return strings.TrimRight(string(b[:tag.Width]), "\x00")
	}
}

// encodeScalar writes one element at the start of b according to tag.
func encodeScalar(tag TypeTag, b []byte, v any) error {
	order := tag.ByteOrder()
	switch tag.Kind {
	case KindFloat:
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%w: %T into %s", ErrValueType, v, tag)
		}
		if tag.Width == 4 {
			order.PutUint32(b, math.Float32bits(float32(f)))
		} else {
			order.PutUint64(b, math.Float64bits(f))
		}
	case KindInt:
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("%w: %T into %s", ErrValueType, v, tag)
		}
		switch tag.Width {
		case 1:
			b[0] = byte(int8(n))
		case 2:
			order.PutUint16(b, uint16(int16(n)))
		case 4:
			order.PutUint32(b, uint32(int32(n)))
		default:
			order.PutUint64(b, uint64(n))
		}
	case KindUint:
		n, ok := toUint(v)
		if !ok {
			return fmt.Errorf("%w: %T into %s", ErrValueType, v, tag)
		}
		switch tag.Width {
		case 1:
			b[0] = byte(n)
		case 2:
			order.PutUint16(b, uint16(n))
		case 4:
			order.PutUint32(b, uint32(n))
		default:
			order.PutUint64(b, n)
		}
	default:
		s, ok := toString(v)
		if !ok {
			return fmt.Errorf("%w: %T into %s", ErrValueType, v, tag)
		}
		if len(s) > tag.Width {
			return fmt.Errorf("%w: %d bytes into %s", ErrValueType, len(s), tag)
		}
		copy(b[:tag.Width], s)
		for i := len(s); i < tag.Width; i++ {
			b[i] = 0
		}
	}
	return nil
}

// encodeSlice writes a repeated field from a matching slice value.
func encodeSlice(tag TypeTag, b []byte, v any) error {
	elems, err := sliceElems(tag, v)
	if err != nil {
		return err
	}
	if len(elems) != tag.Repeat {
		return fmt.Errorf("%w: %d elements into %s", ErrValueType, len(elems), tag)
	}
	for j, e := range elems {
		if err := encodeScalar(tag, b[j*tag.Width:], e); err != nil {
			return err
		}
	}
	return nil
}

func sliceElems(tag TypeTag, v any) ([]any, error) {
	switch s := v.(type) {
	case []any:
		return s, nil
	case []float64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []float32:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []int64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []uint64:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T into %s", ErrValueType, v, tag)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func toUint(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	case float64:
		if n >= 0 && n == math.Trunc(n) {
			return uint64(n), true
		}
	}
	return 0, false
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}
