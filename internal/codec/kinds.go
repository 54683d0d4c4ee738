package codec

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/blazeorm/internal/jsonobj"
	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/record"
)

// kindCodec is the encoder/decoder pair of one logical kind.
type kindCodec interface {
	encode(v any) (any, error)
	decode(raw any) (any, error)
}

type nullCodec struct{}

func (nullCodec) encode(any) (any, error) { return nil, nil }
func (nullCodec) decode(any) (any, error) { return nil, nil }

type stringCodec struct{}

func (stringCodec) encode(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, unexpected(v)
	}
	return s, nil
}

func (stringCodec) decode(raw any) (any, error) {
	switch r := raw.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	case int64:
		return strconv.FormatInt(r, 10), nil
	case float64:
		return strconv.FormatFloat(r, 'g', -1, 64), nil
	default:
		return nil, unexpected(raw)
	}
}

type intCodec struct{}

func (intCodec) encode(v any) (any, error) {
	n, ok := record.Normalize(v).(int64)
	if !ok {
		return nil, unexpected(v)
	}
	return n, nil
}

func (intCodec) decode(raw any) (any, error) {
	switch r := raw.(type) {
	case nil:
		return int64(0), nil
	case int64:
		return r, nil
	case float64:
		return int64(r), nil
	case bool:
		if r {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		return parseInt(r)
	case []byte:
		return parseInt(string(r))
	default:
		return nil, unexpected(raw)
	}
}

func parseInt(s string) (any, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse integer %q: %w", s, err)
	}
	return int64(f), nil
}

type floatCodec struct{}

func (floatCodec) encode(v any) (any, error) {
	switch n := record.Normalize(v).(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return nil, unexpected(v)
	}
}

func (floatCodec) decode(raw any) (any, error) {
	switch r := raw.(type) {
	case nil:
		return float64(0), nil
	case float64:
		return r, nil
	case int64:
		return float64(r), nil
	case string:
		return parseFloat(r)
	case []byte:
		return parseFloat(string(r))
	default:
		return nil, unexpected(raw)
	}
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("parse float %q: %w", s, err)
	}
	return f, nil
}

type boolCodec struct{}

func (boolCodec) encode(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, unexpected(v)
	}
	if b {
		return int64(1), nil
	}
	return int64(0), nil
}

func (boolCodec) decode(raw any) (any, error) {
	switch r := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return r, nil
	case int64:
		return r != 0, nil
	case float64:
		return r != 0, nil
	case string:
		return r != "" && r != "0", nil
	case []byte:
		return len(r) > 0 && string(r) != "0", nil
	default:
		return nil, unexpected(raw)
	}
}

type timeCodec struct{}

func (timeCodec) encode(v any) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		return nil, unexpected(v)
	}
	if IsMinDate(t) {
		return EmptyDate, nil
	}
	return t.UTC().Format(timeLayout), nil
}

func (timeCodec) decode(raw any) (any, error) {
	var s string
	switch r := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		if IsMinDate(r) {
			return time.Time{}, nil
		}
		return r.UTC(), nil
	case string:
		s = r
	case []byte:
		s = string(r)
	default:
		return nil, unexpected(raw)
	}
	if s == "" || s == EmptyDate {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse datetime %q: %w", s, err)
	}
	return t, nil
}

// IsMinDate reports whether t is the minimum date sentinel: the zero time,
// or midnight of January 1st of year 1 in any location.
func IsMinDate(t time.Time) bool {
	if t.IsZero() {
		return true
	}
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	return y == 1 && m == time.January && d == 1 && h == 0 && mi == 0 && s == 0
}

type enumCodec struct {
	enum *meta.Enum
}

func (c enumCodec) encode(v any) (any, error) {
	ev, ok := v.(meta.EnumValue)
	if !ok || ev.Enum != c.enum {
		return nil, unexpected(v)
	}
	return ev.Backing(), nil
}

// decode returns nil for values matching no case.
func (c enumCodec) decode(raw any) (any, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil || raw == "" {
		return nil, nil
	}
	if c.enum.Backing == meta.BackingNone {
		name, ok := raw.(string)
		if !ok {
			return nil, unexpected(raw)
		}
		if v, ok := c.enum.Case(name); ok {
			return v, nil
		}
		return nil, nil
	}
	if c.enum.Backing == meta.BackingInt {
		if s, ok := raw.(string); ok {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, nil
			}
			raw = n
		}
	}
	if v, ok := c.enum.FromBacking(raw); ok {
		return v, nil
	}
	return nil, nil
}

type jsonCodec struct{}

func (jsonCodec) encode(v any) (any, error) {
	o, ok := v.(*jsonobj.Object)
	if !ok || o == nil {
		return nil, unexpected(v)
	}
	return o.Raw(), nil
}

func (jsonCodec) decode(raw any) (any, error) {
	switch r := raw.(type) {
	case nil:
		return jsonobj.New(), nil
	case string:
		return jsonobj.Parse(r)
	case []byte:
		return jsonobj.Parse(string(r))
	default:
		return nil, unexpected(raw)
	}
}

type refCodec struct {
	typ      string
	resolver Resolver
}

func (c refCodec) encode(v any) (any, error) {
	e, ok := v.(*record.Entity)
	if !ok || e == nil || e.Type() != c.typ {
		return nil, unexpected(v)
	}
	key, err := c.resolver.ReferenceKey(e)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return EmptyKey(), nil
	}
	return key, nil
}

func (c refCodec) decode(raw any) (any, error) {
	var key []byte
	switch r := raw.(type) {
	case nil:
	case []byte:
		key = r
	case string:
		key = []byte(r)
	default:
		return nil, unexpected(raw)
	}
	if IsEmptyKey(key) {
		key = nil
	} else {
		key = append([]byte(nil), key...)
	}
	return c.resolver.Reference(c.typ, key)
}

func unexpected(v any) error {
	return fmt.Errorf("unexpected value of type %T: %w", v, ErrUnsupportedType)
}
