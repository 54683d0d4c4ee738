// Package codec maps logical field values onto SQL columns and back.
//
// Every logical type resolves to a TypeInfo carrying the alias written into
// discriminator columns, the column suffix used inside composite fields and
// the encoder/decoder pair for the type. TypeInfos are resolved once per
// type and cached.
//
// A field with a single type is stored in one column named after the field.
// A field declaring a union of types is stored in a discriminator column
// (<field>_t) holding the alias of the active type, plus one column per
// suffix. Inactive columns hold their default value.
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/blazeorm/internal/meta"
	"github.com/roach88/blazeorm/internal/record"
)

// Column suffixes inside composite fields.
const (
	SuffixType     = "_t"
	SuffixString   = "_s"
	SuffixNumber   = "_n"
	SuffixBool     = "_b"
	SuffixDatetime = "_d"
	SuffixEnum     = "_e"
	SuffixRef      = "_r"
	SuffixJSON     = "_json"
)

// Aliases of builtin types.
const (
	AliasNull     = "null"
	AliasString   = "string"
	AliasNumeric  = "numeric"
	AliasBoolean  = "boolean"
	AliasDatetime = "datetime"
	AliasJSON     = "json"
)

const (
	// EmptyDate is the stored form of the minimum date.
	EmptyDate = "0001-01-01 00:00:00"

	// KeySize is the width of a stored reference key.
	KeySize = 16

	// KeyType is the column type of stored reference keys.
	KeyType = "binary(16)"

	timeLayout = "2006-01-02 15:04:05"
)

// ErrUnsupportedType aliases meta.ErrUnsupportedType.
var ErrUnsupportedType = meta.ErrUnsupportedType

// ErrUnknownDiscriminator is returned when a composite column holds an alias
// the field does not declare.
var ErrUnknownDiscriminator = errors.New("unknown discriminator")

// EmptyKey returns the zero-filled key representing "no reference".
func EmptyKey() []byte {
	return make([]byte, KeySize)
}

// IsEmptyKey reports whether key is nil or the zero-filled sentinel.
func IsEmptyKey(key []byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}

// Resolver connects reference values to the identity map.
type Resolver interface {
	// Reference returns the tracked instance for a key without fetching
	// it. A nil key yields the null reference of the type.
	Reference(typ string, key []byte) (*record.Entity, error)
	// ReferenceKey returns the binary key of a reference record, or nil
	// for the null reference.
	ReferenceKey(e *record.Entity) ([]byte, error)
}

// TypeInfo is the resolved storage description of one logical type.
type TypeInfo struct {
	Type   meta.Type
	Alias  string
	Suffix string

	impl kindCodec
}

// Encode converts a logical value to its stored form.
func (ti *TypeInfo) Encode(v any) (any, error) {
	out, err := ti.impl.encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ti.Type, err)
	}
	return out, nil
}

// Decode converts a stored value to its logical form.
func (ti *TypeInfo) Decode(raw any) (any, error) {
	out, err := ti.impl.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ti.Type, err)
	}
	return out, nil
}

// Codec resolves and caches TypeInfos.
type Codec struct {
	registry *meta.Registry
	resolver Resolver

	mu    sync.Mutex
	cache map[string]*TypeInfo
}

// New returns a codec resolving reference aliases from registry and
// reference values through resolver.
func New(registry *meta.Registry, resolver Resolver) *Codec {
	return &Codec{
		registry: registry,
		resolver: resolver,
		cache:    make(map[string]*TypeInfo),
	}
}

// Resolve returns the TypeInfo of t.
func (c *Codec) Resolve(t meta.Type) (*TypeInfo, error) {
	cacheKey := t.Kind.String() + ":" + t.Name

	c.mu.Lock()
	defer c.mu.Unlock()
	if ti, ok := c.cache[cacheKey]; ok {
		return ti, nil
	}

	ti := &TypeInfo{Type: t}
	switch t.Kind {
	case meta.KindNull:
		ti.Alias, ti.Suffix, ti.impl = AliasNull, SuffixType, nullCodec{}
	case meta.KindString:
		ti.Alias, ti.Suffix, ti.impl = AliasString, SuffixString, stringCodec{}
	case meta.KindInt:
		ti.Alias, ti.Suffix, ti.impl = AliasNumeric, SuffixNumber, intCodec{}
	case meta.KindFloat:
		ti.Alias, ti.Suffix, ti.impl = AliasNumeric, SuffixNumber, floatCodec{}
	case meta.KindBool:
		ti.Alias, ti.Suffix, ti.impl = AliasBoolean, SuffixBool, boolCodec{}
	case meta.KindTime:
		ti.Alias, ti.Suffix, ti.impl = AliasDatetime, SuffixDatetime, timeCodec{}
	case meta.KindJSON:
		ti.Alias, ti.Suffix, ti.impl = AliasJSON, SuffixJSON, jsonCodec{}
	case meta.KindEnum:
		if t.Enum == nil {
			return nil, fmt.Errorf("enum %s has no definition: %w", t.Name, ErrUnsupportedType)
		}
		ti.Alias, ti.impl = t.Enum.AliasName(), enumCodec{enum: t.Enum}
		switch t.Enum.Backing {
		case meta.BackingNone:
			ti.Suffix = SuffixEnum
		case meta.BackingInt:
			ti.Suffix = SuffixNumber
		case meta.BackingString:
			ti.Suffix = SuffixString
		default:
			return nil, fmt.Errorf("enum %s backing %d: %w", t.Name, t.Enum.Backing, ErrUnsupportedType)
		}
	case meta.KindRef:
		rec, err := c.registry.Lookup(t.Name)
		if err != nil {
			return nil, fmt.Errorf("reference %s: %w", t.Name, ErrUnsupportedType)
		}
		ti.Alias, ti.Suffix, ti.impl = rec.AliasName(), SuffixRef, refCodec{typ: t.Name, resolver: c.resolver}
	default:
		return nil, fmt.Errorf("type %s: %w", t, ErrUnsupportedType)
	}

	c.cache[cacheKey] = ti
	return ti, nil
}

// EncodeParam encodes a query parameter by its runtime type.
func (c *Codec) EncodeParam(v any) (any, error) {
	switch val := record.Normalize(v).(type) {
	case nil:
		return nil, nil
	case []byte:
		return val, nil
	case string, int64, float64:
		return val, nil
	}
	t, err := TypeOf(v)
	if err != nil {
		return nil, err
	}
	ti, err := c.Resolve(t)
	if err != nil {
		return nil, err
	}
	return ti.Encode(v)
}
