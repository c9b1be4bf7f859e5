// Package codec translates owned domain values to and from a versioned stored
// form. Every stored record is tagged with the schema version it was written
// with; old versions stay decodable forever while new records are always
// written with the current version.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Stored is the tagged representation written to a backend.
type Stored struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Schema decodes one historical version of a record into the owned type T.
type Schema[T any] struct {
	Version int
	decode  func(json.RawMessage) (T, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Define registers the stored shape V for a version along with its
// translation into T. V is decoded strictly (unknown fields are rejected) and
// checked against its `validate` struct tags before translation.
func Define[V, T any](version int, from func(V) (T, error)) Schema[T] {
	return Schema[T]{
		Version: version,
		decode: func(raw json.RawMessage) (T, error) {
			var zero T
			var v V
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&v); err != nil {
				return zero, err
			}
			if isStruct(v) {
				if err := validate.Struct(v); err != nil {
					return zero, err
				}
			}
			return from(v)
		},
	}
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// Codec serializes T with its current schema and deserializes every known
// schema version.
type Codec[T any] struct {
	kind    string
	current int
	encode  func(T) (any, error)
	schemas map[int]Schema[T]
}

// New builds a codec for a record kind. to converts the owned value into the
// current version's stored shape V. New panics when the schema set is
// inconsistent since that is a programming error.
func New[T, V any](kind string, current int, to func(T) V, schemas ...Schema[T]) *Codec[T] {
	c := &Codec[T]{
		kind:    kind,
		current: current,
		encode:  func(v T) (any, error) { return to(v), nil },
		schemas: make(map[int]Schema[T], len(schemas)),
	}
	for _, s := range schemas {
		if s.Version <= 0 {
			panic(fmt.Sprintf("codec %s: version %d must be positive", kind, s.Version))
		}
		if _, dup := c.schemas[s.Version]; dup {
			panic(fmt.Sprintf("codec %s: duplicate version %d", kind, s.Version))
		}
		c.schemas[s.Version] = s
	}
	if _, ok := c.schemas[current]; !ok {
		panic(fmt.Sprintf("codec %s: no schema for current version %d", kind, current))
	}
	return c
}

// Kind names the record kind, used in error messages.
func (c *Codec[T]) Kind() string { return c.kind }

// Current is the version new records are written with.
func (c *Codec[T]) Current() int { return c.current }

// Versions lists every decodable version in ascending order.
func (c *Codec[T]) Versions() []int {
	out := make([]int, 0, len(c.schemas))
	for v := range c.schemas {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Serialize converts v into its current stored form.
func (c *Codec[T]) Serialize(v T) (Stored, error) {
	shaped, err := c.encode(v)
	if err != nil {
		return Stored{}, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	data, err := json.Marshal(shaped)
	if err != nil {
		return Stored{}, fmt.Errorf("encode %s: %w", c.kind, err)
	}
	return Stored{Version: c.current, Data: data}, nil
}

// Deserialize converts a stored record of any known version into T.
func (c *Codec[T]) Deserialize(s Stored) (T, error) {
	var zero T
	schema, ok := c.schemas[s.Version]
	if !ok {
		return zero, fmt.Errorf("decode %s: unknown version %d: %w", c.kind, s.Version, domain.ErrValidation)
	}
	if len(bytes.TrimSpace(s.Data)) == 0 || bytes.Equal(bytes.TrimSpace(s.Data), []byte("null")) {
		return zero, fmt.Errorf("decode %s v%d: missing data: %w", c.kind, s.Version, domain.ErrValidation)
	}
	v, err := schema.decode(s.Data)
	if err != nil {
		return zero, fmt.Errorf("decode %s v%d: %v: %w", c.kind, s.Version, err, domain.ErrValidation)
	}
	return v, nil
}

// Marshal serializes v to the JSON text of its stored form.
func (c *Codec[T]) Marshal(v T) ([]byte, error) {
	s, err := c.Serialize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Unmarshal parses stored JSON text. The envelope must carry both a version
// and data; anything else is rejected rather than coerced.
func (c *Codec[T]) Unmarshal(b []byte) (T, error) {
	var zero T
	var envelope struct {
		Version *int            `json:"version"`
		Data    json.RawMessage `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&envelope); err != nil {
		return zero, fmt.Errorf("decode %s: malformed record: %v: %w", c.kind, err, domain.ErrValidation)
	}
	if envelope.Version == nil {
		return zero, fmt.Errorf("decode %s: untagged record: %w", c.kind, domain.ErrValidation)
	}
	return c.Deserialize(Stored{Version: *envelope.Version, Data: envelope.Data})
}
