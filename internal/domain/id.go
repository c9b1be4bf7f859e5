package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ID identifies both collections and cards. It is always a non-negative
// integer once normalized.
type ID int64

var digits = regexp.MustCompile(`^[+-]?[0-9]+$`)

// ParseID normalizes an integer or an integer-valued string into an ID.
// Floats are accepted only when they hold an exact non-negative integer.
func ParseID(v any) (ID, error) {
	switch x := v.(type) {
	case ID:
		return checkID(int64(x))
	case int:
		return checkID(int64(x))
	case int32:
		return checkID(int64(x))
	case int64:
		return checkID(x)
	case uint:
		return checkUnsigned(uint64(x))
	case uint32:
		return ID(x), nil
	case uint64:
		return checkUnsigned(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || x < 0 || x >= math.MaxInt64 {
			return 0, fmt.Errorf("id %v is not a non-negative integer: %w", x, ErrValidation)
		}
		return ID(x), nil
	case json.Number:
		return ParseID(string(x))
	case string:
		return parseIDString(x)
	default:
		return 0, fmt.Errorf("id of type %T: %w", v, ErrValidation)
	}
}

// MustParseID is ParseID for constants known to be valid.
func MustParseID(v any) ID {
	id, err := ParseID(v)
	if err != nil {
		panic(err)
	}
	return id
}

func parseIDString(s string) (ID, error) {
	if !digits.MatchString(s) {
		return 0, fmt.Errorf("id %q is not an integer: %w", s, ErrValidation)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q: %v: %w", s, err, ErrValidation)
	}
	return checkID(n)
}

func checkID(n int64) (ID, error) {
	if n < 0 {
		return 0, fmt.Errorf("id %d is negative: %w", n, ErrValidation)
	}
	return ID(n), nil
}

func checkUnsigned(n uint64) (ID, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("id %d is out of range: %w", n, ErrValidation)
	}
	return ID(n), nil
}

// Int64 returns the canonical integer form.
func (id ID) Int64() int64 { return int64(id) }

func (id ID) String() string { return strconv.FormatInt(int64(id), 10) }

// MarshalJSON writes the ID as a JSON number.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalJSON accepts either a JSON number or an integer string.
func (id *ID) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("id: %v: %w", err, ErrValidation)
	}
	parsed, err := ParseID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
