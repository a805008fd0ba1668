package fields

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownField   = errors.New("unknown field")
	ErrDuplicateField = errors.New("duplicate field")
	ErrInvalidValue   = errors.New("invalid field value")
)

// Kind describes how a field value is coerced when it is set
type Kind string

const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindLink   Kind = "link"
	KindTable  Kind = "table"
)

// Definition declares a field of a record
type Definition struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Group string `json:"group,omitempty" yaml:"group,omitempty"`
	Kind  Kind   `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Field is a definition together with its current value
type Field struct {
	Definition
	Value any  `json:"value,omitempty"`
	Set   bool `json:"set"`
}

// Store holds the named values of one record being edited.
// A store created without definitions accepts any field name.
type Store struct {
	defs   map[string]Definition
	order  []string
	values map[string]any
	mu     sync.RWMutex
}

// NewStore creates a store. Definitions fix the set of accepted names.
func NewStore(defs ...Definition) (*Store, error) {
	s := &Store{
		defs:   make(map[string]Definition, len(defs)),
		order:  make([]string, 0, len(defs)),
		values: make(map[string]any),
	}

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("field definition without name: %w", ErrUnknownField)
		}
		if _, exists := s.defs[def.Name]; exists {
			return nil, fmt.Errorf("field %s: %w", def.Name, ErrDuplicateField)
		}
		if def.Label == "" {
			def.Label = Label(def.Name)
		}
		if def.Kind == "" {
			def.Kind = KindNumber
		}
		s.defs[def.Name] = def
		s.order = append(s.order, def.Name)
	}

	return s, nil
}

// Has reports whether name may be stored
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.has(name)
}

func (s *Store) has(name string) bool {
	if len(s.defs) == 0 {
		return name != ""
	}
	_, ok := s.defs[name]
	return ok
}

// Get returns the value of name and whether it is set
func (s *Store) Get(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores value under name after coercing it to the field kind.
// A nil value unsets the field.
func (s *Store) Set(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(name, value)
}

// SetAll stores several values atomically: either every value is accepted
// or none is written.
func (s *Store) SetAll(values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coerced := make(map[string]any, len(values))
	for name, value := range values {
		if !s.has(name) {
			return fmt.Errorf("field %s: %w", name, ErrUnknownField)
		}
		v, err := coerce(s.defs[name].Kind, value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		coerced[name] = v
	}

	for name, v := range coerced {
		if v == nil {
			delete(s.values, name)
			continue
		}
		s.values[name] = v
	}
	return nil
}

func (s *Store) set(name string, value any) error {
	if !s.has(name) {
		return fmt.Errorf("field %s: %w", name, ErrUnknownField)
	}

	v, err := coerce(s.defs[name].Kind, value)
	if err != nil {
		return fmt.Errorf("field %s: %w", name, err)
	}

	if v == nil {
		delete(s.values, name)
		return nil
	}
	s.values[name] = v
	return nil
}

// Unset removes the value of name
func (s *Store) Unset(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// IsPresent reports whether name is set to a non-empty value.
// Zero numbers, blank strings, false and empty collections count as missing.
func (s *Store) IsPresent(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return ok && !IsEmpty(v)
}

// Missing returns the names, in the given order, that are not present
func (s *Store) Missing(names []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var missing []string
	for _, name := range names {
		if v, ok := s.values[name]; !ok || IsEmpty(v) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Snapshot returns a copy of every set value
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// SnapshotOf returns a copy of the set values among names
func (s *Store) SnapshotOf(names []string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := s.values[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Definition returns the definition of name. Open stores synthesize one.
func (s *Store) Definition(name string) (Definition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if def, ok := s.defs[name]; ok {
		return def, true
	}
	if len(s.defs) == 0 && name != "" {
		return Definition{Name: name, Label: Label(name)}, true
	}
	return Definition{}, false
}

// Fields lists every field in declaration order. Open stores list set
// values sorted by name.
func (s *Store) Fields() []Field {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.order
	if len(s.defs) == 0 {
		names = sortedKeys(s.values)
	}

	out := make([]Field, 0, len(names))
	for _, name := range names {
		def, ok := s.defs[name]
		if !ok {
			def = Definition{Name: name, Label: Label(name)}
		}
		v, set := s.values[name]
		out = append(out, Field{Definition: def, Value: v, Set: set})
	}
	return out
}

// IsEmpty implements the "falsy means missing" rule
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		return !val
	case float64:
		return val == 0
	case float32:
		return val == 0
	case int:
		return val == 0
	case int64:
		return val == 0
	case int32:
		return val == 0
	case uint:
		return val == 0
	case uint64:
		return val == 0
	case decimal.Decimal:
		return val.IsZero()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

var nonNumeric = regexp.MustCompile(`[^\d.\-]`)

// ParseNumber converts a currency-formatted string such as "£1,250.50"
// into a float64.
func ParseNumber(s string) (float64, error) {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return 0, fmt.Errorf("%q is not a number: %w", s, ErrInvalidValue)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number: %w", s, ErrInvalidValue)
	}
	return d.InexactFloat64(), nil
}

func coerce(kind Kind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case decimal.Decimal:
		return v.InexactFloat64(), nil
	case string:
		if kind != KindNumber {
			return v, nil
		}
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return ParseNumber(v)
	}
	return value, nil
}

// Label turns a field name into a human-readable label:
// "main_asking_price" becomes "Main Asking Price".
func Label(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
