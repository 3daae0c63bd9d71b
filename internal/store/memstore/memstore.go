// Package memstore provides an in-process store.Store with declared unique keys.
package memstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/at-ishikawa/lessonquiz/internal/store"
)

// DefaultUniqueKeys mirrors the unique constraints of schemas/migrations.
var DefaultUniqueKeys = map[string][][]string{
	store.CollectionHearts:          {{"learner_id"}},
	store.CollectionAttempts:        {{"id"}, {"open_key"}},
	store.CollectionRewards:         {{"id"}, {"learner_id", "lesson_id"}},
	store.CollectionProfiles:        {{"id"}},
	store.CollectionAchievements:    {{"learner_id", "badge"}},
	store.CollectionLessons:         {{"id"}},
	store.CollectionSections:        {{"id"}},
	store.CollectionSectionProgress: {{"learner_id", "section_id"}},
	store.CollectionQuizzes:         {{"id"}},
	store.CollectionQuestions:       {{"id"}},
}

// Store keeps collections in memory. A unique key never collides when any of its columns is NULL.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]store.Record
	uniqueKeys  map[string][][]string
}

// New creates an empty Store enforcing uniqueKeys; nil selects DefaultUniqueKeys.
func New(uniqueKeys map[string][][]string) *Store {
	if uniqueKeys == nil {
		uniqueKeys = DefaultUniqueKeys
	}
	return &Store{
		collections: make(map[string][]store.Record),
		uniqueKeys:  uniqueKeys,
	}
}

// Find returns copies of the matching rows.
func (s *Store) Find(_ context.Context, collection string, query store.Query) ([]store.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Record
	for _, row := range s.collections[collection] {
		if matches(row, query.Filters) {
			out = append(out, copyRecord(row))
		}
	}
	if len(query.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range query.Order {
				c := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Insert stores a copy of record, failing with store.ErrConflict on a unique key collision.
func (s *Store) Insert(_ context.Context, collection string, record store.Record) (store.Record, error) {
	if err := store.ValidateIdentifier(collection); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := copyRecord(record)
	if err := s.checkUnique(collection, row, -1); err != nil {
		return nil, err
	}
	s.collections[collection] = append(s.collections[collection], row)
	return copyRecord(row), nil
}

// Update patches every row matching filters atomically and returns the new rows.
func (s *Store) Update(_ context.Context, collection string, filters []store.Condition, patch store.Record) ([]store.Record, error) {
	if err := store.ValidateConditions(filters); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.collections[collection]
	updated := make(map[int]store.Record)
	for i, row := range rows {
		if !matches(row, filters) {
			continue
		}
		next := copyRecord(row)
		for k, v := range patch {
			next[k] = copyValue(v)
		}
		updated[i] = next
	}
	for i, next := range updated {
		if err := s.checkUniqueAgainst(collection, next, i, updated); err != nil {
			return nil, err
		}
	}

	indexes := make([]int, 0, len(updated))
	for i := range updated {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]store.Record, 0, len(indexes))
	for _, i := range indexes {
		rows[i] = updated[i]
		out = append(out, copyRecord(updated[i]))
	}
	return out, nil
}

// Len reports the number of rows in collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Store) checkUnique(collection string, row store.Record, skip int) error {
	return s.checkUniqueAgainst(collection, row, skip, nil)
}

// checkUniqueAgainst compares row with every other row, using pending versions where present.
func (s *Store) checkUniqueAgainst(collection string, row store.Record, skip int, pending map[int]store.Record) error {
	for _, columns := range s.uniqueKeys[collection] {
		key, ok := uniqueKey(row, columns)
		if !ok {
			continue
		}
		for i, other := range s.collections[collection] {
			if i == skip {
				continue
			}
			if p, ok := pending[i]; ok {
				other = p
			}
			otherKey, ok := uniqueKey(other, columns)
			if ok && otherKey == key {
				return fmt.Errorf("%s(%s): %w", collection, strings.Join(columns, ","), store.ErrConflict)
			}
		}
	}
	return nil
}

func uniqueKey(row store.Record, columns []string) (string, bool) {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		v, ok := row[c]
		if !ok || isNull(v) {
			return "", false
		}
		parts = append(parts, fmt.Sprint(normalize(v)))
	}
	return strings.Join(parts, "\x00"), true
}

func matches(row store.Record, filters []store.Condition) bool {
	for _, f := range filters {
		v := row[f.Column]
		switch f.Op {
		case store.OpEq:
			if isNull(v) || isNull(f.Value) || compare(v, f.Value) != 0 {
				return false
			}
		case store.OpIn:
			found := false
			for _, candidate := range f.Values {
				if !isNull(v) && compare(v, candidate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case store.OpIsNull:
			if !isNull(v) {
				return false
			}
		}
	}
	return true
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// normalize maps numbers to float64, times to UTC nanoseconds and dereferences pointers.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if t, ok := rv.Interface().(time.Time); ok {
		return float64(t.UTC().UnixNano())
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		if t, err := time.Parse(time.RFC3339Nano, rv.String()); err == nil {
			return float64(t.UTC().UnixNano())
		}
		return rv.String()
	}
	return rv.Interface()
}

// compare orders NULLs first, then numbers and strings by value.
func compare(a, b any) int {
	na, nb := normalize(a), normalize(b)
	switch {
	case na == nil && nb == nil:
		return 0
	case na == nil:
		return -1
	case nb == nil:
		return 1
	}
	switch x := na.(type) {
	case float64:
		if y, ok := nb.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := nb.(string); ok {
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := nb.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	}
	return strings.Compare(fmt.Sprint(na), fmt.Sprint(nb))
}

func copyRecord(r store.Record) store.Record {
	out := make(store.Record, len(r))
	for k, v := range r {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies maps and slices so callers never share state with the store.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyReflect(iter.Value()))
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyReflect(rv.Index(i)))
		}
		return out.Interface()
	}
	return v
}

func copyReflect(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}
	if v.Kind() == reflect.Interface && v.IsNil() {
		return v
	}
	copied := copyValue(v.Interface())
	if copied == nil {
		return reflect.Zero(v.Type())
	}
	return reflect.ValueOf(copied).Convert(v.Type())
}
