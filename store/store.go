// Package store defines the collection store interface and its backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrNotFound is returned when no record in the collection has the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidCollection is returned for collection names outside the safe character set.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrDataDirLocked is returned when another process already owns the data directory.
	ErrDataDirLocked = errors.New("data directory is in use by another process")

	// ErrStorageUnreadable is returned by writes when the existing collection
	// cannot be read or parsed. Reads treat the same condition as empty.
	ErrStorageUnreadable = errors.New("collection storage unreadable")
)

// Record is a single JSON object in a collection. The "id" field is always
// an int64 once the record has passed through a Store.
type Record map[string]any

// ID returns the record's id normalized to int64.
func (r Record) ID() (int64, bool) {
	return NormalizeID(r["id"])
}

// Sequencer hands out per-collection identifiers that are never reused.
type Sequencer interface {
	// Next durably advances the collection's counter and returns the new value.
	Next(ctx context.Context, collection string) (int64, error)

	// Current returns the last id issued for a collection, or 0.
	Current(ctx context.Context, collection string) (int64, error)
}

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection is an ordered
// sequence of records keyed by an integer id.
type Store interface {
	Sequencer

	// List returns every record in insertion order. Missing or unreadable
	// storage yields an empty slice rather than an error.
	List(ctx context.Context, collection string) ([]Record, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)

	// Insert allocates a fresh id and appends {id, ...fields}.
	Insert(ctx context.Context, collection string, fields Record) (Record, error)

	// Replace overwrites the record with the given id by {id, ...fields}.
	Replace(ctx context.Context, collection, id string, fields Record) (Record, error)

	// Delete removes the record with the given id.
	Delete(ctx context.Context, collection, id string) error

	// DeleteAll empties the collection. The id sequence is left untouched.
	DeleteAll(ctx context.Context, collection string) error

	// ListCollections returns the sorted names of all materialized collections.
	ListCollections(ctx context.Context) ([]string, error)

	Close() error
}

// ParseID converts a caller-supplied id to the canonical int64 form.
// Integral decimal forms such as "5.0" are accepted so that they match 5.
// Hex, underscore, and inf/nan spellings are not.
func ParseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	if s == "" || strings.Trim(s, "0123456789+-.eE") != "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return floatID(f)
}

// NormalizeID converts an id value of any JSON-compatible type to int64.
func NormalizeID(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case float64:
		return floatID(t)
	case json.Number:
		return ParseID(t.String())
	case string:
		return ParseID(t)
	default:
		return 0, false
	}
}

func floatID(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// compose builds the stored form of a record: the caller's fields with id
// forced to the given value.
func compose(id int64, fields Record) Record {
	rec := make(Record, len(fields)+1)
	for k, v := range fields {
		rec[k] = v
	}
	rec["id"] = id
	return rec
}

// indexOf returns the position of the record whose id equals want, or -1.
func indexOf(records []Record, want int64) int {
	for i, rec := range records {
		if id, ok := rec.ID(); ok && id == want {
			return i
		}
	}
	return -1
}
