package store

import (
	"fmt"
	"path/filepath"
	"regexp"
)

const (
	recordExt    = ".json"
	indexDir     = "index"
	sequenceName = "_ids.json"
	lockFileName = ".lock"
)

var collectionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateCollection reports whether name is usable as a collection name.
// Names double as file names, so only letters, digits, '_' and '-' are allowed.
func ValidateCollection(name string) error {
	if !collectionPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}

// layout maps collection names to backing file paths.
//
//	data_dir/
//	  notes.json            # "notes" records
//	  index/notes_ids.json  # "notes" id sequence
type layout struct {
	root string
}

func (l layout) recordsPath(collection string) string {
	return filepath.Join(l.root, collection+recordExt)
}

func (l layout) sequencePath(collection string) string {
	return filepath.Join(l.root, indexDir, collection+sequenceName)
}
