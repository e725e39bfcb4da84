package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// FileSequencer keeps one plain-integer counter file per collection under
// the index directory. Allocations on the same collection are serialized.
type FileSequencer struct {
	blobs  blobStore
	layout layout
	locks  keyedMutex
	log    *slog.Logger
}

// NewFileSequencer returns a sequencer storing counters below dir on fsys.
func NewFileSequencer(fsys afero.Fs, dir string, opts ...Option) *FileSequencer {
	o := buildOptions(opts)
	return &FileSequencer{
		blobs:  blobStore{fs: fsys},
		layout: layout{root: dir},
		log:    o.logger,
	}
}

func (s *FileSequencer) Next(ctx context.Context, collection string) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(collection)
	defer unlock()

	current, err := s.readForWrite(collection)
	if err != nil {
		return 0, err
	}
	next := current + 1
	path := s.layout.sequencePath(collection)
	if err := s.blobs.write(path, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, fmt.Errorf("persist id sequence for %q: %w", collection, err)
	}
	return next, nil
}

func (s *FileSequencer) Current(ctx context.Context, collection string) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(collection)
	defer unlock()
	return s.read(collection), nil
}

// readForWrite is read but surfaces I/O errors other than a missing file.
func (s *FileSequencer) readForWrite(collection string) (int64, error) {
	data, err := s.blobs.read(s.layout.sequencePath(collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: id sequence for %q: %v", ErrStorageUnreadable, collection, err)
	}
	return parseCounter(data), nil
}

// read returns the persisted counter. Missing, empty, or non-numeric
// counter files count as 0.
func (s *FileSequencer) read(collection string) int64 {
	data, err := s.blobs.read(s.layout.sequencePath(collection))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("id sequence unreadable, reporting 0",
				"collection", collection, "error", err)
		}
		return 0
	}
	return parseCounter(data)
}

// parseCounter treats empty, non-numeric, or negative contents as 0.
func parseCounter(data []byte) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
