package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
)

// JsonFileStore stores each collection as a JSON array file and its id
// sequence as a separate counter file.
//
// Layout:
//
//	data_dir/
//	  .lock                 # held while a store owns the directory
//	  notes.json            # "notes" collection
//	  index/notes_ids.json  # last id issued to "notes"
//
// Every mutation holds the collection's lock for the whole
// read-modify-write and rewrites the file in full.
type JsonFileStore struct {
	fs      afero.Fs
	blobs   blobStore
	layout  layout
	seq     *FileSequencer
	locks   keyedMutex
	log     *slog.Logger
	dirLock *flock.Flock
}

// NewJsonFileStore opens a store rooted at dir on the local filesystem.
// It fails with ErrDataDirLocked if another process holds the directory,
// unless opened with ReadOnly.
func NewJsonFileStore(dir string, opts ...Option) (*JsonFileStore, error) {
	if buildOptions(opts).readOnly {
		return NewJsonFileStoreFs(afero.NewReadOnlyFs(afero.NewOsFs()), dir, opts...), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dirLock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := dirLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrDataDirLocked, dir)
	}
	s := NewJsonFileStoreFs(afero.NewOsFs(), dir, opts...)
	s.dirLock = dirLock
	return s, nil
}

// NewMemoryStore keeps everything in an in-memory filesystem. Data is lost
// on restart.
func NewMemoryStore(opts ...Option) *JsonFileStore {
	return NewJsonFileStoreFs(afero.NewMemMapFs(), "/data", opts...)
}

// NewJsonFileStoreFs builds a store on an arbitrary afero filesystem.
// Directories are created lazily on first write.
func NewJsonFileStoreFs(fsys afero.Fs, dir string, opts ...Option) *JsonFileStore {
	o := buildOptions(opts)
	return &JsonFileStore{
		fs:     fsys,
		blobs:  blobStore{fs: fsys},
		layout: layout{root: dir},
		seq:    NewFileSequencer(fsys, dir, opts...),
		log:    o.logger,
	}
}

func (s *JsonFileStore) Close() error {
	if s.dirLock == nil {
		return nil
	}
	return s.dirLock.Unlock()
}

// load reads a collection for List and Get. Any failure degrades to an
// empty collection.
func (s *JsonFileStore) load(collection string) []Record {
	data, err := s.blobs.read(s.layout.recordsPath(collection))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("collection unreadable, treating as empty",
				"collection", collection, "error", err)
		}
		return []Record{}
	}
	records, _, err := decodeRecords(data)
	if err != nil {
		s.log.Warn("collection corrupt, treating as empty",
			"collection", collection, "error", err)
		return []Record{}
	}
	return records
}

// loadForWrite reads a collection ahead of a rewrite. Only a missing file
// counts as empty; unreadable or corrupt contents fail the write so the
// file is left as it was.
func (s *JsonFileStore) loadForWrite(collection string) ([]Record, error) {
	data, err := s.blobs.read(s.layout.recordsPath(collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: read %q: %v", ErrStorageUnreadable, collection, err)
	}
	records, skipped, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", ErrStorageUnreadable, collection, err)
	}
	if skipped > 0 {
		return nil, fmt.Errorf("%w: %q holds %d non-object elements",
			ErrStorageUnreadable, collection, skipped)
	}
	return records, nil
}

func (s *JsonFileStore) save(collection string, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode collection %q: %w", collection, err)
	}
	if err := s.blobs.write(s.layout.recordsPath(collection), data); err != nil {
		return fmt.Errorf("save collection %q: %w", collection, err)
	}
	return nil
}

// open validates the collection and takes its lock.
func (s *JsonFileStore) open(ctx context.Context, collection string) (func(), error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.locks.lock(collection), nil
}

func (s *JsonFileStore) List(ctx context.Context, collection string) ([]Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.load(collection), nil
}

func (s *JsonFileStore) Get(ctx context.Context, collection, id string) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	records := s.load(collection)
	i := indexOf(records, want)
	if i < 0 {
		return nil, ErrNotFound
	}
	return records[i], nil
}

func (s *JsonFileStore) Insert(ctx context.Context, collection string, fields Record) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := s.loadForWrite(collection)
	if err != nil {
		return nil, err
	}
	id, err := s.seq.Next(ctx, collection)
	if err != nil {
		return nil, err
	}
	rec := compose(id, fields)
	if err := s.save(collection, append(records, rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *JsonFileStore) Replace(ctx context.Context, collection, id string, fields Record) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	records, err := s.loadForWrite(collection)
	if err != nil {
		return nil, err
	}
	i := indexOf(records, want)
	if i < 0 {
		return nil, ErrNotFound
	}
	rec := compose(want, fields)
	records[i] = rec
	if err := s.save(collection, records); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *JsonFileStore) Delete(ctx context.Context, collection, id string) error {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return ErrNotFound
	}
	records, err := s.loadForWrite(collection)
	if err != nil {
		return err
	}
	i := indexOf(records, want)
	if i < 0 {
		return ErrNotFound
	}
	return s.save(collection, append(records[:i], records[i+1:]...))
}

func (s *JsonFileStore) DeleteAll(ctx context.Context, collection string) error {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(collection, []Record{})
}

func (s *JsonFileStore) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(s.fs, s.layout.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), recordExt)
		if !ok || ValidateCollection(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Next(ctx context.Context, collection string) (int64, error) {
	return s.seq.Next(ctx, collection)
}

func (s *JsonFileStore) Current(ctx context.Context, collection string) (int64, error) {
	return s.seq.Current(ctx, collection)
}

// decodeRecords parses a JSON array of objects. Numbers are kept as
// json.Number and ids are normalized to int64. Non-object elements are
// dropped and counted in skipped.
func decodeRecords(data []byte) (records []Record, skipped int, err error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, 0, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, 0, err
	}
	records = make([]Record, 0, len(raw))
	for _, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		rec := Record(obj)
		if id, ok := rec.ID(); ok {
			rec["id"] = id
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func encodeRecords(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.MarshalIndent(records, "", "  ")
}
