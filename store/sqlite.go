package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// SqliteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	records(collection, id, data)   PRIMARY KEY (collection, id), ordered by rowid
//	sequences(collection, last_id)  PRIMARY KEY (collection)
//
// The database is driven through a single connection, so statements never
// contend for the SQLite write lock.
type SqliteStore struct {
	db    *sql.DB
	sb    sq.StatementBuilderType
	locks keyedMutex
	log   *slog.Logger
}

// NewSqliteStore opens (or creates) the database at dbPath. The caller must
// import a driver registered as "sqlite3".
func NewSqliteStore(dbPath string, opts ...Option) (*SqliteStore, error) {
	o := buildOptions(opts)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sequences (
		collection TEXT PRIMARY KEY,
		last_id INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		log: o.logger,
	}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) open(ctx context.Context, collection string) (func(), error) {
	if err := ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.locks.lock(collection), nil
}

func (s *SqliteStore) List(ctx context.Context, collection string) ([]Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := s.queryRecords(ctx, collection)
	if err != nil {
		s.log.Warn("collection unreadable, treating as empty",
			"collection", collection, "error", err)
		return []Record{}, nil
	}
	return records, nil
}

func (s *SqliteStore) queryRecords(ctx context.Context, collection string) ([]Record, error) {
	query, args, err := s.sb.Select("id", "data").
		From("records").
		Where(sq.Eq{"collection": collection}).
		OrderBy("rowid").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var id int64
		var raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(id, raw)
		if err != nil {
			s.log.Warn("skipping corrupt record",
				"collection", collection, "id", id, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SqliteStore) Get(ctx context.Context, collection, id string) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	query, args, err := s.sb.Select("data").
		From("records").
		Where(sq.Eq{"collection": collection, "id": want}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("record unreadable, treating as missing",
				"collection", collection, "id", want, "error", err)
		}
		return nil, ErrNotFound
	}
	rec, err := decodeRecord(want, raw)
	if err != nil {
		s.log.Warn("record corrupt, treating as missing",
			"collection", collection, "id", want, "error", err)
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *SqliteStore) Insert(ctx context.Context, collection string, fields Record) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	id, err := s.nextID(ctx, tx, collection)
	if err != nil {
		return nil, err
	}
	rec := compose(id, fields)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	query, args, err := s.sb.Insert("records").
		Columns("collection", "id", "data").
		Values(collection, id, string(data)).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert into %q: %w", collection, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SqliteStore) Replace(ctx context.Context, collection, id string, fields Record) (Record, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return nil, ErrNotFound
	}
	rec := compose(want, fields)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	query, args, err := s.sb.Update("records").
		Set("data", string(data)).
		Where(sq.Eq{"collection": collection, "id": want}).
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replace in %q: %w", collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection, id string) error {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return err
	}
	defer unlock()

	want, ok := ParseID(id)
	if !ok {
		return ErrNotFound
	}
	query, args, err := s.sb.Delete("records").
		Where(sq.Eq{"collection": collection, "id": want}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete from %q: %w", collection, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every record and registers the collection in the
// sequences table so it keeps showing up in ListCollections.
func (s *SqliteStore) DeleteAll(ctx context.Context, collection string) error {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query, args, err := s.sb.Delete("records").
		Where(sq.Eq{"collection": collection}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear %q: %w", collection, err)
	}
	query, args, err = s.sb.Insert("sequences").
		Columns("collection", "last_id").
		Values(collection, 0).
		Suffix("ON CONFLICT(collection) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("register %q: %w", collection, err)
	}
	return tx.Commit()
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT collection FROM sequences UNION SELECT collection FROM records ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SqliteStore) Next(ctx context.Context, collection string) (int64, error) {
	unlock, err := s.open(ctx, collection)
	if err != nil {
		return 0, err
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	id, err := s.nextID(ctx, tx, collection)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (s *SqliteStore) Current(ctx context.Context, collection string) (int64, error) {
	if err := ValidateCollection(collection); err != nil {
		return 0, err
	}
	query, args, err := s.sb.Select("last_id").
		From("sequences").
		Where(sq.Eq{"collection": collection}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var last int64
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return last, err
}

// nextID advances the collection's counter inside tx.
func (s *SqliteStore) nextID(ctx context.Context, tx *sql.Tx, collection string) (int64, error) {
	query, args, err := s.sb.Insert("sequences").
		Columns("collection", "last_id").
		Values(collection, 1).
		Suffix("ON CONFLICT(collection) DO UPDATE SET last_id = last_id + 1").
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("advance id sequence for %q: %w", collection, err)
	}
	query, args, err = s.sb.Select("last_id").
		From("sequences").
		Where(sq.Eq{"collection": collection}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("read id sequence for %q: %w", collection, err)
	}
	return id, nil
}

func decodeRecord(id int64, raw string) (Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		rec = Record{}
	}
	rec["id"] = id
	return rec, nil
}
