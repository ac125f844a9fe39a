package credential

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const createTable = `CREATE TABLE IF NOT EXISTS credentials (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// SQLiteStore keeps credentials in a key/value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to open database: %w", err)}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("database ping failed: %w", err)}
	}
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, &StoreError{Op: "open", Err: fmt.Errorf("failed to create table: %w", err)}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM credentials WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO credentials (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Delete(keys ...string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	for _, k := range keys {
		if _, err := tx.Exec("DELETE FROM credentials WHERE key = ?", k); err != nil {
			tx.Rollback()
			return &StoreError{Op: "delete", Key: k, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
