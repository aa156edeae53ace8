package storage

import (
	"database/sql"
	"errors"
	"time"
)

// KVSet stores value under key.
func (db *DB) KVSet(key, value string) error {
	_, err := db.Exec(
		"INSERT OR REPLACE INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)",
		key, value, time.Now(),
	)
	return err
}

// KVGet returns the value stored under key.
func (db *DB) KVGet(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// KVList returns the pairs whose key has prefix. Keys keep the prefix.
func (db *DB) KVList(prefix string) (map[string]string, error) {
	rows, err := db.Query(
		"SELECT key, value FROM kv_store WHERE substr(key, 1, ?) = ?",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, rows.Err()
}

// KVCount counts the keys under prefix.
func (db *DB) KVCount(prefix string) (int, error) {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM kv_store WHERE substr(key, 1, ?) = ?",
		len(prefix), prefix,
	).Scan(&n)
	return n, err
}

// KVReplacePrefix atomically swaps every key under prefix for entries.
// Keys in entries are stored as prefix+key.
func (db *DB) KVReplacePrefix(prefix string, entries map[string]string) error {
	return db.WithTx(func(tx *Tx) error {
		if _, err := tx.Exec("DELETE FROM kv_store WHERE substr(key, 1, ?) = ?", len(prefix), prefix); err != nil {
			return err
		}
		stmt, err := tx.Prepare("INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for k, v := range entries {
			if _, err := stmt.Exec(prefix+k, v, now); err != nil {
				return err
			}
		}
		return nil
	})
}
