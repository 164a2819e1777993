package enhancement

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS enhanced_tools (
	name        TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	payload     TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// PersistentStore durably keeps {tool_name -> (EnhancedToolDefinition,
// fingerprint_at_generation)} across restarts (spec.md section 4.E
// persistent_store), mirroring the pack's writer/reader split for a
// small single-file SQLite database.
type PersistentStore struct {
	writer    *sql.DB
	reader    *sql.DB
	closeOnce sync.Once
}

// OpenStore opens (creating if needed) a SQLite database at path.
func OpenStore(path string) (*PersistentStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("enhancement: create store directory %s: %w", dir, err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("enhancement: open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite", dsn+"&_pragma=query_only(ON)")
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("enhancement: open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		reader.Close()
		return nil, fmt.Errorf("enhancement: create schema: %w", err)
	}

	return &PersistentStore{writer: writer, reader: reader}, nil
}

// Close closes both database handles. Safe to call more than once.
func (s *PersistentStore) Close() error {
	var firstErr error
	s.closeOnce.Do(func() {
		if err := s.writer.Close(); err != nil {
			firstErr = err
		}
		if err := s.reader.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

// LoadAll reads every stored enhancement, for Initialize to seed the
// in-memory cache.
func (s *PersistentStore) LoadAll() (map[string]cachedEnhancement, error) {
	rows, err := s.reader.Query(`SELECT name, fingerprint, payload FROM enhanced_tools`)
	if err != nil {
		return nil, fmt.Errorf("enhancement: load persistent store: %w", err)
	}
	defer rows.Close()

	out := make(map[string]cachedEnhancement)
	for rows.Next() {
		var name, fp, payload string
		if err := rows.Scan(&name, &fp, &payload); err != nil {
			return nil, fmt.Errorf("enhancement: scan persistent row: %w", err)
		}
		var enhanced EnhancedToolDefinition
		if err := json.Unmarshal([]byte(payload), &enhanced); err != nil {
			return nil, fmt.Errorf("enhancement: decode persisted %s: %w", name, err)
		}
		out[name] = cachedEnhancement{enhanced: enhanced, fingerprint: Fingerprint(fp)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enhancement: iterate persistent store: %w", err)
	}
	return out, nil
}

// Save upserts one enhancement with the fingerprint it was generated
// against.
func (s *PersistentStore) Save(name string, enhanced EnhancedToolDefinition, fp Fingerprint) error {
	payload, err := json.Marshal(enhanced)
	if err != nil {
		return fmt.Errorf("enhancement: marshal %s: %w", name, err)
	}
	_, err = s.writer.Exec(`
		INSERT INTO enhanced_tools (name, fingerprint, payload, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(name) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			payload     = excluded.payload,
			updated_at  = excluded.updated_at`,
		name, string(fp), string(payload),
	)
	if err != nil {
		return fmt.Errorf("enhancement: save %s: %w", name, err)
	}
	return nil
}

// Delete removes one tool's persisted enhancement, used when a tool
// disappears from the catalog.
func (s *PersistentStore) Delete(name string) error {
	if _, err := s.writer.Exec(`DELETE FROM enhanced_tools WHERE name = ?`, name); err != nil {
		return fmt.Errorf("enhancement: delete %s: %w", name, err)
	}
	return nil
}
