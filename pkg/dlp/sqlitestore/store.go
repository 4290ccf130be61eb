// Package sqlitestore persists dlp.ClassificationRecord rows per
// document, adapted from the teacher's approval-policy persistence
// (pkg/storage/approvals.go: private-file creation, query/scan-pairs,
// JSON-encoded structured columns) onto this domain's classification
// records instead of approval policies.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/cellwarden/cellwarden/pkg/dlp"
	"github.com/cellwarden/cellwarden/pkg/sheet"
)

const schema = `
CREATE TABLE IF NOT EXISTS classification_records (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	selector    TEXT NOT NULL,
	level       INTEGER NOT NULL,
	labels      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_classification_records_document ON classification_records(document_id);
`

// Store persists classification records keyed by document id.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) the SQLite file at path, applies the
// schema, and returns a ready Store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
		}
	}
	if err := ensurePrivateFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("sqlitestore: stat db path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("sqlitestore: create db file: %w", err)
	}
	return f.Close()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// storedSelector is the JSON-friendly encoding of dlp.Selector, since
// sheet.Address/Range don't carry their own marshal tags.
type storedSelector struct {
	Kind     dlp.SelectorKind `json:"kind"`
	Sheet    string           `json:"sheet,omitempty"`
	Column   int              `json:"column,omitempty"`
	Address  sheet.Address    `json:"address,omitzero"`
	Range    sheet.Range      `json:"range,omitzero"`
	TableID  string           `json:"tableId,omitempty"`
	ColumnID string           `json:"columnId,omitempty"`
}

func toStored(sel dlp.Selector) storedSelector {
	return storedSelector{
		Kind:     sel.Kind,
		Sheet:    sel.Sheet,
		Column:   sel.Column,
		Address:  sel.Address,
		Range:    sel.Range,
		TableID:  sel.TableID,
		ColumnID: sel.ColumnID,
	}
}

func (s storedSelector) toSelector() dlp.Selector {
	return dlp.Selector{
		Kind:     s.Kind,
		Sheet:    s.Sheet,
		Column:   s.Column,
		Address:  s.Address,
		Range:    s.Range,
		TableID:  s.TableID,
		ColumnID: s.ColumnID,
	}
}

// Put inserts one classification record under documentID.
func (s *Store) Put(documentID string, rec dlp.ClassificationRecord) error {
	selectorJSON, err := json.Marshal(toStored(rec.Selector))
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal selector: %w", err)
	}
	labelsJSON, err := json.Marshal(rec.Classification.Labels)
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal labels: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO classification_records (document_id, selector, level, labels)
		VALUES (?, ?, ?, ?)
	`, documentID, string(selectorJSON), int(rec.Classification.Level), string(labelsJSON))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert record: %w", err)
	}
	return nil
}

// List returns every classification record stored under documentID, in
// insertion order, implementing the dlp decision flow's
// classification_store lookup.
func (s *Store) List(documentID string) ([]dlp.ClassificationRecord, error) {
	rows, err := s.db.Query(`
		SELECT selector, level, labels FROM classification_records
		WHERE document_id = ?
		ORDER BY id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list records: %w", err)
	}
	defer rows.Close()

	var out []dlp.ClassificationRecord
	for rows.Next() {
		var selectorJSON, labelsJSON string
		var level int
		if err := rows.Scan(&selectorJSON, &level, &labelsJSON); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan record: %w", err)
		}
		var stored storedSelector
		if err := json.Unmarshal([]byte(selectorJSON), &stored); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal selector: %w", err)
		}
		var labels []string
		if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
			return nil, fmt.Errorf("sqlitestore: unmarshal labels: %w", err)
		}
		out = append(out, dlp.ClassificationRecord{
			Selector:       stored.toSelector(),
			Classification: dlp.Classification{Level: dlp.Level(level), Labels: labels},
		})
	}
	return out, rows.Err()
}

// DeleteDocument removes every classification record for documentID.
func (s *Store) DeleteDocument(documentID string) error {
	_, err := s.db.Exec(`DELETE FROM classification_records WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("sqlitestore: delete document: %w", err)
	}
	return nil
}
