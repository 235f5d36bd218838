// SQLite document store backend.
//
// Information Hiding:
// - Documents persist as JSON rows; the schema is encapsulated here
// - Find scans the collection and evaluates predicates in Go; with the
//   index on (collection, ts) this is a brute-force scan over the matching
//   collection, acceptable at personal-assistant data volumes
// - Thread-safe via sql.DB's built-in connection pooling

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// NewSQLiteInMemory creates an in-memory store (useful for testing).
func NewSQLiteInMemory() (*SQLiteStore, error) {
	// A shared cache keeps every pooled connection on the same database.
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			user_id TEXT,
			ts INTEGER NOT NULL,
			status TEXT,
			doc TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_documents_collection_ts
		ON documents(collection, ts DESC);

		CREATE INDEX IF NOT EXISTS idx_documents_status
		ON documents(collection, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}

// Insert stores one document.
func (s *SQLiteStore) Insert(ctx context.Context, collection string, doc Document) (string, error) {
	if err := checkCollection(collection); err != nil {
		return "", err
	}
	stamped := stamp(doc)

	raw, err := json.Marshal(stamped)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, user_id, ts, status, doc) VALUES (?, ?, ?, ?, ?, ?)`,
		stamped.ID(), collection, stamped.UserID(), stamped.Timestamp().UnixMicro(), stamped.Str("status"), string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", collection, err)
	}
	return stamped.ID(), nil
}

// InsertMany stores several documents.
func (s *SQLiteStore) InsertMany(ctx context.Context, collection string, docs []Document) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := s.Insert(ctx, collection, doc)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Find returns matching documents, newest first.
func (s *SQLiteStore) Find(ctx context.Context, collection string, pred Predicate, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM documents WHERE collection = ? ORDER BY ts DESC`, collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		if !Match(doc, pred) {
			continue
		}
		results = append(results, doc)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// Count returns the number of matching documents.
func (s *SQLiteStore) Count(ctx context.Context, collection string, pred Predicate) (int64, error) {
	docs, err := s.Find(ctx, collection, pred, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Update applies change to every matching document, inserting a seed
// document when nothing matches and change.Upsert is set.
func (s *SQLiteStore) Update(ctx context.Context, collection string, pred Predicate, change Change) error {
	if err := checkCollection(collection); err != nil {
		return err
	}

	docs, err := s.Find(ctx, collection, pred, 0)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		if !change.Upsert {
			return nil
		}
		doc := pred.seed()
		applyChange(doc, change)
		_, err := s.Insert(ctx, collection, doc)
		return err
	}

	for _, doc := range docs {
		applyChange(doc, change)
		raw, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE documents SET doc = ?, status = ? WHERE id = ?`,
			string(raw), doc.Str("status"), doc.ID())
		if err != nil {
			return fmt.Errorf("update %s: %w", collection, err)
		}
	}
	return nil
}

// ClaimThought transitions an active thought ready -> processed. The WHERE
// clause on the status column makes the transition a compare-and-set; at
// most one caller observes a rows-affected count of one.
func (s *SQLiteStore) ClaimThought(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE id = ? AND collection = ? AND status = ?`,
		id, ActiveThoughts, StatusReady).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load thought %s: %w", id, err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return false, err
	}
	doc["status"] = StatusProcessed
	doc["processed_at"] = time.Now().UTC()

	updated, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal thought: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE documents SET doc = ?, status = ? WHERE id = ? AND status = ?`,
		string(updated), StatusProcessed, id, StatusReady)
	if err != nil {
		return false, fmt.Errorf("claim thought %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	return true, tx.Commit()
}

// Reset drops all documents belonging to userID.
func (s *SQLiteStore) Reset(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("reset store for %s: %w", userID, err)
	}
	return nil
}

func decodeDocument(raw string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	// JSON loses the time type; restore the top-level timestamp.
	if t, ok := doc.Time("timestamp"); ok {
		doc["timestamp"] = t
	}
	return doc, nil
}

// stamp fills in identifier and timestamp without mutating the caller's map.
func stamp(doc Document) Document {
	out := make(Document, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}
	if out.ID() == "" {
		out["_id"] = uuid.New().String()
	}
	if _, ok := out.Time("timestamp"); !ok {
		out["timestamp"] = time.Now().UTC()
	}
	return out
}

func applyChange(doc Document, change Change) {
	for field, value := range change.Set {
		setPath(doc, field, value)
	}
	for field, values := range change.AddToSet {
		existing, _ := doc.lookup(field)
		list, _ := asList(existing)
		for _, v := range values {
			found := false
			for _, cur := range list {
				if cur == v {
					found = true
					break
				}
			}
			if !found {
				list = append(list, v)
			}
		}
		setPath(doc, field, list)
	}
}

// setPath writes a dotted path, creating intermediate maps.
func setPath(doc Document, path string, value any) {
	current := map[string]any(doc)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		next, ok := asMap(current[key])
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[start:]] = value
}

// Verify SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
