// Package archive is the durable-log collaborator: it persists emitted change
// records into a relational log keyed by document and insertion order. It
// only ever sees opaque change bytes plus their decoded header — never a live
// tree. Re-delivered records are detected with per-(document, actor) roaring
// bitmaps of logged seqs, since fire-and-forget replication may hand the same
// record over more than once.
package archive

import (
	"bytes"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	_ "modernc.org/sqlite"

	"github.com/mergedoc/mergedoc/internal/codec"
)

type Log struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenLog opens (creating if needed) a change log database.
func OpenLog(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", dbPath, err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		doc_key TEXT NOT NULL,
		actor TEXT NOT NULL,
		seq INTEGER NOT NULL,
		lamport INTEGER NOT NULL,
		change BLOB NOT NULL,
		inserted_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_changes_doc ON changes(doc_key, id);

	CREATE TABLE IF NOT EXISTS actor_seqs (
		doc_key TEXT NOT NULL,
		actor TEXT NOT NULL,
		bitmap BLOB NOT NULL,
		PRIMARY KEY (doc_key, actor)
	) WITHOUT ROWID;
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Append logs one change record for a document. Returns false when the record
// was already logged (same actor and seq). Malformed records fail with
// api.ErrDecode and log nothing.
func (l *Log) Append(docKey string, change []byte) (bool, error) {
	c, err := codec.DecodeChange(change)
	if err != nil {
		return false, err
	}
	if c.Seq > math.MaxUint32 {
		return false, fmt.Errorf("change seq %d exceeds bitmap range", c.Seq)
	}
	actor := c.Actor.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op if committed

	bm := roaring.New()
	var blob []byte
	err = tx.QueryRow(
		"SELECT bitmap FROM actor_seqs WHERE doc_key = ? AND actor = ?",
		docKey, actor).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return false, fmt.Errorf("read seen set: %w", err)
	default:
		if err := bm.UnmarshalBinary(blob); err != nil {
			return false, fmt.Errorf("corrupt seen set for %s/%s: %w", docKey, actor, err)
		}
	}

	seq := uint32(c.Seq)
	if bm.Contains(seq) {
		return false, nil
	}
	bm.Add(seq)

	if _, err := tx.Exec(
		"INSERT INTO changes (doc_key, actor, seq, lamport, change, inserted_at) VALUES (?, ?, ?, ?, ?, ?)",
		docKey, actor, c.Seq, c.StartOp, change, time.Now().UnixNano()); err != nil {
		return false, fmt.Errorf("insert change: %w", err)
	}

	var buf bytes.Buffer
	if _, err := bm.WriteTo(&buf); err != nil {
		return false, fmt.Errorf("serialize seen set: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO actor_seqs (doc_key, actor, bitmap) VALUES (?, ?, ?)",
		docKey, actor, buf.Bytes()); err != nil {
		return false, fmt.Errorf("update seen set: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append: %w", err)
	}
	return true, nil
}

// Changes returns every logged record for a document in insertion order —
// the replay feed for rebuilding a replica.
func (l *Log) Changes(docKey string) ([][]byte, error) {
	rows, err := l.db.Query(
		"SELECT change FROM changes WHERE doc_key = ? ORDER BY id", docKey)
	if err != nil {
		return nil, fmt.Errorf("query changes for %s: %w", docKey, err)
	}
	defer func() { _ = rows.Close() }()

	var out [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Keys returns the document keys present in the log.
func (l *Log) Keys() ([]string, error) {
	rows, err := l.db.Query("SELECT DISTINCT doc_key FROM changes ORDER BY doc_key")
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (l *Log) Close() error {
	return l.db.Close()
}
