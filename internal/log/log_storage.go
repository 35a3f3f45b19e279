// log_storage.go implements SQLite-based persistent audit logging.
//
// Separated from log.go to isolate database concerns. The workspace column
// is a blake2b hash of the workspace root so logs from many workspaces can
// share one database without recording their paths.
//
// Design: errors during logging are reported to stderr and otherwise
// ignored. A section edit must succeed even when its audit record cannot be
// written.

package log

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// Logger writes audit log entries to a SQLite database.
type Logger struct {
	db      *sql.DB
	project string
}

func (l *Logger) log(e Entry) {
	var detail *string
	if len(e.Detail) > 0 {
		if b, err := json.Marshal(e.Detail); err == nil {
			s := string(b)
			detail = &s
		}
	}

	success := 0
	if e.Success {
		success = 1
	}

	_, err := l.db.Exec(`
		INSERT INTO log (start, duration_ms, project, source, author, action, doc, scope,
		                 version, success, error, kind, code, suggestion, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Start, e.Duration, l.project, e.Source, nilIfEmpty(e.Author), e.Action,
		nilIfEmpty(e.Doc), nilIfEmpty(e.Scope), nilIfZero(e.Version),
		success, nilIfEmpty(e.Error), nilIfEmpty(e.Kind), nilIfEmpty(e.Code),
		nilIfEmpty(e.Suggestion), detail,
	)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "quill: audit log write failed: %v\n", err)
	}
}

// Record is a stored entry as returned by Query.
type Record struct {
	ID       int64          `json:"id"`
	Time     time.Time      `json:"time"`
	Duration int64          `json:"duration_ms"`
	Source   string         `json:"source"`
	Author   string         `json:"author,omitempty"`
	Action   string         `json:"action"`
	Doc      string         `json:"doc,omitempty"`
	Scope    string         `json:"scope,omitempty"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Kind     string         `json:"kind,omitempty"`
	Code     string         `json:"code,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Filter narrows Query results. Zero values match everything.
type Filter struct {
	Doc        string
	Source     string
	FailedOnly bool
	Since      time.Time
	Limit      int
}

// Query returns recent entries for the current workspace, newest first.
func Query(ctx context.Context, f Filter) ([]Record, error) {
	mu.Lock()
	l := global
	mu.Unlock()
	if l == nil {
		return nil, fmt.Errorf("audit log not open")
	}

	q := `SELECT id, start, duration_ms, source, COALESCE(author, ''), action,
	             COALESCE(doc, ''), COALESCE(scope, ''), success, COALESCE(error, ''),
	             COALESCE(kind, ''), COALESCE(code, ''), detail
	      FROM log WHERE project = ?`
	args := []any{l.project}
	if f.Doc != "" {
		q += " AND doc = ?"
		args = append(args, f.Doc)
	}
	if f.Source != "" {
		q += " AND source = ?"
		args = append(args, f.Source)
	}
	if f.FailedOnly {
		q += " AND success = 0"
	}
	if !f.Since.IsZero() {
		q += " AND start >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var start int64
		var success int
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &start, &r.Duration, &r.Source, &r.Author, &r.Action,
			&r.Doc, &r.Scope, &success, &r.Error, &r.Kind, &r.Code, &detail); err != nil {
			return nil, err
		}
		r.Time = time.UnixMilli(start)
		r.Success = success == 1
		if detail.Valid {
			_ = json.Unmarshal([]byte(detail.String), &r.Detail)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// dbPathFunc returns the database path. Tests override it.
var dbPathFunc = defaultDBPath

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Containers without a home directory still get a log.
		return filepath.Join(".quill", "log", "quill-log.db")
	}
	return filepath.Join(home, ".quill", "log", "quill-log.db")
}

func dbPath() string {
	return dbPathFunc()
}

// DBPath returns the path to the log database.
func DBPath() string {
	return dbPath()
}

// hash creates a workspace identifier from its root path.
func hash(s string) string {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic("blake2b.New failed: " + err.Error())
	}
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// migrate creates the log table if it doesn't exist.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS log (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			start       INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			project     TEXT NOT NULL,
			source      TEXT NOT NULL,
			author      TEXT,
			action      TEXT NOT NULL,
			doc         TEXT,
			scope       TEXT,
			version     INTEGER,
			success     INTEGER NOT NULL,
			error       TEXT,
			kind        TEXT,
			code        TEXT,
			suggestion  TEXT,
			detail      TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_log_start ON log(start);
		CREATE INDEX IF NOT EXISTS idx_log_project ON log(project);
		CREATE INDEX IF NOT EXISTS idx_log_doc ON log(doc);
	`)
	return err
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nilIfZero(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
