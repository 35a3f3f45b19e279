// Package log provides centralised audit logging for quill operations.
// Logs are stored in ~/.quill/log/quill-log.db and record CLI commands, MCP
// tool calls, HTTP requests, lock transitions, conversion attempts and error
// records across workspaces.
//
// # Fluent API
//
//	log.Event("section:edit", "edit").
//		Author(owner).
//		Doc(id).
//		Scope(title).
//		Write(err)
//
//	log.Event("convert:attempt", "convert").
//		Doc(id).
//		Detail("format", "pdf").
//		Detail("engine", "chromedp").
//		Write(err)
//
// The source follows "{component}:{command}" for CLI commands, "mcp:{tool}"
// for MCP tools and "api:{route}" for HTTP handlers. When Write receives a
// typed error its kind, code and suggestion are stored in their own columns so
// error records can be queried without parsing messages.
package log

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	_ "modernc.org/sqlite"
)

var (
	global *Logger
	mu     sync.Mutex
)

// Entry is a single log record.
type Entry struct {
	Source  string // e.g. "section:edit", "mcp:quill_get"
	Author  string // who performed the action
	Action  string // verb: create, edit, acquire, convert, recover...
	Doc     string // document id
	Scope   string // section title or lock scope
	Version int    // snapshot version involved, if any

	Start    int64 // unix millis when Event() was called
	Duration int64 // millis between Event() and Write()

	Success    bool
	Error      string
	Kind       string // failure kind for typed errors
	Code       string // failure code for typed errors
	Suggestion string
	Detail     map[string]any
}

// Builder constructs a log entry using a fluent API.
type Builder struct {
	entry Entry
	start time.Time
}

// Event starts a log entry for an operation.
func Event(source, action string) *Builder {
	now := time.Now()
	return &Builder{
		entry: Entry{Source: source, Action: action, Start: now.UnixMilli()},
		start: now,
	}
}

// Source replaces the source, for callers that only learn it once the
// operation has run (such as an HTTP route pattern).
func (b *Builder) Source(source string) *Builder {
	b.entry.Source = source
	return b
}

// Author sets who performed the operation.
func (b *Builder) Author(author string) *Builder {
	b.entry.Author = author
	return b
}

// Doc sets the document this operation affects.
func (b *Builder) Doc(id string) *Builder {
	b.entry.Doc = id
	return b
}

// Scope sets the section title or lock scope.
func (b *Builder) Scope(scope string) *Builder {
	b.entry.Scope = scope
	return b
}

// Version sets the snapshot version involved.
func (b *Builder) Version(v int) *Builder {
	b.entry.Version = v
	return b
}

// Detail adds a key-value pair to the entry's detail map.
func (b *Builder) Detail(key string, value any) *Builder {
	if b.entry.Detail == nil {
		b.entry.Detail = make(map[string]any)
	}
	b.entry.Detail[key] = value
	return b
}

// Write completes the entry, deriving success from err.
//
// Typed errors contribute their kind, code, suggestion and context; the
// context keys are merged into Detail without overwriting explicit details.
func (b *Builder) Write(err error) {
	b.entry.Duration = time.Since(b.start).Milliseconds()
	b.entry.Success = err == nil
	if err != nil {
		b.entry.Error = err.Error()
		var fe *failure.Error
		if errors.As(err, &fe) {
			b.entry.Kind = string(fe.Kind)
			b.entry.Code = fe.Code
			b.entry.Suggestion = fe.Suggestion
			for k, v := range fe.Context {
				if _, ok := b.entry.Detail[k]; !ok {
					b.Detail(k, v)
				}
			}
		}
	}
	Log(b.entry)
}

// Open initialises the global logger. Safe to call multiple times.
func Open() error {
	mu.Lock()
	defer mu.Unlock()

	if global != nil {
		return nil
	}

	p := dbPath()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return err
	}
	// One connection serialises writers from concurrent goroutines.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return err
	}

	global = &Logger{db: db}
	return nil
}

// SetProject sets the workspace identifier for subsequent entries.
// The dir should be the absolute workspace root.
func SetProject(dir string) {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.project = hash(dir)
	}
}

// Log writes an entry. Safe to call when the logger is not open (no-op).
func Log(e Entry) {
	mu.Lock()
	l := global
	mu.Unlock()

	if l == nil {
		return
	}
	l.log(e)
}

// Close closes the global logger.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		global.db.Close()
		global = nil
	}
}
