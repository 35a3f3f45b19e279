package lock

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/natefinch/atomic"
	"golang.org/x/crypto/blake2b"
)

// Record is the persisted form of a held lock.
type Record struct {
	Doc       string    `json:"doc"`
	Scope     string    `json:"scope"`
	Owner     string    `json:"owner"`
	Lease     string    `json:"lease"`
	Operation string    `json:"operation,omitempty"`
	Acquired  time.Time `json:"acquired"`
	Heartbeat time.Time `json:"heartbeat"`
	TTL       float64   `json:"ttl_seconds"`
}

// Lifetime returns the record's TTL as a duration.
func (r Record) Lifetime() time.Duration {
	return time.Duration(r.TTL * float64(time.Second))
}

// Expires returns when the record becomes stale without another heartbeat.
func (r Record) Expires() time.Time {
	return r.Heartbeat.Add(r.Lifetime())
}

// Stale reports whether the heartbeat age exceeds the TTL at now.
func (r Record) Stale(now time.Time) bool {
	return now.Sub(r.Heartbeat) > r.Lifetime()
}

// Conflicts reports whether a record for scope a excludes a request for b.
// The document scope excludes every other scope.
func Conflicts(a, b string) bool {
	return a == Document || b == Document || a == b
}

// scopeKey maps a scope to its record file name. Section titles are hashed
// so any title is a safe file name.
func scopeKey(scope string) string {
	if scope == Document {
		return "document.json"
	}
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(scope))
	return "section-" + hex.EncodeToString(h.Sum(nil)) + ".json"
}

// Dir returns the lock directory for a document id:
// "<root>/<dir>/.locks/<base>". Other guards for the same document (the
// section store's commit guard) live here too.
func (r *Registry) Dir(doc string) string {
	rel := filepath.FromSlash(doc)
	return filepath.Join(r.Root, filepath.Dir(rel), ".locks", filepath.Base(rel))
}

func (r *Registry) guardPath(doc string) string {
	return filepath.Join(r.Dir(doc), ".registry")
}

func (r *Registry) recordPath(doc, scope string) string {
	return filepath.Join(r.Dir(doc), scopeKey(scope))
}

// read loads one record. A missing file returns (nil, nil).
func read(path string) (*Record, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.IO(failure.CodeRead, "read lock record").With("path", path).Wrap(err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, failure.IO(failure.CodeRead, "decode lock record").With("path", path).Wrap(err)
	}
	return &rec, nil
}

func write(path string, rec *Record) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode lock record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure.IO(failure.CodeWrite, "create lock directory").With("path", path).Wrap(err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(b)+"\n")); err != nil {
		return failure.IO(failure.CodeWrite, "write lock record").With("path", path).Wrap(err)
	}
	return nil
}

func remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return failure.IO(failure.CodeWrite, "remove lock record").With("path", path).Wrap(err)
	}
	return nil
}

// records returns every record for a document, ordered by scope with the
// document scope first.
func (r *Registry) records(doc string) ([]Record, error) {
	entries, err := os.ReadDir(r.Dir(doc))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, failure.IO(failure.CodeRead, "list lock records").With("doc", doc).Wrap(err)
	}

	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		rec, err := read(filepath.Join(r.Dir(doc), name))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.Scope, b.Scope) })
	return out, nil
}
