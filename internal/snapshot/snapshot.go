// Package snapshot keeps immutable full-content versions of documents.
//
// A snapshot of "reports/q3" is written beside the document as
// reports/q3_v<N>.md and recorded, with its blake2b-256 checksum, in the
// manifest reports/.versions/q3.json. Version numbers only grow: the next
// number is one past the highest seen in the manifest, on disk, or in the
// document's version metadata key, and a snapshot never overwrites an
// existing file.
package snapshot

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jpl-au/quill/internal/diff"
	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/natefinch/atomic"
	"golang.org/x/crypto/blake2b"
)

// DefaultKeep is the retention used by Prune when no count is given.
const DefaultKeep = 5

var (
	// ErrNotFound indicates the requested version does not exist.
	ErrNotFound = errors.New("version not found")
	// ErrChecksum indicates a snapshot no longer matches its recorded checksum.
	ErrChecksum = errors.New("checksum mismatch")
)

// Entry describes one snapshot.
type Entry struct {
	Version  int       `json:"version"`
	File     string    `json:"file"`
	Checksum string    `json:"checksum"`
	Size     int       `json:"size"`
	Created  time.Time `json:"created"`
	Author   string    `json:"author,omitempty"`
}

type manifest struct {
	Doc      string  `json:"doc"`
	Versions []Entry `json:"versions"`
}

// Manager takes and reads snapshots through a section store.
type Manager struct {
	store *section.Store
	Now   func() time.Time
}

// New returns a manager over store.
func New(store *section.Store) *Manager {
	return &Manager{store: store, Now: time.Now}
}

// Snapshot records the current content of doc as a new version. It holds
// the document lock while reading so no writer is mid-change.
func (m *Manager) Snapshot(ctx context.Context, doc string) (Entry, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return Entry{}, err
	}

	owner := section.Owner(ctx)
	l, err := m.store.Locks().Acquire(ctx, id, lock.Document, owner, lock.Options{Operation: "snapshot"})
	if err != nil {
		return Entry{}, err
	}
	defer l.Release(ctx)

	b, err := m.store.Read(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	man, err := m.load(id)
	if err != nil {
		return Entry{}, err
	}

	n := highest(man)
	if onDisk, err := m.scan(id); err == nil && onDisk > n {
		n = onDisk
	}
	if d, err := marker.Parse(b); err == nil && d.Meta.Version() > n {
		n = d.Meta.Version()
	}
	n++

	name, n, err := m.link(id, b, n)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		Version:  n,
		File:     name,
		Checksum: checksum(b),
		Size:     len(b),
		Created:  m.Now().UTC(),
		Author:   owner,
	}
	man.Versions = append(man.Versions, e)
	if err := m.save(id, man); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// link writes b to a fresh version file, bumping n while the name is taken.
// The content goes to a temp file first and is hard-linked into place, so a
// visible version file is always complete and never replaced.
func (m *Manager) link(id string, b []byte, n int) (string, int, error) {
	dir := filepath.Dir(m.store.File(id))
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return "", 0, failure.IO(failure.CodeWrite, "create snapshot").With("doc", id).Wrap(err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return "", 0, failure.IO(failure.CodeWrite, "write snapshot").With("doc", id).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", 0, failure.IO(failure.CodeWrite, "sync snapshot").With("doc", id).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, failure.IO(failure.CodeWrite, "close snapshot").With("doc", id).Wrap(err)
	}
	if err := os.Chmod(tmp.Name(), 0444); err != nil {
		return "", 0, failure.IO(failure.CodePermission, "protect snapshot").With("doc", id).Wrap(err)
	}

	for {
		name := fileName(id, n)
		err := os.Link(tmp.Name(), filepath.Join(dir, name))
		if err == nil {
			return name, n, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", 0, failure.IO(failure.CodeWrite, "link snapshot").With("doc", id).With("version", n).Wrap(err)
		}
		n++
	}
}

// List returns the recorded snapshots, oldest first.
func (m *Manager) List(ctx context.Context, doc string) ([]Entry, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	man, err := m.load(id)
	if err != nil {
		return nil, err
	}
	return man.Versions, nil
}

// Read returns the content of version n.
func (m *Manager) Read(ctx context.Context, doc string, n int) ([]byte, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.read(id, n)
}

func (m *Manager) read(id string, n int) ([]byte, error) {
	path := filepath.Join(filepath.Dir(m.store.File(id)), fileName(id, n))
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, failure.Validation(failure.CodeNotFound, "version not found").
			With("doc", id).With("version", n).
			Suggest("list versions with 'quill versions'").
			Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, failure.IO(failure.CodeRead, "read snapshot").With("doc", id).With("version", n).Wrap(err)
	}
	return b, nil
}

// Verify recomputes the checksum of version n and compares it with the
// manifest.
func (m *Manager) Verify(ctx context.Context, doc string, n int) error {
	id, err := section.Normalise(doc)
	if err != nil {
		return err
	}
	man, err := m.load(id)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(man.Versions, func(e Entry) bool { return e.Version == n })
	if i < 0 {
		return failure.Validation(failure.CodeNotFound, "version not in manifest").
			With("doc", id).With("version", n).Wrap(ErrNotFound)
	}
	b, err := m.Read(ctx, id, n)
	if err != nil {
		return err
	}
	if got := checksum(b); got != man.Versions[i].Checksum {
		return failure.Validation(failure.CodeVerifyFailed, "snapshot checksum mismatch").
			With("doc", id).
			With("version", n).
			With("want", man.Versions[i].Checksum).
			With("got", got).
			Wrap(ErrChecksum)
	}
	return nil
}

// Diff compares two versions. Zero selects the current document.
func (m *Manager) Diff(ctx context.Context, doc string, opts diff.Options) (diff.Result, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return diff.Result{}, err
	}
	side := func(n int) (string, string, error) {
		if n == 0 {
			b, err := m.store.Read(ctx, id)
			return string(b), id + " (current)", err
		}
		b, err := m.Read(ctx, id, n)
		return string(b), fmt.Sprintf("%s v%d", id, n), err
	}

	oldText, oldLabel, err := side(opts.Version1)
	if err != nil {
		return diff.Result{}, err
	}
	newText, newLabel, err := side(opts.Version2)
	if err != nil {
		return diff.Result{}, err
	}
	return diff.Compute(oldText, newText, oldLabel, newLabel), nil
}

// Prune deletes all but the newest keep snapshots and returns the removed
// entries. The newest version always survives so numbers are never reused.
func (m *Manager) Prune(ctx context.Context, doc string, keep int) ([]Entry, error) {
	id, err := section.Normalise(doc)
	if err != nil {
		return nil, err
	}
	if keep < 1 {
		return nil, failure.Validation(failure.CodeInvalidContent, "keep must be at least 1").
			With("keep", keep)
	}

	l, err := m.store.Locks().Acquire(ctx, id, lock.Document, section.Owner(ctx), lock.Options{Operation: "prune"})
	if err != nil {
		return nil, err
	}
	defer l.Release(ctx)

	man, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if len(man.Versions) <= keep {
		return nil, nil
	}

	slices.SortFunc(man.Versions, func(a, b Entry) int { return a.Version - b.Version })
	cut := len(man.Versions) - keep
	removed := slices.Clone(man.Versions[:cut])
	dir := filepath.Dir(m.store.File(id))
	for _, e := range removed {
		if err := os.Remove(filepath.Join(dir, e.File)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, failure.IO(failure.CodeWrite, "remove snapshot").With("doc", id).With("version", e.Version).Wrap(err)
		}
	}
	man.Versions = man.Versions[cut:]
	if err := m.save(id, man); err != nil {
		return nil, err
	}
	return removed, nil
}

func (m *Manager) manifestPath(id string) string {
	rel := filepath.FromSlash(id)
	return filepath.Join(m.store.Root(), filepath.Dir(rel), ".versions", filepath.Base(rel)+".json")
}

func (m *Manager) load(id string) (*manifest, error) {
	b, err := os.ReadFile(m.manifestPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return &manifest{Doc: id}, nil
	}
	if err != nil {
		return nil, failure.IO(failure.CodeRead, "read version manifest").With("doc", id).Wrap(err)
	}
	var man manifest
	if err := json.Unmarshal(b, &man); err != nil {
		return nil, failure.IO(failure.CodeRead, "decode version manifest").With("doc", id).Wrap(err)
	}
	return &man, nil
}

func (m *Manager) save(id string, man *manifest) error {
	b, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("encode version manifest: %w", err)
	}
	path := m.manifestPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return failure.IO(failure.CodeWrite, "create version directory").With("doc", id).Wrap(err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(b)+"\n")); err != nil {
		return failure.IO(failure.CodeWrite, "write version manifest").With("doc", id).Wrap(err)
	}
	return nil
}

// scan returns the highest version number among files beside the document.
func (m *Manager) scan(id string) (int, error) {
	dir := filepath.Dir(m.store.File(id))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	re := regexp.MustCompile("^" + regexp.QuoteMeta(filepath.Base(filepath.FromSlash(id))) + `_v(\d+)\.md$`)
	best := 0
	for _, e := range entries {
		if mm := re.FindStringSubmatch(e.Name()); mm != nil {
			if n, err := strconv.Atoi(mm[1]); err == nil && n > best {
				best = n
			}
		}
	}
	return best, nil
}

func highest(man *manifest) int {
	best := 0
	for _, e := range man.Versions {
		best = max(best, e.Version)
	}
	return best
}

func fileName(id string, n int) string {
	return fmt.Sprintf("%s_v%d.md", filepath.Base(filepath.FromSlash(id)), n)
}

func checksum(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}
