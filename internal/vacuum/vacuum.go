// Package vacuum reclaims workspace storage: it prunes old snapshots down
// to the retention count and removes stale lock records, across every
// document or a filtered subset. Pruning is irreversible, so DryRun reports
// what would go without touching anything.
package vacuum

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/glob"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/progress"
	"github.com/jpl-au/quill/internal/snapshot"
)

// Workspace is the part of the service vacuum drives.
type Workspace interface {
	Documents(ctx context.Context, prefix string) ([]string, error)
	History(ctx context.Context, doc string) ([]snapshot.Entry, error)
	Prune(ctx context.Context, doc string, keep int) ([]snapshot.Entry, error)
	Locks(ctx context.Context, doc string) ([]lock.Record, error)
	Sweep(ctx context.Context, docs ...string) ([]lock.Record, error)
}

// Options configures vacuum scope.
type Options struct {
	Prefix string // Limit to an id prefix
	Glob   string // Limit to ids matching a pattern
	Keep   int    // Snapshots to retain per document (at least 1)
	DryRun bool   // Preview without deleting
}

// Pruned is one removed (or, in a dry run, removable) snapshot.
type Pruned struct {
	Doc     string `json:"doc"`
	Version int    `json:"version"`
	File    string `json:"file"`
}

// Result reports what was removed.
type Result struct {
	Documents int           `json:"documents"`
	Snapshots []Pruned      `json:"snapshots"`
	Locks     []lock.Record `json:"locks"`
	DryRun    bool          `json:"dry_run,omitempty"`
}

// Run prunes snapshots and sweeps stale locks on the selected documents.
// A failure on one document stops the run; what was already removed is
// still reported.
func Run(ctx context.Context, w io.Writer, ws Workspace, opts Options) (Result, error) {
	result := Result{DryRun: opts.DryRun, Snapshots: []Pruned{}, Locks: []lock.Record{}}
	if opts.Keep < 1 {
		return result, failure.Validation(failure.CodeInvalidContent, "keep must be at least 1").
			With("keep", opts.Keep)
	}

	ids, err := ws.Documents(ctx, opts.Prefix)
	if err != nil {
		return result, err
	}
	if ids, err = glob.Filter(opts.Glob, ids); err != nil {
		return result, failure.Validation(failure.CodeInvalidContent, err.Error()).
			With("glob", opts.Glob).
			Wrap(err)
	}
	result.Documents = len(ids)

	if opts.DryRun {
		err = preview(ctx, ws, ids, opts.Keep, &result)
	} else {
		err = apply(ctx, ws, ids, opts.Keep, &result)
	}
	report(w, result)
	return result, err
}

func apply(ctx context.Context, ws Workspace, ids []string, keep int, result *Result) error {
	p := progress.New("Vacuuming", len(ids))
	defer p.Done()

	for _, id := range ids {
		// Sweep first: Prune takes the document lock, which would reclaim
		// stale records silently and leave them out of the report.
		swept, err := ws.Sweep(ctx, id)
		if err != nil {
			return err
		}
		result.Locks = append(result.Locks, swept...)

		removed, err := ws.Prune(ctx, id, keep)
		if err != nil {
			return err
		}
		for _, e := range removed {
			result.Snapshots = append(result.Snapshots, Pruned{Doc: id, Version: e.Version, File: e.File})
		}
		p.Increment()
	}
	return nil
}

// preview mirrors apply's selection rules: the oldest snapshots beyond
// keep, and lock records whose heartbeat is older than their TTL.
func preview(ctx context.Context, ws Workspace, ids []string, keep int, result *Result) error {
	now := time.Now()
	for _, id := range ids {
		entries, err := ws.History(ctx, id)
		if err != nil {
			return err
		}
		if cut := len(entries) - keep; cut > 0 {
			for _, e := range entries[:cut] {
				result.Snapshots = append(result.Snapshots, Pruned{Doc: id, Version: e.Version, File: e.File})
			}
		}

		recs, err := ws.Locks(ctx, id)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if r.Stale(now) {
				result.Locks = append(result.Locks, r)
			}
		}
	}
	return nil
}

func report(w io.Writer, r Result) {
	verb := "Removed"
	if r.DryRun {
		verb = "Would remove"
	}
	for _, p := range r.Snapshots {
		fmt.Fprintf(w, "%s %s v%d (%s)\n", verb, p.Doc, p.Version, p.File)
	}
	for _, l := range r.Locks {
		scope := l.Scope
		if scope == lock.Document {
			scope = "document"
		}
		fmt.Fprintf(w, "%s stale %s lock on %s (held by %s)\n", verb, scope, l.Doc, l.Owner)
	}
	if len(r.Snapshots) == 0 && len(r.Locks) == 0 {
		fmt.Fprintln(w, "Nothing to vacuum")
		return
	}
	fmt.Fprintf(w, "%s %d snapshot(s) and %d lock(s) across %d document(s)\n",
		verb, len(r.Snapshots), len(r.Locks), r.Documents)
}
