// Package document provides the quill service: one value wiring the section
// store, lock registry, snapshots, recovery and the conversion pipeline
// together behind service.Service. The CLI, the MCP server and the HTTP API
// all share it.
package document

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/jpl-au/quill/internal/config"
	"github.com/jpl-au/quill/internal/convert"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/log"
	norm "github.com/jpl-au/quill/internal/path"
	"github.com/jpl-au/quill/internal/recovery"
	"github.com/jpl-au/quill/internal/repo"
	"github.com/jpl-au/quill/internal/section"
	"github.com/jpl-au/quill/internal/service"
	"github.com/jpl-au/quill/internal/snapshot"
)

// closeTimeout bounds how long Close waits for running conversions to
// clean up.
const closeTimeout = 30 * time.Second

var _ service.Service = (*Service)(nil)

// Service implements service.Service over a workspace directory.
type Service struct {
	root     string
	cfg      *config.Config
	locks    *lock.Registry
	store    *section.Store
	snaps    *snapshot.Manager
	recovery *recovery.Manager
	pipeline *convert.Pipeline
}

// Options replaces parts of the default wiring. Tests use it to install
// fake engines and silence the recovery sink.
type Options struct {
	// Engines replaces the default conversion engines.
	Engines []convert.Engine
	// Recovery replaces the default manager. Its Locks field is set to the
	// service's registry.
	Recovery *recovery.Manager
}

// New opens the workspace at dir, or discovers one from the working
// directory when dir is empty. Returns repo.ErrNotInitialised when none is
// found.
func New(dir string) (*Service, error) {
	root := dir
	if root == "" {
		var err error
		if root, err = repo.Discover(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.LoadFor(root)
	if err != nil {
		return nil, err // config errors carry their own fix instructions
	}
	return Open(root, cfg, Options{})
}

// Init initialises a new workspace in dir (current directory when empty).
//
// Note: Init does not write config. Config is managed separately via
// "quill config".
func Init(dir string, force bool) error {
	return repo.Init(dir, force)
}

// Open wires a service for root using cfg.
func Open(root string, cfg *config.Config, opts Options) (*Service, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	locks := lock.New(root)
	locks.DefaultTTL = cfg.LockTTL()
	locks.Retries = cfg.LockRetries()
	locks.RetryDelay = cfg.LockRetryDelay()

	store := section.New(root, locks, section.Limits{
		MaxSections:     cfg.MaxSections(),
		MaxSectionSize:  cfg.MaxSectionSize(),
		MaxDocumentSize: cfg.MaxDocumentSize(),
	})
	store.LockTTL = cfg.LockTTL()

	rec := opts.Recovery
	if rec == nil {
		rec = recovery.New(locks)
	}
	rec.Locks = locks

	engines := opts.Engines
	if engines == nil {
		engines = convert.DefaultEngines(convert.EngineOptions{
			Chrome:     cfg.Convert.Chrome,
			Pandoc:     cfg.Convert.Pandoc,
			PandocArgs: cfg.PandocArgs(),
			Templates:  Templates(root, cfg),
		})
	}
	chains, err := Chains(cfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		root:     root,
		cfg:      cfg,
		locks:    locks,
		store:    store,
		snaps:    snapshot.New(store),
		recovery: rec,
	}
	s.pipeline = convert.New(store, rec, engines, convert.Config{
		MaxConcurrent:  cfg.MaxConcurrent(),
		AttemptTimeout: cfg.AttemptTimeout(),
		OutputDir:      cfg.OutputDir(),
		Chains:         chains,
		KeepTasks:      cfg.KeepTasks(),
	})
	return s, nil
}

// Templates returns the configured style references. Relative paths are
// resolved against the workspace root.
func Templates(root string, cfg *config.Config) map[convert.Format]string {
	out := make(map[convert.Format]string)
	for _, f := range convert.Formats {
		t := cfg.Template(string(f))
		if t == "" {
			continue
		}
		if !filepath.IsAbs(t) {
			t = filepath.Join(root, t)
		}
		out[f] = t
	}
	return out
}

// Chains merges the configured fallback chains over the defaults.
func Chains(cfg *config.Config) (map[convert.Format][]convert.Format, error) {
	chains := convert.DefaultChains()
	for _, target := range convert.Formats {
		names, ok := cfg.Fallback(string(target))
		if !ok {
			continue
		}
		chain := make([]convert.Format, 0, len(names))
		for _, n := range names {
			f, err := convert.ParseFormat(n)
			if err != nil {
				return nil, fmt.Errorf("%w: convert.fallback.%s: %w", config.ErrInvalidValue, target, err)
			}
			chain = append(chain, f)
		}
		chains[target] = chain
	}
	return chains, nil
}

// Close stops the conversion pipeline.
func (s *Service) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.pipeline.Close(ctx); err != nil {
		log.Event("service:close", "close").Write(err)
		return fmt.Errorf("stop conversions: %w", err)
	}
	return nil
}

// Root returns the workspace root.
func (s *Service) Root() string { return s.root }

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config { return s.cfg }

// run executes fn for doc through the recovery chain and audits the result.
// The document id must already be normalised. A failure is recorded once, by
// the recovery sink; the operation's own entry only notes the outcome.
func (s *Service) run(ctx context.Context, source, action, id, scope string, fn func(ctx context.Context) error) error {
	owner := section.Owner(ctx)
	outcome, err := s.recovery.Run(ctx, recovery.Operation{
		Name:  source,
		Doc:   id,
		Scope: scope,
		Actor: owner,
		Run:   fn,
	})
	b := log.Event(source, action).Author(owner).Doc(id)
	if scope != lock.Document {
		b = b.Scope(scope)
	}
	if outcome != recovery.Succeeded {
		b = b.Detail("outcome", string(outcome))
	}
	b.Write(nil)
	return err
}

// Documents lists document ids under prefix in lexical order. Snapshot
// files, hidden directories and the conversion output directory are
// skipped.
func (s *Service) Documents(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		p, err := section.Normalise(prefix)
		if err != nil {
			return nil, err
		}
		prefix = p
	}
	output := filepath.ToSlash(filepath.Clean(s.cfg.OutputDir()))

	var ids []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || rel == output {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") {
			return nil
		}
		id, err := norm.Normalise(rel)
		if err != nil {
			return nil // snapshot files and reserved names
		}
		if norm.Under(id, prefix) {
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmtIOError("list documents", s.root, err)
	}
	return ids, nil
}
