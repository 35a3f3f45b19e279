package section_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpl-au/quill/internal/failure"
	"github.com/jpl-au/quill/internal/lock"
	"github.com/jpl-au/quill/internal/marker"
	"github.com/jpl-au/quill/internal/section"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *section.Store {
	t.Helper()
	root := t.TempDir()
	locks := lock.New(root)
	locks.Retries = 50
	locks.RetryDelay = 5 * time.Millisecond
	return section.New(root, locks, section.DefaultLimits())
}

func meta() marker.Metadata {
	return marker.Metadata{"title": "T", "author": "A", "date": "2024-11-20"}
}

func setupDoc(t *testing.T, s *section.Store, doc string) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), doc, meta()))
}

func readFile(t *testing.T, s *section.Store, doc string) string {
	t.Helper()
	b, err := os.ReadFile(s.File(doc))
	require.NoError(t, err)
	return string(b)
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "reports/q3")

	require.NoError(t, s.Append(ctx, "reports/q3", "Intro", "Hello", section.AppendOptions{}))

	got, err := s.Get(ctx, "reports/q3", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)

	ok, err := s.Exists(ctx, "reports/q3", "Intro")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Edit(ctx, "reports/q3", "Intro", "Hi"))
	got, err = s.Get(ctx, "reports/q3", "Intro")
	require.NoError(t, err)
	assert.Equal(t, "Hi", got)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, v := range []string{"X", "Y"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Edit(section.WithOwner(ctx, "agent-"+v), "reports/q3", "Intro", v)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, failure.ErrLock)
		}
	}
	got, err = s.Get(ctx, "reports/q3", "Intro")
	require.NoError(t, err)
	assert.Contains(t, []string{"X", "Y"}, got)

	_, err = marker.Parse([]byte(readFile(t, s, "reports/q3")))
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)

	require.NoError(t, s.Create(ctx, "docs/new", meta()))
	content := readFile(t, s, "docs/new")
	assert.True(t, strings.HasPrefix(content, "---\ntitle: T\nauthor: A\ndate: "))
	assert.True(t, strings.HasSuffix(content, "2024-11-20\"\n---\n") || strings.HasSuffix(content, "2024-11-20\n---\n"))

	info, err := os.Stat(s.File("docs/new"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	err = s.Create(ctx, "docs/new", meta())
	assert.ErrorIs(t, err, section.ErrExists)

	err = s.Create(ctx, "docs/bad", marker.Metadata{"title": "T"})
	assert.Equal(t, failure.CodeInvalidMetadata, failure.CodeOf(err))

	err = s.Create(ctx, "../escape", meta())
	assert.ErrorIs(t, err, failure.ErrValidation)
}

func TestAppend(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate rejected", func(t *testing.T) {
		s := setupStore(t)
		setupDoc(t, s, "d")
		require.NoError(t, s.Append(ctx, "d", "Intro", "one", section.AppendOptions{}))
		err := s.Append(ctx, "d", "Intro", "two", section.AppendOptions{})
		assert.ErrorIs(t, err, section.ErrExists)
		assert.Equal(t, failure.CodeExists, failure.CodeOf(err))
	})

	t.Run("duplicate allowed extends body", func(t *testing.T) {
		s := setupStore(t)
		setupDoc(t, s, "d")
		require.NoError(t, s.Append(ctx, "d", "Intro", "one", section.AppendOptions{}))
		require.NoError(t, s.Append(ctx, "d", "Intro", "two", section.AppendOptions{AllowDuplicate: true}))
		got, err := s.Get(ctx, "d", "Intro")
		require.NoError(t, err)
		assert.Equal(t, "one\ntwo", got)
	})

	t.Run("after and level", func(t *testing.T) {
		s := setupStore(t)
		setupDoc(t, s, "d")
		require.NoError(t, s.Append(ctx, "d", "A", "a", section.AppendOptions{}))
		require.NoError(t, s.Append(ctx, "d", "C", "c", section.AppendOptions{}))
		require.NoError(t, s.Append(ctx, "d", "B", "b", section.AppendOptions{After: "A", Level: 3}))

		infos, err := s.Sections(ctx, "d")
		require.NoError(t, err)
		require.Len(t, infos, 3)
		assert.Equal(t, "B", infos[1].Title)
		assert.Equal(t, 3, infos[1].Level)

		err = s.Append(ctx, "d", "D", "d", section.AppendOptions{After: "missing"})
		assert.ErrorIs(t, err, section.ErrNotFound)
	})

	t.Run("rejects structure in content", func(t *testing.T) {
		s := setupStore(t)
		setupDoc(t, s, "d")
		for _, c := range []string{"", "## Sneaky\ntext", "<!-- Section: X -->", "```\nopen"} {
			err := s.Append(ctx, "d", "Intro", c, section.AppendOptions{})
			assert.ErrorIs(t, err, failure.ErrValidation, "content %q", c)
		}
		err := s.Append(ctx, "d", "Bad-->", "x", section.AppendOptions{})
		assert.Equal(t, failure.CodeInvalidTitle, failure.CodeOf(err))
	})

	t.Run("missing document", func(t *testing.T) {
		s := setupStore(t)
		err := s.Append(ctx, "nope", "Intro", "x", section.AppendOptions{})
		assert.ErrorIs(t, err, section.ErrNotFound)
	})
}

func TestLimits(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := section.New(root, lock.New(root), section.Limits{MaxSections: 2, MaxSectionSize: 8, MaxDocumentSize: 200})
	setupDoc(t, s, "d")

	require.NoError(t, s.Append(ctx, "d", "A", "a", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "d", "B", "b", section.AppendOptions{}))

	err := s.Append(ctx, "d", "C", "c", section.AppendOptions{})
	assert.ErrorIs(t, err, section.ErrLimit)

	err = s.Edit(ctx, "d", "A", "123456789")
	assert.ErrorIs(t, err, section.ErrLimit)

	err = s.Append(ctx, "d", "A", "1234567", section.AppendOptions{AllowDuplicate: true})
	assert.ErrorIs(t, err, section.ErrLimit)

	err = s.Edit(ctx, "d", "B", strings.Repeat("x", 8))
	require.NoError(t, err)

	big := section.New(root, lock.New(root), section.Limits{MaxDocumentSize: 100})
	err = big.Edit(ctx, "d", "A", strings.Repeat("y", 100))
	assert.ErrorIs(t, err, section.ErrLimit)
}

func TestEdit_ContentExactness(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "first", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "d", "B", "second", section.AppendOptions{}))

	for _, body := range []string{"", "x", "line\n", "two\n\nblank\n\n", "  indented\t\n", "```\n# not a heading\n```"} {
		require.NoError(t, s.Edit(ctx, "d", "A", body))
		got, err := s.Get(ctx, "d", "A")
		require.NoError(t, err)
		assert.Equal(t, body, got)

		other, err := s.Get(ctx, "d", "B")
		require.NoError(t, err)
		assert.Equal(t, "second", other)
	}

	err := s.Edit(ctx, "d", "Missing", "x")
	assert.ErrorIs(t, err, section.ErrNotFound)
	err = s.Edit(ctx, "d", "intro", "x")
	assert.ErrorIs(t, err, section.ErrNotFound)
}

func TestEdit_DifferentSectionsConcurrently(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")

	titles := []string{"A", "B", "C", "D", "E"}
	for _, title := range titles {
		require.NoError(t, s.Append(ctx, "d", title, "init", section.AppendOptions{}))
	}

	var wg sync.WaitGroup
	for _, title := range titles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Edit(ctx, "d", title, "new "+title))
		}()
	}
	wg.Wait()

	for _, title := range titles {
		got, err := s.Get(ctx, "d", title)
		require.NoError(t, err)
		assert.Equal(t, "new "+title, got)
	}
}

func TestEdit_BlockedByDocumentLock(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	locks := lock.New(root)
	locks.Retries = 0
	s := section.New(root, locks, section.DefaultLimits())
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "a", section.AppendOptions{}))

	l, err := locks.Acquire(ctx, "d", lock.Document, "converter", lock.Options{Operation: "convert"})
	require.NoError(t, err)
	defer l.Release(ctx)

	err = s.Edit(ctx, "d", "A", "b")
	assert.ErrorIs(t, err, lock.ErrTimeout)
	fe, ok := failure.As(err)
	require.True(t, ok)
	assert.Equal(t, "converter", fe.Context["holder"])
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "a", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "d", "B", "b", section.AppendOptions{}))

	require.NoError(t, s.Delete(ctx, "d", "A"))
	ok, err := s.Exists(ctx, "d", "A")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NotContains(t, readFile(t, s, "d"), "## A")
	assert.ErrorIs(t, s.Delete(ctx, "d", "A"), section.ErrNotFound)
}

func TestSearchAndReplace(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "Cats", "cats are great. Cats!", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "d", "Dogs", "dogs", section.AppendOptions{}))

	before := readFile(t, s, "d")
	res, err := s.SearchAndReplace(ctx, "d", "zebra", "x", section.ReplaceOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, before, readFile(t, s, "d"))

	res, err = s.SearchAndReplace(ctx, "d", "cats", "birds", section.ReplaceOptions{CaseSensitive: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	got, _ := s.Get(ctx, "d", "Cats")
	assert.Equal(t, "birds are great. Cats!", got)

	// Headings and markers are not touched.
	res, err = s.SearchAndReplace(ctx, "d", "cats", "fish", section.ReplaceOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	ok, _ := s.Exists(ctx, "d", "Cats")
	assert.True(t, ok)

	res, err = s.SearchAndReplace(ctx, "d", `(\w+)s$`, "${1}z", section.ReplaceOptions{Regexp: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	got, _ = s.Get(ctx, "d", "Dogs")
	assert.Equal(t, "dogz", got)

	res, err = s.SearchAndReplace(ctx, "d", "dogz", "# Heading", section.ReplaceOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.Equal(t, []string{"Dogs"}, res.Skipped)

	_, err = s.SearchAndReplace(ctx, "d", "(", "x", section.ReplaceOptions{Regexp: true})
	assert.ErrorIs(t, err, failure.ErrValidation)
}

func TestSearchAndReplace_TrailingNewline(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	content := "---\ntitle: T\nauthor: A\ndate: 2024-11-20\n---\n## A\n<!-- Section: A -->\nfoo"
	require.NoError(t, s.Put(ctx, "d", []byte(content), false))

	res, err := s.SearchAndReplace(ctx, "d", "foo", "bar\n", section.ReplaceOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)

	got, err := s.Get(ctx, "d", "A")
	require.NoError(t, err)
	assert.Equal(t, "bar\n", got, "replacement text is kept byte for byte")

	require.NoError(t, s.Edit(ctx, "d", "A", "bar\n"))
	assert.Equal(t, content[:len(content)-len("foo")]+"bar\n\n", readFile(t, s, "d"),
		"replace and edit commit the same bytes")
}

func TestSearchAndReplace_First(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "x x x", section.AppendOptions{}))
	require.NoError(t, s.Append(ctx, "d", "B", "x", section.AppendOptions{}))

	res, err := s.SearchAndReplace(ctx, "d", "x", "y", section.ReplaceOptions{First: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	got, _ := s.Get(ctx, "d", "A")
	assert.Equal(t, "y x x", got)

	_, err = s.SearchAndReplace(ctx, "d", `(x) (x)`, "$2-$1", section.ReplaceOptions{First: true, Regexp: true})
	require.NoError(t, err)
	got, _ = s.Get(ctx, "d", "A")
	assert.Equal(t, "y x-x", got)
}

func TestSetMetadata(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "body", section.AppendOptions{}))

	require.NoError(t, s.SetMetadata(ctx, "d", "status", "review"))
	m, err := s.Metadata(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "review", m.String("status"))

	err = s.SetMetadata(ctx, "d", "status", "published")
	assert.Equal(t, failure.CodeInvalidMetadata, failure.CodeOf(err))

	err = s.SetMetadata(ctx, "d", "author", nil)
	assert.Equal(t, failure.CodeInvalidMetadata, failure.CodeOf(err))

	got, err := s.Get(ctx, "d", "A")
	require.NoError(t, err)
	assert.Equal(t, "body", got)
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "v1", section.AppendOptions{}))
	old := readFile(t, s, "d")
	require.NoError(t, s.Edit(ctx, "d", "A", "v2"))

	require.NoError(t, s.Restore(ctx, "d", []byte(old)))
	assert.Equal(t, old, readFile(t, s, "d"))

	err := s.Restore(ctx, "d", []byte("# A\n<!-- Section: B -->\n"))
	assert.Equal(t, failure.CodeInvalidMarker, failure.CodeOf(err))
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	content := "---\ntitle: T\nauthor: A\ndate: 2024-11-20\n---\n## A\n<!-- Section: A -->\nbody\n"

	require.NoError(t, s.Put(ctx, "imported/d", []byte(content), false))
	assert.Equal(t, content, readFile(t, s, "imported/d"))

	err := s.Put(ctx, "imported/d", []byte(content), false)
	assert.ErrorIs(t, err, section.ErrExists)

	replaced := strings.Replace(content, "body", "changed", 1)
	require.NoError(t, s.Put(ctx, "imported/d", []byte(replaced), true))
	assert.Equal(t, replaced, readFile(t, s, "imported/d"))

	err = s.Put(ctx, "nometa", []byte("## A\n<!-- Section: A -->\nbody\n"), false)
	require.Error(t, err)
	assert.Equal(t, failure.CodeInvalidMetadata, failure.CodeOf(err))
	assert.NoFileExists(t, s.File("nometa"))

	partial := "---\ntitle: T\n---\n## A\n<!-- Section: A -->\nbody\n"
	err = s.Put(ctx, "imported/d", []byte(partial), true)
	assert.Equal(t, failure.CodeInvalidMetadata, failure.CodeOf(err))
	assert.Equal(t, replaced, readFile(t, s, "imported/d"))
}

func TestReaders_NoLockFiles(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	setupDoc(t, s, "d")
	require.NoError(t, s.Append(ctx, "d", "A", "a", section.AppendOptions{}))

	l, err := s.Locks().Acquire(ctx, "d", lock.Document, "holder", lock.Options{})
	require.NoError(t, err)
	defer l.Release(ctx)

	got, err := s.Get(ctx, "d", "A")
	require.NoError(t, err)
	assert.Equal(t, "a", got)

	_, err = s.Get(ctx, "missing", "A")
	assert.ErrorIs(t, err, section.ErrNotFound)

	entries, err := os.ReadDir(filepath.Join(s.Root(), ".locks", "d"))
	require.NoError(t, err)
	var records int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".json") {
			records++
		}
	}
	assert.Equal(t, 1, records)
}
