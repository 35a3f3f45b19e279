package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	env := newBareEnv(t)
	out := env.run("init")
	env.contains(out, "Initialised quill workspace")

	_, err := os.Stat(filepath.Join(env.dir, ".quill"))
	require.NoError(t, err)

	_, err = env.runErr("init")
	assert.Error(t, err, "second init without --force fails")
	env.run("init", "--force")
}

func TestNotInitialised(t *testing.T) {
	env := newBareEnv(t)
	out, err := env.runErr("ls")
	require.Error(t, err)
	env.contains(out, "quill init")
}

func TestCreate(t *testing.T) {
	t.Run("writes metadata", func(t *testing.T) {
		env := newTestEnv(t)
		env.run("create", "reports/q3", "--title", "Q3 Report", "--tags", "finance,q3", "--meta", "team=ops")

		b, err := os.ReadFile(filepath.Join(env.dir, "reports", "q3.md"))
		require.NoError(t, err)
		env.contains(string(b), "title: Q3 Report")
		env.contains(string(b), "author: tester")
		env.contains(string(b), "status: draft")
		env.contains(string(b), "team: ops")
	})

	t.Run("existing fails", func(t *testing.T) {
		env := newTestEnv(t)
		env.run("create", "d", "--title", "D")
		out, err := env.runErr("create", "d", "--title", "D")
		require.Error(t, err)
		env.contains(out, "exists")
	})

	t.Run("requires author", func(t *testing.T) {
		env := newBareEnv(t)
		env.run("init")
		out, err := env.runErr("create", "d", "--title", "D")
		require.Error(t, err)
		env.contains(out, "author not configured")

		env.run("create", "d", "--title", "D", "--author", "ada")
	})

	t.Run("invalid status", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.runErr("create", "d", "--title", "D", "--status", "bogus")
		assert.Error(t, err)
	})

	t.Run("JSON error carries code", func(t *testing.T) {
		env := newTestEnv(t)
		env.run("create", "d", "--title", "D")
		out := env.stdout("create", "d", "--title", "D", "-o", "json")

		var resp struct {
			Failure struct {
				Kind string `json:"kind"`
				Code string `json:"code"`
			} `json:"failure"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.Equal(t, "ValidationError", resp.Failure.Kind)
		assert.Equal(t, "ALREADY_EXISTS", resp.Failure.Code)
	})
}

func TestSectionCommands(t *testing.T) {
	t.Run("append and get", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()

		env.equals(env.run("get", "reports/q3", "Intro", "--raw"), "Revenue grew 4%.")
		env.equals(env.run("exists", "reports/q3", "Results"), "true")
		env.equals(env.run("exists", "reports/q3", "results"), "false")
	})

	t.Run("append from stdin", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		env.runStdin("line one\nline two", "append", "reports/q3", "Notes")
		env.equals(env.run("get", "reports/q3", "Notes", "--raw"), "line one\nline two")
	})

	t.Run("append from file", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		p := filepath.Join(t.TempDir(), "body.md")
		require.NoError(t, os.WriteFile(p, []byte("from a file"), 0o644))
		env.run("append", "reports/q3", "Appendix", "-f", p)
		env.equals(env.run("get", "reports/q3", "Appendix", "--raw"), "from a file")
	})

	t.Run("duplicate title", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		_, err := env.runErr("append", "reports/q3", "Intro", "again")
		require.Error(t, err)

		env.run("append", "reports/q3", "Intro", "again", "--allow-duplicate")
		env.equals(env.run("get", "reports/q3", "Intro", "--raw"), "Revenue grew 4%.\nagain")
	})

	t.Run("edit", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		env.run("edit", "reports/q3", "Intro", "Revenue grew 5%.")
		env.equals(env.run("get", "reports/q3", "Intro", "--raw"), "Revenue grew 5%.")
		env.equals(env.run("get", "reports/q3", "Results", "--raw"), "Margins held.")
	})

	t.Run("sections in order", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		env.run("append", "reports/q3", "Summary", "s", "--after", "Intro")

		out := env.stdout("sections", "reports/q3", "-o", "json")
		var infos []struct {
			Title string `json:"title"`
			Level int    `json:"level"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &infos))
		require.Len(t, infos, 3)
		assert.Equal(t, "Intro", infos[0].Title)
		assert.Equal(t, "Summary", infos[1].Title)
		assert.Equal(t, "Results", infos[2].Title)
		assert.Equal(t, 2, infos[0].Level)
	})

	t.Run("rm", func(t *testing.T) {
		env := newTestEnv(t)
		env.report()
		env.run("rm", "reports/q3", "Intro")
		env.equals(env.run("exists", "reports/q3", "Intro"), "false")

		_, err := env.runErr("rm", "reports/q3", "Intro")
		assert.Error(t, err)
	})

	t.Run("missing document", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.runErr("exists", "nope", "Intro")
		assert.Error(t, err)
	})
}

func TestMeta(t *testing.T) {
	env := newTestEnv(t)
	env.report()

	out := env.run("meta", "reports/q3")
	env.contains(out, "title: Q3 Report")

	env.run("meta", "reports/q3", "status", "review")
	env.equals(env.run("meta", "reports/q3", "status"), "review")

	env.run("meta", "reports/q3", "owner", "ops")
	env.run("meta", "reports/q3", "owner", "--unset")
	env.equals(env.run("meta", "reports/q3", "owner"), "")

	_, err := env.runErr("meta", "reports/q3", "title", "--unset")
	assert.Error(t, err, "required keys cannot be removed")
}

func TestLsPutAndLint(t *testing.T) {
	env := newTestEnv(t)
	env.report()

	doc := "---\ntitle: Notes\nauthor: ada\ndate: 2024-01-01\n---\n## One\nfirst\n## Two\nsecond\n"
	out := env.runStdin(doc, "put", "notes/a")
	env.contains(out, "2 marker(s) added")
	env.equals(env.run("get", "notes/a", "Two", "--raw"), "second")

	_, err := env.runErr("put", "notes/a", "-f", "-")
	assert.Error(t, err, "existing document needs --overwrite")

	env.equals(env.run("ls"), "notes/a\nreports/q3")
	env.equals(env.run("ls", "notes"), "notes/a")

	env.contains(env.run("lint", "notes/a"), "notes/a: ok")
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "guides"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "guides", "setup.md"), []byte("# Setup\n\n## Install\nRun it.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "page.html"), []byte("<h2>Hello</h2><p>World</p>"), 0o644))

	out := env.run("import", src, "--dry-run")
	env.contains(out, "guides/setup")
	env.equals(env.run("ls"), "")

	env.run("import", src, "--prefix", "kb")
	env.equals(env.run("ls"), "kb/guides/setup\nkb/page")
	env.equals(env.run("get", "kb/guides/setup", "Install", "--raw"), "Run it.")
	env.contains(env.run("get", "kb/page", "Hello", "--raw"), "World")
}
