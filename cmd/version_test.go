package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotHistoryRestore(t *testing.T) {
	env := newTestEnv(t)
	env.report()

	env.contains(env.run("snapshot", "reports/q3"), "Snapshot 1 of reports/q3")
	env.run("edit", "reports/q3", "Intro", "Revenue fell.")
	env.run("snapshot", "reports/q3")

	out := env.stdout("history", "reports/q3", "-o", "json")
	var entries []struct {
		Version  int    `json:"version"`
		Checksum string `json:"checksum"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Version)
	assert.NotEmpty(t, entries[0].Checksum)

	env.contains(env.run("diff", "reports/q3", "1:2", "--raw"), "Revenue fell.")

	env.run("restore", "reports/q3", "1")
	env.equals(env.run("get", "reports/q3", "Intro", "--raw"), "Revenue grew 4%.")
	env.contains(env.run("get", "reports/q3", "--version", "2", "--raw"), "Revenue fell.")

	_, err := env.runErr("restore", "reports/q3", "9")
	assert.Error(t, err)
	_, err = env.runErr("restore", "reports/q3", "0")
	assert.Error(t, err)
}

func TestVerifyDetectsTampering(t *testing.T) {
	env := newTestEnv(t)
	env.report()
	env.run("snapshot", "reports/q3")
	env.contains(env.run("verify", "reports/q3"), "v1 ok")

	snap := filepath.Join(env.dir, "reports", "q3_v1.md")
	require.FileExists(t, snap)
	require.NoError(t, os.WriteFile(snap, []byte("corrupt"), 0o644))

	out, err := env.runErr("verify", "reports/q3", "1")
	require.Error(t, err)
	env.contains(out, "FAILED")

	_, err = env.runErr("restore", "reports/q3", "1")
	assert.Error(t, err, "restore verifies first")
}

func TestPrune(t *testing.T) {
	env := newTestEnv(t)
	env.report()
	for _, status := range []string{"draft", "review", "final"} {
		env.run("meta", "reports/q3", "status", status)
		env.run("snapshot", "reports/q3")
	}

	env.contains(env.run("prune", "reports/q3", "--keep", "1"), "Pruned 2 snapshot(s)")

	out := env.stdout("history", "reports/q3", "-o", "json")
	var entries []struct {
		Version int `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].Version)
}
