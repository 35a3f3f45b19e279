// Package repo provides workspace initialisation and discovery for quill.
//
// A quill workspace is any directory containing a .quill directory. Documents
// live beside it as plain markdown files; .quill holds local config and the
// staging area for conversions. Discovery mirrors git: starting from the
// current directory, walk up until a .quill directory is found or the
// filesystem root is reached.
package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// Dir is the workspace marker directory.
	Dir = ".quill"
	// TmpDir is the staging directory for conversion artifacts, inside Dir.
	TmpDir = "tmp"
)

// ErrNotInitialised is returned when no workspace is found.
var ErrNotInitialised = errors.New("quill not initialised (run 'quill init')")

// ignored lists the .quill entries that never belong in version control.
var ignored = []string{TmpDir + "/", "config.yaml"}

// Init creates a workspace in dir (current directory when empty).
//
// Reinitialising with force clears the staging area but never touches
// documents, snapshots or lock records.
func Init(dir string, force bool) error {
	if dir == "" {
		dir = "."
	}
	quillDir := filepath.Join(dir, Dir)

	if info, err := os.Stat(quillDir); err == nil && info.IsDir() {
		if !force {
			return fmt.Errorf("workspace already initialised in %s (use --force to reinitialise)", dir)
		}
		if err := os.RemoveAll(filepath.Join(quillDir, TmpDir)); err != nil {
			return fmt.Errorf("clear staging area: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Join(quillDir, TmpDir), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return ensureIgnored(filepath.Join(quillDir, ".gitignore"), ignored...)
}

// Discover walks up from the working directory and returns the workspace
// root (the directory containing .quill).
func Discover() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return DiscoverFrom(wd)
}

// DiscoverFrom walks up from start looking for a .quill directory.
func DiscoverFrom(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, Dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialised
		}
		dir = parent
	}
}

// Staging returns the staging directory for a workspace root.
func Staging(root string) string {
	return filepath.Join(root, Dir, TmpDir)
}

// ensureIgnored appends missing entries to a gitignore file, preserving any
// existing content.
func ensureIgnored(path string, entries ...string) error {
	var lines []string
	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, l := range strings.Split(string(content), "\n") {
		lines = append(lines, strings.TrimSpace(l))
	}

	var b strings.Builder
	b.Write(content)
	if len(content) == 0 {
		b.WriteString("# quill - staging area and local config\n")
	} else if !strings.HasSuffix(string(content), "\n") {
		b.WriteString("\n")
	}
	changed := len(content) == 0
	for _, e := range entries {
		if slices.Contains(lines, e) {
			continue
		}
		b.WriteString(e + "\n")
		changed = true
	}
	if !changed {
		return nil
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write gitignore: %w", err)
	}
	return nil
}
