//go:build !windows

package path

import "strings"

// toSlash converts backslashes explicitly; on Unix they are valid filename
// characters and filepath.ToSlash leaves them alone.
func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
