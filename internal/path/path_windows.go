//go:build windows

package path

import "path/filepath"

func toSlash(p string) string {
	return filepath.ToSlash(p)
}
