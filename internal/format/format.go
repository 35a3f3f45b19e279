// Package format renders listings for the text CLI output.
package format

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Size formats a byte count as human-readable (e.g., "1.2K", "3.4M").
func Size(n int) string {
	const (
		_      = iota
		KB int = 1 << (10 * iota)
		MB
		GB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fG", float64(n)/float64(GB))
	case n >= MB:
		return fmt.Sprintf("%.1fM", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.1fK", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%dB", n)
	}
}

type node struct {
	children map[string]*node
	doc      bool
}

// Tree prints document ids as a directory tree. Ids use "/" separators.
func Tree(w io.Writer, ids []string) error {
	root := &node{children: map[string]*node{}}
	for _, id := range ids {
		cur := root
		for _, part := range strings.Split(id, "/") {
			next := cur.children[part]
			if next == nil {
				next = &node{children: map[string]*node{}}
				cur.children[part] = next
			}
			cur = next
		}
		cur.doc = true
	}
	return walk(w, root, "")
}

func walk(w io.Writer, n *node, prefix string) error {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		child := n.children[name]
		last := i == len(names)-1

		connector, indent := "├── ", "│   "
		if last {
			connector, indent = "└── ", "    "
		}
		// A document can share its id with a directory (reports and reports/q3).
		suffix := ""
		if len(child.children) > 0 && !child.doc {
			suffix = "/"
		}
		if _, err := fmt.Fprintf(w, "%s%s%s%s\n", prefix, connector, name, suffix); err != nil {
			return err
		}
		if err := walk(w, child, prefix+indent); err != nil {
			return err
		}
	}
	return nil
}
