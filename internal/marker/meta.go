// meta.go implements the YAML metadata block at the head of a document.
//
// Separated from marker.go so the section scanner stays independent of the
// metadata rules. The raw block is kept verbatim and only re-encoded when a
// key is changed through SetMeta, so reading and editing sections never
// reformats the frontmatter.

package marker

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jpl-au/quill/internal/failure"
	"gopkg.in/yaml.v3"
)

// Metadata keys with defined meaning.
const (
	KeyTitle   = "title"
	KeyAuthor  = "author"
	KeyDate    = "date"
	KeyVersion = "version"
	KeyStatus  = "status"
	KeyTags    = "tags"
)

// Metadata limits.
const (
	MaxMetadataSize = 1024
	MaxTags         = 10
)

// Required lists the keys every document must carry.
var Required = []string{KeyTitle, KeyAuthor, KeyDate}

// Statuses lists the accepted values of the status key.
var Statuses = []string{"draft", "review", "final"}

// keyOrder fixes the position of well-known keys when the block is encoded.
var keyOrder = []string{KeyTitle, KeyAuthor, KeyDate, KeyVersion, KeyStatus, KeyTags}

// Metadata is the decoded metadata block. Values are scalars or lists.
type Metadata map[string]any

// NewMetadata returns the required keys for a new draft dated on.
func NewMetadata(title, author string, on time.Time) Metadata {
	return Metadata{
		KeyTitle:  title,
		KeyAuthor: author,
		KeyDate:   on.Format(time.DateOnly),
		KeyStatus: "draft",
	}
}

// String returns the value of key rendered as text, or "".
func (m Metadata) String(key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.Format(time.DateOnly)
	default:
		return fmt.Sprint(t)
	}
}

// Tags returns the tags list, accepting a single string as one tag.
func (m Metadata) Tags() []string {
	switch t := m[KeyTags].(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			out = append(out, fmt.Sprint(v))
		}
		return out
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

// ParseValue converts text input for key: tags become a comma-separated
// list and version an integer. Other keys stay strings.
func ParseValue(key, s string) any {
	switch key {
	case KeyTags:
		tags := []string{}
		for t := range strings.SplitSeq(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
		return tags
	case KeyVersion:
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
	}
	return s
}

// Version returns the numeric version key, or 0 when absent or invalid.
func (m Metadata) Version() int {
	n, err := strconv.Atoi(m.String(KeyVersion))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Validate checks required keys, value rules and the encoded size.
func (m Metadata) Validate() error {
	var missing []string
	for _, k := range Required {
		if strings.TrimSpace(m.String(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return failure.Validation(failure.CodeInvalidMetadata, "required metadata missing").
			With("missing", strings.Join(missing, ",")).
			Suggest("provide non-empty title, author and date")
	}

	if _, ok := m[KeyVersion]; ok {
		if n, err := strconv.Atoi(m.String(KeyVersion)); err != nil || n < 0 {
			return failure.Validation(failure.CodeInvalidMetadata, "version must be a non-negative integer").
				With("version", m.String(KeyVersion))
		}
	}

	if _, ok := m[KeyStatus]; ok {
		if s := m.String(KeyStatus); !slices.Contains(Statuses, s) {
			return failure.Validation(failure.CodeInvalidMetadata, "unknown status").
				With("status", s).
				Suggest("use one of " + strings.Join(Statuses, ", "))
		}
	}

	if err := validateTags(m.Tags()); err != nil {
		return err
	}

	if n := len(encodeFront(m)); n > MaxMetadataSize {
		return failure.Validation(failure.CodeInvalidMetadata, "metadata block too large").
			With("size", n).
			With("max", MaxMetadataSize)
	}
	return nil
}

func validateTags(tags []string) error {
	if len(tags) > MaxTags {
		return failure.Validation(failure.CodeInvalidMetadata, "too many tags").
			With("count", len(tags)).
			With("max", MaxTags)
	}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t == "" || strings.IndexFunc(t, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}) >= 0 {
			return failure.Validation(failure.CodeInvalidMetadata, "tags must be alphanumeric").
				With("tag", t)
		}
		if seen[t] {
			return failure.Validation(failure.CodeInvalidMetadata, "duplicate tag").
				With("tag", t)
		}
		seen[t] = true
	}
	return nil
}

// SetMeta sets one metadata key. The block is re-encoded on the next Render.
func (d *Document) SetMeta(key string, value any) {
	if d.Meta == nil {
		d.Meta = Metadata{}
	}
	d.Meta[key] = value
	d.metaDirty = true
}

// ReplaceMeta swaps the whole metadata block.
func (d *Document) ReplaceMeta(m Metadata) {
	d.Meta = m
	d.metaDirty = true
}

// parseFront consumes the metadata block if the input starts with one and
// returns the index of the first line after it.
func (d *Document) parseFront(lines [][]byte) (int, error) {
	if len(lines) == 0 || trimEOL(lines[0]) != frontDelim {
		return 0, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if trimEOL(lines[i]) == frontDelim {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, failure.Validation(failure.CodeInvalidMetadata, "unclosed metadata block").
			With("line", 1).
			Suggest("close the metadata block with a line containing only ---")
	}

	var raw bytes.Buffer
	for _, l := range lines[:end+1] {
		raw.Write(l)
	}
	d.Front = raw.Bytes()

	var inner bytes.Buffer
	for _, l := range lines[1:end] {
		inner.Write(l)
	}

	meta := Metadata{}
	if len(bytes.TrimSpace(inner.Bytes())) > 0 {
		if err := yaml.Unmarshal(inner.Bytes(), &meta); err != nil {
			return 0, failure.Validation(failure.CodeInvalidMetadata, "malformed metadata block").
				With("line", yamlLine(err)+1).
				Wrap(err)
		}
	}
	d.Meta = meta
	return end + 1, nil
}

// yamlLine extracts the line number from a yaml.v3 error message, or 0.
func yamlLine(err error) int {
	s := err.Error()
	i := strings.Index(s, "line ")
	if i < 0 {
		return 0
	}
	s = s[i+len("line "):]
	j := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if j > 0 {
		s = s[:j]
	}
	n, _ := strconv.Atoi(s)
	return n
}

// EncodeFront renders m as a complete metadata block with delimiters.
func EncodeFront(m Metadata) []byte { return encodeFront(m) }

func encodeFront(m Metadata) []byte {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range orderedKeys(m) {
		var v yaml.Node
		if err := v.Encode(m[k]); err != nil {
			v = yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(m[k])}
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k}, &v)
	}

	var b bytes.Buffer
	b.WriteString(frontDelim + "\n")
	if len(node.Content) > 0 {
		enc := yaml.NewEncoder(&b)
		enc.SetIndent(2)
		_ = enc.Encode(node)
		_ = enc.Close()
	}
	b.WriteString(frontDelim + "\n")
	return b.Bytes()
}

func orderedKeys(m Metadata) []string {
	keys := make([]string, 0, len(m))
	for _, k := range keyOrder {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
		}
	}
	var rest []string
	for _, k := range slices.Sorted(maps.Keys(m)) {
		if !slices.Contains(keyOrder, k) {
			rest = append(rest, k)
		}
	}
	return append(keys, rest...)
}
