// Package media knows about image payloads and the CDN that serves them:
// size-variant URL rewriting, format sniffing, dimension probing and handing
// a URL to an external viewer.
package media

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed variants.toml
var variantsTOML []byte

// Variant names a CDN size class.
type Variant string

const (
	VariantThumbnail Variant = "thumbnail"
	VariantDisplay   Variant = "display"
	VariantCopy      Variant = "copy"
	VariantOriginal  Variant = "original"
)

// ParseVariant accepts the names used on the command line.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(strings.TrimSpace(s))); v {
	case VariantThumbnail, VariantDisplay, VariantCopy, VariantOriginal:
		return v, nil
	case "":
		return VariantDisplay, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

type formatDef struct {
	Extensions []string `toml:"extensions"`
	Magic      []string `toml:"magic"`
}

// VariantTable is the decoded variants.toml.
type VariantTable struct {
	Segments    []string             `toml:"segments"`
	InsertHosts []string             `toml:"insert_hosts"`
	Variants    map[string][]string  `toml:"variants"`
	Formats     map[string]formatDef `toml:"formats"`

	known map[string]bool
}

var defaultTable = mustLoadVariants()

func mustLoadVariants() *VariantTable {
	t, err := LoadVariants(variantsTOML)
	if err != nil {
		panic(fmt.Sprintf("media: embedded variants.toml: %v", err))
	}
	return t
}

// LoadVariants decodes a variant table.
func LoadVariants(data []byte) (*VariantTable, error) {
	var t VariantTable
	if err := toml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing variants: %w", err)
	}
	if len(t.Segments) == 0 {
		return nil, fmt.Errorf("parsing variants: no segments")
	}
	t.known = make(map[string]bool, len(t.Segments))
	for _, s := range t.Segments {
		t.known[s] = true
	}
	return &t, nil
}

// Variants returns the embedded table.
func Variants() *VariantTable { return defaultTable }

// Segment reports the known size segment present in rawURL, if any.
func (t *VariantTable) Segment(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if t.known[first] {
		return first, true
	}
	return "", false
}

// Replace swaps the size segment of rawURL for segment. When rawURL has no
// known segment, the segment is inserted for hosts listed in insert_hosts;
// otherwise the URL is returned unchanged and ok is false.
func (t *VariantTable) Replace(rawURL, segment string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL, false
	}
	rest := strings.TrimPrefix(u.Path, "/")
	first, tail, hasTail := strings.Cut(rest, "/")

	switch {
	case t.known[first] && hasTail:
		u.Path = "/" + segment + "/" + tail
	case t.insertable(u.Hostname()) && rest != "":
		u.Path = "/" + segment + "/" + rest
	default:
		return rawURL, false
	}
	out := u.String()
	return out, out != rawURL
}

// Rewrite maps rawURL to the first candidate segment of variant that changes
// it. A URL already carrying the preferred segment is returned as is.
func (t *VariantTable) Rewrite(rawURL string, v Variant) string {
	candidates := t.Variants[string(v)]
	if cur, ok := t.Segment(rawURL); ok && len(candidates) > 0 && cur == candidates[0] {
		return rawURL
	}
	for _, seg := range candidates {
		if out, ok := t.Replace(rawURL, seg); ok {
			return out
		}
	}
	return rawURL
}

func (t *VariantTable) insertable(host string) bool {
	for _, h := range t.InsertHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// DisplayURL is the grid/preview variant (bmiddle, falling back to orj360).
func DisplayURL(rawURL string) string { return defaultTable.Rewrite(rawURL, VariantDisplay) }

// CopyURL is the variant placed on the clipboard.
func CopyURL(rawURL string) string { return defaultTable.Rewrite(rawURL, VariantCopy) }

// OriginalURL is the full-size variant.
func OriginalURL(rawURL string) string { return defaultTable.Rewrite(rawURL, VariantOriginal) }

// VariantURL rewrites rawURL to v using the embedded table.
func VariantURL(rawURL string, v Variant) string { return defaultTable.Rewrite(rawURL, v) }
