// internal/document/parser.go
package document

import (
	"path/filepath"
	"regexp"
	"strings"
)

// UntitledSentinel is the title used when the document carries no title marker.
const UntitledSentinel = "제목 없음"

// ParsedDocument is the immutable field set extracted from a raw document.
type ParsedDocument struct {
	Title      string
	Category   *string
	Tags       []string
	Body       string
	TitleFound bool
}

// HasCategory reports whether a non-empty category marker was present.
func (d ParsedDocument) HasCategory() bool {
	return d.Category != nil && *d.Category != ""
}

// markerPattern builds the matcher for "[key: value]" blocks. The value is
// matched non-greedily so the first closing bracket ends the block.
func markerPattern(keys ...string) *regexp.Regexp {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	const ws = `[\s\p{Zs}]*`
	return regexp.MustCompile(`\[` + ws + `(?i:` + strings.Join(quoted, "|") + `)` + ws + `:` + ws + `([\s\S]*?)` + ws + `\]`)
}

var (
	titleMarker    = markerPattern("제목", "title")
	categoryMarker = markerPattern("카테고리", "category")
	tagMarker      = markerPattern("태그", "tags", "tag")
	tagSeparators  = regexp.MustCompile(`[,，]`)
)

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Parse extracts title, category, tags and body from raw. Only the first
// occurrence of each marker is consumed; later occurrences stay in the body.
func Parse(raw string) ParsedDocument {
	p := &pass{body: NormalizeNewlines(raw)}

	doc := ParsedDocument{Title: UntitledSentinel}
	if title, ok := p.pickFirst(titleMarker); ok {
		doc.TitleFound = true
		if title != "" {
			doc.Title = title
		}
	}
	if category, ok := p.pickFirst(categoryMarker); ok && category != "" {
		doc.Category = &category
	}
	if tagLine, ok := p.pickFirst(tagMarker); ok {
		doc.Tags = SplitTags(tagLine)
	}
	doc.Body = strings.TrimSpace(p.body)
	return doc
}

type pass struct {
	body string
}

// pickFirst removes the first match of re from the body and returns its
// value with whitespace runs collapsed.
func (p *pass) pickFirst(re *regexp.Regexp) (string, bool) {
	loc := re.FindStringSubmatchIndex(p.body)
	if loc == nil {
		return "", false
	}
	value := p.body[loc[2]:loc[3]]
	p.body = strings.TrimSpace(p.body[:loc[0]] + p.body[loc[1]:])
	return collapseSpaces(value), true
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitTags turns a tag line such as "#AAA, bbb #ccc" into an ordered,
// duplicate-free list of tags without the leading '#'.
func SplitTags(line string) []string {
	var tags []string
	seen := make(map[string]struct{})
	for _, chunk := range tagSeparators.Split(line, -1) {
		for _, tok := range strings.Fields(chunk) {
			tok = strings.TrimPrefix(tok, "#")
			if tok == "" {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			tags = append(tags, tok)
		}
	}
	return tags
}

// FallbackTitle derives a title from the document file name.
func FallbackTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
