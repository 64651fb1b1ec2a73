// internal/document/render.go
package document

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const nbsp = "&nbsp;"

// RenderParagraphs converts plain text into one <p> element per line, the
// format rich editors expect from a programmatic setContent call.
func RenderParagraphs(text string) string {
	t := strings.TrimRight(NormalizeNewlines(text), "\n")
	if strings.TrimSpace(t) == "" {
		return "<p></p>"
	}

	lines := strings.Split(t, "\n")
	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			out[i] = "<p>" + nbsp + "</p>"
			continue
		}
		out[i] = "<p>" + preserveSpaces(html.EscapeString(line)) + "</p>"
	}
	return strings.Join(out, "\n")
}

// preserveSpaces expands tabs to four spaces and turns every run of two or
// more spaces into the same number of non-breaking spaces.
func preserveSpaces(line string) string {
	line = strings.ReplaceAll(line, "\t", "    ")

	var b strings.Builder
	run := 0
	flush := func() {
		switch {
		case run == 1:
			b.WriteByte(' ')
		case run > 1:
			b.WriteString(strings.Repeat(nbsp, run))
		}
		run = 0
	}
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			run++
			continue
		}
		flush()
		b.WriteByte(line[i])
	}
	flush()
	return b.String()
}

// PlainText returns the visible text of rendered paragraphs, one line per
// block element, with non-breaking spaces folded to plain spaces.
func PlainText(fragment string) string {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return ""
	}

	var lines []string
	var cur strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if n.Parent == nil && strings.TrimSpace(n.Data) == "" {
				return
			}
			cur.WriteString(strings.ReplaceAll(n.Data, "\u00a0", " "))
		case html.ElementNode:
			if n.DataAtom == atom.Br {
				cur.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			lines = append(lines, cur.String())
			cur.Reset()
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return strings.Join(lines, "\n")
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Pre:
		return true
	}
	return false
}
