// Package markdown renders HTML email bodies as readable Markdown.
//
// Headings up to level 3, lists, links, images and paragraphs get Markdown
// syntax. Everything else is reduced to its text; tables are not translated.
package markdown

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Converter turns HTML into Markdown.
type Converter struct {
	// Flatten collapses all whitespace in the result, line breaks included,
	// producing a single line of text.
	Flatten bool
}

// ToMarkdown converts src and falls back to returning src unchanged when
// the HTML cannot be converted. Empty input yields an empty string.
func (c Converter) ToMarkdown(src string) string {
	if src == "" {
		return ""
	}
	out, err := c.Convert(src)
	if err != nil {
		return src
	}
	return out
}

// Convert parses src as an HTML fragment and renders it as Markdown.
func (c Converter) Convert(src string) (string, error) {
	if src == "" {
		return "", nil
	}

	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	r := &renderer{}
	r.walk(doc)

	if c.Flatten {
		return strings.Join(strings.Fields(r.buf.String()), " "), nil
	}
	return normalize(r.buf.String()), nil
}

type list struct {
	ordered bool
	n       int
}

// renderer accumulates output. Line breaks, spaces and block markers are
// kept pending until the next piece of visible text so that empty elements
// leave no trace.
type renderer struct {
	buf    strings.Builder
	brk    int
	space  bool
	prefix string
	lists  []*list
}

func (r *renderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.text(n.Data)
	case html.ElementNode:
		r.element(n)
	case html.CommentNode, html.DoctypeNode:
	default:
		r.children(n)
	}
}

func (r *renderer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *renderer) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Script, atom.Style:
		return

	case atom.Img:
		r.image(n)

	case atom.P:
		r.lineBreak(2)
		r.children(n)
		r.lineBreak(2)

	case atom.H1, atom.H2, atom.H3:
		level := int(n.Data[1] - '0')
		r.lineBreak(1)
		r.block(n, strings.Repeat("#", level)+" ", false)
		r.lineBreak(1)

	case atom.Ul, atom.Ol:
		l := &list{ordered: n.DataAtom == atom.Ol}
		if l.ordered {
			if start, err := strconv.Atoi(attr(n, "start")); err == nil {
				l.n = start - 1
			}
		}
		r.lists = append(r.lists, l)
		r.lineBreak(1)
		r.children(n)
		r.lineBreak(1)
		r.lists = r.lists[:len(r.lists)-1]

	case atom.Li:
		r.lineBreak(1)
		if len(r.lists) == 0 {
			r.children(n)
			r.lineBreak(1)
			break
		}
		l := r.lists[len(r.lists)-1]
		if !l.ordered {
			r.block(n, "- ", true)
			r.lineBreak(1)
			break
		}
		l.n++
		if !r.block(n, strconv.Itoa(l.n)+". ", true) {
			l.n--
		}
		r.lineBreak(1)

	case atom.A:
		r.link(n)

	case atom.Br:
		r.lineBreak(1)

	case atom.Td, atom.Th:
		r.space = true
		r.children(n)
		r.space = true

	case atom.Div, atom.Table, atom.Tr, atom.Blockquote, atom.Section,
		atom.Article, atom.Header, atom.Footer, atom.Center:
		r.lineBreak(1)
		r.children(n)
		r.lineBreak(1)

	default:
		r.children(n)
	}
}

func (r *renderer) image(n *html.Node) {
	src := attr(n, "src")
	if src == "" {
		return
	}
	alt := strings.Join(strings.Fields(attr(n, "alt")), " ")
	if alt == "" {
		alt = "Image"
	}
	r.emit("![" + alt + "](" + src + ")")
}

func (r *renderer) link(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))

	inner := &renderer{}
	inner.children(n)
	label := strings.Join(strings.Fields(inner.buf.String()), " ")

	if href == "" || label == "" {
		r.children(n)
		return
	}

	raw := textContent(n)
	if strings.TrimLeftFunc(raw, unicode.IsSpace) != raw {
		r.space = true
	}
	r.emit("[" + label + "](" + href + ")")
	if strings.TrimRightFunc(raw, unicode.IsSpace) != raw {
		r.space = true
	}
}

func (r *renderer) text(s string) {
	collapsed := collapse(s)
	trimmed := strings.TrimSpace(collapsed)
	if trimmed == "" {
		if collapsed != "" {
			r.space = true
		}
		return
	}
	if collapsed[0] == ' ' {
		r.space = true
	}
	r.emit(trimmed)
	if collapsed[len(collapsed)-1] == ' ' {
		r.space = true
	}
}

func (r *renderer) lineBreak(n int) {
	if n > r.brk {
		r.brk = n
	}
}

// marker queues a block prefix such as "## " or "- ". List markers replace
// an unused pending marker so that empty items disappear.
func (r *renderer) marker(s string, replace bool) {
	if replace {
		r.prefix = s
		return
	}
	r.prefix += s
}

// block renders the children of n behind marker m. When n produces no
// output the pending prefix is restored so the marker does not attach to
// later text. It reports whether anything was written.
func (r *renderer) block(n *html.Node, m string, replace bool) bool {
	prefix, start := r.prefix, r.buf.Len()
	r.marker(m, replace)
	r.children(n)
	if r.buf.Len() == start {
		r.prefix = prefix
		return false
	}
	return true
}

func (r *renderer) emit(s string) {
	if r.buf.Len() > 0 {
		switch {
		case r.brk > 0:
			r.buf.WriteString(strings.Repeat("\n", r.brk))
		case r.space:
			r.buf.WriteByte(' ')
		}
	}
	r.brk, r.space = 0, false
	if r.prefix != "" {
		r.buf.WriteString(r.prefix)
		r.prefix = ""
	}
	r.buf.WriteString(s)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// collapse replaces every run of whitespace with a single space.
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, c := range s {
		if unicode.IsSpace(c) {
			if !inSpace {
				b.WriteByte(' ')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(c)
	}
	return b.String()
}

// normalize trims every line and reduces runs of blank lines to one.
func normalize(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
