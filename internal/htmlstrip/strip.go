package htmlstrip

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements have their text content dropped along with the markup.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

// breaking elements are replaced by a newline so that adjacent blocks of
// text do not run together.
var breaking = map[atom.Atom]bool{
	atom.Br:         true,
	atom.P:          true,
	atom.Div:        true,
	atom.Li:         true,
	atom.Tr:         true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Table:      true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Hr:         true,
}

// Strip removes markup from s and returns its text content with entities
// decoded. Comments, doctypes and the content of script and style elements
// are dropped. Input without markup is returned unchanged.
func Strip(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	b.Grow(len(s))
	depth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF is the only error a strings.Reader produces.
			return strings.TrimRight(b.String(), "\n")
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] && tt == html.StartTagToken {
				depth++
				continue
			}
			if breaking[a] && depth == 0 {
				newline(&b)
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if skipped[a] {
				if depth > 0 {
					depth--
				}
				continue
			}
			if breaking[a] && depth == 0 {
				newline(&b)
			}
		}
	}
}

// newline appends a line break unless the output is empty or already ends
// with one.
func newline(b *strings.Builder) {
	out := b.String()
	if out == "" || strings.HasSuffix(out, "\n") {
		return
	}
	b.WriteByte('\n')
}
