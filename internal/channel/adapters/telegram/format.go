package telegram

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

// MarkdownToHTML renders Markdown into the HTML subset Telegram accepts
// (b, i, s, code, pre, a, blockquote). Headings become bold lines, list items
// get bullet or number prefixes, and raw HTML is shown escaped.
func MarkdownToHTML(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))
	r := &htmlRenderer{source: source}
	if err := ast.Walk(doc, r.visit); err != nil {
		return textEscaper.Replace(src)
	}
	out := blankRuns.ReplaceAllString(r.buf.String(), "\n\n")
	return strings.TrimSpace(out)
}

type htmlRenderer struct {
	source []byte
	buf    strings.Builder
}

func (r *htmlRenderer) write(s string) {
	r.buf.WriteString(s)
}

func (r *htmlRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Paragraph:
		if !entering {
			r.write("\n\n")
		}
	case *ast.ThematicBreak:
		if entering {
			r.write("———\n\n")
		}
	case *ast.TextBlock:
		if !entering && node.NextSibling() != nil {
			r.write("\n")
		}
	case *ast.Heading:
		if entering {
			r.write("<b>")
		} else {
			r.write("</b>\n\n")
		}
	case *ast.Blockquote:
		if entering {
			r.write("<blockquote>")
		} else {
			trimTrailingNewlines(&r.buf)
			r.write("</blockquote>\n\n")
		}
	case *ast.List:
		if !entering {
			r.write("\n")
		}
	case *ast.ListItem:
		if entering {
			r.write(listPrefix(node))
		} else {
			trimTrailingNewlines(&r.buf)
			r.write("\n")
		}
	case *ast.FencedCodeBlock:
		if entering {
			r.writeCodeBlock(node, string(node.Language(r.source)))
		}
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		if entering {
			r.writeCodeBlock(node, "")
		}
		return ast.WalkSkipChildren, nil
	case *ast.HTMLBlock:
		if entering {
			r.write(textEscaper.Replace(linesText(node, r.source)))
			if node.HasClosure() {
				r.write(textEscaper.Replace(string(node.ClosureLine.Value(r.source))))
			}
			r.write("\n\n")
		}
		return ast.WalkSkipChildren, nil
	case *ast.Text:
		if entering {
			value := node.Segment.Value(r.source)
			if !node.IsRaw() {
				value = util.ResolveEntityNames(util.ResolveNumericReferences(util.UnescapePunctuations(value)))
			}
			r.write(textEscaper.Replace(string(value)))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.write("\n")
			}
		}
	case *ast.String:
		if entering {
			r.write(textEscaper.Replace(string(node.Value)))
		}
	case *ast.Emphasis:
		tag := "i"
		if node.Level >= 2 {
			tag = "b"
		}
		r.writeTag(tag, entering)
	case *extast.Strikethrough:
		r.writeTag("s", entering)
	case *ast.CodeSpan:
		if entering {
			r.write("<code>" + textEscaper.Replace(inlineText(node, r.source)) + "</code>")
		}
		return ast.WalkSkipChildren, nil
	case *ast.Link:
		if entering {
			r.write(`<a href="` + attrEscaper.Replace(string(node.Destination)) + `">`)
		} else {
			r.write("</a>")
		}
	case *ast.Image:
		if entering {
			r.write(`<a href="` + attrEscaper.Replace(string(node.Destination)) + `">`)
		} else {
			r.write("</a>")
		}
	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.source))
			label := string(node.Label(r.source))
			r.write(`<a href="` + attrEscaper.Replace(url) + `">` + textEscaper.Replace(label) + "</a>")
		}
		return ast.WalkSkipChildren, nil
	case *ast.RawHTML:
		if entering {
			segs := node.Segments
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				r.write(textEscaper.Replace(string(seg.Value(r.source))))
			}
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) writeTag(tag string, entering bool) {
	if entering {
		r.write("<" + tag + ">")
	} else {
		r.write("</" + tag + ">")
	}
}

func (r *htmlRenderer) writeCodeBlock(n ast.Node, lang string) {
	code := strings.TrimRight(linesText(n, r.source), "\n")
	if lang != "" {
		r.write(`<pre><code class="language-` + attrEscaper.Replace(lang) + `">`)
	} else {
		r.write("<pre><code>")
	}
	r.write(textEscaper.Replace(code))
	r.write("</code></pre>\n\n")
}

func listPrefix(item *ast.ListItem) string {
	depth := 0
	var list *ast.List
	for p := item.Parent(); p != nil; p = p.Parent() {
		if l, ok := p.(*ast.List); ok {
			if list == nil {
				list = l
			}
			depth++
		}
	}
	indent := ""
	if depth > 1 {
		indent = strings.Repeat("  ", depth-1)
	}
	if list == nil || !list.IsOrdered() {
		return indent + "• "
	}
	index := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		index++
	}
	return indent + strconv.Itoa(list.Start+index) + ". "
}

func linesText(n ast.Node, source []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		}
	}
	return b.String()
}

func trimTrailingNewlines(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, "\n")
	if len(trimmed) == len(s) {
		return
	}
	b.Reset()
	b.WriteString(trimmed)
}
