// ABOUTME: Converts agent markdown answers into styled terminal text
// ABOUTME: Walks the goldmark AST instead of rendering HTML

package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var (
	headingStyle = color.New(color.Bold, color.Underline)
	strongStyle  = color.New(color.Bold)
	emStyle      = color.New(color.Italic)
	codeStyle    = color.New(color.FgCyan)
	linkStyle    = color.New(color.FgBlue, color.Underline)
	quoteStyle   = color.New(color.Faint)
)

var markdown = goldmark.New()

// Markdown renders src for a terminal. Unsupported constructs such as raw
// HTML are dropped; everything else keeps its text.
func Markdown(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	r := &mdRenderer{source: source}
	_ = ast.Walk(doc, r.visit)
	return strings.TrimRight(r.buf.String(), "\n")
}

type mdRenderer struct {
	source []byte
	buf    strings.Builder
}

func (r *mdRenderer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Heading:
		if entering {
			r.buf.WriteString(headingStyle.Sprint(r.inline(n)))
			r.buf.WriteString("\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Paragraph:
		if !entering {
			if _, inItem := n.Parent().(*ast.ListItem); inItem {
				r.buf.WriteString("\n")
			} else {
				r.buf.WriteString("\n\n")
			}
		}

	case *ast.TextBlock:
		if !entering {
			r.buf.WriteString("\n")
		}

	case *ast.Text:
		if entering {
			r.buf.Write(n.Segment.Value(r.source))
			if n.HardLineBreak() || n.SoftLineBreak() {
				r.buf.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			r.buf.Write(n.Value)
		}

	case *ast.CodeSpan:
		if entering {
			r.buf.WriteString(codeStyle.Sprint(r.inline(n)))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Emphasis:
		if entering {
			style := emStyle
			if n.Level >= 2 {
				style = strongStyle
			}
			r.buf.WriteString(style.Sprint(r.inline(n)))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			label := r.inline(n)
			dest := string(n.Destination)
			r.buf.WriteString(linkStyle.Sprint(label))
			if dest != "" && dest != label {
				r.buf.WriteString(" (" + dest + ")")
			}
		}
		return ast.WalkSkipChildren, nil

	case *ast.AutoLink:
		if entering {
			r.buf.WriteString(linkStyle.Sprint(string(n.URL(r.source))))
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		if entering {
			r.codeBlock(n)
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			r.codeBlock(n)
		}
		return ast.WalkSkipChildren, nil

	case *ast.List:
		if !entering {
			if _, nested := n.Parent().(*ast.ListItem); !nested {
				r.buf.WriteString("\n")
			}
		}

	case *ast.ListItem:
		if entering {
			r.buf.WriteString(strings.Repeat("  ", listDepth(n)-1))
			r.buf.WriteString(bullet(n))
		}

	case *ast.Blockquote:
		if entering {
			r.buf.WriteString(quoteStyle.Sprint("│ "))
		}

	case *ast.ThematicBreak:
		if entering {
			r.buf.WriteString(quoteStyle.Sprint(strings.Repeat("─", 20)))
			r.buf.WriteString("\n\n")
		}

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}

func (r *mdRenderer) codeBlock(n ast.Node) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(r.source)), "\n")
		r.buf.WriteString("    ")
		r.buf.WriteString(codeStyle.Sprint(line))
		r.buf.WriteString("\n")
	}
	r.buf.WriteString("\n")
}

// inline collects the plain text under n.
func (r *mdRenderer) inline(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch c := c.(type) {
		case *ast.Text:
			sb.Write(c.Segment.Value(r.source))
			if c.SoftLineBreak() || c.HardLineBreak() {
				sb.WriteString(" ")
			}
		case *ast.String:
			sb.Write(c.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func listDepth(n ast.Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	return depth
}

func bullet(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	index := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%d. ", list.Start+index)
}
