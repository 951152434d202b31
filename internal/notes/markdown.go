// Package notes renders the Markdown stored in task notes.
package notes

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// RenderHTML converts Markdown notes to HTML. Raw HTML in the source is
// omitted by goldmark's default renderer.
func RenderHTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render notes: %w", err)
	}
	return buf.String(), nil
}

// PlainText strips Markdown syntax for terminal display.
func PlainText(src string) string {
	source := []byte(src)
	node := md.Parser().Parse(text.NewReader(source))

	var builder strings.Builder
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindText:
			t := n.(*ast.Text)
			builder.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				builder.WriteString("\n")
			}
		case ast.KindParagraph, ast.KindHeading:
			if builder.Len() > 0 && n.PreviousSibling() != nil && n.Parent().Kind() == ast.KindDocument {
				builder.WriteString("\n\n")
			}
		case ast.KindListItem:
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString("- ")
		case ast.KindList:
			if builder.Len() > 0 && n.Parent().Kind() == ast.KindDocument {
				builder.WriteString("\n")
			}
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			if builder.Len() > 0 {
				builder.WriteString("\n\n")
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				builder.Write(line.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}

		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(builder.String())
}

// Summary returns the first line of the plain text, cut to max runes.
func Summary(src string, max int) string {
	plain := PlainText(src)
	if i := strings.IndexByte(plain, '\n'); i >= 0 {
		plain = plain[:i]
	}
	runes := []rune(plain)
	if max > 0 && len(runes) > max {
		return string(runes[:max-1]) + "…"
	}
	return plain
}
