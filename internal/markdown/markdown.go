// Package markdown converts document sources to HTML and plain-text
// excerpts, and resolves inline form-field placeholders.
package markdown

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const DefaultExcerptLength = 200

type Rendered struct {
	HTML    string
	Excerpt string
}

type Renderer struct {
	md            goldmark.Markdown
	excerptLength int
}

func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, FieldPlaceholders),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		excerptLength: DefaultExcerptLength,
	}
}

// Render converts source to HTML. Raw HTML in the source is dropped by
// goldmark's default (safe) renderer. Placeholders are written back as
// their escaped source text.
func (r *Renderer) Render(source string) (Rendered, error) {
	src := []byte(source)
	doc := r.md.Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return Rendered{}, fmt.Errorf("render markdown: %w", err)
	}
	return Rendered{
		HTML:    buf.String(),
		Excerpt: truncate(plainText(doc, src), r.excerptLength),
	}, nil
}

func plainText(doc ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}
		if t, ok := n.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}

// RenderWithFields renders source and resolves every placeholder through
// widget. A placeholder whose widget reports false renders as nothing. The
// returned set holds the names that were substituted.
func (r *Renderer) RenderWithFields(source string, widget func(name string) (string, bool)) (Rendered, map[string]bool, error) {
	src := []byte(source)
	doc := r.md.Parser().Parse(text.NewReader(src))

	used := map[string]bool{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		p, ok := n.(*Placeholder)
		if !ok || !entering {
			return ast.WalkContinue, nil
		}
		p.resolved = true
		if html, ok := widget(p.Name); ok {
			p.widget = []byte(html)
			used[p.Name] = true
		}
		return ast.WalkSkipChildren, nil
	})

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return Rendered{}, nil, fmt.Errorf("render markdown: %w", err)
	}
	return Rendered{
		HTML:    buf.String(),
		Excerpt: truncate(plainText(doc, src), r.excerptLength),
	}, used, nil
}
