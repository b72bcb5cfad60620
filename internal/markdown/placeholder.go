package markdown

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// KindPlaceholder is the node kind of an inline {{field:NAME}} reference.
var KindPlaceholder = ast.NewNodeKind("FieldPlaceholder")

// Placeholder is an inline reference to a form field. Name is the raw,
// unescaped text between "field:" and the closing braces.
type Placeholder struct {
	ast.BaseInline
	Name string

	resolved bool
	widget   []byte
}

func (n *Placeholder) Kind() ast.NodeKind { return KindPlaceholder }

func (n *Placeholder) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Name": n.Name}, nil)
}

var (
	placeholderOpen   = []byte("{{")
	placeholderClose  = []byte("}}")
	placeholderPrefix = []byte("field:")
)

type placeholderParser struct{}

func (placeholderParser) Trigger() []byte {
	return []byte{'{'}
}

func (placeholderParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, placeholderOpen) {
		return nil
	}
	end := bytes.Index(line, placeholderClose)
	if end < 0 {
		return nil
	}
	inner := bytes.TrimSpace(line[len(placeholderOpen):end])
	if !bytes.HasPrefix(inner, placeholderPrefix) {
		return nil
	}
	name := strings.TrimSpace(string(inner[len(placeholderPrefix):]))
	if name == "" || strings.ContainsAny(name, "{}") {
		return nil
	}
	block.Advance(end + len(placeholderClose))
	return &Placeholder{Name: name}
}

type placeholderRenderer struct{}

func (placeholderRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindPlaceholder, renderPlaceholder)
}

func renderPlaceholder(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Placeholder)
	if n.resolved {
		_, _ = w.Write(n.widget)
	} else {
		_, _ = w.WriteString(html.EscapeString("{{field:" + n.Name + "}}"))
	}
	return ast.WalkSkipChildren, nil
}

type fieldPlaceholders struct{}

// FieldPlaceholders parses {{field:NAME}} outside code into Placeholder
// nodes.
var FieldPlaceholders goldmark.Extender = fieldPlaceholders{}

func (fieldPlaceholders) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(placeholderParser{}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(placeholderRenderer{}, 500),
	))
}
