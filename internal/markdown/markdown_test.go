package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHeadingAndExcerpt(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("# Hello\n\nWelcome to the *association*.")
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "<h1")
	assert.Contains(t, out.HTML, "Hello</h1>")
	assert.Contains(t, out.HTML, "<em>association</em>")
	assert.Equal(t, "Hello Welcome to the association.", out.Excerpt)
}

func TestRenderTable(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("| Fee | Amount |\n|---|---|\n| Pool | 20 |\n")
	require.NoError(t, err)
	assert.Contains(t, out.HTML, "<table>")
}

func TestExcerptTruncates(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render(strings.Repeat("word ", 100))
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(out.Excerpt, "..."))
	assert.LessOrEqual(t, len([]rune(out.Excerpt)), DefaultExcerptLength+3)
}

func TestExcerptSkipsPlaceholders(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Name: {{field:owner_name}}")
	require.NoError(t, err)
	assert.Equal(t, "Name:", out.Excerpt)
}

func TestRenderWithFieldsSubstitutesWidgets(t *testing.T) {
	r := NewRenderer()
	out, used, err := r.RenderWithFields("Owner {{field:owner}} and {{ field:missing }}", func(name string) (string, bool) {
		if name == "owner" {
			return `<input name="owner">`, true
		}
		return "", false
	})
	require.NoError(t, err)

	assert.Contains(t, out.HTML, `Owner <input name="owner"> and`)
	assert.NotContains(t, out.HTML, "missing")
	assert.NotContains(t, out.HTML, "{{")
	assert.Equal(t, map[string]bool{"owner": true}, used)
}

func TestRenderWithFieldsUsesRawName(t *testing.T) {
	r := NewRenderer()
	var seen []string
	out, used, err := r.RenderWithFields(`Signed by {{field:Owner & "Co" <owner>}} today.`, func(name string) (string, bool) {
		seen = append(seen, name)
		return `<span class="widget"></span>`, true
	})
	require.NoError(t, err)

	assert.Equal(t, []string{`Owner & "Co" <owner>`}, seen)
	assert.True(t, used[`Owner & "Co" <owner>`])
	assert.Contains(t, out.HTML, `Signed by <span class="widget"></span> today.`)
}

func TestRenderWithFieldsLeavesCodeAlone(t *testing.T) {
	r := NewRenderer()
	src := "Use `{{field:owner}}` inline.\n\n```\n{{field:owner}}\n```\n"
	out, used, err := r.RenderWithFields(src, func(name string) (string, bool) {
		return `<input name="owner">`, true
	})
	require.NoError(t, err)

	assert.Empty(t, used)
	assert.NotContains(t, out.HTML, "<input")
	assert.Contains(t, out.HTML, "<code>{{field:owner}}</code>")
	assert.Contains(t, out.HTML, "<pre><code>{{field:owner}}\n</code></pre>")
}

func TestRenderKeepsPlaceholderText(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Resident: {{field:A & B}}")
	require.NoError(t, err)
	assert.Contains(t, out.HTML, "Resident: {{field:A &amp; B}}")
}

func TestRenderIgnoresIncompleteBraces(t *testing.T) {
	r := NewRenderer()
	out, used, err := r.RenderWithFields("Set {x} and {{field:}} and {{name}}", func(string) (string, bool) {
		return "W", true
	})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Contains(t, out.HTML, "Set {x} and {{field:}} and {{name}}")
}
