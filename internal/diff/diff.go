// Package diff classifies the lines of two text snapshots as added,
// removed or unchanged.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Op string

const (
	OpAdded     Op = "added"
	OpRemoved   Op = "removed"
	OpUnchanged Op = "unchanged"
)

type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
	// 1-based positions; zero when the line does not exist on that side.
	OldNumber int `json:"old_line,omitempty"`
	NewNumber int `json:"new_line,omitempty"`
}

type Result struct {
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Lines     []Line `json:"lines"`
}

func (r Result) Changed() bool {
	return r.Additions > 0 || r.Deletions > 0
}

// Lines computes a line diff from oldText to newText. Empty input on either
// side is valid.
func Lines(oldText, newText string) Result {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(terminate(oldText), terminate(newText))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	result := Result{Lines: []Line{}}
	oldLine, newLine := 0, 0
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				newLine++
				result.Additions++
				result.Lines = append(result.Lines, Line{Op: OpAdded, Text: text, NewNumber: newLine})
			case diffmatchpatch.DiffDelete:
				oldLine++
				result.Deletions++
				result.Lines = append(result.Lines, Line{Op: OpRemoved, Text: text, OldNumber: oldLine})
			default:
				oldLine++
				newLine++
				result.Lines = append(result.Lines, Line{Op: OpUnchanged, Text: text, OldNumber: oldLine, NewNumber: newLine})
			}
		}
	}
	return result
}

// Unified renders the result as "+ ", "- " and "  " prefixed lines.
func (r Result) Unified() string {
	var b strings.Builder
	for _, l := range r.Lines {
		switch l.Op {
		case OpAdded:
			b.WriteString("+ ")
		case OpRemoved:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(l.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// terminate makes the final line newline-terminated so that appending a
// line does not also report the previous last line as changed.
func terminate(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s != "" && !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
