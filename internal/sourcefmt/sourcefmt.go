// Package sourcefmt renders diagnostics as plain text with a caret line,
// grounded on the caret/position-to-report lowering shape of gomib's
// report formatting but deliberately uncoloured — the original's ANSI
// colour escapes are explicit out-of-scope surface for this renderer.
package sourcefmt

import (
	"fmt"
	"strings"

	"github.com/rivergrove/stak/internal/diag"
)

// Render writes one multi-line block per record in sink, each naming the
// source file, the diagnostic's source stage and code, its message, the
// offending line verbatim, and a caret line that reproduces every leading
// tab and space from the source so the caret lands under the real column
// in any editor or terminal.
func Render(fileName string, source []byte, sink *diag.Sink) string {
	var b strings.Builder
	for _, rec := range sink.Records() {
		writeRecord(&b, fileName, source, rec)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, fileName string, source []byte, rec diag.Record) {
	fmt.Fprintf(b, "%s:%d:%d: %s %s: %s\n", fileName, rec.Line, rec.Column, rec.Source, rec.Code, rec.Message)

	line := lineText(source, rec.Line)
	b.WriteString(line)
	b.WriteByte('\n')
	b.WriteString(caretLine(line, rec.Column, rec.Length))
	b.WriteByte('\n')
}

// lineText returns the 1-indexed line's text, excluding its terminator.
func lineText(source []byte, lineNo int) string {
	start := 0
	current := 1
	for i := 0; i < len(source) && current < lineNo; i++ {
		if source[i] == '\n' {
			current++
			start = i + 1
		}
	}
	if current != lineNo {
		return ""
	}
	end := start
	for end < len(source) && source[end] != '\n' {
		end++
	}
	return string(source[start:end])
}

// caretLine reproduces every leading tab/space of line up to column-1 so
// the caret's horizontal position matches under any fixed-width rendering,
// then draws length carets (at least one).
func caretLine(line string, column, length int) string {
	var b strings.Builder
	for i := 0; i < column-1 && i < len(line); i++ {
		if line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	if length < 1 {
		length = 1
	}
	for i := 0; i < length; i++ {
		b.WriteByte('^')
	}
	return b.String()
}
