package fluence

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Location is a single point in source text: 1-based line and
// column, plus the absolute byte cursor it corresponds to.
type Location struct {
	Line   int
	Column int
	Cursor int
	File   int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Span is a half-open range between two Locations, used to tag
// tokens and instructions with the source text they came from.
type Span struct {
	Start Location
	End   Location
}

func NewSpan(start, end Location) Span {
	return Span{Start: start, End: end}
}

func (s Span) String() string {
	if s.Start.Line == s.End.Line && s.Start.Column == s.End.Column {
		return s.Start.String()
	}
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%d:%d..%d", s.Start.Line, s.Start.Column, s.End.Column)
	}
	return fmt.Sprintf("%s..%s", s.Start, s.End)
}

// Range is a byte-offset pair [Start, End) into a single source
// unit. It is the compile-time counterpart of the runtime Range
// heap value (see value.go) — unrelated concepts that happen to
// share a name in the spec; this one never reaches script code.
type Range struct{ Start, End int }

func NewRangeOffsets(start, end int) Range { return Range{Start: start, End: end} }

func (r Range) Contains(other Range) bool {
	return other.Start >= r.Start && other.End <= r.End
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column. It stores the start byte offset of each line
// (0-based); given a cursor it binary-searches the line starts
// (O(log lines)) and computes the column as runes-since-lineStart+1.
//
// Construction is O(n) over the input and is meant to be built once
// per compiled source unit and reused by every diagnostic raised
// against it.
type LineIndex struct {
	input     []byte
	fileIndex int
	lineStart []int
}

func NewLineIndex(fileIndex int, input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, fileIndex: fileIndex, lineStart: lineStart}
}

func (li *LineIndex) Span(r Range) Span {
	return Span{Start: li.LocationAt(r.Start), End: li.LocationAt(r.End)}
}

func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}
	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}
	lineStart := li.lineStart[lineIdx]
	col := utf8.RuneCount(li.input[lineStart:cursor]) + 1
	return Location{Line: lineIdx + 1, Column: col, Cursor: cursor, File: li.fileIndex}
}

// LineText returns the full source line (sans trailing newline) that
// contains Location l, used to render the "faulty source line"
// excerpt in diagnostics.
func (li *LineIndex) LineText(l Location) string {
	idx := l.Line - 1
	if idx < 0 || idx >= len(li.lineStart) {
		return ""
	}
	start := li.lineStart[idx]
	end := len(li.input)
	if idx+1 < len(li.lineStart) {
		end = li.lineStart[idx+1] - 1
	}
	if end < start {
		end = start
	}
	if end > len(li.input) {
		end = len(li.input)
	}
	line := string(li.input[start:end])
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}
