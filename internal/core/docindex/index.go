// Package docindex builds the flattened text view of a document and the
// position map back to its structural runs. The map is built once per
// document load and is immutable afterwards.
package docindex

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/docx"
)

// OutOfRangeError reports a resolve request outside the flattened text.
type OutOfRangeError struct {
	Start, End, Len int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("span [%d,%d) out of range for text of length %d", e.Start, e.End, e.Len)
}

// CrossBoundaryError reports a span that crosses a structural boundary
// marker (paragraph, table cell, header or footer edge). Such spans are
// never editable.
type CrossBoundaryError struct {
	Start, End int
}

func (e *CrossBoundaryError) Error() string {
	return fmt.Sprintf("span [%d,%d) crosses a structural boundary", e.Start, e.End)
}

// RunRef locates one run inside the document model. ItemIdx is the run's
// position in its paragraph at index-build time; the emitter only splices
// at or after an edit's items in descending offset order, which keeps
// earlier indices valid.
type RunRef struct {
	Run         *docx.Run
	Para        *docx.Paragraph
	ItemIdx     int
	Part        string
	Fingerprint string
}

// Location is one structural segment of a resolved span: a byte range
// within a single run's text.
type Location struct {
	RunIdx int
	Start  int
	End    int
}

// piece maps a contiguous flattened byte range to a contiguous byte range
// of one run. Collapsed whitespace splits pieces; zero-width pieces anchor
// synthesized spaces.
type piece struct {
	flatStart, flatEnd int
	runIdx             int
	origStart, origEnd int
}

// Entry is one position-map record: a flattened span, the structural runs
// behind it, and their shared formatting fingerprint. Boundary entries
// carry separator characters with no backing run.
type Entry struct {
	Start, End  int
	Boundary    bool
	Fingerprint string
	pieces      []piece
}

// Index is the flattened text plus the position map. Read-only after Build.
type Index struct {
	Text    string
	Entries []Entry
	runs    []RunRef
}

type charSpan struct {
	runIdx             int
	origStart, origEnd int
}

type builder struct {
	sb    strings.Builder
	chars []charSpan
	runs  []RunRef

	pendingSpace bool
	emitted      bool // anything emitted since the last boundary
}

// Build flattens the document body, tables in document order, then headers
// and footers, recording the structural origin of every retained byte.
func Build(doc *docx.Document) (*Index, error) {
	b := &builder{}
	b.walkBlocks(doc.Body.Blocks, "word/document.xml")
	for _, extra := range doc.Extras {
		b.boundary()
		b.walkBlocks(extra.Body.Blocks, extra.Name)
	}

	ix := &Index{
		Text: b.sb.String(),
		runs: b.runs,
	}
	ix.Entries = compress(b.chars, b.runs)
	return ix, nil
}

func (b *builder) walkBlocks(blocks []docx.Block, part string) {
	for _, blk := range blocks {
		switch t := blk.(type) {
		case *docx.Paragraph:
			b.walkParagraph(t, part)
			b.boundary()
		case *docx.Table:
			for _, row := range t.Rows {
				for _, cell := range row.Cells {
					b.walkBlocks(cell.Blocks, part)
				}
			}
		}
	}
}

func (b *builder) walkParagraph(p *docx.Paragraph, part string) {
	for i, item := range p.Items {
		switch t := item.(type) {
		case *docx.Run:
			runIdx := len(b.runs)
			b.runs = append(b.runs, RunRef{
				Run:         t,
				Para:        p,
				ItemIdx:     i,
				Part:        part,
				Fingerprint: Fingerprint(t.Props),
			})
			b.walkRunText(t.Text, runIdx)
		case *docx.RawItem:
			// Tabs, breaks and other non-text children separate words.
			if isWhitespaceItem(t.XML) {
				b.pendingSpace = b.emitted
			}
		}
	}
}

func (b *builder) walkRunText(text string, runIdx int) {
	for off, r := range text {
		switch {
		case unicode.IsSpace(r):
			b.pendingSpace = b.emitted
		case unicode.IsControl(r):
			// stripped
		default:
			if b.pendingSpace {
				// The synthesized space anchors zero-width at the next
				// retained character so deletions extend over the gap.
				b.emitByte(' ', charSpan{runIdx: runIdx, origStart: off, origEnd: off})
				b.pendingSpace = false
			}
			size := utf8.RuneLen(r)
			b.emitRune(r, charSpan{runIdx: runIdx, origStart: off, origEnd: off + size})
		}
	}
}

// boundary emits one separator byte between structural units. Consecutive
// boundaries collapse into a single marker run in the map but keep their
// bytes, so offsets stay exact.
func (b *builder) boundary() {
	if !b.emitted {
		return
	}
	b.sb.WriteByte('\n')
	b.chars = append(b.chars, charSpan{runIdx: -1})
	b.pendingSpace = false
	b.emitted = false
}

func (b *builder) emitByte(c byte, span charSpan) {
	b.sb.WriteByte(c)
	b.chars = append(b.chars, span)
	b.emitted = true
}

func (b *builder) emitRune(r rune, span charSpan) {
	n, _ := b.sb.WriteRune(r)
	for i := 0; i < n; i++ {
		b.chars = append(b.chars, span)
	}
	b.emitted = true
}

// compress folds the per-byte map into pieces, then pieces into entries.
// Adjacent runs with identical formatting fingerprints share one entry.
func compress(chars []charSpan, runs []RunRef) []Entry {
	var entries []Entry
	i := 0
	for i < len(chars) {
		if chars[i].runIdx < 0 {
			j := i
			for j < len(chars) && chars[j].runIdx < 0 {
				j++
			}
			entries = append(entries, Entry{Start: i, End: j, Boundary: true})
			i = j
			continue
		}

		fp := runs[chars[i].runIdx].Fingerprint
		start := i
		var pieces []piece
		cur := piece{flatStart: i, flatEnd: i + 1, runIdx: chars[i].runIdx, origStart: chars[i].origStart, origEnd: chars[i].origEnd}
		j := i + 1
		for j < len(chars) && chars[j].runIdx >= 0 && runs[chars[j].runIdx].Fingerprint == fp {
			c := chars[j]
			linear := cur.flatEnd-cur.flatStart == cur.origEnd-cur.origStart
			if c.runIdx == cur.runIdx && c.origStart == cur.origEnd && linear {
				cur.flatEnd = j + 1
				cur.origEnd = c.origEnd
			} else if c.runIdx == cur.runIdx && c.origEnd == cur.origEnd && c.origStart >= cur.origStart {
				// additional byte of a multi-byte rune already merged in
				cur.flatEnd = j + 1
			} else {
				pieces = append(pieces, cur)
				cur = piece{flatStart: j, flatEnd: j + 1, runIdx: c.runIdx, origStart: c.origStart, origEnd: c.origEnd}
			}
			j++
		}
		pieces = append(pieces, cur)
		entries = append(entries, Entry{Start: start, End: j, Fingerprint: fp, pieces: pieces})
		i = j
	}
	return entries
}

// Resolve maps a flattened span to the ordered structural locations behind
// it. Adjacent pieces of the same run merge across collapsed whitespace so
// a deletion removes the original spacing too.
func (ix *Index) Resolve(start, end int) ([]Location, error) {
	if start < 0 || end > len(ix.Text) || start >= end {
		return nil, &OutOfRangeError{Start: start, End: end, Len: len(ix.Text)}
	}

	// Binary search for the entry containing start.
	n := sort.Search(len(ix.Entries), func(i int) bool {
		return ix.Entries[i].End > start
	})

	var locs []Location
	for ; n < len(ix.Entries) && ix.Entries[n].Start < end; n++ {
		e := ix.Entries[n]
		if e.Boundary {
			return nil, &CrossBoundaryError{Start: start, End: end}
		}
		for _, pc := range e.pieces {
			if pc.flatEnd <= start || pc.flatStart >= end {
				continue
			}
			os, oe := pc.origStart, pc.origEnd
			if start > pc.flatStart {
				os += start - pc.flatStart
			}
			if end < pc.flatEnd {
				oe -= pc.flatEnd - end
			}
			if len(locs) > 0 && locs[len(locs)-1].RunIdx == pc.runIdx {
				if oe > locs[len(locs)-1].End {
					locs[len(locs)-1].End = oe
				}
			} else {
				locs = append(locs, Location{RunIdx: pc.runIdx, Start: os, End: oe})
			}
		}
	}
	if len(locs) == 0 {
		return nil, &OutOfRangeError{Start: start, End: end, Len: len(ix.Text)}
	}
	return locs, nil
}

// RunRef returns the structural reference for a resolved location.
func (ix *Index) RunRef(runIdx int) RunRef {
	return ix.runs[runIdx]
}

// RunCount returns the number of indexed runs.
func (ix *Index) RunCount() int {
	return len(ix.runs)
}

// Fingerprint is the mergeable-formatting equality rule: run properties
// compared with inter-tag whitespace removed. Runs whose properties differ
// only in insignificant whitespace render identically.
func Fingerprint(props string) string {
	if props == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(props))
	for _, part := range strings.Split(props, ">") {
		sb.WriteString(strings.TrimSpace(part))
		sb.WriteByte('>')
	}
	out := sb.String()
	return strings.TrimSuffix(out, ">")
}

func isWhitespaceItem(xml string) bool {
	return strings.Contains(xml, "<w:tab") || strings.Contains(xml, "<w:br") || strings.Contains(xml, "<w:cr")
}
