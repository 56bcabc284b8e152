package docx

import (
	"strings"
)

// The body model keeps everything it does not understand as raw XML so the
// round trip back to word/document.xml never disturbs formatting, section
// properties, bookmarks or field codes. Only paragraphs, runs and tables are
// lifted into structure, since those are the elements redlining touches.

type Block interface {
	writeXML(sb *strings.Builder)
}

type ParaItem interface {
	writeItemXML(sb *strings.Builder)
}

// Paragraph is a w:p element. Props holds the raw <w:pPr>...</w:pPr> block.
type Paragraph struct {
	Attrs string
	Props string
	Items []ParaItem
}

// Run is a w:r element holding a single contiguous piece of text. Props is
// the raw <w:rPr>...</w:rPr> block, carried opaquely; two runs with equal
// Props render identically, which is the mergeable-formatting rule the
// position index relies on.
type Run struct {
	Attrs string
	Props string
	Text  string
}

// RawItem is any paragraph child we pass through untouched (bookmarks,
// proofing marks, tabs, breaks, existing revision markup).
type RawItem struct {
	XML string
}

// RawBlock is any body-level element we pass through untouched (sectPr,
// structured document tags, existing standalone markup).
type RawBlock struct {
	XML string
}

// Table is a w:tbl element. Cell content is recursively the same block
// model, so nested tables work.
type Table struct {
	Attrs string
	Props string // raw <w:tblPr> + <w:tblGrid>
	Rows  []*TableRow
}

type TableRow struct {
	Attrs string
	Props string // raw <w:trPr>
	Cells []*TableCell
}

type TableCell struct {
	Attrs  string
	Props  string // raw <w:tcPr>
	Blocks []Block
}

// Body is the parsed content of one document part (document body, a header
// or a footer). Prolog and Epilog hold the XML surrounding the block
// sequence verbatim.
type Body struct {
	Prolog string
	Epilog string
	Blocks []Block
}

func (p *Paragraph) writeXML(sb *strings.Builder) {
	sb.WriteString("<w:p")
	sb.WriteString(p.Attrs)
	sb.WriteString(">")
	sb.WriteString(p.Props)
	for _, it := range p.Items {
		it.writeItemXML(sb)
	}
	sb.WriteString("</w:p>")
}

func (r *Run) writeItemXML(sb *strings.Builder) {
	sb.WriteString("<w:r")
	sb.WriteString(r.Attrs)
	sb.WriteString(">")
	sb.WriteString(r.Props)
	sb.WriteString(`<w:t xml:space="preserve">`)
	sb.WriteString(EscapeText(r.Text))
	sb.WriteString("</w:t></w:r>")
}

func (r *RawItem) writeItemXML(sb *strings.Builder) {
	sb.WriteString(r.XML)
}

func (b *RawBlock) writeXML(sb *strings.Builder) {
	sb.WriteString(b.XML)
}

func (t *Table) writeXML(sb *strings.Builder) {
	sb.WriteString("<w:tbl")
	sb.WriteString(t.Attrs)
	sb.WriteString(">")
	sb.WriteString(t.Props)
	for _, row := range t.Rows {
		sb.WriteString("<w:tr")
		sb.WriteString(row.Attrs)
		sb.WriteString(">")
		sb.WriteString(row.Props)
		for _, cell := range row.Cells {
			sb.WriteString("<w:tc")
			sb.WriteString(cell.Attrs)
			sb.WriteString(">")
			sb.WriteString(cell.Props)
			for _, blk := range cell.Blocks {
				blk.writeXML(sb)
			}
			sb.WriteString("</w:tc>")
		}
		sb.WriteString("</w:tr>")
	}
	sb.WriteString("</w:tbl>")
}

// Serialize renders the body part back to a complete XML document string.
func (b *Body) Serialize() string {
	var sb strings.Builder
	sb.WriteString(b.Prolog)
	for _, blk := range b.Blocks {
		blk.writeXML(&sb)
	}
	sb.WriteString(b.Epilog)
	return sb.String()
}

// SpliceItems replaces paragraph items [from, to) with the given
// replacement sequence. Used by the revision emitter after run splitting.
func (p *Paragraph) SpliceItems(from, to int, repl []ParaItem) {
	out := make([]ParaItem, 0, len(p.Items)-(to-from)+len(repl))
	out = append(out, p.Items[:from]...)
	out = append(out, repl...)
	out = append(out, p.Items[to:]...)
	p.Items = out
}
