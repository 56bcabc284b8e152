// Package emit converts a finalized edit set into the document's native
// tracked-change markup. The document tree is mutated here and only here,
// sequentially, after analysis has fully resolved.
package emit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/docindex"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/docx"
)

// Skipped records an edit that could not be applied. The document is left
// untouched by that edit; partial application never happens.
type Skipped struct {
	Edit   model.Edit `json:"edit"`
	Reason string     `json:"reason"`
}

// Report is the emission outcome: which edits landed as revision nodes and
// which were skipped as stale.
type Report struct {
	Applied []model.Edit `json:"applied"`
	Skipped []Skipped    `json:"skipped,omitempty"`
}

type Emitter struct {
	author string
	logger *zap.Logger
}

func New(author string, logger *zap.Logger) *Emitter {
	return &Emitter{author: author, logger: logger}
}

// Apply inserts revision nodes for every edit in the set. Edits are applied
// in descending start order so earlier structural locations stay valid as
// the tree mutates. An edit whose resolved runs no longer carry the
// expected text is skipped and reported, never half-applied.
func (em *Emitter) Apply(doc *docx.Document, ix *docindex.Index, edits []model.Edit) (*Report, error) {
	ordered := make([]model.Edit, len(edits))
	copy(ordered, edits)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	doc.EnableTrackedChanges()

	seq := doc.MaxRevisionID() + 1
	stamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	report := &Report{}
	for _, edit := range ordered {
		if reason := em.applyOne(doc, ix, edit, &seq, stamp); reason != "" {
			em.logger.Warn("edit skipped at emission",
				zap.String("edit", edit.String()),
				zap.String("reason", reason))
			report.Skipped = append(report.Skipped, Skipped{Edit: edit, Reason: reason})
			continue
		}
		report.Applied = append(report.Applied, edit)
	}

	sort.Slice(report.Applied, func(i, j int) bool { return report.Applied[i].Start < report.Applied[j].Start })
	return report, nil
}

// applyOne applies a single edit, returning a non-empty skip reason on
// conflict. All mutations for one edit happen in a single splice.
func (em *Emitter) applyOne(doc *docx.Document, ix *docindex.Index, edit model.Edit, seq *int, stamp string) string {
	locs, err := ix.Resolve(edit.Start, edit.End)
	if err != nil {
		return fmt.Sprintf("resolve failed: %v", err)
	}

	refs := make([]docindex.RunRef, len(locs))
	para := (*docx.Paragraph)(nil)
	for i, loc := range locs {
		refs[i] = ix.RunRef(loc.RunIdx)
		if i == 0 {
			para = refs[i].Para
		} else if refs[i].Para != para {
			return "span resolves across paragraphs"
		}
	}

	// Staleness check: the runs must still carry the expected text.
	var current strings.Builder
	for i, loc := range locs {
		run := refs[i].Run
		if loc.End > len(run.Text) || loc.Start > loc.End {
			return "stale position map: run shorter than resolved span"
		}
		current.WriteString(run.Text[loc.Start:loc.End])
	}
	if stripWhitespace(current.String()) != stripWhitespace(edit.Original) {
		return fmt.Sprintf("stale position map: expected %q, found %q", edit.Original, current.String())
	}

	// Locate the affected items in the paragraph as it exists now.
	firstIdx := itemIndex(para, refs[0].Run, refs[0].ItemIdx)
	lastIdx := itemIndex(para, refs[len(refs)-1].Run, refs[len(refs)-1].ItemIdx)
	if firstIdx < 0 || lastIdx < 0 || lastIdx < firstIdx {
		return "stale position map: run no longer present in paragraph"
	}

	firstRun := refs[0].Run
	lastRun := refs[len(refs)-1].Run
	firstLoc := locs[0]
	lastLoc := locs[len(locs)-1]

	// Raw items (bookmarks, tabs) between the affected runs are preserved
	// ahead of the revision nodes.
	affected := make(map[*docx.Run]bool, len(refs))
	for _, r := range refs {
		affected[r.Run] = true
	}
	var between []docx.ParaItem
	for i := firstIdx + 1; i < lastIdx; i++ {
		if run, ok := para.Items[i].(*docx.Run); ok && affected[run] {
			continue
		}
		between = append(between, para.Items[i])
	}

	switch edit.Kind {
	case model.KindDelete, model.KindReplace:
		var repl []docx.ParaItem
		repl = append(repl, between...)
		repl = append(repl, em.deletionNode(locs, refs, seq, stamp))
		if edit.Kind == model.KindReplace {
			repl = append(repl, em.insertionNode(edit.Replacement, firstRun, seq, stamp))
		}
		if post := lastRun.Text[lastLoc.End:]; post != "" {
			repl = append(repl, &docx.Run{Attrs: lastRun.Attrs, Props: lastRun.Props, Text: post})
		}
		// The first run shrinks in place to the text before the span, so
		// references held by not-yet-applied earlier edits stay valid.
		firstRun.Text = firstRun.Text[:firstLoc.Start]
		para.SpliceItems(firstIdx+1, lastIdx+1, repl)

	case model.KindInsertAfter:
		var repl []docx.ParaItem
		repl = append(repl, em.insertionNode(edit.Replacement, lastRun, seq, stamp))
		if post := lastRun.Text[lastLoc.End:]; post != "" {
			repl = append(repl, &docx.Run{Attrs: lastRun.Attrs, Props: lastRun.Props, Text: post})
			lastRun.Text = lastRun.Text[:lastLoc.End]
		}
		para.SpliceItems(lastIdx+1, lastIdx+1, repl)

	case model.KindInsertInline:
		rest := &docx.Run{Attrs: firstRun.Attrs, Props: firstRun.Props, Text: firstRun.Text[firstLoc.Start:]}
		firstRun.Text = firstRun.Text[:firstLoc.Start]
		para.SpliceItems(firstIdx+1, firstIdx+1, []docx.ParaItem{
			em.insertionNode(edit.Replacement, firstRun, seq, stamp),
			rest,
		})

	default:
		return fmt.Sprintf("unknown edit kind %q", edit.Kind)
	}

	return ""
}

// deletionNode builds a w:del wrapping one run per resolved location, each
// keeping its own formatting properties.
func (em *Emitter) deletionNode(locs []docindex.Location, refs []docindex.RunRef, seq *int, stamp string) *docx.RawItem {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<w:del w:id="%d" w:author="%s" w:date="%s">`, *seq, docx.EscapeText(em.author), stamp)
	*seq++
	for i, loc := range locs {
		run := refs[i].Run
		sb.WriteString("<w:r")
		sb.WriteString(run.Attrs)
		sb.WriteString(">")
		sb.WriteString(run.Props)
		sb.WriteString(`<w:delText xml:space="preserve">`)
		sb.WriteString(docx.EscapeText(run.Text[loc.Start:loc.End]))
		sb.WriteString("</w:delText></w:r>")
	}
	sb.WriteString("</w:del>")
	return &docx.RawItem{XML: sb.String()}
}

// insertionNode builds a w:ins carrying the replacement text with the
// formatting of the run it replaces.
func (em *Emitter) insertionNode(text string, like *docx.Run, seq *int, stamp string) *docx.RawItem {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<w:ins w:id="%d" w:author="%s" w:date="%s">`, *seq, docx.EscapeText(em.author), stamp)
	*seq++
	sb.WriteString("<w:r")
	sb.WriteString(like.Attrs)
	sb.WriteString(">")
	sb.WriteString(like.Props)
	sb.WriteString(`<w:t xml:space="preserve">`)
	sb.WriteString(docx.EscapeText(text))
	sb.WriteString("</w:t></w:r></w:ins>")
	return &docx.RawItem{XML: sb.String()}
}

// itemIndex finds a run in its paragraph, starting from the position it
// held at index-build time and falling back to a linear scan.
func itemIndex(p *docx.Paragraph, run *docx.Run, hint int) int {
	if hint >= 0 && hint < len(p.Items) {
		if r, ok := p.Items[hint].(*docx.Run); ok && r == run {
			return hint
		}
	}
	for i, item := range p.Items {
		if r, ok := item.(*docx.Run); ok && r == run {
			return i
		}
	}
	return -1
}

func stripWhitespace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0':
			continue
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
