package docx

import (
	"fmt"
	"strings"
)

// OOXML parts are parsed with a balanced textual scanner rather than
// encoding/xml: the stock decoder cannot round-trip namespace prefixes, and
// Word rejects parts whose prefixes it did not write. The scanner lifts
// paragraphs, runs and tables into the model and keeps every other byte
// verbatim.

type xmlNode struct {
	element     bool
	name        string
	attrs       string
	inner       string
	raw         string
	selfClosing bool
}

func isNameDelim(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '>' || c == '/'
}

// findTagEnd returns the index of the '>' closing the tag that starts before
// pos, honoring quoted attribute values.
func findTagEnd(s string, pos int) int {
	var quote byte
	for i := pos; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '>':
			return i
		}
	}
	return -1
}

// findBalancedEnd locates the matching close tag for an element named name
// whose open tag ends just before from. It returns the index where the close
// tag starts and the index just past it.
func findBalancedEnd(s string, name string, from int) (closeStart, closeEnd int, ok bool) {
	depth := 1
	pos := from
	for {
		lt := strings.IndexByte(s[pos:], '<')
		if lt < 0 {
			return 0, 0, false
		}
		i := pos + lt
		if strings.HasPrefix(s[i:], "</"+name) {
			j := i + 2 + len(name)
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\r' || s[j] == '\n') {
				j++
			}
			if j < len(s) && s[j] == '>' {
				depth--
				if depth == 0 {
					return i, j + 1, true
				}
				pos = j + 1
				continue
			}
			pos = i + 1
			continue
		}
		if strings.HasPrefix(s[i:], "<"+name) {
			j := i + 1 + len(name)
			if j < len(s) && isNameDelim(s[j]) {
				end := findTagEnd(s, j)
				if end < 0 {
					return 0, 0, false
				}
				if s[end-1] != '/' {
					depth++
				}
				pos = end + 1
				continue
			}
		}
		pos = i + 1
	}
}

// scanNodes splits s into a flat sequence of top-level elements and raw text
// chunks. Comments and processing instructions come back as raw chunks.
func scanNodes(s string) ([]xmlNode, error) {
	var nodes []xmlNode
	pos := 0
	for pos < len(s) {
		lt := strings.IndexByte(s[pos:], '<')
		if lt < 0 {
			nodes = append(nodes, xmlNode{raw: s[pos:]})
			break
		}
		if lt > 0 {
			nodes = append(nodes, xmlNode{raw: s[pos : pos+lt]})
		}
		i := pos + lt
		switch {
		case strings.HasPrefix(s[i:], "<!--"):
			end := strings.Index(s[i:], "-->")
			if end < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			nodes = append(nodes, xmlNode{raw: s[i : i+end+3]})
			pos = i + end + 3
		case strings.HasPrefix(s[i:], "<?"):
			end := strings.Index(s[i:], "?>")
			if end < 0 {
				return nil, fmt.Errorf("unterminated processing instruction at offset %d", i)
			}
			nodes = append(nodes, xmlNode{raw: s[i : i+end+2]})
			pos = i + end + 2
		case strings.HasPrefix(s[i:], "</"):
			return nil, fmt.Errorf("unexpected close tag at offset %d", i)
		default:
			j := i + 1
			for j < len(s) && !isNameDelim(s[j]) {
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated tag at offset %d", i)
			}
			name := s[i+1 : j]
			tagEnd := findTagEnd(s, j)
			if tagEnd < 0 {
				return nil, fmt.Errorf("unterminated tag '%s' at offset %d", name, i)
			}
			if s[tagEnd-1] == '/' {
				nodes = append(nodes, xmlNode{
					element:     true,
					name:        name,
					attrs:       s[j : tagEnd-1],
					raw:         s[i : tagEnd+1],
					selfClosing: true,
				})
				pos = tagEnd + 1
				continue
			}
			closeStart, closeEnd, ok := findBalancedEnd(s, name, tagEnd+1)
			if !ok {
				return nil, fmt.Errorf("no matching close tag for '%s' at offset %d", name, i)
			}
			nodes = append(nodes, xmlNode{
				element: true,
				name:    name,
				attrs:   s[j:tagEnd],
				inner:   s[tagEnd+1 : closeStart],
				raw:     s[i:closeEnd],
			})
			pos = closeEnd
		}
	}
	return nodes, nil
}

// ParsePart parses one document part. root is the element wrapping the block
// content: "w:body" for the document, "w:hdr" for headers, "w:ftr" for
// footers.
func ParsePart(content string, root string) (*Body, error) {
	pos := 0
	openStart := -1
	for {
		idx := strings.Index(content[pos:], "<"+root)
		if idx < 0 {
			return nil, fmt.Errorf("part has no <%s> element", root)
		}
		i := pos + idx
		j := i + 1 + len(root)
		if j < len(content) && isNameDelim(content[j]) {
			openStart = i
			break
		}
		pos = i + 1
	}

	tagEnd := findTagEnd(content, openStart+1+len(root))
	if tagEnd < 0 {
		return nil, fmt.Errorf("unterminated <%s> tag", root)
	}
	closeStart, _, ok := findBalancedEnd(content, root, tagEnd+1)
	if !ok {
		return nil, fmt.Errorf("no matching </%s>", root)
	}

	blocks, err := parseBlocks(content[tagEnd+1 : closeStart])
	if err != nil {
		return nil, err
	}

	return &Body{
		Prolog: content[:tagEnd+1],
		Epilog: content[closeStart:],
		Blocks: blocks,
	}, nil
}

func parseBlocks(content string) ([]Block, error) {
	nodes, err := scanNodes(content)
	if err != nil {
		return nil, err
	}
	var blocks []Block
	for _, n := range nodes {
		switch {
		case n.element && n.name == "w:p":
			p, err := parseParagraph(n)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, p)
		case n.element && n.name == "w:tbl":
			t, err := parseTable(n)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, t)
		default:
			blocks = append(blocks, &RawBlock{XML: n.raw})
		}
	}
	return blocks, nil
}

func parseParagraph(el xmlNode) (*Paragraph, error) {
	p := &Paragraph{Attrs: el.attrs}
	nodes, err := scanNodes(el.inner)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		switch {
		case n.element && n.name == "w:pPr":
			p.Props += n.raw
		case n.element && n.name == "w:r":
			p.Items = append(p.Items, parseRun(n)...)
		default:
			// Hyperlink content, existing revision markup, bookmarks and
			// anything else stays verbatim and outside the position index.
			if n.raw != "" {
				p.Items = append(p.Items, &RawItem{XML: n.raw})
			}
		}
	}
	return p, nil
}

// parseRun lifts a w:r into one or more items. Runs holding plain text
// become Run values; tabs, breaks and non-text children are re-wrapped as
// standalone raw runs so the serialized form renders identically while each
// Run value carries exactly one text string.
func parseRun(el xmlNode) []ParaItem {
	nodes, err := scanNodes(el.inner)
	if err != nil {
		return []ParaItem{&RawItem{XML: el.raw}}
	}

	props := ""
	var items []ParaItem
	wrapRaw := func(raw string) *RawItem {
		return &RawItem{XML: "<w:r" + el.attrs + ">" + props + raw + "</w:r>"}
	}
	for _, n := range nodes {
		switch {
		case n.element && n.name == "w:rPr":
			props = n.raw
		case n.element && n.name == "w:t":
			items = append(items, &Run{
				Attrs: el.attrs,
				Props: props,
				Text:  UnescapeText(n.inner),
			})
		case n.element && (n.name == "w:delText" || n.name == "w:delInstrText"):
			// Text already deleted by an earlier revision: passthrough.
			items = append(items, wrapRaw(n.raw))
		default:
			if strings.TrimSpace(n.raw) == "" {
				continue
			}
			items = append(items, wrapRaw(n.raw))
		}
	}
	if len(items) == 0 {
		// Run with no content we recognize, e.g. only properties.
		return []ParaItem{&RawItem{XML: el.raw}}
	}
	return items
}

func parseTable(el xmlNode) (*Table, error) {
	t := &Table{Attrs: el.attrs}
	nodes, err := scanNodes(el.inner)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		switch {
		case n.element && n.name == "w:tr":
			row := &TableRow{Attrs: n.attrs}
			rowNodes, err := scanNodes(n.inner)
			if err != nil {
				return nil, err
			}
			for _, rn := range rowNodes {
				switch {
				case rn.element && rn.name == "w:tc":
					cell := &TableCell{Attrs: rn.attrs}
					cellNodes, err := scanNodes(rn.inner)
					if err != nil {
						return nil, err
					}
					var rest strings.Builder
					for _, cn := range cellNodes {
						if cn.element && cn.name == "w:tcPr" {
							cell.Props += cn.raw
						} else {
							rest.WriteString(cn.raw)
						}
					}
					blocks, err := parseBlocks(rest.String())
					if err != nil {
						return nil, err
					}
					cell.Blocks = blocks
					row.Cells = append(row.Cells, cell)
				default:
					row.Props += rn.raw
				}
			}
			t.Rows = append(t.Rows, row)
		default:
			t.Props += n.raw
		}
	}
	return t, nil
}
