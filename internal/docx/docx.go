// Package docx reads and writes OOXML word-processing documents for the
// redlining engine. Parts the engine does not touch are copied through the
// zip container byte for byte.
package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const documentPart = "word/document.xml"

// StructuralError reports a document that cannot be indexed at all. It is
// fatal and aborts before any analysis.
type StructuralError struct {
	Part string
	Err  error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("document structure error in %s: %v", e.Part, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// PartBody pairs a parsed body with the zip part it came from.
type PartBody struct {
	Name string
	Body *Body
}

// Document is an in-memory .docx. Body is the main document part; Extras
// holds headers and footers in deterministic name order.
type Document struct {
	parts     map[string][]byte
	partOrder []string

	Body   *Body
	Extras []PartBody

	trackChangesSet bool
}

// Open reads a .docx from disk.
func Open(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document '%s': %w", path, err)
	}
	return OpenBytes(data)
}

// OpenBytes reads a .docx from a byte slice.
func OpenBytes(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &StructuralError{Part: "container", Err: err}
	}

	doc := &Document{parts: make(map[string][]byte)}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, &StructuralError{Part: f.Name, Err: err}
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, &StructuralError{Part: f.Name, Err: err}
		}
		doc.parts[f.Name] = content
		doc.partOrder = append(doc.partOrder, f.Name)
	}

	raw, ok := doc.parts[documentPart]
	if !ok {
		return nil, &StructuralError{Part: documentPart, Err: fmt.Errorf("part missing")}
	}
	body, err := ParsePart(string(raw), "w:body")
	if err != nil {
		return nil, &StructuralError{Part: documentPart, Err: err}
	}
	doc.Body = body

	var extraNames []string
	for name := range doc.parts {
		if strings.HasPrefix(name, "word/header") || strings.HasPrefix(name, "word/footer") {
			extraNames = append(extraNames, name)
		}
	}
	sort.Strings(extraNames)
	for _, name := range extraNames {
		root := "w:hdr"
		if strings.HasPrefix(name, "word/footer") {
			root = "w:ftr"
		}
		b, err := ParsePart(string(doc.parts[name]), root)
		if err != nil {
			return nil, &StructuralError{Part: name, Err: err}
		}
		doc.Extras = append(doc.Extras, PartBody{Name: name, Body: b})
	}

	return doc, nil
}

const minimalContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

const minimalRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`</Relationships>`

const minimalDocRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`

// NewFromXML builds a minimal container around the given word/document.xml
// content. Used by tests and tooling that work from bare body markup.
func NewFromXML(documentXML string) (*Document, error) {
	doc := &Document{parts: make(map[string][]byte)}
	add := func(name, content string) {
		doc.parts[name] = []byte(content)
		doc.partOrder = append(doc.partOrder, name)
	}
	add("[Content_Types].xml", minimalContentTypes)
	add("_rels/.rels", minimalRootRels)
	add("word/_rels/document.xml.rels", minimalDocRels)
	add(documentPart, documentXML)

	body, err := ParsePart(documentXML, "w:body")
	if err != nil {
		return nil, &StructuralError{Part: documentPart, Err: err}
	}
	doc.Body = body
	return doc, nil
}

// WriteTo serializes the document back into a zip container, re-rendering
// the parsed parts and copying everything else verbatim.
func (d *Document) WriteTo(w io.Writer) error {
	rendered := map[string][]byte{
		documentPart: []byte(d.Body.Serialize()),
	}
	for _, pb := range d.Extras {
		rendered[pb.Name] = []byte(pb.Body.Serialize())
	}

	zw := zip.NewWriter(w)
	for _, name := range d.partOrder {
		content := d.parts[name]
		if r, ok := rendered[name]; ok {
			content = r
		}
		fw, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create zip entry '%s': %w", name, err)
		}
		if _, err := fw.Write(content); err != nil {
			return fmt.Errorf("failed to write zip entry '%s': %w", name, err)
		}
	}
	return zw.Close()
}

// Bytes renders the document to a byte slice.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the document to disk.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", path, err)
	}
	defer f.Close()
	return d.WriteTo(f)
}

const minimalSettings = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<w:settings xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
	`<w:trackChanges/></w:settings>`

// EnableTrackedChanges sets the document's revisions-enabled flag. It is
// idempotent; the flag is injected into word/settings.xml exactly once.
func (d *Document) EnableTrackedChanges() {
	if d.trackChangesSet {
		return
	}
	d.trackChangesSet = true

	settings, ok := d.parts["word/settings.xml"]
	if !ok {
		d.parts["word/settings.xml"] = []byte(minimalSettings)
		d.partOrder = append(d.partOrder, "word/settings.xml")
		d.registerSettingsPart()
		return
	}
	content := string(settings)
	if strings.Contains(content, "<w:trackChanges") {
		return
	}
	tagEnd := -1
	if idx := strings.Index(content, "<w:settings"); idx >= 0 {
		tagEnd = findTagEnd(content, idx+len("<w:settings"))
	}
	if tagEnd < 0 {
		return
	}
	d.parts["word/settings.xml"] = []byte(content[:tagEnd+1] + "<w:trackChanges/>" + content[tagEnd+1:])
}

// registerSettingsPart wires a freshly created settings part into the
// content types and relationship manifests.
func (d *Document) registerSettingsPart() {
	if ct, ok := d.parts["[Content_Types].xml"]; ok {
		content := string(ct)
		if !strings.Contains(content, "word/settings.xml") {
			override := `<Override PartName="/word/settings.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.settings+xml"/>`
			content = strings.Replace(content, "</Types>", override+"</Types>", 1)
			d.parts["[Content_Types].xml"] = []byte(content)
		}
	}
	if rels, ok := d.parts["word/_rels/document.xml.rels"]; ok {
		content := string(rels)
		if !strings.Contains(content, "settings.xml") {
			rel := `<Relationship Id="rIdSettings" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/settings" Target="settings.xml"/>`
			content = strings.Replace(content, "</Relationships>", rel+"</Relationships>", 1)
			d.parts["word/_rels/document.xml.rels"] = []byte(content)
		}
	}
}

var revisionIDPattern = regexp.MustCompile(`w:id="(\d+)"`)

// MaxRevisionID scans the document for the largest revision identifier in
// use, so new revision nodes continue the sequence instead of colliding.
func (d *Document) MaxRevisionID() int {
	max := 0
	for _, name := range []string{documentPart} {
		matches := revisionIDPattern.FindAllStringSubmatch(string(d.parts[name]), -1)
		for _, m := range matches {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return max
}
