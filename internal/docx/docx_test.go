package docx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromXMLRoundTrip(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)

	data, err := doc.Bytes()
	require.NoError(t, err)

	reopened, err := OpenBytes(data)
	require.NoError(t, err)
	para := reopened.Body.Blocks[0].(*Paragraph)
	assert.Equal(t, "Confidential ", para.Items[0].(*Run).Text)
	assert.Equal(t, "Information shall survive in perpetuity.", para.Items[1].(*Run).Text)
}

func TestOpenBytesRejectsNonZipInput(t *testing.T) {
	_, err := OpenBytes([]byte("this is not a docx"))
	require.Error(t, err)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "container", se.Part)
}

func TestOpenBytesRequiresDocumentPart(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)
	delete(doc.parts, documentPart)
	var order []string
	for _, name := range doc.partOrder {
		if name != documentPart {
			order = append(order, name)
		}
	}
	doc.partOrder = order

	data, err := doc.Bytes()
	require.NoError(t, err)

	_, err = OpenBytes(data)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, documentPart, se.Part)
}

func TestEnableTrackedChangesCreatesSettingsOnce(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)

	doc.EnableTrackedChanges()
	doc.EnableTrackedChanges()

	settings := string(doc.parts["word/settings.xml"])
	assert.Equal(t, 1, strings.Count(settings, "<w:trackChanges"))

	ct := string(doc.parts["[Content_Types].xml"])
	assert.Contains(t, ct, "/word/settings.xml")
	rels := string(doc.parts["word/_rels/document.xml.rels"])
	assert.Contains(t, rels, "settings.xml")
}

func TestEnableTrackedChangesInjectsIntoExistingSettings(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)
	existing := `<?xml version="1.0"?>` +
		`<w:settings xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:zoom w:percent="100"/></w:settings>`
	doc.parts["word/settings.xml"] = []byte(existing)
	doc.partOrder = append(doc.partOrder, "word/settings.xml")

	doc.EnableTrackedChanges()

	settings := string(doc.parts["word/settings.xml"])
	assert.Equal(t, 1, strings.Count(settings, "<w:trackChanges"))
	assert.Contains(t, settings, `<w:zoom w:percent="100"/>`)
	assert.True(t, strings.Index(settings, "<w:trackChanges") < strings.Index(settings, "<w:zoom"))
}

func TestMaxRevisionID(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)
	// The bookmark in the fixture carries w:id="0".
	assert.Equal(t, 0, doc.MaxRevisionID())

	withRevisions := strings.Replace(sampleDocument,
		`<w:r><w:t>Information shall survive in perpetuity.</w:t></w:r>`,
		`<w:ins w:id="17" w:author="Reviewer"><w:r><w:t>Information</w:t></w:r></w:ins>`, 1)
	doc2, err := NewFromXML(withRevisions)
	require.NoError(t, err)
	assert.Equal(t, 17, doc2.MaxRevisionID())
}

func TestWriteToPreservesUntouchedParts(t *testing.T) {
	doc, err := NewFromXML(sampleDocument)
	require.NoError(t, err)
	data, err := doc.Bytes()
	require.NoError(t, err)

	reopened, err := OpenBytes(data)
	require.NoError(t, err)
	assert.Equal(t, minimalContentTypes, string(reopened.parts["[Content_Types].xml"]))
	assert.Equal(t, minimalRootRels, string(reopened.parts["_rels/.rels"]))
}
