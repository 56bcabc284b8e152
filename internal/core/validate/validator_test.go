package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
)

const text = "The Receiving Party shall hold all Confidential Information in trust."

func candidate(start, end int, original string) model.Edit {
	return model.Edit{
		Start:      start,
		End:        end,
		Original:   original,
		Kind:       model.KindDelete,
		Confidence: 90,
		Source:     model.SourceRecallPass,
		Severity:   model.SeverityHigh,
	}
}

func TestEditAccepts(t *testing.T) {
	e := candidate(4, 19, "Receiving Party")
	assert.Nil(t, Edit(e, text, nil))
}

func TestEditOutOfBounds(t *testing.T) {
	rej := Edit(candidate(4, len(text)+5, "x"), text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonOutOfBounds, rej.Reason)

	rej = Edit(candidate(-1, 4, "x"), text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonOutOfBounds, rej.Reason)
}

func TestEditEmptySpan(t *testing.T) {
	rej := Edit(candidate(4, 4, ""), text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonEmptySpan, rej.Reason)

	rej = Edit(candidate(10, 4, "x"), text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonEmptySpan, rej.Reason)
}

func TestEditAnchorMismatch(t *testing.T) {
	rej := Edit(candidate(4, 19, "Disclosing Party"), text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonAnchorMismatch, rej.Reason)
}

// Anchor comparison is whitespace-normalized: an anchor that differs only
// in spacing still matches.
func TestEditAnchorNormalization(t *testing.T) {
	e := candidate(4, 19, "Receiving\n  Party")
	assert.Nil(t, Edit(e, text, nil))
}

func TestEditBadConfidence(t *testing.T) {
	e := candidate(4, 19, "Receiving Party")
	e.Confidence = 101
	rej := Edit(e, text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonBadConfidence, rej.Reason)

	e.Confidence = -1
	rej = Edit(e, text, nil)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonBadConfidence, rej.Reason)
}

func TestEditOverlap(t *testing.T) {
	accepted := []model.Edit{candidate(4, 19, "Receiving Party")}

	rej := Edit(candidate(14, 25, "Party shall"), text, accepted)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonOverlap, rej.Reason)

	// Adjacent spans do not overlap.
	assert.Nil(t, Edit(candidate(20, 25, "shall"), text, accepted))
}

func TestSetReValidation(t *testing.T) {
	good := []model.Edit{
		candidate(4, 19, "Receiving Party"),
		candidate(20, 25, "shall"),
	}
	assert.Nil(t, Set(good, text))

	bad := []model.Edit{
		candidate(4, 19, "Receiving Party"),
		candidate(14, 25, "Party shall"),
	}
	rej := Set(bad, text)
	require.NotNil(t, rej)
	assert.Equal(t, ReasonOverlap, rej.Reason)
}

func TestRejectionIsError(t *testing.T) {
	rej := Edit(candidate(4, 19, "wrong anchor"), text, nil)
	require.NotNil(t, rej)
	assert.Contains(t, rej.Error(), ReasonAnchorMismatch)
}
