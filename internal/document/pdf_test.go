package document

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ProducesPDF(t *testing.T) {
	out, err := Render(Document{
		Type: "nda",
		Sections: []Section{
			{Heading: "Confidential Information", Body: "All non-public business information."},
			{Heading: "Term", Body: "Two years from the effective date."},
		},
		Author:  "ann",
		Created: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.True(t, bytes.Contains(out, []byte("%%EOF")))
}

func TestRender_EmptyDocument(t *testing.T) {
	out, err := Render(Document{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestTitleFor(t *testing.T) {
	assert.Equal(t, "NON-DISCLOSURE AGREEMENT", TitleFor("nda"))
	assert.Equal(t, "LEASE", TitleFor("lease"))
	assert.Equal(t, "LEGAL DOCUMENT", TitleFor(""))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(Document{Title: "Lease", Sections: []Section{{Heading: "Term", Body: "One year."}}}))

	cases := map[string]Document{
		"too many sections": {Sections: make([]Section, MaxSections+1)},
		"long title":        {Title: strings.Repeat("t", MaxTitleLen+1)},
		"long heading":      {Sections: []Section{{Heading: strings.Repeat("h", MaxHeadingLen+1)}}},
		"long body":         {Sections: []Section{{Body: strings.Repeat("b", MaxBodyLen+1)}}},
		"bad utf8":          {Sections: []Section{{Body: "\xff\xfe"}}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			err := Validate(doc)
			assert.ErrorIs(t, err, ErrInvalid)
			_, err = Render(doc)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}
