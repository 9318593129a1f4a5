// Package document renders generated legal documents to PDF.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

// Titles maps the document types offered in the product to their
// printed headings.
var Titles = map[string]string{
	"powerOfAttorney":          "POWER OF ATTORNEY",
	"nda":                      "NON-DISCLOSURE AGREEMENT",
	"privacyPolicy":            "PRIVACY POLICY",
	"refundPolicy":             "REFUND POLICY",
	"cookiesPolicy":            "COOKIES POLICY",
	"eula":                     "END USER LICENSE AGREEMENT (EULA)",
	"websiteServicesAgreement": "WEBSITE SERVICES AGREEMENT",
}

var signatures = map[string][]string{
	"powerOfAttorney": {"Principal's Signature", "Agent's Signature"},
	"nda":             {"Disclosing Party Signature", "Receiving Party Signature"},
}

// Section is one headed block of body text.
type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// Document is the content of one generation request.
type Document struct {
	Type     string
	Title    string // overrides the title derived from Type
	Sections []Section
	Author   string
	Created  time.Time
}

// Input bounds checked by Validate.
const (
	MaxSections   = 100
	MaxTitleLen   = 200
	MaxHeadingLen = 200
	MaxBodyLen    = 20000
)

// ErrInvalid wraps every Validate failure.
var ErrInvalid = errors.New("invalid document")

// Validate checks doc against the input bounds so that a request can be
// rejected before any quota is spent on it.
func Validate(doc Document) error {
	if len(doc.Sections) > MaxSections {
		return fmt.Errorf("%w: at most %d sections", ErrInvalid, MaxSections)
	}
	if len(doc.Title) > MaxTitleLen {
		return fmt.Errorf("%w: title longer than %d bytes", ErrInvalid, MaxTitleLen)
	}
	if !utf8.ValidString(doc.Title) {
		return fmt.Errorf("%w: title is not valid UTF-8", ErrInvalid)
	}
	for i, s := range doc.Sections {
		if len(s.Heading) > MaxHeadingLen {
			return fmt.Errorf("%w: section %d heading longer than %d bytes", ErrInvalid, i+1, MaxHeadingLen)
		}
		if len(s.Body) > MaxBodyLen {
			return fmt.Errorf("%w: section %d body longer than %d bytes", ErrInvalid, i+1, MaxBodyLen)
		}
		if !utf8.ValidString(s.Heading) || !utf8.ValidString(s.Body) {
			return fmt.Errorf("%w: section %d is not valid UTF-8", ErrInvalid, i+1)
		}
	}
	return nil
}

// TitleFor returns the heading for docType.  Unknown types get a
// generic heading built from the type name.
func TitleFor(docType string) string {
	if t, ok := Titles[docType]; ok {
		return t
	}
	if docType == "" {
		return "LEGAL DOCUMENT"
	}
	return strings.ToUpper(docType)
}

// Render lays the document out on A4 pages in a serif face and returns
// the PDF bytes.
func Render(doc Document) ([]byte, error) {
	if err := Validate(doc); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = TitleFor(doc.Type)
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(25, 25, 25)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetTitle(title, true)
	pdf.SetCreator("LegallyUp", true)
	if doc.Author != "" {
		pdf.SetAuthor(doc.Author, true)
	}
	if !doc.Created.IsZero() {
		pdf.SetCreationDate(doc.Created)
		pdf.SetModificationDate(doc.Created)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Times", "I", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Times", "B", 20)
	pdf.MultiCell(0, 10, tr(title), "", "C", false)
	pdf.Ln(8)

	for _, s := range doc.Sections {
		if h := strings.TrimSpace(s.Heading); h != "" {
			pdf.SetFont("Times", "B", 14)
			pdf.MultiCell(0, 8, tr(h), "", "L", false)
			pdf.Ln(2)
		}
		pdf.SetFont("Times", "", 12)
		pdf.MultiCell(0, 6, tr(s.Body), "", "J", false)
		pdf.Ln(6)
	}

	if lines, ok := signatures[doc.Type]; ok {
		pdf.Ln(12)
		pdf.SetFont("Times", "", 12)
		for _, l := range lines {
			pdf.CellFormat(0, 6, "_____________________________", "", 1, "L", false, 0, "")
			pdf.CellFormat(0, 6, tr(l), "", 1, "L", false, 0, "")
			pdf.Ln(8)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}
