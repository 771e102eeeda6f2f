package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"musinotes/core/lyrics"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin    = 20.0
	monoFontSize  = 11.0
	monoLineSpace = 5.0
)

// WritePDF renders doc as an A4 song sheet.
func WritePDF(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(doc.Title, true)
	pdf.SetAuthor(doc.Artist, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.MultiCell(0, 11, tr(doc.Title), "", "C", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 18)
	pdf.MultiCell(0, 9, tr("By "+doc.Artist), "", "C", false)

	pdf.SetFont("Helvetica", "", 14)
	if doc.Album != "" {
		pdf.MultiCell(0, 7, tr("Album: "+doc.Album), "", "C", false)
	}
	if doc.Genre != "" {
		pdf.MultiCell(0, 7, tr("Genre: "+doc.Genre), "", "C", false)
	}

	if doc.Lyrics != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "U", 16)
		pdf.CellFormat(0, 8, "Lyrics:", "", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont("Courier", "", monoFontSize)
		pageWidth, _ := pdf.GetPageSize()
		cols := int((pageWidth - 2*pageMargin) / pdf.GetStringWidth("M"))
		for _, line := range lyrics.Parse(doc.Lyrics) {
			for _, row := range wrapLine(line, cols) {
				pdf.SetFont("Courier", "B", monoFontSize)
				pdf.CellFormat(0, monoLineSpace, tr(row.Chords), "", 1, "L", false, 0, "")
				pdf.SetFont("Courier", "", monoFontSize)
				pdf.CellFormat(0, monoLineSpace, tr(row.Lyrics), "", 1, "L", false, 0, "")
			}
		}
	}

	if doc.Chords != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "U", 16)
		pdf.CellFormat(0, 8, "Chords:", "", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont("Courier", "", monoFontSize)
		pdf.MultiCell(0, monoLineSpace, tr(doc.Chords), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}

// wrapLine splits a chord/lyric pair into rows of at most cols columns. Both
// halves break at the same column so chords stay over their syllables.
func wrapLine(line lyrics.Line, cols int) []lyrics.Line {
	chords, words := []rune(line.Chords), []rune(line.Lyrics)
	width := max(len(chords), len(words))
	if cols <= 0 || width <= cols {
		return []lyrics.Line{line}
	}

	cut := func(r []rune, from, to int) string {
		if from >= len(r) {
			return ""
		}
		return string(r[from:min(to, len(r))])
	}
	rows := make([]lyrics.Line, 0, (width+cols-1)/cols)
	for from := 0; from < width; from += cols {
		rows = append(rows, lyrics.Line{
			Chords: strings.TrimRight(cut(chords, from, from+cols), " "),
			Lyrics: cut(words, from, from+cols),
		})
	}
	return rows
}

// RenderPDF returns the PDF bytes of doc.
func RenderPDF(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
