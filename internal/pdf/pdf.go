// Package pdf renders single-page text documents for released workdays.
// Output is plain PDF 1.4 with the built-in Helvetica fonts, which every
// viewer supports without embedded font data.
package pdf

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	pageWidth  = 595 // A4 portrait, points
	pageHeight = 842

	marginLeft = 50
	topStart   = 790

	titleSize = 16
	bodySize  = 10
	lineStep  = 16
)

// Doc is a single-page document: a title followed by text lines. An empty
// line renders as vertical space.
type Doc struct {
	Title string
	Lines []string
}

// Render produces the PDF bytes for a document.
func Render(d Doc) []byte {
	content := buildContent(d)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, 0, 6)
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	writeObj("<< /Type /Catalog /Pages 2 0 R >>")
	writeObj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(fmt.Sprintf(
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 4 0 R /F2 5 0 R >> >> /Contents 6 0 R >>",
		pageWidth, pageHeight))
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding >>")
	writeObj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	writeObj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefStart)

	return buf.Bytes()
}

func buildContent(d Doc) string {
	var b strings.Builder
	b.WriteString("BT\n")
	fmt.Fprintf(&b, "/F1 %d Tf\n1 0 0 1 %d %d Tm\n(%s) Tj\n", titleSize, marginLeft, topStart, escape(d.Title))

	y := topStart - 2*lineStep
	fmt.Fprintf(&b, "/F2 %d Tf\n", bodySize)
	for _, line := range d.Lines {
		if line != "" {
			fmt.Fprintf(&b, "1 0 0 1 %d %d Tm\n(%s) Tj\n", marginLeft, y, escape(line))
		}
		y -= lineStep
	}
	b.WriteString("ET")
	return b.String()
}

// escape protects the characters PDF string literals reserve.
func escape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)")
	return r.Replace(s)
}
