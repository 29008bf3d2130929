// Package pdftest builds small, well-formed PDF files for tests.
//
// Every page gets a distinct MediaBox width (BaseWidth + page index), so the
// origin and position of a page can be recovered after a merge with
// PageWidths.
package pdftest

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Doc describes a generated PDF.
type Doc struct {
	Pages     int
	BaseWidth int
	Title     string
	Author    string
}

// New returns a PDF with n pages whose widths start at baseWidth.
func New(n, baseWidth int) []byte {
	return Build(Doc{Pages: n, BaseWidth: baseWidth})
}

// Build renders d as a classic xref-table PDF 1.4 file.
func Build(d Doc) []byte {
	if d.BaseWidth == 0 {
		d.BaseWidth = 600
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	size := 4 + 2*d.Pages
	offsets := make([]int, size)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, d.Pages)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), d.Pages))

	info := "<< /Producer (pdftest)"
	if d.Title != "" {
		info += " /Title (" + d.Title + ")"
	}
	if d.Author != "" {
		info += " /Author (" + d.Author + ")"
	}
	writeObj(3, info+" >>")

	content := "0 0 m 100 100 l S"
	for i := 0; i < d.Pages; i++ {
		pageNum, contentNum := 4+2*i, 5+2*i
		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d 792] /Resources << >> /Contents %d 0 R >>",
			d.BaseWidth+i, contentNum))
		writeObj(contentNum, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets[1:] {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 3 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}

// PageWidths returns the MediaBox width of every page of data, in page order.
func PageWidths(data []byte) ([]int, error) {
	api.DisableConfigDir()
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}

	widths := make([]int, 0, ctx.PageCount)
	for i := 1; i <= ctx.PageCount; i++ {
		_, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, err
		}
		if inh == nil || inh.MediaBox == nil {
			return nil, fmt.Errorf("page %d has no media box", i)
		}
		widths = append(widths, int(math.Round(inh.MediaBox.Width())))
	}
	return widths, nil
}

// Widths lists the page widths New(n, baseWidth) produces.
func Widths(n, baseWidth int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = baseWidth + i
	}
	return out
}
