// Package testassets builds stand-in certificate templates and fonts for
// tests that render PDFs.
package testassets

import (
	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Landscape A4, the size of the production templates.
const (
	PageWidth  = 842.0
	PageHeight = 595.0
)

// Template returns a one page PDF of the given size with a frame drawn on it.
func Template(width, height float64) []byte {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: gopdf.Rect{W: width, H: height}})
	pdf.AddPage()
	pdf.SetLineWidth(2)
	pdf.Line(20, 20, width-20, 20)
	pdf.Line(20, height-20, width-20, height-20)
	data, err := pdf.GetBytesPdfReturnErr()
	if err != nil {
		panic(err)
	}
	return data
}

// Files maps asset names to contents for both templates and both fonts.
func Files() map[string][]byte {
	tpl := Template(PageWidth, PageHeight)
	return map[string][]byte{
		"certificates/certificate1.pdf": tpl,
		"certificates/certificate2.pdf": tpl,
		"fonts/Sora-Regular.ttf":        goregular.TTF,
		"fonts/Sora-SemiBold.ttf":       gobold.TTF,
	}
}
