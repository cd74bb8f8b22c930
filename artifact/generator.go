// Package artifact renders certificate records onto PDF templates.
//
// A template is a single page PDF. The record's text is drawn over the
// imported page with the Sora fonts; the V2 (training) template also gets
// the fixed program description lines.
package artifact

import (
	"bytes"
	"certvault/metrics"
	"certvault/models"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/signintech/gopdf"
	"golang.org/x/sync/errgroup"
)

// Template selects which certificate layout is rendered.
type Template string

const (
	TemplateV1 Template = "v1"
	TemplateV2 Template = "v2"
)

var ErrUnknownTemplate = errors.New("unknown certificate template")

// ErrRender wraps failures while composing the PDF itself.
var ErrRender = errors.New("failed to render certificate")

// ParseTemplate accepts "v1"/"proctorship" and "v2"/"training". An empty
// string selects V1.
func ParseTemplate(s string) (Template, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v1", "proctorship", "certificate1.pdf":
		return TemplateV1, nil
	case "v2", "training", "certificate2.pdf":
		return TemplateV2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, s)
}

// Asset is the template path relative to the asset root.
func (t Template) Asset() string {
	if t == TemplateV2 {
		return "certificates/certificate2.pdf"
	}
	return "certificates/certificate1.pdf"
}

// Label is the human name used in request emails.
func (t Template) Label() string {
	if t == TemplateV2 {
		return "Training"
	}
	return "Proctorship"
}

// Artifact is one rendered certificate.
type Artifact struct {
	CertificateID uint
	Filename      string
	Data          []byte
}

// Failure records a certificate that could not be rendered in a batch.
type Failure struct {
	CertificateID uint
	CertificateNo string
	Err           error
}

const (
	fontRegular  = "Sora"
	fontSemiBold = "Sora-SemiBold"

	marginX    = 55.0
	marginEdge = 40.0
	topOffset  = 180.0

	sizeSmall = 7.0
	sizeBody  = 8.0
	sizeName  = 18.0
)

var grayText = [3]uint8{128, 128, 128}

// textLine is one line of the certificate body, offset downwards from the
// name baseline.
type textLine struct {
	text   string
	font   string
	size   float64
	offset float64
	color  *[3]uint8
}

// trainingLines are drawn below the hospital on the V2 template.
var trainingLines = []textLine{
	{"has successfully completed the", fontRegular, sizeSmall, 64, &grayText},
	{"Robotics Training Program", fontSemiBold, sizeSmall, 76, nil},
	{"provided by Sudhir Srivastava Innovations Pvt. Ltd", fontRegular, sizeSmall, 88, &grayText},
	{"to operate the SSI Mantra Surgical Robotic System", fontSemiBold, sizeSmall, 100, nil},
}

// bodyLines lists everything drawn above the footer for a template.
func bodyLines(tpl Template, f fields) []textLine {
	lines := []textLine{
		{f.name, fontRegular, sizeName, 0, nil},
		{f.hospital, fontSemiBold, sizeBody, 20, nil},
	}
	if tpl == TemplateV2 {
		lines = append(lines, trainingLines...)
	}
	return lines
}

type assets struct {
	template []byte
	regular  []byte
	semiBold []byte
}

type Generator struct {
	source  AssetSource
	metrics *metrics.Metrics
}

func NewGenerator(source AssetSource, m *metrics.Metrics) *Generator {
	return &Generator{source: source, metrics: m}
}

// Generate renders a single certificate.
func (g *Generator) Generate(ctx context.Context, cert models.Certificate, tpl Template) (*Artifact, error) {
	a, err := g.load(ctx, tpl)
	if err != nil {
		g.metrics.Artifact(string(tpl), false)
		return nil, err
	}
	out, err := g.render(a, cert, tpl)
	g.metrics.Artifact(string(tpl), err == nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateBatch renders every certificate against one copy of the assets.
// A record that fails to render is reported in failures and the rest
// continue; an asset error aborts the whole batch.
func (g *Generator) GenerateBatch(ctx context.Context, certs []models.Certificate, tpl Template) ([]Artifact, []Failure, error) {
	a, err := g.load(ctx, tpl)
	if err != nil {
		g.metrics.Artifact(string(tpl), false)
		return nil, nil, err
	}

	var (
		out      = make([]Artifact, 0, len(certs))
		failures []Failure
	)
	for _, cert := range certs {
		if err := ctx.Err(); err != nil {
			return out, failures, err
		}
		art, err := g.render(a, cert, tpl)
		g.metrics.Artifact(string(tpl), err == nil)
		if err != nil {
			log.Printf("Certificate %s failed to render: %v", cert.CertificateNo, err)
			failures = append(failures, Failure{CertificateID: cert.ID, CertificateNo: cert.CertificateNo, Err: err})
			continue
		}
		out = append(out, *art)
	}
	return out, failures, nil
}

func (g *Generator) load(ctx context.Context, tpl Template) (*assets, error) {
	var a assets
	group, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, dst *[]byte) {
		group.Go(func() error {
			data, err := g.source.Fetch(gctx, name)
			if err != nil {
				return &AssetError{Name: name, Err: err}
			}
			if len(data) == 0 {
				return &AssetError{Name: name, Err: errors.New("empty file")}
			}
			*dst = data
			return nil
		})
	}
	fetch(tpl.Asset(), &a.template)
	fetch(fontRegularAsset, &a.regular)
	fetch(fontSemiBoldAsset, &a.semiBold)
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return &a, nil
}

type fields struct {
	name, certNo, hospital, doi string
}

func fieldsOf(cert models.Certificate) fields {
	return fields{
		name:     TitleCase(orDefault(cert.Name, PlaceholderName)),
		certNo:   orDefault(cert.CertificateNo, PlaceholderNo),
		hospital: TitleCase(orDefault(cert.Hospital, PlaceholderHospital)),
		doi:      strings.ReplaceAll(orDefault(cert.DOI, PlaceholderDOI), "-", "/"),
	}
}

func (g *Generator) render(a *assets, cert models.Certificate, tpl Template) (art *Artifact, err error) {
	// gopdf panics on malformed template streams
	defer func() {
		if r := recover(); r != nil {
			art, err = nil, fmt.Errorf("%w: %v", ErrRender, r)
		}
	}()

	f := fieldsOf(cert)
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	var src io.ReadSeeker = bytes.NewReader(a.template)
	sizes := pdf.GetStreamPageSizes(&src)
	box, ok := sizes[1]["/MediaBox"]
	if !ok || box["w"] <= 0 || box["h"] <= 0 {
		return nil, fmt.Errorf("%w: template has no first page", ErrRender)
	}
	width, height := box["w"], box["h"]

	pdf.AddPageWithOption(gopdf.PageOption{PageSize: &gopdf.Rect{W: width, H: height}})
	page := pdf.ImportPageStream(&src, 1, "/MediaBox")
	pdf.UseImportedTemplate(page, 0, 0, width, height)

	if err := pdf.AddTTFFontData(fontRegular, a.regular); err != nil {
		return nil, fmt.Errorf("%w: regular font: %v", ErrRender, err)
	}
	if err := pdf.AddTTFFontData(fontSemiBold, a.semiBold); err != nil {
		return nil, fmt.Errorf("%w: semibold font: %v", ErrRender, err)
	}

	c := canvas{pdf: pdf, height: height}
	yBase := height - topOffset

	for _, line := range bodyLines(tpl, f) {
		if err := c.text(line.font, line.size, marginX, yBase-line.offset, line.text, line.color); err != nil {
			return nil, err
		}
	}

	footerY := marginEdge + 45
	doiWidth, err := c.measure(fontSemiBold, sizeSmall, f.doi)
	if err != nil {
		return nil, err
	}
	if err := c.text(fontSemiBold, sizeSmall, DOIX(width, doiWidth), footerY, f.doi, nil); err != nil {
		return nil, err
	}
	noWidth, err := c.measure(fontSemiBold, sizeSmall, f.certNo)
	if err != nil {
		return nil, err
	}
	if err := c.text(fontSemiBold, sizeSmall, CertificateNoX(width, noWidth), footerY, f.certNo, nil); err != nil {
		return nil, err
	}

	data, err := pdf.GetBytesPdfReturnErr()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return &Artifact{
		CertificateID: cert.ID,
		Filename:      Filename(f.name, f.hospital),
		Data:          data,
	}, nil
}

// DOIX centers the date and shifts it left into the date slot of the footer.
func DOIX(pageWidth, textWidth float64) float64 {
	return max(marginEdge, (pageWidth-textWidth)/2) - 75
}

// CertificateNoX right-aligns the certificate number inside the footer slot.
func CertificateNoX(pageWidth, textWidth float64) float64 {
	return pageWidth - textWidth - marginEdge - 70
}

// canvas draws with bottom-left page coordinates, y being the baseline.
type canvas struct {
	pdf    *gopdf.GoPdf
	height float64
}

func (c canvas) measure(font string, size float64, s string) (float64, error) {
	if err := c.pdf.SetFont(font, "", size); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRender, err)
	}
	w, err := c.pdf.MeasureTextWidth(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return w, nil
}

func (c canvas) text(font string, size, x, y float64, s string, color *[3]uint8) error {
	if err := c.pdf.SetFont(font, "", size); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	if color != nil {
		c.pdf.SetTextColor(color[0], color[1], color[2])
	} else {
		c.pdf.SetTextColor(0, 0, 0)
	}
	c.pdf.SetXY(x, c.height-y)
	if err := c.pdf.Text(s); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}
