package reportpdf

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth     = 210.0
	labelX        = 20.0
	valueX        = 70.0
	detailValueX  = 80.0
	rowHeight     = 8.0
	disclaimerTop = 260.0
)

const disclaimer = "This report is generated by an AI-powered system and should be reviewed by a " +
	"qualified healthcare professional. This is not a substitute for professional medical advice, " +
	"diagnosis, or treatment."

// Document is a rendered report.
type Document struct {
	pdf *fpdf.Fpdf
}

type page struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
	y   float64
}

func (p *page) fill(c RGB)  { p.pdf.SetFillColor(c.R, c.G, c.B) }
func (p *page) color(c RGB) { p.pdf.SetTextColor(c.R, c.G, c.B) }

func (p *page) font(style string, size float64) { p.pdf.SetFont("Helvetica", style, size) }

func (p *page) text(x, y float64, s string) { p.pdf.Text(x, y, p.tr(s)) }

func (p *page) centered(y float64, s string) {
	s = p.tr(s)
	p.pdf.Text((pageWidth-p.pdf.GetStringWidth(s))/2, y, s)
}

func (p *page) heading(s string) {
	p.font("B", 14)
	p.text(labelX, p.y, s)
}

func (p *page) row(label, value string, x float64) {
	p.font("B", 11)
	p.text(labelX, p.y, label)
	p.font("", 11)
	p.text(x, p.y, value)
	p.y += rowHeight
}

func (p *page) paragraph(s string, y, width, lineHeight float64) float64 {
	for _, line := range p.pdf.SplitLines([]byte(p.tr(s)), width) {
		p.pdf.Text(labelX, y, string(line))
		y += lineHeight
	}
	return y
}

// Render lays out d on a single A4 page. now is printed in the footer.
func Render(d Data, now time.Time) *Document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(now)
	pdf.SetTitle("Malaria Test Report", true)
	pdf.SetCreator("malariadx", true)
	pdf.AddPage()

	p := &page{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}

	p.fill(colorPrimary)
	pdf.Rect(0, 0, pageWidth, 40, "F")
	p.color(colorWhite)
	p.font("B", 24)
	p.centered(20, "MALARIA TEST REPORT")
	p.font("", 10)
	p.centered(30, "AI-Powered Diagnostic System")

	p.color(colorText)
	p.y = 55
	p.heading("Patient Information")
	p.y = 65
	p.row("Patient Name:", d.PatientName, valueX)
	p.row("Medical Record No:", d.PatientID, valueX)
	p.row("Test Date:", d.TestDate, valueX)
	p.row("Test Type:", d.TestType, valueX)

	p.y += 10
	p.fill(colorPanel)
	pdf.Rect(15, p.y-5, 180, 60, "F")
	p.y += 5
	p.heading("Test Results")
	p.y += 10

	p.font("B", 12)
	p.text(labelX, p.y, "Status:")
	p.color(StatusColor(d))
	p.font("B", 14)
	p.text(valueX, p.y, StatusLabel(d))
	p.color(colorText)
	p.y += 10

	p.row("Predicted Class:", d.PredictedClass, valueX)
	p.row("Confidence Level:", confidenceText(d.Confidence), valueX)
	p.row("Test Status:", d.Status, valueX)

	p.y += 10
	p.heading("AI Analysis Details")
	p.y += 10
	p.row("Parasitized Probability:", d.ParasitizedProb, detailValueX)
	p.row("Uninfected Probability:", d.UninfectedProb, detailValueX)
	p.row("Image Quality:", d.ImageQuality, detailValueX)

	p.y += 10
	p.heading("Medical Personnel")
	p.y += 10
	p.row("Doctor:", d.DoctorName, valueX)
	p.row("Hospital/Clinic:", d.Hospital, valueX)

	if d.AdditionalNotes != "" {
		p.y += 10
		p.heading("Additional Notes")
		p.font("", 10)
		p.paragraph(d.AdditionalNotes, p.y+10, 170, 5)
	}

	p.fill(colorDisclaimerFill)
	pdf.Rect(15, disclaimerTop, 180, 20, "F")
	p.color(colorDisclaimerText)
	p.font("I", 8)
	p.paragraph(disclaimer, disclaimerTop+5, 170, 3.5)

	p.color(colorText)
	p.font("", 8)
	p.centered(290, "Generated on: "+now.Format("1/2/2006, 3:04:05 PM"))

	return &Document{pdf: pdf}
}

// WriteTo writes the PDF bytes to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	if err := d.pdf.Output(cw); err != nil {
		return cw.n, fmt.Errorf("render report: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
