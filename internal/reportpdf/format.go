// Package reportpdf lays out the printable malaria test report.
//
// Formatting is pure: every field has a default and nothing here returns an
// error for missing data.
package reportpdf

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/malariadx/malariadx/internal/inference"
)

// DateLayout is how report dates are printed.
const DateLayout = "1/2/2006"

// TestSummary is the flat record a report is built from. Zero values mean
// "not known".
type TestSummary struct {
	ID              string
	PatientName     string
	PatientID       string
	TestDate        string
	TestType        string
	Result          string
	Confidence      int
	Status          string
	PredictedClass  string
	ParasitizedProb string
	UninfectedProb  string
	ImageQuality    string
	Notes           string
	DoctorName      string
	Hospital        string
}

// DoctorProfile identifies the doctor a report is issued by.
type DoctorProfile struct {
	FullName string
	Hospital string
}

// Data is a fully defaulted report.
type Data struct {
	PatientName     string
	PatientID       string
	TestDate        string
	TestType        string
	Result          string
	Confidence      int
	Status          string
	DoctorName      string
	Hospital        string
	PredictedClass  string
	ParasitizedProb string
	UninfectedProb  string
	ImageQuality    string
	AdditionalNotes string
}

func or(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func common(t TestSummary, now time.Time) Data {
	d := Data{
		TestDate:        or(t.TestDate, now.Format(DateLayout)),
		TestType:        or(t.TestType, "Malaria Detection Test"),
		Result:          or(t.Result, "Pending"),
		Confidence:      t.Confidence,
		Status:          or(t.Status, "Completed"),
		ParasitizedProb: or(t.ParasitizedProb, inference.NotAvailable),
		UninfectedProb:  or(t.UninfectedProb, inference.NotAvailable),
		ImageQuality:    or(t.ImageQuality, "Good"),
	}
	d.PredictedClass = or(t.PredictedClass, d.Result)
	return d
}

// FormatForDoctor builds the report a doctor downloads.
func FormatForDoctor(t TestSummary, doctor DoctorProfile, now time.Time) Data {
	d := common(t, now)
	d.PatientName = or(t.PatientName, "Unknown Patient")
	d.PatientID = or(t.PatientID, or(t.ID, inference.NotAvailable))
	d.DoctorName = or(doctor.FullName, or(t.DoctorName, "Doctor"))
	d.Hospital = or(doctor.Hospital, or(t.Hospital, "Medical Center"))
	d.AdditionalNotes = t.Notes
	return d
}

// FormatForPatient builds the report a patient downloads. Patient reports
// carry no record number and no notes.
func FormatForPatient(t TestSummary, now time.Time) Data {
	d := common(t, now)
	d.PatientName = "Patient"
	d.PatientID = inference.NotAvailable
	d.DoctorName = or(t.DoctorName, "Doctor")
	d.Hospital = or(t.Hospital, "Medical Center")
	return d
}

// ExtractProbabilities formats the two class probabilities of a model
// result. Both capitalised and lower-case keys are accepted.
func ExtractProbabilities(probs map[string]float64) (parasitized, uninfected string) {
	return pick(probs, inference.ClassParasitized), pick(probs, inference.ClassUninfected)
}

func pick(probs map[string]float64, class string) string {
	if s := inference.FormatProbability(probs, class); s != inference.NotAvailable {
		return s
	}
	return inference.FormatProbability(probs, strings.ToLower(class))
}

// IsPositive decides whether a report shows a positive finding. It is the
// only place that rule lives.
func IsPositive(d Data) bool {
	r := strings.ToLower(strings.TrimSpace(d.Result))
	return r == "positive" || r == "parasitized" ||
		strings.EqualFold(strings.TrimSpace(d.PredictedClass), inference.ClassParasitized)
}

// RGB is a fill or text color.
type RGB struct{ R, G, B int }

var (
	colorPrimary        = RGB{30, 144, 255}
	colorPositive       = RGB{239, 68, 68}
	colorNegative       = RGB{34, 197, 94}
	colorText           = RGB{55, 65, 81}
	colorPanel          = RGB{240, 240, 240}
	colorDisclaimerFill = RGB{255, 243, 205}
	colorDisclaimerText = RGB{180, 83, 9}
	colorWhite          = RGB{255, 255, 255}
)

// StatusColor is red for a positive finding and green otherwise.
func StatusColor(d Data) RGB {
	if IsPositive(d) {
		return colorPositive
	}
	return colorNegative
}

// StatusLabel is the headline printed next to "Status:".
func StatusLabel(d Data) string {
	if IsPositive(d) {
		return "POSITIVE"
	}
	return "NEGATIVE"
}

func confidenceText(c int) string {
	if c <= 0 {
		return inference.NotAvailable
	}
	return strconv.Itoa(c) + "%"
}

// DoctorFileName is e.g. "Malaria_Report_Jane_Doe_3-1-2024.pdf". Characters
// outside letters, digits, '-' and '.' become '_', so the result is a single
// path element safe to quote in a header.
func DoctorFileName(d Data) string {
	return "Malaria_Report_" + fileSafe(strings.Join(strings.Fields(d.PatientName), "_")) +
		"_" + fileSafe(strings.ReplaceAll(d.TestDate, "/", "-")) + ".pdf"
}

// PatientFileName is e.g. "Malaria_Test_Report_3-1-2024.pdf".
func PatientFileName(d Data) string {
	return "Malaria_Test_Report_" + fileSafe(strings.ReplaceAll(d.TestDate, "/", "-")) + ".pdf"
}

func fileSafe(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.' {
			return r
		}
		return '_'
	}, s)
	return strings.Trim(s, ".")
}
