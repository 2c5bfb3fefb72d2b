package inference

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the display classification of a result.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusInfected Status = "infected"

	// StatusUncertain is a display fallback for unrecognised values. The
	// transforms never produce it.
	StatusUncertain Status = "uncertain"
)

// Class labels used by the model.
const (
	ClassParasitized = "Parasitized"
	ClassUninfected  = "Uninfected"
)

// Detail keys of DisplayResult.Details.
const (
	DetailParasitesDetected      = "parasites_detected"
	DetailPredictedClass         = "predicted_class"
	DetailParasitizedProbability = "parasitized_probability"
	DetailUninfectedProbability  = "uninfected_probability"
	DetailBloodCellsAnalyzed     = "blood_cells_analyzed"
	DetailImageQuality           = "image_quality"
)

// NotAvailable is shown for any value the model did not return.
const NotAvailable = "N/A"

// DisplayResult is the normalised shape a result card renders.
type DisplayResult struct {
	Status            Status            `json:"status"`
	ConfidencePercent int               `json:"confidence"`
	Details           map[string]string `json:"details"`
	Timestamp         string            `json:"timestamp"`
	ImageURL          string            `json:"image_url,omitempty"`

	Uncertainty     *float64 `json:"uncertainty,omitempty"`
	ConfidenceLevel string   `json:"confidence_level,omitempty"`
	Recommendation  string   `json:"recommendation,omitempty"`
	GradCAMImage    string   `json:"gradcam_image,omitempty"`
}

// StatusFromClass maps a predicted class onto a display status. Only
// "parasitized", in any case, is infected.
func StatusFromClass(class string) Status {
	if strings.EqualFold(strings.TrimSpace(class), ClassParasitized) {
		return StatusInfected
	}
	return StatusHealthy
}

// ParseStatus reads a stored status, falling back to StatusUncertain.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusHealthy:
		return StatusHealthy
	case StatusInfected:
		return StatusInfected
	default:
		return StatusUncertain
	}
}

// ConfidencePercent converts a 0..1 fraction to an integer percent in 0..100.
func ConfidencePercent(c float64) int {
	if math.IsNaN(c) {
		return 0
	}
	p := math.Round(c * 100)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return int(p)
}

// FormatProbability renders probs[key] as a two-decimal percent, e.g.
// "87.34%". An absent key yields "N/A".
func FormatProbability(probs map[string]float64, key string) string {
	p, ok := probs[key]
	if !ok || math.IsNaN(p) {
		return NotAvailable
	}
	return strconv.FormatFloat(p*100, 'f', 2, 64) + "%"
}

// ToDisplayResult converts a prediction into a DisplayResult. now stamps
// results the server did not timestamp.
func ToDisplayResult(p *Prediction, imageURL string, now time.Time) DisplayResult {
	status := StatusFromClass(p.PredictedClass)

	detected := "No"
	if status == StatusInfected {
		detected = "Yes"
	}
	class := p.PredictedClass
	if class == "" {
		class = "Unknown"
	}

	ts := p.Timestamp
	if ts == "" {
		ts = p.CreatedAt
	}
	if ts == "" {
		ts = now.UTC().Format(time.RFC3339)
	}

	return DisplayResult{
		Status:            status,
		ConfidencePercent: ConfidencePercent(p.Confidence),
		Details: map[string]string{
			DetailParasitesDetected:      detected,
			DetailPredictedClass:         class,
			DetailParasitizedProbability: FormatProbability(p.Probabilities, ClassParasitized),
			DetailUninfectedProbability:  FormatProbability(p.Probabilities, ClassUninfected),
			DetailBloodCellsAnalyzed:     "Analyzed",
			DetailImageQuality:           "Good",
		},
		Timestamp: ts,
		ImageURL:  imageURL,
	}
}

// ToDetailedResult is ToDisplayResult plus the explainability fields.
func ToDetailedResult(p *DetailedPrediction, imageURL string, now time.Time) DisplayResult {
	r := ToDisplayResult(&p.Prediction, imageURL, now)
	r.Uncertainty = p.Uncertainty
	r.ConfidenceLevel = p.ConfidenceLevel
	r.Recommendation = p.Recommendation
	r.GradCAMImage = p.GradCAMImage
	return r
}
