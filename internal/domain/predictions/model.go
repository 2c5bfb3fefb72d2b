// Package predictions reads the prediction records the inference service
// writes for each analysed blood sample.
package predictions

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Prediction struct {
	ID              uuid.UUID          `json:"id"`
	SampleID        *uuid.UUID         `json:"sample_id,omitempty"`
	PatientID       uuid.UUID          `json:"patient_id"`
	DoctorID        *uuid.UUID         `json:"doctor_id,omitempty"`
	PredictedClass  string             `json:"predicted_class"`
	ConfidenceScore float64            `json:"confidence_score"`
	Probabilities   map[string]float64 `json:"probabilities,omitempty"`
	ModelVersion    string             `json:"model_version,omitempty"`
	PredictionDate  time.Time          `json:"prediction_date"`
	Details         *Details           `json:"prediction_details,omitempty"`
}

// Details is the optional per-prediction analysis breakdown.
type Details struct {
	SpeciesDetected     string          `json:"species_detected,omitempty"`
	ParasiteCount       *int            `json:"parasite_count,omitempty"`
	GradCAMPath         string          `json:"grad_cam_path,omitempty"`
	ParasiteStage       string          `json:"parasite_stage,omitempty"`
	AttentionRegions    json.RawMessage `json:"attention_regions,omitempty"`
	ImageQualityScore   *float64        `json:"image_quality_score,omitempty"`
	AnalysisDurationSec *float64        `json:"analysis_duration_sec,omitempty"`
}

// Sample is a blood sample with the predictions made on it.
type Sample struct {
	ID               uuid.UUID      `json:"id"`
	PatientID        uuid.UUID      `json:"patient_id"`
	SampleDate       time.Time      `json:"sample_date"`
	StorageURL       string         `json:"storage_url"`
	ProcessingStatus string         `json:"processing_status"`
	Predictions      []*Prediction  `json:"predictions"`
	ImageMetadata    map[string]any `json:"image_metadata,omitempty"`
}

type HistoryEntry struct {
	ID           uuid.UUID  `json:"id"`
	PredictionID *uuid.UUID `json:"prediction_id,omitempty"`
	SampleID     *uuid.UUID `json:"sample_id,omitempty"`
	DoctorID     *uuid.UUID `json:"doctor_id,omitempty"`
	Status       string     `json:"status"`
	Notes        string     `json:"notes,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Filter struct {
	PatientID      *uuid.UUID
	DoctorID       *uuid.UUID
	PredictedClass string
	Start          *time.Time
	End            *time.Time
}

type HistoryFilter struct {
	DoctorID *uuid.UUID
	Status   string
	Limit    int
}

type Stats struct {
	TotalPredictions  int     `json:"total_predictions"`
	InfectedCount     int     `json:"infected_count"`
	HealthyCount      int     `json:"healthy_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

type DayCount struct {
	Day      string `json:"day"`
	Tests    int    `json:"tests"`
	Infected int    `json:"infected"`
}

// The inference service labels classes Parasitized/Uninfected; older rows
// use infected/healthy.
func isInfected(class string) bool {
	c := strings.TrimSpace(class)
	return strings.EqualFold(c, "parasitized") || strings.EqualFold(c, "infected")
}

func isHealthy(class string) bool {
	c := strings.TrimSpace(class)
	return strings.EqualFold(c, "uninfected") || strings.EqualFold(c, "healthy")
}

func ComputeStats(items []*Prediction) Stats {
	var s Stats
	var sum float64
	for _, p := range items {
		s.TotalPredictions++
		if isInfected(p.PredictedClass) {
			s.InfectedCount++
		} else if isHealthy(p.PredictedClass) {
			s.HealthyCount++
		}
		sum += p.ConfidenceScore
	}
	if s.TotalPredictions > 0 {
		s.AverageConfidence = sum / float64(s.TotalPredictions)
	}
	return s
}

// WeeklyCounts groups by weekday, Sunday first, listing only days that have
// predictions.
func WeeklyCounts(items []*Prediction) []DayCount {
	var byDay [7]*DayCount
	for _, p := range items {
		wd := p.PredictionDate.Weekday()
		if byDay[wd] == nil {
			byDay[wd] = &DayCount{Day: wd.String()[:3]}
		}
		byDay[wd].Tests++
		if isInfected(p.PredictedClass) {
			byDay[wd].Infected++
		}
	}
	out := []DayCount{}
	for _, d := range byDay {
		if d != nil {
			out = append(out, *d)
		}
	}
	return out
}
