package tests

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResultPositive = "positive"
	ResultNegative = "negative"
	ResultPending  = "pending"

	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Test is one malaria test result.
type Test struct {
	ID                     uuid.UUID  `json:"id"`
	PatientID              uuid.UUID  `json:"patient_id"`
	DoctorID               *uuid.UUID `json:"doctor_id,omitempty"`
	Result                 string     `json:"result"`
	Confidence             int        `json:"confidence"`
	Status                 string     `json:"status"`
	ParasiteSpecies        string     `json:"parasite_species,omitempty"`
	ImageURL               string     `json:"image_url,omitempty"`
	ParasitizedProbability string     `json:"parasitized_probability,omitempty"`
	UninfectedProbability  string     `json:"uninfected_probability,omitempty"`
	ImageQuality           string     `json:"image_quality,omitempty"`
	AdditionalNotes        string     `json:"additional_notes,omitempty"`
	PostedToPatient        bool       `json:"posted_to_patient"`
	PostedAt               *time.Time `json:"posted_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Filter narrows a listing. Set fields are AND-combined.
type Filter struct {
	PatientID  *uuid.UUID
	DoctorID   *uuid.UUID
	Result     string
	Start      *time.Time
	End        *time.Time
	PostedOnly bool
}

type Stats struct {
	TotalTests        int     `json:"total_tests"`
	PositiveTests     int     `json:"positive_tests"`
	NegativeTests     int     `json:"negative_tests"`
	PendingTests      int     `json:"pending_tests"`
	AverageConfidence float64 `json:"average_confidence"`
}

// DayCount is one bar of the weekly chart.
type DayCount struct {
	Day      string `json:"day"`
	Tests    int    `json:"tests"`
	Positive int    `json:"positive"`
}

// ComputeStats reduces a fetched row set.
func ComputeStats(items []*Test) Stats {
	var s Stats
	var sum int
	for _, t := range items {
		s.TotalTests++
		switch t.Result {
		case ResultPositive:
			s.PositiveTests++
		case ResultNegative:
			s.NegativeTests++
		}
		if t.Status == StatusPending {
			s.PendingTests++
		}
		sum += t.Confidence
	}
	if s.TotalTests > 0 {
		s.AverageConfidence = float64(sum) / float64(s.TotalTests)
	}
	return s
}

// WeeklyCounts groups tests by weekday, Sunday first. Every day is present.
func WeeklyCounts(items []*Test) []DayCount {
	out := make([]DayCount, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[d].Day = d.String()[:3]
	}
	for _, t := range items {
		wd := t.CreatedAt.Weekday()
		out[wd].Tests++
		if t.Result == ResultPositive {
			out[wd].Positive++
		}
	}
	return out
}
