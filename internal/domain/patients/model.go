package patients

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format of DateOfBirth.
const DateLayout = "2006-01-02"

type Patient struct {
	ID                  uuid.UUID  `json:"id"`
	UserID              *uuid.UUID `json:"user_id,omitempty"`
	Name                string     `json:"name"`
	Age                 *int       `json:"age,omitempty"`
	Gender              string     `json:"gender,omitempty"`
	Phone               string     `json:"phone,omitempty"`
	Email               string     `json:"email,omitempty"`
	Address             string     `json:"address,omitempty"`
	EmergencyContact    string     `json:"emergency_contact,omitempty"`
	MedicalRecordNumber string     `json:"medical_record_number,omitempty"`
	DateOfBirth         string     `json:"date_of_birth,omitempty"`
	CreatedBy           *uuid.UUID `json:"created_by,omitempty"`
	DateRegistered      time.Time  `json:"date_registered"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SampleSummary is one blood sample and the classes predicted for it.
type SampleSummary struct {
	ID         uuid.UUID `json:"id"`
	SampleDate time.Time `json:"sample_date"`
	StorageURL string    `json:"storage_url,omitempty"`
	Classes    []string  `json:"predicted_classes"`
}

type Stats struct {
	TotalTests    int            `json:"total_tests"`
	InfectedTests int            `json:"infected_tests"`
	HealthyTests  int            `json:"healthy_tests"`
	LastTest      *SampleSummary `json:"last_test"`
}

func anyClass(classes []string, names ...string) bool {
	for _, c := range classes {
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(c), n) {
				return true
			}
		}
	}
	return false
}

// ComputeStats expects samples newest first. A sample counts as infected or
// healthy when any of its predictions says so.
func ComputeStats(samples []*SampleSummary) Stats {
	s := Stats{TotalTests: len(samples)}
	for _, smp := range samples {
		if anyClass(smp.Classes, "parasitized", "infected") {
			s.InfectedTests++
		}
		if anyClass(smp.Classes, "uninfected", "healthy") {
			s.HealthyTests++
		}
	}
	if len(samples) > 0 {
		s.LastTest = samples[0]
	}
	return s
}
