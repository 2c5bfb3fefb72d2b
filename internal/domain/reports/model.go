package reports

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pending"
	StatusPosted  = "posted"

	// MaxFileBytes bounds an uploaded report (10 MB).
	MaxFileBytes = 10 * 1024 * 1024
	FileMIMEType = "application/pdf"
)

// Types lists the report categories in display order.
var Types = []string{"general", "lab", "prescription", "diagnostic", "consultation"}

type Report struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        *uuid.UUID `json:"doctor_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	ReportType      string     `json:"report_type"`
	FilePath        string     `json:"file_path,omitempty"`
	FileURL         string     `json:"file_url,omitempty"`
	FileName        string     `json:"file_name,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	PostedToPatient bool       `json:"posted_to_patient"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// UploadedFile describes a stored report file before a record points at it.
type UploadedFile struct {
	Path     string `json:"path"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}

type Filter struct {
	PatientID  *uuid.UUID
	DoctorID   *uuid.UUID
	ReportType string
	PostedOnly bool
}

type Stats struct {
	TotalReports   int            `json:"total_reports"`
	PostedReports  int            `json:"posted_reports"`
	PendingReports int            `json:"pending_reports"`
	ReportsByType  map[string]int `json:"reports_by_type"`
}

func ComputeStats(items []*Report) Stats {
	s := Stats{ReportsByType: make(map[string]int, len(Types))}
	for _, t := range Types {
		s.ReportsByType[t] = 0
	}
	for _, r := range items {
		s.TotalReports++
		if r.PostedToPatient {
			s.PostedReports++
		} else {
			s.PendingReports++
		}
		if _, ok := s.ReportsByType[r.ReportType]; ok {
			s.ReportsByType[r.ReportType]++
		}
	}
	return s
}
