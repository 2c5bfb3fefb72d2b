// Package analytics serves dashboard figures and the user activity log.
package analytics

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/domain/tests"
)

const (
	DashboardWindowDays = 30
	DefaultTrendDays    = 30
	MaxTrendDays        = 365
	DefaultActivityRows = 50
	MaxActivityRows     = 500

	TrendDateLayout = "2006-01-02"
)

type DashboardStats struct {
	TotalTests        int     `json:"total_tests"`
	PositiveTests     int     `json:"positive_tests"`
	NegativeTests     int     `json:"negative_tests"`
	TotalPatients     int     `json:"total_patients"`
	AverageConfidence float64 `json:"average_confidence"`
}

// TrendPoint counts the tests created on one calendar day (UTC).
type TrendPoint struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Positive int    `json:"positive"`
	Negative int    `json:"negative"`
}

type SystemStats struct {
	TotalTests    int     `json:"total_tests"`
	TotalUsers    int     `json:"total_users"`
	TotalPatients int     `json:"total_patients"`
	TotalDoctors  int     `json:"total_doctors"`
	PositiveRate  float64 `json:"positive_rate"`
}

// ActivityLog maps to the activity_logs table.
type ActivityLog struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	UserID    *uuid.UUID             `db:"user_id" json:"user_id,omitempty"`
	UserName  string                 `db:"user_name" json:"user_name,omitempty"`
	UserEmail string                 `db:"user_email" json:"user_email,omitempty"`
	Action    string                 `db:"action" json:"action"`
	Details   map[string]interface{} `db:"details" json:"details,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Trends groups tests by creation day, oldest first.
func Trends(items []*tests.Test) []TrendPoint {
	byDay := make(map[string]*TrendPoint)
	for _, t := range items {
		day := t.CreatedAt.UTC().Format(TrendDateLayout)
		p, ok := byDay[day]
		if !ok {
			p = &TrendPoint{Date: day}
			byDay[day] = p
		}
		p.Total++
		switch t.Result {
		case tests.ResultPositive:
			p.Positive++
		case tests.ResultNegative:
			p.Negative++
		}
	}
	out := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// PositiveRate is the percentage of positive tests, 0 for no tests.
func PositiveRate(items []*tests.Test) float64 {
	if len(items) == 0 {
		return 0
	}
	var n int
	for _, t := range items {
		if t.Result == tests.ResultPositive {
			n++
		}
	}
	return float64(n) / float64(len(items)) * 100
}
