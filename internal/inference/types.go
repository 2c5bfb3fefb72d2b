package inference

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID accepts both string and numeric identifiers. The model server returns
// UUID strings from the plain endpoints and row ids from the persisting ones.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the id as an integer, or 0 when it is not numeric.
func (id ID) Int() int64 {
	n, _ := strconv.ParseInt(string(id), 10, 64)
	return n
}

// Prediction is the basic classification payload.
type Prediction struct {
	PredictionID   ID                 `json:"prediction_id,omitempty"`
	PatientID      ID                 `json:"patient_id,omitempty"`
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities,omitempty"`
	Timestamp      string             `json:"timestamp,omitempty"`
	CreatedAt      string             `json:"created_at,omitempty"`
}

// DetailedPrediction adds explainability fields and, for the persisting
// endpoint, where the sample image was stored.
type DetailedPrediction struct {
	Prediction
	Uncertainty     *float64 `json:"uncertainty,omitempty"`
	ConfidenceLevel string   `json:"confidence_level,omitempty"`
	Recommendation  string   `json:"recommendation,omitempty"`
	GradCAMImage    string   `json:"gradcam_image,omitempty"`
	StorageURL      string   `json:"storage_url,omitempty"`
	SampleID        ID       `json:"sample_id,omitempty"`
}

type ModelInfo struct {
	ModelName  string   `json:"model_name"`
	Version    string   `json:"version"`
	Parameters int64    `json:"parameters"`
	InputShape []int    `json:"input_shape"`
	Classes    []string `json:"classes"`
	Accuracy   *float64 `json:"accuracy,omitempty"`
}

type Health struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Timestamp   string `json:"timestamp"`
}

type BatchResult struct {
	BatchID     ID               `json:"batch_id"`
	TotalImages int              `json:"total_images"`
	Results     []map[string]any `json:"results"`
	Timestamp   string           `json:"timestamp"`
}

// Image is one file sent to the model server.
type Image struct {
	FileName    string
	ContentType string
	Data        []byte
}

// CompleteRequest is the argument of PredictComplete. PatientID is required.
type CompleteRequest struct {
	Image         Image
	PatientID     string
	DoctorID      string
	ImagePath     string
	StorageURL    string
	ImageMetadata map[string]any
	UseTTA        bool
	UseGradCAM    bool
}
