package reportpdf

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC)

func TestFormatForDoctor_Defaults(t *testing.T) {
	d := FormatForDoctor(TestSummary{}, DoctorProfile{}, now)

	assert.Equal(t, "Unknown Patient", d.PatientName)
	assert.Equal(t, "N/A", d.PatientID)
	assert.Equal(t, "3/1/2024", d.TestDate)
	assert.Equal(t, "Malaria Detection Test", d.TestType)
	assert.Equal(t, "Pending", d.Result)
	assert.Equal(t, "Pending", d.PredictedClass)
	assert.Equal(t, "Completed", d.Status)
	assert.Equal(t, "Doctor", d.DoctorName)
	assert.Equal(t, "Medical Center", d.Hospital)
	assert.Equal(t, "N/A", d.ParasitizedProb)
	assert.Equal(t, "N/A", d.UninfectedProb)
	assert.Equal(t, "Good", d.ImageQuality)
	assert.Empty(t, d.AdditionalNotes)
}

func TestFormatForDoctor_UsesProfile(t *testing.T) {
	d := FormatForDoctor(TestSummary{
		ID:             "t-9",
		PatientName:    "Jane Doe",
		Result:         "Positive",
		PredictedClass: "Parasitized",
		Confidence:     95,
		Notes:          "Analysis performed on 3/1/2024",
	}, DoctorProfile{FullName: "Dr. Okafor", Hospital: "St. Luke"}, now)

	assert.Equal(t, "t-9", d.PatientID)
	assert.Equal(t, "Dr. Okafor", d.DoctorName)
	assert.Equal(t, "St. Luke", d.Hospital)
	assert.Equal(t, "Parasitized", d.PredictedClass)
	assert.Equal(t, "Analysis performed on 3/1/2024", d.AdditionalNotes)
}

func TestFormatForPatient(t *testing.T) {
	d := FormatForPatient(TestSummary{PatientName: "Jane", Notes: "internal", DoctorName: "Dr. A"}, now)
	assert.Equal(t, "Patient", d.PatientName)
	assert.Equal(t, "Dr. A", d.DoctorName)
	assert.Empty(t, d.AdditionalNotes)
}

func TestExtractProbabilities(t *testing.T) {
	p, u := ExtractProbabilities(map[string]float64{"Parasitized": 0.8734, "uninfected": 0.1266})
	assert.Equal(t, "87.34%", p)
	assert.Equal(t, "12.66%", u)

	p, u = ExtractProbabilities(nil)
	assert.Equal(t, "N/A", p)
	assert.Equal(t, "N/A", u)
}

func TestStatusColor(t *testing.T) {
	tests := []struct {
		name string
		data Data
		want RGB
	}{
		{"positive", Data{Result: "Positive"}, colorPositive},
		{"parasitized result", Data{Result: "parasitized"}, colorPositive},
		{"parasitized class", Data{Result: "Pending", PredictedClass: "Parasitized"}, colorPositive},
		{"negative", Data{Result: "Negative", PredictedClass: "Uninfected"}, colorNegative},
		{"empty", Data{}, colorNegative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusColor(tt.data))
			if tt.want == colorPositive {
				assert.Equal(t, "POSITIVE", StatusLabel(tt.data))
			} else {
				assert.Equal(t, "NEGATIVE", StatusLabel(tt.data))
			}
		})
	}
}

func TestFileNames(t *testing.T) {
	d := Data{PatientName: "Jane  Q Doe", TestDate: "3/1/2024"}
	assert.Equal(t, "Malaria_Report_Jane_Q_Doe_3-1-2024.pdf", DoctorFileName(d))
	assert.Equal(t, "Malaria_Test_Report_3-1-2024.pdf", PatientFileName(d))
}

func TestDoctorFileName_UnsafeCharacters(t *testing.T) {
	d := Data{PatientName: `O"Neil ../../etc/passwd`, TestDate: "3/1/2024"}
	name := DoctorFileName(d)
	assert.Equal(t, "Malaria_Report_O_Neil_.._.._etc_passwd_3-1-2024.pdf", name)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, `"`)
	assert.Equal(t, name, filepath.Base(name))
}

func TestRender_ProducesPDF(t *testing.T) {
	d := FormatForDoctor(TestSummary{
		PatientName: "Zoë Ngũgĩ",
		Result:      "Negative",
		Confidence:  88,
		Notes:       "A fairly long note that should wrap across more than one line of the notes block in the report body.",
	}, DoctorProfile{}, now)

	var buf bytes.Buffer
	n, err := Render(d, now).WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}
