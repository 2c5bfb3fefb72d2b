package detection

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/malariadx/malariadx/internal/inference"
	"github.com/malariadx/malariadx/internal/intake"
)

// State is where a workspace is in the detection flow.
type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateAnalyzing State = "analyzing"
	StateResult    State = "result"
	StateError     State = "error"
)

var (
	ErrBusy              = errors.New("a detection is already running for this image")
	ErrResultHeld        = errors.New("this image already has a result; reset or upload a new image")
	ErrNoImage           = errors.New("upload an image first")
	ErrNoResult          = errors.New("no result to report")
	ErrPatientRequired   = errors.New("patient_id is required")
	ErrInvalidPatient    = errors.New("invalid patient_id")
	ErrWorkspaceNotFound = errors.New("detection workspace not found")
)

// Outcome is a successful analysis. Persisted is false when the result was
// computed but the test record could not be saved.
type Outcome struct {
	Result       inference.DisplayResult `json:"result"`
	PatientID    uuid.UUID               `json:"patient_id"`
	TestID       *uuid.UUID              `json:"test_id,omitempty"`
	StorageURL   string                  `json:"storage_url,omitempty"`
	Persisted    bool                    `json:"persisted"`
	PersistError string                  `json:"persist_error,omitempty"`
	CompletedAt  time.Time               `json:"completed_at"`
}

// Workspace is one user's detection page: at most one image, at most one
// analysis in flight, and the last outcome or error.
type Workspace struct {
	ID      uuid.UUID
	OwnerID string

	mu        sync.Mutex
	state     State
	image     *intake.UploadedImage
	progress  int
	outcome   *Outcome
	err       error
	updatedAt time.Time
}

func newWorkspace(owner string, now time.Time) *Workspace {
	return &Workspace{ID: uuid.New(), OwnerID: owner, state: StateIdle, updatedAt: now}
}

// ImageInfo describes the held image without its bytes.
type ImageInfo struct {
	FileName  string `json:"file_name"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Preview   string `json:"preview,omitempty"`
}

// Snapshot is a consistent copy of a workspace.
type Snapshot struct {
	ID        uuid.UUID  `json:"id"`
	State     State      `json:"state"`
	Progress  int        `json:"progress"`
	Image     *ImageInfo `json:"image,omitempty"`
	Outcome   *Outcome   `json:"outcome,omitempty"`
	Error     string     `json:"error,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (w *Workspace) snapshot(withPreview bool) Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{ID: w.ID, State: w.state, Progress: w.progress, UpdatedAt: w.updatedAt}
	if w.image != nil {
		s.Image = &ImageInfo{
			FileName:  w.image.FileName,
			MIMEType:  w.image.MIMEType,
			SizeBytes: w.image.SizeBytes,
		}
		if withPreview {
			s.Image.Preview = w.image.PreviewDataURL
		}
	}
	if w.outcome != nil {
		o := *w.outcome
		s.Outcome = &o
	}
	if w.err != nil {
		s.Error = inference.UserMessage(w.err)
		s.ErrorKind = inference.KindOf(w.err).String()
	}
	return s
}

// hold replaces the image. A held result is discarded with it.
func (w *Workspace) hold(img *intake.UploadedImage, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateAnalyzing {
		return ErrBusy
	}
	w.image = img
	w.outcome = nil
	w.err = nil
	w.progress = 0
	w.state = StateUploading
	w.updatedAt = now
	return nil
}

// begin moves an Uploading or Error workspace to Analyzing and hands back the
// image to send.
func (w *Workspace) begin(now time.Time) (*intake.UploadedImage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateUploading, StateError:
	case StateIdle:
		return nil, ErrNoImage
	case StateResult:
		return nil, ErrResultHeld
	default:
		return nil, ErrBusy
	}
	if w.image == nil {
		return nil, ErrNoImage
	}
	w.state = StateAnalyzing
	w.err = nil
	w.progress = 0
	w.updatedAt = now
	return w.image, nil
}

func (w *Workspace) advance(step, ceiling int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateAnalyzing {
		return
	}
	w.progress += step
	if w.progress > ceiling {
		w.progress = ceiling
	}
}

func (w *Workspace) setProgress(p int) {
	w.mu.Lock()
	w.progress = p
	w.mu.Unlock()
}

// succeed stores the outcome. The uploaded image is released.
func (w *Workspace) succeed(o *Outcome, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.outcome = o
	w.image = nil
	w.state = StateResult
	w.updatedAt = now
}

// fail keeps the image so the same upload can be retried.
func (w *Workspace) fail(err error, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.err = err
	w.progress = 0
	w.state = StateError
	w.updatedAt = now
}

func (w *Workspace) reset(now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateAnalyzing {
		return ErrBusy
	}
	w.image = nil
	w.outcome = nil
	w.err = nil
	w.progress = 0
	w.state = StateIdle
	w.updatedAt = now
	return nil
}

func (w *Workspace) result() (*Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != StateResult || w.outcome == nil {
		return nil, ErrNoResult
	}
	o := *w.outcome
	return &o, nil
}
