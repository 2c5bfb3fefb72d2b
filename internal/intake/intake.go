// Package intake validates user-selected sample images and prepares them for
// upload.
package intake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const MB = 1024 * 1024

const (
	DefaultMaxBytes   int64 = 5 * MB
	DetectionMaxBytes int64 = 10 * MB
)

var (
	ErrNotImage = errors.New("not an image")
	ErrTooLarge = errors.New("file too large")
)

// ValidationError carries the message shown to the user. Reason is one of
// the package sentinels.
type ValidationError struct {
	Reason  error
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
func (e *ValidationError) Unwrap() error { return e.Reason }

// UploadedImage is a validated image held in memory for one detection attempt.
type UploadedImage struct {
	Raw            []byte
	FileName       string
	MIMEType       string
	SizeBytes      int64
	PreviewDataURL string
}

func (u *UploadedImage) Reader() io.Reader {
	return bytes.NewReader(u.Raw)
}

// Validate checks type and size without reading the content.
func Validate(f File, maxBytes int64) error {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType()), "image/") {
		return &ValidationError{Reason: ErrNotImage, Message: "Please upload an image file"}
	}
	if f.Size() > maxBytes {
		return tooLarge(maxBytes)
	}
	return nil
}

// Select validates f and, only if it passes, reads it and builds the preview.
// Nothing is read on a validation failure.
func Select(f File, maxBytes int64) (*UploadedImage, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := Validate(f, maxBytes); err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()

	// declared sizes can lie
	raw, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name(), err)
	}
	if int64(len(raw)) > maxBytes {
		return nil, tooLarge(maxBytes)
	}

	mimeType := strings.ToLower(f.ContentType())
	return &UploadedImage{
		Raw:            raw,
		FileName:       f.Name(),
		MIMEType:       mimeType,
		SizeBytes:      int64(len(raw)),
		PreviewDataURL: DataURL(mimeType, raw),
	}, nil
}

func DataURL(mimeType string, raw []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func tooLarge(maxBytes int64) error {
	mb := strconv.FormatFloat(float64(maxBytes)/MB, 'f', -1, 64)
	return &ValidationError{
		Reason:  ErrTooLarge,
		Message: fmt.Sprintf("File size must be less than %sMB", mb),
	}
}
