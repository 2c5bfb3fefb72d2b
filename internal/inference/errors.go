package inference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies where an inference call failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthorized
	KindNetwork
	KindTunnel
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNetwork:
		return "network"
	case KindTunnel:
		return "tunnel"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

// maxErrorBody bounds how much of a failed response is kept on the error.
const maxErrorBody = 4 << 10

// Error is returned by every Client operation. Kind is set where the failure
// is detected; UserMessage turns it into text for people.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	BaseURL    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("inference: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("inference: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("inference: %s: %s error", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func validationError(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: errors.New(msg)}
}

// classifyStatus maps a non-2xx response onto a Kind. The tunnel proxy in
// front of development model servers answers 407/511 or an HTML page naming
// itself.
func classifyStatus(status int, body string) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusProxyAuthRequired, status == http.StatusNetworkAuthenticationRequired:
		return KindTunnel
	case looksLikeTunnel(body):
		return KindTunnel
	default:
		return KindService
	}
}

func looksLikeTunnel(body string) bool {
	return strings.Contains(strings.ToLower(body), "localtunnel")
}

func truncateBody(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return strings.TrimSpace(string(b))
}

// UserMessage returns remediation text for err. It never inspects message
// text; the decision is keyed on Kind alone.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindValidation:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Invalid request"
	case KindUnauthorized:
		return "Authentication required. Please login again."
	case KindNetwork:
		return "Cannot connect to AI server. Please ensure the inference server is running and accessible."
	case KindTunnel:
		return fmt.Sprintf("Tunnel setup required:\n\n"+
			"1. Open %s in a new browser tab\n"+
			"2. Click 'Continue' on the tunnel landing page\n"+
			"3. Return here and try again\n\n"+
			"The tunnel asks for this browser verification once per session.", e.BaseURL)
	case KindService:
		body := e.Body
		if body == "" {
			body = http.StatusText(e.StatusCode)
		}
		return fmt.Sprintf("%s failed (%d): %s", e.Op, e.StatusCode, body)
	default:
		return "Unexpected response from AI server. Please try again."
	}
}
