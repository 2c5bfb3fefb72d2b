// Package inference is the client for the external model-serving API that
// classifies blood-smear images.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	userAgent = "MalariaDetectionApp/1.0"

	// maxResponseBytes bounds decoded response bodies. Grad-CAM overlays are
	// returned inline as base64 so detailed responses can be large.
	maxResponseBytes = 64 << 20
)

// TokenSource supplies the bearer credential for authenticated calls. It is
// consulted once per request, when the request is built.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Recorder receives per-call measurements.
type Recorder interface {
	ObserveCall(operation, outcome string, d time.Duration)
	ObserveCacheHit(operation string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCall(string, string, time.Duration) {}
func (nopRecorder) ObserveCacheHit(string)                    {}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets where bearer credentials come from. Without one,
// requests go out unauthenticated.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimit paces outbound calls. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCacheTTL caches the slow-changing read-backs (model info, doctor
// profile, public reports) for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = cache.New(ttl, 2*ttl)
	}
}

func WithMetrics(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.metrics = r
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTimeout bounds every call. By default no timeout is applied and a hung
// model server blocks the caller until its context ends.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// AuthenticateVariants controls whether PredictWithTTA and PredictBatch send
// the bearer credential. They are unauthenticated by default, matching the
// model server's public variant endpoints.
func AuthenticateVariants(on bool) Option {
	return func(c *Client) { c.authVariants = on }
}

// Client calls the model-serving API. It is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	tokens       TokenSource
	limiter      *rate.Limiter
	cache        *cache.Cache
	metrics      Recorder
	logger       zerolog.Logger
	timeout      time.Duration
	authVariants bool
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		metrics:    nopRecorder{},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// endpoint describes one operation: name labels metrics, label starts the
// user-facing failure text.
type endpoint struct {
	name   string
	label  string
	method string
	path   string
	auth   bool
	cached bool
}

type payload struct {
	body        []byte
	contentType string
}

func (c *Client) call(ctx context.Context, ep endpoint, query url.Values, p *payload, out any) error {
	start := time.Now()
	err := c.send(ctx, ep, query, p, out)
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	c.metrics.ObserveCall(ep.name, outcome, time.Since(start))
	return err
}

func (c *Client) send(ctx context.Context, ep endpoint, query url.Values, p *payload, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	token := ""
	if ep.auth && c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return &Error{Kind: KindUnauthorized, Op: ep.label, BaseURL: c.baseURL, Err: err}
		}
		token = t
	}

	target := c.baseURL + ep.path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	cacheKey := ""
	if ep.cached && c.cache != nil {
		cacheKey = target + "\x00" + token
		if raw, ok := c.cache.Get(cacheKey); ok {
			c.metrics.ObserveCacheHit(ep.name)
			return decode(ep, c.baseURL, raw.([]byte), out)
		}
	}

	var body io.Reader
	if p != nil {
		body = bytes.NewReader(p.body)
	}
	req, err := http.NewRequestWithContext(ctx, ep.method, target, body)
	if err != nil {
		return &Error{Kind: KindValidation, Op: ep.label, BaseURL: c.baseURL, Err: err}
	}
	req.Header.Set("Bypass-Tunnel-Reminder", "true")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if p != nil {
		req.Header.Set("Content-Type", p.contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &Error{Kind: KindNetwork, Op: ep.label, BaseURL: c.baseURL, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", ep.name).Msg("inference request failed")
		return &Error{Kind: KindNetwork, Op: ep.label, BaseURL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.logger.Debug().
		Str("operation", ep.name).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("inference call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The body is informational only; a failed read leaves it empty.
		text := truncateBody(raw)
		return &Error{
			Kind:       classifyStatus(resp.StatusCode, text),
			Op:         ep.label,
			StatusCode: resp.StatusCode,
			Body:       text,
			BaseURL:    c.baseURL,
		}
	}
	if readErr != nil {
		return &Error{Kind: KindNetwork, Op: ep.label, BaseURL: c.baseURL, Err: readErr}
	}

	if err := decode(ep, c.baseURL, raw, out); err != nil {
		return err
	}
	if cacheKey != "" {
		c.cache.SetDefault(cacheKey, raw)
	}
	return nil
}

func decode(ep endpoint, base string, raw []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		kind := KindUnknown
		if looksLikeTunnel(string(raw)) {
			kind = KindTunnel
		}
		return &Error{Kind: kind, Op: ep.label, BaseURL: base, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// form builds a multipart body. Field order follows the calls' order.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) file(field string, img Image) {
	if f.err != nil {
		return
	}
	name := img.FileName
	if name == "" {
		name = "image"
	}
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	h.Set("Content-Type", ct)
	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return
	}
	_, f.err = part.Write(img.Data)
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) optional(name, value string) {
	if value != "" {
		f.field(name, value)
	}
}

func (f *form) payload() (*payload, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, err
	}
	return &payload{body: f.buf.Bytes(), contentType: f.w.FormDataContentType()}, nil
}

func checkImage(op string, img Image) error {
	if len(img.Data) == 0 {
		return validationError(op, "An image file is required")
	}
	return nil
}

var (
	epHealth      = endpoint{name: "health", label: "Health check", method: http.MethodGet, path: "/health"}
	epModelInfo   = endpoint{name: "model_info", label: "Model info fetch", method: http.MethodGet, path: "/model/info", cached: true}
	epPredict     = endpoint{name: "predict", label: "Prediction", method: http.MethodPost, path: "/predict", auth: true}
	epComplete    = endpoint{name: "predict_complete", label: "Complete prediction", method: http.MethodPost, path: "/predict/complete", auth: true}
	epTTA         = endpoint{name: "predict_tta", label: "TTA prediction", method: http.MethodPost, path: "/predict/tta"}
	epBatch       = endpoint{name: "predict_batch", label: "Batch prediction", method: http.MethodPost, path: "/batch/predict"}
	epDoctorPreds = endpoint{name: "doctor_predictions", label: "Fetching my predictions", method: http.MethodGet, path: "/doctor/predictions", auth: true}
	epDoctorStats = endpoint{name: "doctor_stats", label: "Fetching doctor stats", method: http.MethodGet, path: "/doctor/stats", auth: true}
	epProfile     = endpoint{name: "doctor_profile", label: "Fetching doctor profile", method: http.MethodGet, path: "/doctor/profile", auth: true, cached: true}
	epReports     = endpoint{name: "public_reports", label: "Fetching public reports", method: http.MethodGet, path: "/public/reports", auth: true, cached: true}
)

func readBack(name, label, path string) endpoint {
	return endpoint{name: name, label: label, method: http.MethodGet, path: path, auth: true}
}

// CheckHealth calls GET /health.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.call(ctx, epHealth, nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ping reports whether the model server answers its health check.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.CheckHealth(ctx)
	return err
}

func (c *Client) ModelInfo(ctx context.Context) (*ModelInfo, error) {
	var m ModelInfo
	if err := c.call(ctx, epModelInfo, nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Predict classifies a single image. patientID may be empty.
func (c *Client) Predict(ctx context.Context, img Image, patientID string) (*Prediction, error) {
	if err := checkImage(epPredict.label, img); err != nil {
		return nil, err
	}
	f := newForm()
	f.file("file", img)
	f.optional("patient_id", patientID)
	p, err := f.payload()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: epPredict.label, Err: err}
	}
	var out Prediction
	if err := c.call(ctx, epPredict, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictComplete runs the persisting prediction: the model server stores
// the sample, prediction, details and history records itself and returns the
// consolidated result.
func (c *Client) PredictComplete(ctx context.Context, req CompleteRequest) (*DetailedPrediction, error) {
	if err := checkImage(epComplete.label, req.Image); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, validationError(epComplete.label, "A patient must be selected")
	}

	f := newForm()
	f.file("file", req.Image)
	f.optional("image_path", req.ImagePath)
	f.optional("storage_url", req.StorageURL)
	if len(req.ImageMetadata) > 0 {
		meta, err := json.Marshal(req.ImageMetadata)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: epComplete.label, Err: err}
		}
		f.field("image_metadata", string(meta))
	}
	f.optional("doctor_id", req.DoctorID)
	f.field("use_tta", strconv.FormatBool(req.UseTTA))
	f.field("use_gradcam", strconv.FormatBool(req.UseGradCAM))
	p, err := f.payload()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: epComplete.label, Err: err}
	}

	var out DetailedPrediction
	q := url.Values{"patient_id": {req.PatientID}}
	if err := c.call(ctx, epComplete, q, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictWithTTA classifies with test-time augmentation.
func (c *Client) PredictWithTTA(ctx context.Context, img Image, patientID string) (*DetailedPrediction, error) {
	if err := checkImage(epTTA.label, img); err != nil {
		return nil, err
	}
	f := newForm()
	f.file("file", img)
	f.field("use_tta", "true")
	f.optional("patient_id", patientID)
	p, err := f.payload()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: epTTA.label, Err: err}
	}
	ep := epTTA
	ep.auth = c.authVariants
	var out DetailedPrediction
	if err := c.call(ctx, ep, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PredictBatch classifies several images in one request.
func (c *Client) PredictBatch(ctx context.Context, imgs []Image, patientID string) (*BatchResult, error) {
	if len(imgs) == 0 {
		return nil, validationError(epBatch.label, "At least one image file is required")
	}
	f := newForm()
	for _, img := range imgs {
		if err := checkImage(epBatch.label, img); err != nil {
			return nil, err
		}
		f.file("files", img)
	}
	f.optional("patient_id", patientID)
	p, err := f.payload()
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: epBatch.label, Err: err}
	}
	ep := epBatch
	ep.auth = c.authVariants
	var out BatchResult
	if err := c.call(ctx, ep, nil, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*DetailedPrediction, error) {
	var out DetailedPrediction
	ep := readBack("prediction", "Fetching prediction", "/predictions/"+url.PathEscape(id))
	if err := c.call(ctx, ep, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPatientHistory returns the model server's history view for a patient.
// The shape is owned by the server and passed through untouched.
func (c *Client) GetPatientHistory(ctx context.Context, patientID string) (json.RawMessage, error) {
	ep := readBack("patient_history", "Fetching patient history", "/patients/"+url.PathEscape(patientID)+"/history")
	return c.raw(ctx, ep)
}

func (c *Client) GetPatientPredictions(ctx context.Context, patientID string) (json.RawMessage, error) {
	ep := readBack("patient_predictions", "Fetching patient predictions", "/predictions/patient/"+url.PathEscape(patientID))
	return c.raw(ctx, ep)
}

func (c *Client) GetMyPredictions(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, epDoctorPreds)
}

func (c *Client) GetDoctorStats(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, epDoctorStats)
}

func (c *Client) GetDoctorProfile(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, epProfile)
}

func (c *Client) GetOrganizationStats(ctx context.Context, orgID string) (json.RawMessage, error) {
	ep := readBack("organization_stats", "Fetching organization stats", "/organization/"+url.PathEscape(orgID)+"/stats")
	return c.raw(ctx, ep)
}

func (c *Client) GetPublicReports(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, epReports)
}

func (c *Client) raw(ctx context.Context, ep endpoint) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.call(ctx, ep, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
