package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/pkg/geospatial"
	"github.com/samirrijal/patrolscan/internal/pkg/metrics"
)

const maxResponseBytes = 4 << 20

// Instruction is sent with every request and names the fields expected per detection.
const Instruction = "Identify every environmental pollution event visible in this satellite image. " +
	"Return a JSON array. Each element must have: kind (Chemical, Oil or Physical), " +
	"confidence (0 to 1), boundary (closed polygon as [longitude, latitude] pairs), " +
	"impactArea (Water or Soil) and hazardLevel (Low, Medium or High). " +
	"Return an empty array when nothing is found."

var responseSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []string{"kind", "confidence", "boundary", "impactArea", "hazardLevel"},
		"properties": map[string]any{
			"kind":       map[string]any{"type": "string", "enum": domain.AllKinds},
			"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"boundary": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "array", "minItems": 2, "maxItems": 2,
					"items": map[string]any{"type": "number"},
				},
			},
			"impactArea":  map[string]any{"type": "string", "enum": domain.AllImpactAreas},
			"hazardLevel": map[string]any{"type": "string", "enum": domain.AllHazardLevels},
		},
	},
}

// ImageFetcher resolves an imagery reference to image bytes.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) (data []byte, mimeType string, err error)
}

// HTTPConfig configures the remote classification service.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// HTTPClassifier calls the external vision service once per Analyze.
type HTTPClassifier struct {
	cfg    HTTPConfig
	images ImageFetcher
	client *http.Client
	tracer trace.Tracer
}

// NewHTTPClassifier returns a classifier. A nil client gets one with cfg.Timeout.
func NewHTTPClassifier(cfg HTTPConfig, images ImageFetcher, client *http.Client) *HTTPClassifier {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPClassifier{
		cfg:    cfg,
		images: images,
		client: client,
		tracer: otel.Tracer("patrolscan/classifier"),
	}
}

type imagePayload struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type analyzeRequest struct {
	Model          string         `json:"model,omitempty"`
	Instruction    string         `json:"instruction"`
	Image          imagePayload   `json:"image"`
	ResponseSchema map[string]any `json:"response_schema"`
}

type wireDetection struct {
	Kind        string      `json:"kind"`
	Confidence  float64     `json:"confidence"`
	Boundary    [][]float64 `json:"boundary"`
	ImpactArea  string      `json:"impactArea"`
	HazardLevel string      `json:"hazardLevel"`
}

// Analyze fetches the referenced image and asks the service for detections.
func (c *HTTPClassifier) Analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error) {
	ctx, span := c.tracer.Start(ctx, "classifier.analyze",
		trace.WithAttributes(attribute.String("classifier.model", c.cfg.Model)))
	defer span.End()

	out, err := c.analyze(ctx, imageRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("classifier.detections", len(out)))
	return out, nil
}

func (c *HTTPClassifier) analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error) {
	if c.cfg.APIKey == "" {
		return nil, Fatal("missing API key", nil)
	}
	if c.cfg.Endpoint == "" {
		return nil, Fatal("missing classifier endpoint", nil)
	}

	data, mime, err := c.images.Fetch(ctx, imageRef)
	if err != nil {
		return nil, Fatal("fetch imagery", err)
	}

	body, err := json.Marshal(analyzeRequest{
		Model:       c.cfg.Model,
		Instruction: Instruction,
		Image: imagePayload{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		},
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return nil, Fatal("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, Fatal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Fatal("request classification", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, ErrTransientRateLimit
	}
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, Fatal(fmt.Sprintf("unexpected status %s", resp.Status),
			errors.New(strings.TrimSpace(string(snippet))))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Fatal("read response", err)
	}
	return decodeCandidates(raw)
}

// decodeCandidates parses the service response. A JSON value that is not an
// array yields no detections; invalid entries are dropped individually.
func decodeCandidates(raw []byte) ([]domain.CandidateDetection, error) {
	var top json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, Fatal("decode response", err)
	}
	top = bytes.TrimSpace(top)
	if len(top) == 0 || top[0] != '[' {
		return nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(top, &entries); err != nil {
		return nil, Fatal("decode response", err)
	}

	out := make([]domain.CandidateDetection, 0, len(entries))
	for i, e := range entries {
		cd, err := decodeEntry(e)
		if err != nil {
			metrics.CandidatesDropped.Inc()
			slog.Debug("dropping classifier entry", "index", i, "reason", err)
			continue
		}
		out = append(out, cd)
	}
	return out, nil
}

func decodeEntry(raw json.RawMessage) (domain.CandidateDetection, error) {
	var w wireDetection
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.CandidateDetection{}, err
	}

	ring, err := toRing(w.Boundary)
	if err != nil {
		return domain.CandidateDetection{}, err
	}
	kind, err := domain.ParseKind(w.Kind)
	if err != nil {
		return domain.CandidateDetection{}, err
	}
	area, err := domain.ParseImpactArea(w.ImpactArea)
	if err != nil {
		return domain.CandidateDetection{}, err
	}
	hazard, err := domain.ParseHazardLevel(w.HazardLevel)
	if err != nil {
		return domain.CandidateDetection{}, err
	}

	return domain.CandidateDetection{
		Kind:        kind,
		Confidence:  min(max(w.Confidence, 0), 1),
		Boundary:    ring,
		ImpactArea:  area,
		HazardLevel: hazard,
	}, nil
}

// toRing validates the polygon and closes it when the service left it open.
func toRing(points [][]float64) (domain.Ring, error) {
	if len(points) == 0 {
		return nil, errors.New("missing boundary")
	}

	ring := make(domain.Ring, 0, len(points)+1)
	distinct := map[[2]float64]struct{}{}
	for _, p := range points {
		if len(p) != 2 {
			return nil, fmt.Errorf("boundary point has %d coordinates", len(p))
		}
		lng, lat := p[0], p[1]
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
			return nil, fmt.Errorf("boundary point %v out of range", p)
		}
		pt := [2]float64{lng, lat}
		ring = append(ring, pt)
		distinct[pt] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, fmt.Errorf("boundary has %d distinct points", len(distinct))
	}

	return domain.Ring(geospatial.CloseRing(ring)), nil
}
