// Package imagery builds and resolves satellite imagery references for a
// sensor footprint.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/patrolscan/internal/core/domain"
)

// DefaultBaseURL is an ArcGIS-style map export endpoint.
const DefaultBaseURL = "https://services.arcgisonline.com/arcgis/rest/services/World_Imagery/MapServer/export"

// maxImageBytes bounds a single fetched tile.
const maxImageBytes = 16 << 20

// Config describes the imagery export endpoint.
type Config struct {
	BaseURL string
	Width   int
	Height  int
	Format  string // jpg or png
	Timeout time.Duration
}

// Provider renders footprint bounds as export URLs and fetches them.
type Provider struct {
	cfg    Config
	client *http.Client
}

// NewProvider returns a Provider. A nil client gets one with cfg.Timeout.
func NewProvider(cfg Config, client *http.Client) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Width <= 0 {
		cfg.Width = 512
	}
	if cfg.Height <= 0 {
		cfg.Height = 512
	}
	if cfg.Format == "" {
		cfg.Format = "jpg"
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Provider{cfg: cfg, client: client}
}

// RefFor returns the export URL covering b.
func (p *Provider) RefFor(b domain.Bounds) string {
	q := url.Values{}
	q.Set("bbox", formatBBox(b))
	q.Set("bboxSR", "4326")
	q.Set("imageSR", "4326")
	q.Set("size", fmt.Sprintf("%d,%d", p.cfg.Width, p.cfg.Height))
	q.Set("format", p.cfg.Format)
	q.Set("f", "image")
	return p.cfg.BaseURL + "?" + q.Encode()
}

// Fetch downloads the image behind ref and returns its bytes and MIME type.
func (p *Provider) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request imagery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read imagery: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("imagery exceeds %d bytes", maxImageBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty imagery response")
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = mimeFor(p.cfg.Format)
	}
	return data, mime, nil
}

// ParseRef extracts the footprint bounds encoded in an imagery reference.
func ParseRef(ref string) (domain.Bounds, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return domain.Bounds{}, fmt.Errorf("parse imagery ref: %w", err)
	}
	raw := u.Query().Get("bbox")
	if raw == "" {
		return domain.Bounds{}, fmt.Errorf("imagery ref %q has no bbox", ref)
	}

	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("bbox %q: expected 4 values", raw)
	}
	var v [4]float64
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("bbox %q: %w", raw, err)
		}
		v[i] = f
	}

	b := domain.Bounds{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}
	if b.Empty() {
		return domain.Bounds{}, fmt.Errorf("bbox %q is empty", raw)
	}
	return b, nil
}

func formatBBox(b domain.Bounds) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return strings.Join([]string{f(b.MinLng), f(b.MinLat), f(b.MaxLng), f(b.MaxLat)}, ",")
}

func mimeFor(format string) string {
	switch strings.ToLower(format) {
	case "png", "png8", "png24", "png32":
		return "image/png"
	default:
		return "image/jpeg"
	}
}
