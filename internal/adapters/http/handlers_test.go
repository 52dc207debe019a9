package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/patrolscan/internal/core/domain"
	"github.com/samirrijal/patrolscan/internal/core/patrol"
	"github.com/samirrijal/patrolscan/internal/core/usecases"
)

// --- Mocks ---

type mockClassifier struct {
	analyzeFn func(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error)
}

func (m *mockClassifier) Analyze(ctx context.Context, imageRef string) ([]domain.CandidateDetection, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, imageRef)
	}
	return nil, nil
}

type staticRefs string

func (s staticRefs) RefFor(domain.Bounds) string { return string(s) }

// --- Helpers ---

func setupDeps(t *testing.T) *Dependencies {
	t.Helper()

	engine, err := patrol.NewEngine(domain.PatrolRoute{
		Start:          domain.LatLng{Lat: 83.0, Lng: -70.0},
		End:            domain.LatLng{Lat: 70.0, Lng: -20.0},
		ForwardHeading: 135,
		SpeedKmh:       700,
		TickInterval:   time.Second,
	}, patrol.Options{
		FootprintHalfWidthKm: 25,
		Region:               domain.Bounds{MinLat: 60, MinLng: -80, MaxLat: 84, MaxLng: -10},
		DataRateBaseline:     120,
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	store := usecases.NewDetectionStore(0)
	logs := usecases.NewLogBuffer(usecases.DefaultLogCapacity)
	sched, err := usecases.NewScanScheduler(usecases.SchedulerDeps{
		Engine:     engine,
		Classifier: &mockClassifier{},
		Store:      store,
		Logs:       logs,
		Imagery:    staticRefs("img:test"),
	}, usecases.SchedulerConfig{
		TickInterval:       time.Hour,
		AnalysisPeriod:     3,
		ImageRefreshPeriod: 5,
	})
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	t.Cleanup(func() {
		_ = sched.Stop(context.Background())
		sched.Wait()
	})

	return &Dependencies{
		Scheduler: sched,
		Store:     store,
		Filters:   usecases.NewFilterService(store),
		Logs:      logs,
	}
}

func setupApp(deps *Dependencies) *fiber.App {
	app := NewApp(fiber.Config{DisableStartupMessage: true})
	SetupRoutes(app, deps)
	return app
}

func seedDetections(deps *Dependencies) {
	ring := domain.Ring{{-40, 75}, {-39.9, 75}, {-39.9, 75.1}, {-40, 75}}
	now := time.Now()
	deps.Store.Append([]domain.Detection{
		{ID: "d1", Kind: domain.KindOil, Confidence: 0.95, Boundary: ring, ObservedAt: now,
			ImpactArea: domain.ImpactWater, HazardLevel: domain.HazardHigh, ScanCount: 1},
		{ID: "d2", Kind: domain.KindChemical, Confidence: 0.80, Boundary: ring, ObservedAt: now,
			ImpactArea: domain.ImpactSoil, HazardLevel: domain.HazardMedium, ScanCount: 1},
		{ID: "d3", Kind: domain.KindPhysical, Confidence: 0.60, Boundary: ring, ObservedAt: now,
			ImpactArea: domain.ImpactWater, HazardLevel: domain.HazardLow, ScanCount: 2},
	})
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (int, []byte, map[string][]string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data, resp.Header
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

// --- Health ---

func TestHealthHandler(t *testing.T) {
	app := setupApp(setupDeps(t))

	status, body, _ := doRequest(t, app, "GET", "/v1/health", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decode[map[string]any](t, body)
	if got["status"] != "healthy" {
		t.Errorf("expected healthy, got %v", got["status"])
	}
	if got["patrol"] != "Stopped" {
		t.Errorf("expected Stopped patrol, got %v", got["patrol"])
	}
}

func TestReadyHandler_NothingConfigured(t *testing.T) {
	app := setupApp(setupDeps(t))

	status, body, _ := doRequest(t, app, "GET", "/v1/ready", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	got := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, body)
	if got.Status != "ready" {
		t.Errorf("expected ready, got %s", got.Status)
	}
	for _, k := range []string{"archive", "nats", "cache"} {
		if got.Checks[k] != "not configured" {
			t.Errorf("check %s = %q", k, got.Checks[k])
		}
	}
}

// --- Patrol control ---

func TestPatrolLifecycle(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)

	status, body, _ := doRequest(t, app, "POST", "/v1/patrol/start", "")
	if status != 202 {
		t.Fatalf("start: expected 202, got %d: %s", status, body)
	}
	snap := decode[domain.Snapshot](t, body)
	if !snap.Running || snap.State != domain.StateIdle {
		t.Errorf("start snapshot = %+v", snap)
	}

	status, body, _ = doRequest(t, app, "POST", "/v1/patrol/start", "")
	if status != 409 {
		t.Fatalf("second start: expected 409, got %d", status)
	}
	apiErr := decode[APIError](t, body)
	if apiErr.Code != "conflict" {
		t.Errorf("expected conflict code, got %q", apiErr.Code)
	}
	if apiErr.RequestID == "" {
		t.Error("expected request id in error envelope")
	}

	status, body, _ = doRequest(t, app, "GET", "/v1/patrol/status", "")
	if status != 200 {
		t.Fatalf("status: expected 200, got %d", status)
	}
	if got := decode[domain.Snapshot](t, body); !got.Running {
		t.Error("expected running snapshot")
	}

	status, body, _ = doRequest(t, app, "POST", "/v1/patrol/stop", "")
	if status != 200 {
		t.Fatalf("stop: expected 200, got %d: %s", status, body)
	}
	if got := decode[domain.Snapshot](t, body); got.Running || got.State != domain.StateStopped {
		t.Errorf("stop snapshot = %+v", got)
	}

	status, _, _ = doRequest(t, app, "POST", "/v1/patrol/stop", "")
	if status != 409 {
		t.Fatalf("second stop: expected 409, got %d", status)
	}
}

func TestLogsHandler(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)

	deps.Logs.Append(domain.LogEntry{Timestamp: time.Now(), Message: "one", Severity: domain.SeverityInfo})
	deps.Logs.Append(domain.LogEntry{Timestamp: time.Now(), Message: "two", Severity: domain.SeverityError})
	deps.Logs.Append(domain.LogEntry{Timestamp: time.Now(), Message: "three", Severity: domain.SeverityInfo})

	type logsResponse struct {
		Data  []domain.LogEntry `json:"data"`
		Count int               `json:"count"`
	}

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantMsgs []string
	}{
		{"all", "", 200, []string{"one", "two", "three"}},
		{"severity", "?severity=info", 200, []string{"one", "three"}},
		{"severity case", "?severity=ERROR", 200, []string{"two"}},
		{"limit keeps newest", "?limit=2", 200, []string{"two", "three"}},
		{"bad severity", "?severity=fatal", 400, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := doRequest(t, app, "GET", "/v1/logs"+tt.query, "")
			if status != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, status, body)
			}
			if tt.wantCode != 200 {
				return
			}
			got := decode[logsResponse](t, body)
			if got.Count != len(tt.wantMsgs) {
				t.Fatalf("count = %d, want %d", got.Count, len(tt.wantMsgs))
			}
			for i, want := range tt.wantMsgs {
				if got.Data[i].Message != want {
					t.Errorf("entry %d = %q, want %q", i, got.Data[i].Message, want)
				}
			}
		})
	}
}

// --- Detections ---

func TestListDetectionsHandler(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	type listResponse struct {
		Data       []domain.Detection `json:"data"`
		Pagination Pagination         `json:"pagination"`
	}

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantIDs  []string
	}{
		{"no facets", "", 200, []string{"d1", "d2", "d3"}},
		{"single kind", "?kind=Oil", 200, []string{"d1"}},
		{"repeated kind", "?kind=Oil&kind=Chemical", 200, []string{"d1", "d2"}},
		{"comma kind", "?kind=oil,physical", 200, []string{"d1", "d3"}},
		{"facets and-ed", "?impactArea=Water&hazardLevel=Low", 200, []string{"d3"}},
		{"confidence bucket", "?confidence=Medium", 200, []string{"d2"}},
		{"no match", "?kind=Chemical&impactArea=Water", 200, []string{}},
		{"unknown value", "?kind=Plastic", 400, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := doRequest(t, app, "GET", "/v1/detections"+tt.query, "")
			if status != tt.wantCode {
				t.Fatalf("expected %d, got %d: %s", tt.wantCode, status, body)
			}
			if tt.wantCode != 200 {
				return
			}
			got := decode[listResponse](t, body)
			if len(got.Data) != len(tt.wantIDs) {
				t.Fatalf("got %d detections, want %d", len(got.Data), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got.Data[i].ID != id {
					t.Errorf("detection %d = %s, want %s", i, got.Data[i].ID, id)
				}
			}
		})
	}

	// Ad-hoc queries leave the session filter alone.
	if !deps.Filters.Current().IsEmpty() {
		t.Error("active filter changed by ad-hoc query")
	}
}

func TestListDetectionsHandler_Pagination(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	status, body, header := doRequest(t, app, "GET", "/v1/detections?offset=1&limit=1", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	got := decode[struct {
		Data       []domain.Detection `json:"data"`
		Pagination Pagination         `json:"pagination"`
	}](t, body)
	if len(got.Data) != 1 || got.Data[0].ID != "d2" {
		t.Fatalf("page = %+v", got.Data)
	}
	if got.Pagination != (Pagination{Offset: 1, Limit: 1, Total: 3}) {
		t.Errorf("pagination = %+v", got.Pagination)
	}
	link := strings.Join(header["Link"], ",")
	for _, rel := range []string{`rel="first"`, `rel="prev"`, `rel="next"`, `rel="last"`} {
		if !strings.Contains(link, rel) {
			t.Errorf("Link header missing %s: %s", rel, link)
		}
	}
}

func TestListDetectionsHandler_HugeOffset(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	status, body, header := doRequest(t, app, "GET", "/v1/detections?offset=9223372036854775807&limit=2", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	got := decode[struct {
		Data       []domain.Detection `json:"data"`
		Pagination Pagination         `json:"pagination"`
	}](t, body)
	if len(got.Data) != 0 {
		t.Errorf("expected empty page, got %d detections", len(got.Data))
	}
	if got.Pagination.Offset != 3 {
		t.Errorf("expected offset capped at total, got %d", got.Pagination.Offset)
	}
	link := strings.Join(header["Link"], ",")
	if strings.Contains(link, `rel="next"`) || strings.Contains(link, "offset=-") {
		t.Errorf("unexpected Link header: %s", link)
	}
}

func TestDetectionsGeoJSONHandler(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	status, body, header := doRequest(t, app, "GET", "/v1/detections/geojson?impactArea=Water", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}
	if ct := strings.Join(header["Content-Type"], ""); !strings.HasPrefix(ct, "application/geo+json") {
		t.Errorf("content type = %q", ct)
	}

	fc := decode[geoJSONCollection](t, body)
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %s", fc.Type)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}
	f := fc.Features[0]
	if f.ID != "d1" || f.Geometry.Type != "Polygon" {
		t.Errorf("feature = %+v", f)
	}
	if ring := f.Geometry.Coordinates[0]; len(ring) != 4 || ring[0] != ring[3] {
		t.Errorf("ring not closed: %v", ring)
	}
	if f.Properties["kind"] != "Oil" || f.Properties["confidence_bucket"] != "High" {
		t.Errorf("properties = %v", f.Properties)
	}
}

// --- Filters ---

func TestFilterHandlers(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	type stateResponse struct {
		Query   map[string][]string       `json:"query"`
		Counts  map[string]map[string]int `json:"counts"`
		Matched int                       `json:"matched"`
		Total   int                       `json:"total"`
	}

	status, body, _ := doRequest(t, app, "GET", "/v1/filters", "")
	if status != 200 {
		t.Fatalf("get: expected 200, got %d", status)
	}
	got := decode[stateResponse](t, body)
	if got.Matched != 3 || got.Total != 3 {
		t.Errorf("initial matched/total = %d/%d", got.Matched, got.Total)
	}
	if got.Counts["impactArea"]["Water"] != 2 || got.Counts["confidence"]["Low"] != 1 {
		t.Errorf("counts = %v", got.Counts)
	}

	status, body, _ = doRequest(t, app, "POST", "/v1/filters/toggle", `{"facet":"impactArea","value":"water"}`)
	if status != 200 {
		t.Fatalf("toggle: expected 200, got %d: %s", status, body)
	}
	got = decode[stateResponse](t, body)
	if got.Matched != 2 || len(got.Query["impactArea"]) != 1 || got.Query["impactArea"][0] != "Water" {
		t.Errorf("after toggle = %+v", got)
	}

	status, body, _ = doRequest(t, app, "POST", "/v1/filters/toggle", `{"facet":"kind","value":"Physical"}`)
	if status != 200 {
		t.Fatalf("toggle kind: expected 200, got %d", status)
	}
	if got = decode[stateResponse](t, body); got.Matched != 1 {
		t.Errorf("after second toggle matched = %d", got.Matched)
	}

	status, body, _ = doRequest(t, app, "GET", "/v1/filters/results", "")
	if status != 200 {
		t.Fatalf("results: expected 200, got %d", status)
	}
	results := decode[struct {
		Data []domain.Detection `json:"data"`
	}](t, body)
	if len(results.Data) != 1 || results.Data[0].ID != "d3" {
		t.Errorf("results = %+v", results.Data)
	}

	// Toggling again removes the value.
	status, body, _ = doRequest(t, app, "POST", "/v1/filters/toggle", `{"facet":"kind","value":"Physical"}`)
	if status != 200 {
		t.Fatalf("untoggle: expected 200, got %d", status)
	}
	if got = decode[stateResponse](t, body); got.Matched != 2 || len(got.Query["kind"]) != 0 {
		t.Errorf("after untoggle = %+v", got)
	}

	status, body, _ = doRequest(t, app, "POST", "/v1/filters/reset", "")
	if status != 200 {
		t.Fatalf("reset: expected 200, got %d", status)
	}
	if got = decode[stateResponse](t, body); got.Matched != 3 || len(got.Query["impactArea"]) != 0 {
		t.Errorf("after reset = %+v", got)
	}
}

func TestToggleFilterHandler_Invalid(t *testing.T) {
	app := setupApp(setupDeps(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"facet":`},
		{"missing value", `{"facet":"kind"}`},
		{"unknown facet", `{"facet":"colour","value":"Red"}`},
		{"unknown value", `{"facet":"kind","value":"Plastic"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := doRequest(t, app, "POST", "/v1/filters/toggle", tt.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
			if got := decode[APIError](t, body); got.Code != "bad_request" {
				t.Errorf("code = %q", got.Code)
			}
		})
	}
}

// --- GraphQL ---

func TestGraphQLHandler(t *testing.T) {
	deps := setupDeps(t)
	app := setupApp(deps)
	seedDetections(deps)

	query := `{"query":"{ detections(kind: [\"Oil\", \"Physical\"], limit: 1) { id kind confidenceBucket } status { state running } activeFilter { matched } }"}`
	status, body, _ := doRequest(t, app, "POST", "/graphql", query)
	if status != 200 {
		t.Fatalf("expected 200, got %d: %s", status, body)
	}

	got := decode[struct {
		Data struct {
			Detections []struct {
				ID               string `json:"id"`
				Kind             string `json:"kind"`
				ConfidenceBucket string `json:"confidenceBucket"`
			} `json:"detections"`
			Status struct {
				State   string `json:"state"`
				Running bool   `json:"running"`
			} `json:"status"`
			ActiveFilter struct {
				Matched int `json:"matched"`
			} `json:"activeFilter"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}](t, body)

	if len(got.Errors) > 0 {
		t.Fatalf("graphql errors: %v", got.Errors)
	}
	if len(got.Data.Detections) != 1 || got.Data.Detections[0].ID != "d3" {
		t.Errorf("detections = %+v", got.Data.Detections)
	}
	if got.Data.Detections[0].ConfidenceBucket != "Low" {
		t.Errorf("bucket = %s", got.Data.Detections[0].ConfidenceBucket)
	}
	if got.Data.Status.State != "Stopped" || got.Data.Status.Running {
		t.Errorf("status = %+v", got.Data.Status)
	}
	if got.Data.ActiveFilter.Matched != 3 {
		t.Errorf("activeFilter.matched = %d", got.Data.ActiveFilter.Matched)
	}
}

func TestGraphQLHandler_BadRequest(t *testing.T) {
	app := setupApp(setupDeps(t))

	status, _, _ := doRequest(t, app, "POST", "/graphql", `{"query":""}`)
	if status != 400 {
		t.Fatalf("expected 400, got %d", status)
	}
}

// --- Misc ---

func TestWebSocketWithoutNATS(t *testing.T) {
	app := setupApp(setupDeps(t))

	status, body, _ := doRequest(t, app, "GET", "/ws", "")
	if status != 503 {
		t.Fatalf("expected 503, got %d: %s", status, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	app := setupApp(setupDeps(t))

	status, body, header := doRequest(t, app, "GET", "/v1/nope", "")
	if status != 404 {
		t.Fatalf("expected 404, got %d", status)
	}
	if got := decode[APIError](t, body); got.Code != "not_found" {
		t.Errorf("code = %q", got.Code)
	}
	if cc := strings.Join(header["Cache-Control"], ""); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
}
