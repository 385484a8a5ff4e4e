package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/scenario-resimulator/core"
	"github.com/signalsfoundry/scenario-resimulator/internal/engine"
	"github.com/signalsfoundry/scenario-resimulator/internal/engine/vensim"
	"github.com/signalsfoundry/scenario-resimulator/internal/observability"
	"github.com/signalsfoundry/scenario-resimulator/internal/store"
	"github.com/signalsfoundry/scenario-resimulator/model"
)

const stockModel = `{UTF-8}
Stock Level= INTEG (Net Flow, 10)
	~	units
	~		|
Net Flow= 1
	~	units/Month
	~		|
INITIAL TIME= 0
	~	Month
	~		|
FINAL TIME= 4
	~	Month
	~		|
TIME STEP= 1
	~	Month
	~		|
SAVEPER= TIME STEP
	~	Month
	~		|
`

type countingEngine struct {
	inner engine.Engine
	calls atomic.Int32
}

func (e *countingEngine) Run(ctx context.Context, artifact []byte, overrides engine.Overrides) (*model.ResultTable, error) {
	e.calls.Add(1)
	return e.inner.Run(ctx, artifact, overrides)
}

type testServer struct {
	srv   *httptest.Server
	eng   *countingEngine
	store *store.MemoryStore
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	eng := &countingEngine{inner: vensim.New()}
	svc := core.NewScenarioService(st, eng)
	srv := httptest.NewServer(NewServer(svc, opts...).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, eng: eng, store: st}
}

func (ts *testServer) simulate(t *testing.T, filename, scenario string, artifact []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := fw.Write(artifact); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}
	if scenario != "" {
		if err := mw.WriteField("scenarioName", scenario); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	resp, err := http.Post(ts.srv.URL+"/simulate", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /simulate: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) resimulate(t *testing.T, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+"/resimulate", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST /resimulate: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeRecords(t *testing.T, resp *http.Response) []map[string]*float64 {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %+v)", resp.StatusCode, decodeError(t, resp))
	}
	var records []map[string]*float64
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return records
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func column(t *testing.T, records []map[string]*float64, name string) []float64 {
	t.Helper()
	out := make([]float64, len(records))
	for i, rec := range records {
		v, ok := rec[name]
		if !ok || v == nil {
			t.Fatalf("record %d has no value for %q: %v", i, name, rec)
		}
		out[i] = *v
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSimulateThenResimulateRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.simulate(t, "stock.mdl", "My Scenario!", []byte(stockModel))
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}
	records := decodeRecords(t, resp)
	if got, want := column(t, records, "TIME"), []float64{0, 1, 2, 3, 4}; !equalFloats(got, want) {
		t.Fatalf("TIME = %v, want %v", got, want)
	}
	if got, want := column(t, records, "Stock_Level"), []float64{10, 11, 12, 13, 14}; !equalFloats(got, want) {
		t.Fatalf("Stock_Level = %v, want %v", got, want)
	}
	if diff := cmp.Diff([]string{"My_Scenario.mdl"}, ts.store.Names()); diff != "" {
		t.Fatalf("stored scenarios mismatch (-want +got):\n%s", diff)
	}

	resp = ts.resimulate(t, `{"base_scenario_name":"My Scenario!","variable_to_modify":"net flow","new_value":"5","start_time":"2"}`)
	records = decodeRecords(t, resp)
	if got, want := column(t, records, "Stock_Level"), []float64{10, 11, 12, 17, 22}; !equalFloats(got, want) {
		t.Fatalf("Stock_Level = %v, want %v", got, want)
	}
	if got, want := column(t, records, "Net_Flow"), []float64{1, 1, 5, 5, 5}; !equalFloats(got, want) {
		t.Fatalf("Net_Flow = %v, want %v", got, want)
	}
}

func TestResimulateAcceptsNumericJSON(t *testing.T) {
	ts := newTestServer(t)
	ts.simulate(t, "stock.mdl", "numbers", []byte(stockModel))

	resp := ts.resimulate(t, `{"base_scenario_name":"numbers","variable_to_modify":"Net_Flow","new_value":0,"start_time":1.5}`)
	records := decodeRecords(t, resp)
	if got, want := column(t, records, "Stock_Level"), []float64{10, 11, 12, 12, 12}; !equalFloats(got, want) {
		t.Fatalf("Stock_Level = %v, want %v", got, want)
	}
}

func TestResimulateUnknownScenarioIs404WithoutRunning(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.resimulate(t, `{"base_scenario_name":"never uploaded","variable_to_modify":"x","new_value":"1","start_time":"0"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body := decodeError(t, resp); body.Code != "ScenarioNotFound" {
		t.Fatalf("code = %q, want ScenarioNotFound", body.Code)
	}
	if calls := ts.eng.calls.Load(); calls != 0 {
		t.Fatalf("engine calls = %d, want 0", calls)
	}
}

func TestSimulateRejections(t *testing.T) {
	ts := newTestServer(t, WithMaxUploadBytes(1024))

	tests := []struct {
		name     string
		filename string
		scenario string
		artifact []byte
		code     string
	}{
		{name: "missing file", scenario: "s", code: "BadRequest"},
		{name: "missing name", filename: "m.mdl", artifact: []byte(stockModel), code: "BadRequest"},
		{name: "wrong extension", filename: "m.txt", scenario: "s", artifact: []byte(stockModel), code: "BadRequest"},
		{name: "unsanitizable name", filename: "m.mdl", scenario: "!!!", artifact: []byte(stockModel), code: "BadRequest"},
		{name: "too large", filename: "m.mdl", scenario: "s", artifact: bytes.Repeat([]byte("x"), 4096), code: "BadRequest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.simulate(t, tc.filename, tc.scenario, tc.artifact)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if body := decodeError(t, resp); body.Code != tc.code || body.Error == "" {
				t.Fatalf("body = %+v, want code %s", body, tc.code)
			}
		})
	}
	if names := ts.store.Names(); len(names) != 0 {
		t.Fatalf("rejected uploads were stored: %v", names)
	}
}

func TestSimulateBrokenModelIs500AndRollsBack(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.simulate(t, "broken.mdl", "broken", []byte("Stock= INTEG(Missing, 1) ~ ~ |"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	body := decodeError(t, resp)
	if body.Code != "SimulationError" || body.CauseType == "" {
		t.Fatalf("body = %+v, want SimulationError with a cause type", body)
	}
	if names := ts.store.Names(); len(names) != 0 {
		t.Fatalf("failed upload kept: %v", names)
	}
}

func TestResimulateRejections(t *testing.T) {
	ts := newTestServer(t)
	ts.simulate(t, "stock.mdl", "base", []byte(stockModel))

	tests := []struct {
		name    string
		payload string
		code    string
	}{
		{name: "invalid json", payload: `{"base_scenario_name":`, code: "BadRequest"},
		{name: "wrong type", payload: `{"base_scenario_name":true}`, code: "BadRequest"},
		{name: "missing fields", payload: `{"base_scenario_name":"base"}`, code: "BadRequest"},
		{name: "unknown variable", payload: `{"base_scenario_name":"base","variable_to_modify":"Nope","new_value":"1","start_time":"0"}`, code: "VariableNotFound"},
		{name: "bad value", payload: `{"base_scenario_name":"base","variable_to_modify":"Net Flow","new_value":"abc","start_time":"0"}`, code: "InvalidNumericInput"},
		{name: "bad start", payload: `{"base_scenario_name":"base","variable_to_modify":"Net Flow","new_value":"1","start_time":"NaN"}`, code: "InvalidNumericInput"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := ts.resimulate(t, tc.payload)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if body := decodeError(t, resp); body.Code != tc.code {
				t.Fatalf("code = %q, want %q (%s)", body.Code, tc.code, body.Error)
			}
		})
	}
}

type stubService struct {
	simulate func(context.Context, core.SimulateRequest) (*model.ResultTable, error)
}

func (s stubService) Simulate(ctx context.Context, req core.SimulateRequest) (*model.ResultTable, error) {
	return s.simulate(ctx, req)
}

func (stubService) Resimulate(context.Context, core.ResimulateRequest) (*model.ResultTable, error) {
	return nil, &core.Error{Kind: core.KindStorageError, Message: "store offline", Cause: solverFailure{}}
}

func TestServiceFailuresReportCauseType(t *testing.T) {
	h := NewServer(stubService{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/resimulate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := errorBody{Error: "store offline: solver diverged", Code: "StorageError", CauseType: "httpapi.solverFailure"}
	if body != want {
		t.Fatalf("body = %+v, want %+v", body, want)
	}
}

func TestPanicBecomes500(t *testing.T) {
	h := NewServer(stubService{simulate: func(context.Context, core.SimulateRequest) (*model.ResultTable, error) {
		panic("kaboom")
	}}).Handler()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("scenarioName", "s")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/simulate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kaboom") {
		t.Fatalf("body = %q, want the panic value", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "OK" {
		t.Fatalf("healthz = %d %q, want 200 OK", resp.StatusCode, buf.String())
	}
}

func TestCORS(t *testing.T) {
	h := NewServer(stubService{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/resimulate", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Fatalf("Allow-Methods = %q, want POST", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin on GET = %q, want *", got)
	}

	rec = httptest.NewRecorder()
	NewServer(stubService{}, WithCORSOrigin("")).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("CORS disabled but Allow-Origin = %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := NewServer(stubService{}).Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("%s = %q, want the inbound id echoed", requestIDHeader, got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if got := rec.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("%s = %q, want a generated UUID", requestIDHeader, got)
	}
}

func TestMetricsPerRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}
	h := NewServer(stubService{}, WithMetrics(collector)).Handler()

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/resimulate", strings.NewReader(`{`)))

	tests := []struct {
		route, code string
		want        float64
	}{
		{route: "/healthz", code: "200", want: 2},
		{route: "/resimulate", code: "400", want: 1},
	}
	for _, tc := range tests {
		if got := testutil.ToFloat64(collector.Requests.WithLabelValues(tc.route, tc.code)); got != tc.want {
			t.Fatalf("http_requests_total{route=%q,code=%q} = %v, want %v", tc.route, tc.code, got, tc.want)
		}
	}
}
