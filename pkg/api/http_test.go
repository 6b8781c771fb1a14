package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opscart/rds-idle-manager/pkg/models"
)

type fakeService struct {
	report     *models.SweepReport
	sweepCalls int
	startCalls []string
}

func (f *fakeService) Sweep(ctx context.Context) *models.SweepReport {
	f.sweepCalls++
	return f.report
}

func (f *fakeService) Start(ctx context.Context, resourceRef string) models.StartResult {
	f.startCalls = append(f.startCalls, resourceRef)
	if resourceRef == "" {
		return models.StartResult{StatusCode: 400, Message: "missing resource parameter"}
	}
	return models.StartResult{StatusCode: 200, Message: "Start initiated for instance " + resourceRef, Resource: resourceRef, Type: "instance"}
}

func testReport() *models.SweepReport {
	now := time.Now().UTC()
	return &models.SweepReport{
		ID:         "test-sweep",
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Outcomes: []models.ActionOutcome{
			{ResourceID: "db1", ResourceType: models.KindInstance, Action: models.ActionStop, Success: true, Message: "Stop initiated for instance db1"},
			{ResourceID: "db2", ResourceType: models.KindInstance, Action: models.ActionSkip, Success: true, Message: "Keep running db2: not idle"},
		},
	}
}

func TestSweepEndpoint(t *testing.T) {
	svc := &fakeService{report: testReport()}
	mux := NewHTTPMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sweep", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if svc.sweepCalls != 1 {
		t.Errorf("Expected one sweep, got %d", svc.sweepCalls)
	}

	var body struct {
		ID      string   `json:"id"`
		Actions []string `json:"actions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if len(body.Actions) != 2 {
		t.Errorf("Expected 2 actions, got %d", len(body.Actions))
	}
	if body.Actions[0] != "Stop initiated for instance db1" {
		t.Errorf("Unexpected first action: %q", body.Actions[0])
	}
}

func TestSweepEndpointRejectsGet(t *testing.T) {
	svc := &fakeService{report: testReport()}
	mux := NewHTTPMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sweep", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
	if svc.sweepCalls != 0 {
		t.Errorf("Sweep must not run on GET")
	}
}

func TestStartEndpoint(t *testing.T) {
	svc := &fakeService{}
	mux := NewHTTPMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start?resource=db1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var result models.StartResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if result.Resource != "db1" || result.Type != "instance" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestStartEndpointFormBody(t *testing.T) {
	svc := &fakeService{}
	mux := NewHTTPMux(svc, nil)

	form := url.Values{"resource": {"cluster:c1"}}
	req := httptest.NewRequest(http.MethodPost, "/start", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if len(svc.startCalls) != 1 || svc.startCalls[0] != "cluster:c1" {
		t.Errorf("Expected start call with cluster:c1, got %v", svc.startCalls)
	}
}

func TestStartEndpointMissingResource(t *testing.T) {
	svc := &fakeService{}
	mux := NewHTTPMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing resource, got %d", rec.Code)
	}
}

func TestStartEndpointDbAlias(t *testing.T) {
	svc := &fakeService{}
	mux := NewHTTPMux(svc, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start?db=db7", nil))

	if len(svc.startCalls) != 1 || svc.startCalls[0] != "db7" {
		t.Errorf("Expected db alias to route, got %v", svc.startCalls)
	}
}

func TestHealthz(t *testing.T) {
	mux := NewHTTPMux(&fakeService{}, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
