package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opscart/rds-idle-manager/pkg/config"
	"github.com/opscart/rds-idle-manager/pkg/models"
)

type fakeCatalog struct {
	instances []models.Resource
	clusters  []models.Resource
}

func (f *fakeCatalog) ListEligibleInstances(ctx context.Context) ([]models.Resource, error) {
	return f.instances, nil
}

func (f *fakeCatalog) ListEligibleClusters(ctx context.Context) ([]models.Resource, error) {
	return f.clusters, nil
}

type fakeTags struct {
	mu   sync.Mutex
	tags map[string]map[string]string
	err  error
}

func (f *fakeTags) GetTags(ctx context.Context, arn string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.tags[arn], nil
}

type fakeMetrics struct {
	mu        sync.Mutex
	samples   map[string]models.MetricSample
	errs      map[string]error
	calls     map[string]int
	lookbacks map[string]int
}

func (f *fakeMetrics) GetMetricSample(ctx context.Context, id string, lookback int) (models.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	if f.lookbacks == nil {
		f.lookbacks = make(map[string]int)
	}
	f.calls[id]++
	f.lookbacks[id] = lookback
	if err := f.errs[id]; err != nil {
		return models.MetricSample{}, err
	}
	return f.samples[id], nil
}

func (f *fakeMetrics) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type fakeParams struct {
	mu      sync.Mutex
	minutes int
	err     error
	calls   int
}

func (f *fakeParams) FleetDefaultIdleMinutes(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.minutes, nil
}

type fakeController struct {
	mu              sync.Mutex
	stoppedInst     []string
	startedInst     []string
	stoppedClusters []string
	startedClusters []string
	stopInstErr     map[string]error
	startErr        error
}

func (f *fakeController) StopInstance(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.stopInstErr[id]; err != nil {
		return err
	}
	f.stoppedInst = append(f.stoppedInst, id)
	return nil
}

func (f *fakeController) StartInstance(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.startedInst = append(f.startedInst, id)
	return nil
}

func (f *fakeController) StopCluster(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stoppedClusters = append(f.stoppedClusters, id)
	return nil
}

func (f *fakeController) StartCluster(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.startedClusters = append(f.startedClusters, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		LookbackMinutes:      20,
		CPUPctThreshold:      1.0,
		IOPSThreshold:        0,
		ConnectionsThreshold: 0,
		RequiredTagKey:       "IdleShutdown",
		RequiredTagValue:     "enabled",
		SweepConcurrency:     4,
		ProviderTimeout:      time.Second,
		MetricsBackend:       "cloudwatch",
	}
}

func availableInstance(id string) models.Resource {
	return models.Resource{
		ID:     id,
		ARN:    "arn:aws:rds:us-east-1:123456789012:db:" + id,
		Kind:   models.KindInstance,
		Status: "available",
		Tags:   map[string]string{"IdleShutdown": "enabled"},
	}
}

func idleSample() models.MetricSample {
	return models.MetricSample{MaxConnections: 0, SumReadIOPS: 0, SumWriteIOPS: 0, MaxCPUPercent: 0.5}
}

func TestSweepStopsIdleInstance(t *testing.T) {
	controller := &fakeController{}
	orch := New(
		&fakeCatalog{instances: []models.Resource{availableInstance("db1")}},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{"db1": idleSample()}},
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if len(report.Outcomes) != 1 {
		t.Fatalf("Expected 1 outcome, got %d", len(report.Outcomes))
	}
	out := report.Outcomes[0]
	if out.Action != models.ActionStop || !out.Success {
		t.Errorf("Expected successful stop, got %+v", out)
	}
	if out.Message != "Stop initiated for instance db1" {
		t.Errorf("Unexpected message: %q", out.Message)
	}
	if len(controller.stoppedInst) != 1 || controller.stoppedInst[0] != "db1" {
		t.Errorf("Expected db1 stopped, got %v", controller.stoppedInst)
	}
}

func TestSweepKeepsActiveInstance(t *testing.T) {
	controller := &fakeController{}
	orch := New(
		&fakeCatalog{instances: []models.Resource{availableInstance("db2")}},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{
			"db2": {MaxConnections: 3, MaxCPUPercent: 0.1},
		}},
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	out := report.Outcomes[0]
	if out.Action != models.ActionSkip {
		t.Errorf("Expected skip for active instance, got %s", out.Action)
	}
	if out.Message != "Keep running db2: not idle" {
		t.Errorf("Unexpected message: %q", out.Message)
	}
	if len(controller.stoppedInst) != 0 {
		t.Errorf("No stop should be issued, got %v", controller.stoppedInst)
	}
}

func TestSweepSkipsUnavailableInstance(t *testing.T) {
	metrics := &fakeMetrics{}
	inst := availableInstance("db1")
	inst.Status = "stopped"

	orch := New(
		&fakeCatalog{instances: []models.Resource{inst}},
		&fakeTags{},
		metrics,
		&fakeParams{minutes: 30},
		&fakeController{},
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if report.Outcomes[0].Message != "Skip db1: status=stopped" {
		t.Errorf("Unexpected message: %q", report.Outcomes[0].Message)
	}
	if metrics.callCount("db1") != 0 {
		t.Errorf("Metric source must not be consulted for unavailable instances")
	}
}

func TestSweepExcludesClusterMembers(t *testing.T) {
	controller := &fakeController{}
	metrics := &fakeMetrics{samples: map[string]models.MetricSample{"db1": idleSample()}}
	inst := availableInstance("db1")
	inst.ClusterID = "c1"

	orch := New(
		&fakeCatalog{instances: []models.Resource{inst}},
		&fakeTags{},
		metrics,
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if report.Outcomes[0].Message != "Skip db1: part of cluster c1" {
		t.Errorf("Unexpected message: %q", report.Outcomes[0].Message)
	}
	if metrics.callCount("db1") != 0 {
		t.Errorf("Cluster members must never be evaluated standalone, even when idle")
	}
	if len(controller.stoppedInst) != 0 {
		t.Errorf("Cluster members must never be stopped individually")
	}
}

func TestSweepStopsIdleClusterViaWriter(t *testing.T) {
	controller := &fakeController{}
	cluster := models.Resource{
		ID:     "c1",
		ARN:    "arn:aws:rds:us-east-1:123456789012:cluster:c1",
		Kind:   models.KindCluster,
		Status: "available",
		Members: []models.ClusterMember{
			{ID: "db4", IsWriter: false},
			{ID: "db3", IsWriter: true},
		},
	}

	orch := New(
		&fakeCatalog{clusters: []models.Resource{cluster}},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{"db3": idleSample()}},
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	out := report.Outcomes[0]
	if out.Message != "Stop initiated for cluster c1" {
		t.Errorf("Unexpected message: %q", out.Message)
	}
	if len(controller.stoppedClusters) != 1 || controller.stoppedClusters[0] != "c1" {
		t.Errorf("Expected cluster c1 stopped, got %v", controller.stoppedClusters)
	}
	if len(controller.stoppedInst) != 0 {
		t.Errorf("Writer instance must not be stopped individually")
	}
}

func TestSweepKeepsBusyCluster(t *testing.T) {
	cluster := models.Resource{
		ID:      "c1",
		Kind:    models.KindCluster,
		Status:  "available",
		Members: []models.ClusterMember{{ID: "db3", IsWriter: true}},
	}

	orch := New(
		&fakeCatalog{clusters: []models.Resource{cluster}},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{
			"db3": {MaxConnections: 7, MaxCPUPercent: 12},
		}},
		&fakeParams{minutes: 30},
		&fakeController{},
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if report.Outcomes[0].Message != "Keep running cluster c1: not idle (writer=db3)" {
		t.Errorf("Unexpected message: %q", report.Outcomes[0].Message)
	}
}

func TestSweepSkipsClusterWithoutWriter(t *testing.T) {
	controller := &fakeController{}
	cluster := models.Resource{
		ID:      "c1",
		Kind:    models.KindCluster,
		Status:  "available",
		Members: []models.ClusterMember{{ID: "db3", IsWriter: false}},
	}

	orch := New(
		&fakeCatalog{clusters: []models.Resource{cluster}},
		&fakeTags{},
		&fakeMetrics{},
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if report.Outcomes[0].Message != "Skip cluster c1: no writer found" {
		t.Errorf("Unexpected message: %q", report.Outcomes[0].Message)
	}
	if len(controller.stoppedClusters) != 0 {
		t.Errorf("No stop may be attempted without a writer")
	}
}

func TestSweepSkipsUnhealthyCluster(t *testing.T) {
	metrics := &fakeMetrics{}
	cluster := models.Resource{
		ID:      "c1",
		Kind:    models.KindCluster,
		Status:  "backing-up",
		Members: []models.ClusterMember{{ID: "db3", IsWriter: true}},
	}

	orch := New(
		&fakeCatalog{clusters: []models.Resource{cluster}},
		&fakeTags{},
		metrics,
		&fakeParams{minutes: 30},
		&fakeController{},
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if report.Outcomes[0].Message != "Skip cluster c1: status=backing-up" {
		t.Errorf("Unexpected message: %q", report.Outcomes[0].Message)
	}
	if metrics.callCount("db3") != 0 {
		t.Errorf("Unhealthy clusters must not reach metric evaluation")
	}
}

func TestSweepStopFailureDoesNotAbort(t *testing.T) {
	controller := &fakeController{
		stopInstErr: map[string]error{"db1": errors.New("InvalidDBInstanceState: instance is rebooting")},
	}

	orch := New(
		&fakeCatalog{instances: []models.Resource{availableInstance("db1"), availableInstance("db2")}},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{
			"db1": idleSample(),
			"db2": idleSample(),
		}},
		&fakeParams{minutes: 30},
		controller,
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if len(report.Outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(report.Outcomes))
	}

	first := report.Outcomes[0]
	if first.Success || first.Action != models.ActionStop {
		t.Errorf("Expected failed stop for db1, got %+v", first)
	}
	if !strings.Contains(first.Message, "InvalidDBInstanceState") {
		t.Errorf("Provider message should be preserved, got %q", first.Message)
	}

	second := report.Outcomes[1]
	if !second.Success || second.Message != "Stop initiated for instance db2" {
		t.Errorf("db2 should still be evaluated and stopped, got %+v", second)
	}
}

func TestSweepMetricFailureBecomesOutcome(t *testing.T) {
	orch := New(
		&fakeCatalog{instances: []models.Resource{availableInstance("db1"), availableInstance("db2")}},
		&fakeTags{},
		&fakeMetrics{
			samples: map[string]models.MetricSample{"db2": idleSample()},
			errs:    map[string]error{"db1": errors.New("throttled")},
		},
		&fakeParams{minutes: 30},
		&fakeController{},
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	first := report.Outcomes[0]
	if first.Success || first.Action != models.ActionSkip {
		t.Errorf("Expected failed skip for db1, got %+v", first)
	}
	if !strings.Contains(first.Message, "metrics unavailable") {
		t.Errorf("Unexpected message: %q", first.Message)
	}
	if !report.Outcomes[1].Success {
		t.Errorf("db2 evaluation must not be affected by db1's failure")
	}
}

func TestSweepFleetDefaultFallback(t *testing.T) {
	cfg := testConfig()
	cfg.LookbackMinutes = 60

	metrics := &fakeMetrics{samples: map[string]models.MetricSample{"db1": idleSample()}}
	orch := New(
		&fakeCatalog{instances: []models.Resource{availableInstance("db1")}},
		&fakeTags{},
		metrics,
		&fakeParams{err: errors.New("ParameterNotFound")},
		&fakeController{},
		cfg,
	)

	orch.Sweep(context.Background())

	// Fallback window 30 capped by the 60 minute lookback
	if metrics.lookbacks["db1"] != 30 {
		t.Errorf("Expected fallback window 30, got %d", metrics.lookbacks["db1"])
	}
}

func TestSweepFleetDefaultFetchedOnce(t *testing.T) {
	params := &fakeParams{minutes: 30}
	instances := []models.Resource{
		availableInstance("db1"),
		availableInstance("db2"),
		availableInstance("db3"),
	}

	orch := New(
		&fakeCatalog{instances: instances},
		&fakeTags{},
		&fakeMetrics{samples: map[string]models.MetricSample{
			"db1": idleSample(), "db2": idleSample(), "db3": idleSample(),
		}},
		params,
		&fakeController{},
		testConfig(),
	)

	orch.Sweep(context.Background())

	if params.calls != 1 {
		t.Errorf("Fleet default must be resolved once per sweep, got %d calls", params.calls)
	}
}

func TestSweepTagOverrideBoundsLookback(t *testing.T) {
	tests := []struct {
		name     string
		override string
		want     int
	}{
		{"override shortens", "5", 5},
		{"override capped", "90", 20},
		{"malformed override ignored", "whenever", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := availableInstance("db1")
			metrics := &fakeMetrics{samples: map[string]models.MetricSample{"db1": idleSample()}}
			tags := &fakeTags{tags: map[string]map[string]string{
				inst.ARN: {"IdleMinutes": tt.override},
			}}

			orch := New(
				&fakeCatalog{instances: []models.Resource{inst}},
				tags,
				metrics,
				&fakeParams{minutes: 30},
				&fakeController{},
				testConfig(),
			)

			orch.Sweep(context.Background())

			if metrics.lookbacks["db1"] != tt.want {
				t.Errorf("Expected lookback %d, got %d", tt.want, metrics.lookbacks["db1"])
			}
		})
	}
}

func TestSweepPreservesCatalogOrder(t *testing.T) {
	var instances []models.Resource
	samples := make(map[string]models.MetricSample)
	for i := 0; i < 16; i++ {
		id := fmt.Sprintf("db%02d", i)
		instances = append(instances, availableInstance(id))
		samples[id] = idleSample()
	}

	orch := New(
		&fakeCatalog{instances: instances},
		&fakeTags{},
		&fakeMetrics{samples: samples},
		&fakeParams{minutes: 30},
		&fakeController{},
		testConfig(),
	)

	report := orch.Sweep(context.Background())

	if len(report.Outcomes) != len(instances) {
		t.Fatalf("Expected %d outcomes, got %d", len(instances), len(report.Outcomes))
	}
	for i, out := range report.Outcomes {
		if out.ResourceID != instances[i].ID {
			t.Fatalf("Outcome %d out of order: got %s, want %s", i, out.ResourceID, instances[i].ID)
		}
	}
}

func TestStartRoutesClusterPrefix(t *testing.T) {
	controller := &fakeController{}
	orch := New(&fakeCatalog{}, &fakeTags{}, &fakeMetrics{}, &fakeParams{minutes: 30}, controller, testConfig())

	result := orch.Start(context.Background(), "cluster:c1")

	if !result.OK() {
		t.Errorf("Expected success, got %+v", result)
	}
	if result.Type != "cluster" || result.Resource != "c1" {
		t.Errorf("Expected cluster c1, got type=%s resource=%s", result.Type, result.Resource)
	}
	if len(controller.startedClusters) != 1 || controller.startedClusters[0] != "c1" {
		t.Errorf("Expected cluster start for c1, got %v", controller.startedClusters)
	}
	if len(controller.startedInst) != 0 {
		t.Errorf("Instance start must not be called for a cluster reference")
	}
}

func TestStartInstance(t *testing.T) {
	controller := &fakeController{}
	orch := New(&fakeCatalog{}, &fakeTags{}, &fakeMetrics{}, &fakeParams{minutes: 30}, controller, testConfig())

	result := orch.Start(context.Background(), "db1")

	if result.StatusCode != 200 {
		t.Errorf("Expected 200, got %d", result.StatusCode)
	}
	if result.Message != "Start initiated for instance db1" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
	if len(controller.startedInst) != 1 || controller.startedInst[0] != "db1" {
		t.Errorf("Expected instance start for db1, got %v", controller.startedInst)
	}
}

func TestStartEmptyResource(t *testing.T) {
	controller := &fakeController{}
	orch := New(&fakeCatalog{}, &fakeTags{}, &fakeMetrics{}, &fakeParams{minutes: 30}, controller, testConfig())

	result := orch.Start(context.Background(), "")

	if result.StatusCode != 400 {
		t.Errorf("Expected 400 for missing resource, got %d", result.StatusCode)
	}
	if result.Message != "missing resource parameter" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
	if len(controller.startedInst) != 0 || len(controller.startedClusters) != 0 {
		t.Errorf("No provider call may be made for an empty reference")
	}
}

func TestStartProviderFailure(t *testing.T) {
	controller := &fakeController{startErr: errors.New("DBInstanceNotFound")}
	orch := New(&fakeCatalog{}, &fakeTags{}, &fakeMetrics{}, &fakeParams{minutes: 30}, controller, testConfig())

	result := orch.Start(context.Background(), "db9")

	if result.StatusCode != 400 {
		t.Errorf("Expected 400 on provider failure, got %d", result.StatusCode)
	}
	if !strings.Contains(result.Message, "DBInstanceNotFound") {
		t.Errorf("Provider message should be preserved, got %q", result.Message)
	}
}
