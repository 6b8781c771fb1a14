package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opscart/rds-idle-manager/pkg/config"
	"github.com/opscart/rds-idle-manager/pkg/models"
	"github.com/opscart/rds-idle-manager/pkg/policy"
	"golang.org/x/sync/errgroup"
)

// ResourceCatalog lists resources already filtered to the eligibility tag
type ResourceCatalog interface {
	ListEligibleInstances(ctx context.Context) ([]models.Resource, error)
	ListEligibleClusters(ctx context.Context) ([]models.Resource, error)
}

// TagStore resolves the current tag set of a resource
type TagStore interface {
	GetTags(ctx context.Context, resourceARN string) (map[string]string, error)
}

// MetricSource summarizes recent activity for one instance
type MetricSource interface {
	GetMetricSample(ctx context.Context, instanceID string, lookbackMinutes int) (models.MetricSample, error)
}

// ParameterSource supplies the fleet-wide default idle window
type ParameterSource interface {
	FleetDefaultIdleMinutes(ctx context.Context) (int, error)
}

// ResourceController performs stop/start actions. Errors carry the
// provider's message and never propagate past the orchestrator.
type ResourceController interface {
	StopInstance(ctx context.Context, id string) error
	StartInstance(ctx context.Context, id string) error
	StopCluster(ctx context.Context, id string) error
	StartCluster(ctx context.Context, id string) error
}

// Cluster statuses that are safe to act on
var healthyClusterStatuses = map[string]bool{
	"available": true,
	"in-sync":   true,
}

// Orchestrator applies the idle policy across the fleet
type Orchestrator struct {
	catalog    ResourceCatalog
	tags       TagStore
	metrics    MetricSource
	params     ParameterSource
	controller ResourceController

	thresholds  policy.Thresholds
	lookbackCap int
	concurrency int
	timeout     time.Duration
	verbose     bool
}

// New wires an orchestrator from its collaborators and the process config
func New(catalog ResourceCatalog, tags TagStore, metrics MetricSource, params ParameterSource, controller ResourceController, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		catalog:    catalog,
		tags:       tags,
		metrics:    metrics,
		params:     params,
		controller: controller,
		thresholds: policy.Thresholds{
			CPUPctMax:      cfg.CPUPctThreshold,
			IOPSMax:        cfg.IOPSThreshold,
			ConnectionsMax: cfg.ConnectionsThreshold,
		},
		lookbackCap: cfg.LookbackMinutes,
		concurrency: cfg.SweepConcurrency,
		timeout:     cfg.ProviderTimeout,
		verbose:     cfg.Verbose,
	}
}

// Sweep runs one full evaluation pass: standalone instances in catalog
// order, then clusters in catalog order. It never fails; every per-resource
// problem becomes that resource's outcome and the report is always complete.
func (o *Orchestrator) Sweep(ctx context.Context) *models.SweepReport {
	report := &models.SweepReport{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	// Resolved once, shared read-only by every evaluation.
	defaultIdle := o.fleetDefaultIdle(ctx)

	instances, err := o.listInstances(ctx)
	if err != nil {
		fmt.Printf("[WARN] Failed to list instances: %v\n", err)
	}
	report.Outcomes = append(report.Outcomes, o.evaluateAll(ctx, instances, defaultIdle, o.evaluateInstance)...)

	clusters, err := o.listClusters(ctx)
	if err != nil {
		fmt.Printf("[WARN] Failed to list clusters: %v\n", err)
	}
	report.Outcomes = append(report.Outcomes, o.evaluateAll(ctx, clusters, defaultIdle, o.evaluateCluster)...)

	report.FinishedAt = time.Now().UTC()
	return report
}

// evaluateAll fans resource evaluations out over a bounded worker group.
// Outcomes land in index-addressed slots so the report keeps catalog order,
// and workers only ever return nil so one resource can never cancel the rest.
func (o *Orchestrator) evaluateAll(ctx context.Context, resources []models.Resource, defaultIdle int, evaluate func(context.Context, models.Resource, int) models.ActionOutcome) []models.ActionOutcome {
	outcomes := make([]models.ActionOutcome, len(resources))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, r := range resources {
		i, r := i, r
		g.Go(func() error {
			outcomes[i] = evaluate(ctx, r, defaultIdle)
			return nil
		})
	}
	g.Wait()

	return outcomes
}

func (o *Orchestrator) evaluateInstance(ctx context.Context, r models.Resource, defaultIdle int) models.ActionOutcome {
	if r.Status != "available" {
		return skipOutcome(r, fmt.Sprintf("Skip %s: status=%s", r.ID, r.Status))
	}
	if r.ClusterID != "" {
		return skipOutcome(r, fmt.Sprintf("Skip %s: part of cluster %s", r.ID, r.ClusterID))
	}

	window := o.effectiveIdleWindow(ctx, r, defaultIdle)
	sample, err := o.metricSample(ctx, r.ID, policy.LookbackMinutes(window, o.lookbackCap))
	if err != nil {
		return models.ActionOutcome{
			ResourceID:   r.ID,
			ResourceType: r.Kind,
			Action:       models.ActionSkip,
			Success:      false,
			Message:      fmt.Sprintf("Skip %s: metrics unavailable: %v", r.ID, err),
		}
	}

	if !policy.IsIdle(sample, o.thresholds) {
		return skipOutcome(r, fmt.Sprintf("Keep running %s: not idle", r.ID))
	}

	if err := o.stopInstance(ctx, r.ID); err != nil {
		return models.ActionOutcome{
			ResourceID:   r.ID,
			ResourceType: r.Kind,
			Action:       models.ActionStop,
			Success:      false,
			Message:      fmt.Sprintf("Could not stop instance %s: %v", r.ID, err),
		}
	}
	return models.ActionOutcome{
		ResourceID:   r.ID,
		ResourceType: r.Kind,
		Action:       models.ActionStop,
		Success:      true,
		Message:      fmt.Sprintf("Stop initiated for instance %s", r.ID),
	}
}

// evaluateCluster judges a cluster by its writer member's activity
func (o *Orchestrator) evaluateCluster(ctx context.Context, r models.Resource, defaultIdle int) models.ActionOutcome {
	if !healthyClusterStatuses[r.Status] {
		return skipOutcome(r, fmt.Sprintf("Skip cluster %s: status=%s", r.ID, r.Status))
	}

	writer := r.Writer()
	if writer == "" {
		return skipOutcome(r, fmt.Sprintf("Skip cluster %s: no writer found", r.ID))
	}

	window := o.effectiveIdleWindow(ctx, r, defaultIdle)
	sample, err := o.metricSample(ctx, writer, policy.LookbackMinutes(window, o.lookbackCap))
	if err != nil {
		return models.ActionOutcome{
			ResourceID:   r.ID,
			ResourceType: r.Kind,
			Action:       models.ActionSkip,
			Success:      false,
			Message:      fmt.Sprintf("Skip cluster %s: metrics unavailable: %v", r.ID, err),
		}
	}

	if !policy.IsIdle(sample, o.thresholds) {
		return skipOutcome(r, fmt.Sprintf("Keep running cluster %s: not idle (writer=%s)", r.ID, writer))
	}

	if err := o.stopCluster(ctx, r.ID); err != nil {
		return models.ActionOutcome{
			ResourceID:   r.ID,
			ResourceType: r.Kind,
			Action:       models.ActionStop,
			Success:      false,
			Message:      fmt.Sprintf("Could not stop cluster %s: %v", r.ID, err),
		}
	}
	return models.ActionOutcome{
		ResourceID:   r.ID,
		ResourceType: r.Kind,
		Action:       models.ActionStop,
		Success:      true,
		Message:      fmt.Sprintf("Stop initiated for cluster %s", r.ID),
	}
}

// Start is the caller-initiated resume path. It never consults the idle
// policy; it validates the reference, forwards to the controller, and
// reports the provider's answer.
func (o *Orchestrator) Start(ctx context.Context, resourceRef string) models.StartResult {
	if resourceRef == "" {
		return models.StartResult{
			StatusCode: 400,
			Message:    "missing resource parameter",
		}
	}

	if id, ok := strings.CutPrefix(resourceRef, "cluster:"); ok {
		if err := o.startCluster(ctx, id); err != nil {
			return models.StartResult{
				StatusCode: 400,
				Message:    fmt.Sprintf("Could not start cluster %s: %v", id, err),
				Resource:   id,
				Type:       string(models.KindCluster),
			}
		}
		return models.StartResult{
			StatusCode: 200,
			Message:    fmt.Sprintf("Start initiated for cluster %s", id),
			Resource:   id,
			Type:       string(models.KindCluster),
		}
	}

	if err := o.startInstance(ctx, resourceRef); err != nil {
		return models.StartResult{
			StatusCode: 400,
			Message:    fmt.Sprintf("Could not start instance %s: %v", resourceRef, err),
			Resource:   resourceRef,
			Type:       string(models.KindInstance),
		}
	}
	return models.StartResult{
		StatusCode: 200,
		Message:    fmt.Sprintf("Start initiated for instance %s", resourceRef),
		Resource:   resourceRef,
		Type:       string(models.KindInstance),
	}
}

// fleetDefaultIdle resolves the fleet-wide default idle window, falling
// back to a fixed value when the parameter source is unavailable. The
// fallback is non-fatal for the sweep.
func (o *Orchestrator) fleetDefaultIdle(ctx context.Context) int {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()

	minutes, err := o.params.FleetDefaultIdleMinutes(cctx)
	if err != nil || minutes < 1 {
		if err != nil {
			fmt.Printf("[WARN] Default idle parameter unavailable, using %d minutes: %v\n", policy.FallbackIdleMinutes, err)
		}
		return policy.FallbackIdleMinutes
	}
	return minutes
}

// effectiveIdleWindow resolves the per-resource window. A tag lookup
// failure falls back to the snapshot's tags, so the decision proceeds with
// whatever is known rather than failing the resource.
func (o *Orchestrator) effectiveIdleWindow(ctx context.Context, r models.Resource, defaultIdle int) int {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()

	tags, err := o.tags.GetTags(cctx, r.ARN)
	if err != nil {
		tags = r.Tags
	}
	return policy.EffectiveIdleWindow(tags, defaultIdle)
}

func (o *Orchestrator) listInstances(ctx context.Context) ([]models.Resource, error) {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.catalog.ListEligibleInstances(cctx)
}

func (o *Orchestrator) listClusters(ctx context.Context) ([]models.Resource, error) {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.catalog.ListEligibleClusters(cctx)
}

func (o *Orchestrator) metricSample(ctx context.Context, instanceID string, lookback int) (models.MetricSample, error) {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.metrics.GetMetricSample(cctx, instanceID, lookback)
}

func (o *Orchestrator) stopInstance(ctx context.Context, id string) error {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.controller.StopInstance(cctx, id)
}

func (o *Orchestrator) startInstance(ctx context.Context, id string) error {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.controller.StartInstance(cctx, id)
}

func (o *Orchestrator) stopCluster(ctx context.Context, id string) error {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.controller.StopCluster(cctx, id)
}

func (o *Orchestrator) startCluster(ctx context.Context, id string) error {
	cctx, cancel := o.callCtx(ctx)
	defer cancel()
	return o.controller.StartCluster(cctx, id)
}

// callCtx bounds every collaborator call; nothing in a sweep may block
// indefinitely.
func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func skipOutcome(r models.Resource, message string) models.ActionOutcome {
	return models.ActionOutcome{
		ResourceID:   r.ID,
		ResourceType: r.Kind,
		Action:       models.ActionSkip,
		Success:      true,
		Message:      message,
	}
}
