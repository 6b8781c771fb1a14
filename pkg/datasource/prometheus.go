package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/opscart/rds-idle-manager/pkg/models"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PrometheusSource serves metric samples from a Prometheus server that
// scrapes RDS CloudWatch metrics through an exporter. It is an alternative
// to querying CloudWatch directly for fleets that already pay for the
// exporter, selected with METRICS_BACKEND=prometheus.
type PrometheusSource struct {
	client v1.API
	url    string
}

func NewPrometheusSource(url string) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusSource{
		client: v1.NewAPI(client),
		url:    url,
	}, nil
}

// GetMetricSample summarizes one instance's recent activity from the
// exporter series. Missing series contribute 0 — a quiet window is a valid
// answer, not an error.
func (p *PrometheusSource) GetMetricSample(ctx context.Context, instanceID string, lookbackMinutes int) (models.MetricSample, error) {
	window := fmt.Sprintf("%dm", lookbackMinutes)
	selector := fmt.Sprintf(`dimension_DBInstanceIdentifier="%s"`, instanceID)

	connQuery := fmt.Sprintf(`max_over_time(aws_rds_database_connections_maximum{%s}[%s])`, selector, window)
	conn, err := p.querySingle(ctx, connQuery, foldMax)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("connections query failed: %w", err)
	}

	readQuery := fmt.Sprintf(`sum_over_time(aws_rds_read_iops_sum{%s}[%s])`, selector, window)
	read, err := p.querySingle(ctx, readQuery, foldSum)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("read IOPS query failed: %w", err)
	}

	writeQuery := fmt.Sprintf(`sum_over_time(aws_rds_write_iops_sum{%s}[%s])`, selector, window)
	write, err := p.querySingle(ctx, writeQuery, foldSum)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("write IOPS query failed: %w", err)
	}

	cpuQuery := fmt.Sprintf(`max_over_time(aws_rds_cpuutilization_maximum{%s}[%s])`, selector, window)
	cpu, err := p.querySingle(ctx, cpuQuery, foldMax)
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("CPU query failed: %w", err)
	}

	return models.MetricSample{
		MaxConnections: conn,
		SumReadIOPS:    read,
		SumWriteIOPS:   write,
		MaxCPUPercent:  cpu,
	}, nil
}

func (p *PrometheusSource) querySingle(ctx context.Context, query string, fold func([]float64) float64) (float64, error) {
	result, warnings, err := p.client.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}

	if len(warnings) > 0 {
		fmt.Printf("[WARN] Prometheus: %v\n", warnings)
	}

	vector, ok := result.(model.Vector)
	if !ok || len(vector) == 0 {
		// No series for a stopped or freshly created instance
		return 0, nil
	}

	values := make([]float64, 0, len(vector))
	for _, sample := range vector {
		values = append(values, float64(sample.Value))
	}

	return fold(values), nil
}

func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "Prometheus"
}

func foldMax(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func foldSum(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}
