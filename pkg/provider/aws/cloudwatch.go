package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/opscart/rds-idle-manager/pkg/models"
)

// The four activity aggregates the idle policy consumes
var metricQueries = []struct {
	id     string
	metric string
	stat   string
}{
	{"conn_max", "DatabaseConnections", "Maximum"},
	{"read_sum", "ReadIOPS", "Sum"},
	{"write_sum", "WriteIOPS", "Sum"},
	{"cpu_max", "CPUUtilization", "Maximum"},
}

// GetMetricSample summarizes an instance's activity over the lookback
// window via one GetMetricData call. Queries with no datapoints contribute
// 0, so a quiet window never fails the decision.
func (c *Client) GetMetricSample(ctx context.Context, instanceID string, lookbackMinutes int) (models.MetricSample, error) {
	end := time.Now().UTC()
	start := end.Add(-time.Duration(lookbackMinutes) * time.Minute)

	// Aim for ~10 datapoints, never below the 60s CloudWatch floor
	period := int32((lookbackMinutes * 60) / 10)
	if period < 60 {
		period = 60
	}

	queries := make([]cwtypes.MetricDataQuery, 0, len(metricQueries))
	for _, q := range metricQueries {
		queries = append(queries, cwtypes.MetricDataQuery{
			Id:         aws.String("m_" + q.id),
			ReturnData: aws.Bool(true),
			MetricStat: &cwtypes.MetricStat{
				Metric: &cwtypes.Metric{
					Namespace:  aws.String("AWS/RDS"),
					MetricName: aws.String(q.metric),
					Dimensions: []cwtypes.Dimension{
						{Name: aws.String("DBInstanceIdentifier"), Value: aws.String(instanceID)},
					},
				},
				Period: aws.Int32(period),
				Stat:   aws.String(q.stat),
			},
		})
	}

	out, err := c.cw.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		MetricDataQueries: queries,
		StartTime:         aws.Time(start),
		EndTime:           aws.Time(end),
		ScanBy:            cwtypes.ScanByTimestampDescending,
	})
	if err != nil {
		return models.MetricSample{}, fmt.Errorf("get metric data for %s: %w", instanceID, err)
	}

	var sample models.MetricSample
	for _, r := range out.MetricDataResults {
		if len(r.Values) == 0 {
			continue
		}
		id := aws.ToString(r.Id)
		switch {
		case strings.HasSuffix(id, "conn_max"):
			sample.MaxConnections = maxOf(r.Values)
		case strings.HasSuffix(id, "read_sum"):
			sample.SumReadIOPS = sumOf(r.Values)
		case strings.HasSuffix(id, "write_sum"):
			sample.SumWriteIOPS = sumOf(r.Values)
		case strings.HasSuffix(id, "cpu_max"):
			sample.MaxCPUPercent = maxOf(r.Values)
		}
	}

	return sample, nil
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumOf(values []float64) float64 {
	s := 0.0
	for _, v := range values {
		s += v
	}
	return s
}
