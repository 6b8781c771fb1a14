package models

// MetricSample summarizes one instance's recent activity over a bounded
// lookback window. Aggregates with no datapoints are reported as 0.
type MetricSample struct {
	MaxConnections float64 `json:"max_connections"`
	SumReadIOPS    float64 `json:"sum_read_iops"`
	SumWriteIOPS   float64 `json:"sum_write_iops"`
	MaxCPUPercent  float64 `json:"max_cpu_percent"`
}

// TotalIOPS is the combined read+write activity used by the idle decision
func (m MetricSample) TotalIOPS() float64 {
	return m.SumReadIOPS + m.SumWriteIOPS
}
