package models

// ResourceKind distinguishes standalone DB instances from Aurora clusters
type ResourceKind string

const (
	KindInstance ResourceKind = "instance"
	KindCluster  ResourceKind = "cluster"
)

// ClusterMember is one DB instance belonging to a cluster
type ClusterMember struct {
	ID       string `json:"id"`
	IsWriter bool   `json:"is_writer"`
}

// Resource is a snapshot of one stoppable unit as reported by the provider.
// The provider owns its lifecycle; nothing here is cached across sweeps.
type Resource struct {
	ID     string            `json:"id"`
	ARN    string            `json:"arn"`
	Kind   ResourceKind      `json:"kind"`
	Status string            `json:"status"`
	Tags   map[string]string `json:"tags,omitempty"`

	// ClusterID is set on instances that belong to a cluster; such
	// instances are never evaluated individually.
	ClusterID string `json:"cluster_id,omitempty"`

	// Members is populated for clusters only.
	Members []ClusterMember `json:"members,omitempty"`
}

// Writer returns the ID of the cluster's current writer member, or "" if
// none is reported.
func (r *Resource) Writer() string {
	for _, m := range r.Members {
		if m.IsWriter {
			return m.ID
		}
	}
	return ""
}
