// Package types provides the shared data model for fleet provisioning
package types

import "sort"

// InstanceType describes a purchasable instance type and how many test nodes
// a single instance of it hosts. Two instance types are the same type when
// their names match.
type InstanceType struct {
	Name  string `json:"name"`  // Provider-specific type name (e.g. "ecs.c6.2xlarge")
	Nodes int    `json:"nodes"` // Number of nodes one instance hosts
}

// ZoneInfo describes one availability zone inside a region
type ZoneInfo struct {
	ID       string `json:"id"`        // Zone identifier (e.g. "us-east-1a")
	SubnetID string `json:"subnet_id"` // Subnet/vswitch serving this zone
}

// RegionInfo is an immutable descriptor of a fully bootstrapped region.
// It is built by the network-infra step and passed into the scheduler.
type RegionInfo struct {
	ID    string              `json:"id"`
	Zones map[string]ZoneInfo `json:"zones"`
	// ZoneIDs records the priority order zones are attempted in. When empty,
	// zones are attempted in lexical order of their ids.
	ZoneIDs         []string `json:"zone_ids,omitempty"`
	SecurityGroupID string   `json:"security_group_id"`
	VpcID           string   `json:"vpc_id"`
	ImageID         string   `json:"image_id"`
	KeyPairName     string   `json:"key_pair_name"`
	KeyPath         string   `json:"key_path"`
}

// Zone returns the zone descriptor for the given zone id
func (r RegionInfo) Zone(zoneID string) (ZoneInfo, bool) {
	zone, ok := r.Zones[zoneID]
	return zone, ok
}

// OrderedZones returns the zone descriptors in attempt-priority order
func (r RegionInfo) OrderedZones() []ZoneInfo {
	ids := r.ZoneIDs
	if len(ids) == 0 {
		ids = make([]string, 0, len(r.Zones))
		for id := range r.Zones {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}
	zones := make([]ZoneInfo, 0, len(ids))
	for _, id := range ids {
		if zone, ok := r.Zones[id]; ok {
			zones = append(zones, zone)
		}
	}
	return zones
}

// Instance is a created instance that has not yet been confirmed reachable
type Instance struct {
	InstanceID string       `json:"instance_id"`
	Type       InstanceType `json:"type"`
	ZoneID     string       `json:"zone_id"`
}

// ReadyInstance is an instance confirmed both cloud-running and SSH-reachable.
// It is immutable once created.
type ReadyInstance struct {
	Instance
	PublicIP  string `json:"public_ip"`
	PrivateIP string `json:"private_ip"`
}

// IPAddrs holds the addresses the provider reports for a running instance
type IPAddrs struct {
	Public  string `json:"public"`
	Private string `json:"private"`
}

// InstanceStatus is one provider status snapshot for a batch of instance ids.
// Ids absent from both sets are gone as far as the provider is concerned.
type InstanceStatus struct {
	Running map[string]IPAddrs  // Running instances with their IPs
	Pending map[string]struct{} // Instances still starting (or stopped/stopping)
}

// CreateInstanceError classifies a provider rejection of a creation call.
// The scheduler uses the classification to decide whether to fall back to the
// next instance-type/zone combination.
type CreateInstanceError int

// Creation call outcomes
const (
	CreateErrNil CreateInstanceError = iota
	CreateErrNoStock
	CreateErrNoInstanceType
	CreateErrOther
)

// String returns a human readable name for the classification
func (e CreateInstanceError) String() string {
	switch e {
	case CreateErrNil:
		return "nil"
	case CreateErrNoStock:
		return "no-stock"
	case CreateErrNoInstanceType:
		return "no-instance-type"
	default:
		return "other"
	}
}

// RegionRequest describes how many nodes one region should provide and the
// per-region knobs of the acquisition algorithm.
type RegionRequest struct {
	Name string `json:"name" mapstructure:"name"`
	// Count is the target number of nodes (not instances) for this region
	Count int `json:"count" mapstructure:"count"`
	// ZoneMaxNodes is the threshold for attempting the whole request in a
	// single zone. 0 skips the single-zone fast path entirely.
	ZoneMaxNodes int `json:"zone_max_nodes" mapstructure:"zone_max_nodes"`
	// MaxNodesPerCall caps the instance amount of one creation call.
	// 0 means no limit.
	MaxNodesPerCall int `json:"max_nodes" mapstructure:"max_nodes"`
}

// WithCount returns a copy of the request targeting a different node count.
// Backfill waves reuse a region's knobs with an adjusted target.
func (r RegionRequest) WithCount(count int) RegionRequest {
	r.Count = count
	return r
}

// HostSpec is the caller-facing record of one provisioned host. The fleet
// call returns these; callers persist them (e.g. hosts.json) if cross-restart
// recovery is needed.
type HostSpec struct {
	IP           string `json:"ip"`
	PrivateIP    string `json:"private_ip"`
	NodesPerHost int    `json:"nodes_per_host"`
	SSHUser      string `json:"ssh_user"`
	SSHKeyPath   string `json:"ssh_key_path"`
	Provider     string `json:"provider"`
	Region       string `json:"region"`
	Zone         string `json:"zone"`
	InstanceID   string `json:"instance_id"`
}

// TaggedInstance is an existing instance carrying the fleet tags, as listed
// for cleanup
type TaggedInstance struct {
	InstanceID string            `json:"instance_id"`
	Name       string            `json:"name"`
	Tags       map[string]string `json:"tags"`
}
