package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// MockClient is an in-memory implementation of the Client interface for
// tests. Stock limits, forced rejections, startup delays and lost instances
// are scriptable per region/zone/instance-type combination.
type MockClient struct {
	mu sync.Mutex

	zones   map[string][]string
	stock   map[string]int
	rejects map[string]types.CreateInstanceError

	// startDelay is the number of status polls an instance stays pending
	// before it reports running
	startDelay int
	publicIP   string

	instances map[string]*mockInstance
	lost      map[string]struct{}
	seq       int

	images map[string][]types.ImageInfo
	vpcs   map[string][]types.VpcInfo
}

type mockInstance struct {
	region string
	zone   string
	itype  string
	tags   map[string]string
	polls  int
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock provider client with unlimited stock and
// instances that report running on the first status poll.
func NewMockClient() *MockClient {
	return &MockClient{
		zones:     make(map[string][]string),
		stock:     make(map[string]int),
		rejects:   make(map[string]types.CreateInstanceError),
		publicIP:  "127.0.0.1",
		instances: make(map[string]*mockInstance),
		lost:      make(map[string]struct{}),
		images:    make(map[string][]types.ImageInfo),
		vpcs:      make(map[string][]types.VpcInfo),
	}
}

func comboKey(region, zone, itype string) string {
	return region + "/" + zone + "/" + itype
}

// SetZones configures the zone ids of a region
func (m *MockClient) SetZones(regionID string, zoneIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[regionID] = zoneIDs
}

// SetStock limits how many instances a region/zone/type combination can
// still grant
func (m *MockClient) SetStock(regionID, zoneID, instanceType string, amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[comboKey(regionID, zoneID, instanceType)] = amount
}

// SetReject forces creation calls on a combination to fail with the given
// classification
func (m *MockClient) SetReject(regionID, zoneID, instanceType string, cerr types.CreateInstanceError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejects[comboKey(regionID, zoneID, instanceType)] = cerr
}

// SetStartDelay makes created instances stay pending for the given number of
// status polls
func (m *MockClient) SetStartDelay(polls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startDelay = polls
}

// SetPublicIP sets the public IP handed out for running instances. Tests
// point it at a local listener so SSH probes succeed, or at nothing so they
// fail.
func (m *MockClient) SetPublicIP(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicIP = ip
}

// LoseInstance makes an instance disappear from future status reports
func (m *MockClient) LoseInstance(instanceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lost[instanceID] = struct{}{}
}

// CreatedInstanceIDs returns the ids of every instance created so far
func (m *MockClient) CreatedInstanceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	return ids
}

// GetZoneIDs implements Client
func (m *MockClient) GetZoneIDs(_ context.Context, regionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.zones[regionID]...), nil
}

// CreateInstancesInZone implements Client
func (m *MockClient) CreateInstancesInZone(_ context.Context, cfg types.InstanceConfig, region types.RegionInfo, zone types.ZoneInfo, instanceType types.InstanceType, minAmount, maxAmount int) ([]string, types.CreateInstanceError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := comboKey(region.ID, zone.ID, instanceType.Name)
	if cerr, ok := m.rejects[key]; ok {
		return nil, cerr
	}

	grant := maxAmount
	if remaining, limited := m.stock[key]; limited {
		if remaining < minAmount {
			return nil, types.CreateErrNoStock
		}
		if remaining < grant {
			grant = remaining
		}
		m.stock[key] = remaining - grant
	}

	ids := make([]string, 0, grant)
	for i := 0; i < grant; i++ {
		m.seq++
		id := fmt.Sprintf("i-mock-%04d", m.seq)
		m.instances[id] = &mockInstance{
			region: region.ID,
			zone:   zone.ID,
			itype:  instanceType.Name,
			tags: map[string]string{
				types.DefaultCommonTagKey: types.DefaultCommonTagValue,
				cfg.UserTagKey:            cfg.UserTagValue,
			},
		}
		ids = append(ids, id)
	}
	return ids, types.CreateErrNil
}

// DescribeInstanceStatus implements Client
func (m *MockClient) DescribeInstanceStatus(_ context.Context, regionID string, instanceIDs []string) (types.InstanceStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := types.InstanceStatus{
		Running: make(map[string]types.IPAddrs),
		Pending: make(map[string]struct{}),
	}

	for i, id := range instanceIDs {
		if _, gone := m.lost[id]; gone {
			continue
		}
		inst, ok := m.instances[id]
		if !ok || inst.region != regionID {
			continue
		}
		inst.polls++
		if inst.polls > m.startDelay {
			status.Running[id] = types.IPAddrs{
				Public:  m.publicIP,
				Private: fmt.Sprintf("10.0.0.%d", i+1),
			}
		} else {
			status.Pending[id] = struct{}{}
		}
	}
	return status, nil
}

// AddImage registers an image visible in a region
func (m *MockClient) AddImage(regionID string, image types.ImageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[regionID] = append(m.images[regionID], image)
}

// AddVpc registers a VPC visible in a region
func (m *MockClient) AddVpc(regionID string, vpc types.VpcInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vpcs[regionID] = append(m.vpcs[regionID], vpc)
}

// GetImages implements Client
func (m *MockClient) GetImages(_ context.Context, regionID, imageName string) ([]types.ImageInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.ImageInfo
	for _, image := range m.images[regionID] {
		if image.ImageName == imageName {
			result = append(result, image)
		}
	}
	return result, nil
}

// GetKeyPair implements Client
func (m *MockClient) GetKeyPair(_ context.Context, _, _ string) (*types.KeyPairInfo, error) {
	return nil, nil
}

// GetSecurityGroups implements Client
func (m *MockClient) GetSecurityGroups(_ context.Context, _, _ string) ([]types.SecurityGroupInfo, error) {
	return nil, nil
}

// GetSubnets implements Client
func (m *MockClient) GetSubnets(_ context.Context, _, _ string) ([]types.SubnetInfo, error) {
	return nil, nil
}

// GetVpcs implements Client
func (m *MockClient) GetVpcs(_ context.Context, regionID string) ([]types.VpcInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.VpcInfo(nil), m.vpcs[regionID]...), nil
}

// CreateKeyPair implements Client
func (m *MockClient) CreateKeyPair(_ context.Context, _ string, _ types.KeyPairRequest) error {
	return nil
}

// CreateSecurityGroup implements Client
func (m *MockClient) CreateSecurityGroup(_ context.Context, regionID, _, _ string) (string, error) {
	return "sg-mock-" + regionID, nil
}

// CreateSubnet implements Client
func (m *MockClient) CreateSubnet(_ context.Context, _, zoneID, _, _, _ string) (string, error) {
	return "subnet-mock-" + zoneID, nil
}

// CreateVpc implements Client
func (m *MockClient) CreateVpc(_ context.Context, regionID, _, _ string) (string, error) {
	return "vpc-mock-" + regionID, nil
}

// ListTaggedInstances implements Client
func (m *MockClient) ListTaggedInstances(_ context.Context, regionID string) ([]types.TaggedInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.TaggedInstance
	for id, inst := range m.instances {
		if inst.region != regionID {
			continue
		}
		result = append(result, types.TaggedInstance{InstanceID: id, Tags: inst.tags})
	}
	return result, nil
}

// DeleteInstances implements Client
func (m *MockClient) DeleteInstances(_ context.Context, _ string, instanceIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range instanceIDs {
		delete(m.instances, id)
	}
	return nil
}
