package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

func newTestScheduler(t *testing.T, mock *provider.MockClient, cfg VerifierConfig) *Scheduler {
	t.Helper()
	return NewScheduler(mock, "mock", "root", NewPool(16), cfg)
}

func zoneCounts(hosts []types.HostSpec) map[string]int {
	counts := make(map[string]int)
	for _, host := range hosts {
		counts[host.Zone] += host.NodesPerHost
	}
	return counts
}

func TestSchedulerFastPathSingleZone(t *testing.T) {
	port := sshListener(t)
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1", "z2")
	itype := types.InstanceType{Name: "large", Nodes: 2}

	s := newTestScheduler(t, mock, fastVerifierConfig(port))
	hosts, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{itype},
		types.RegionRequest{Name: "r1", Count: 4, ZoneMaxNodes: 10})
	require.NoError(t, err)

	require.Len(t, hosts, 2)
	for _, host := range hosts {
		assert.Equal(t, "z1", host.Zone)
		assert.Equal(t, 2, host.NodesPerHost)
		assert.Equal(t, "mock", host.Provider)
		assert.Equal(t, "root", host.SSHUser)
		assert.Equal(t, region.KeyPath, host.SSHKeyPath)
	}
}

func TestSchedulerFastPathFallsThroughToNextZone(t *testing.T) {
	port := sshListener(t)
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1", "z2")
	itype := types.InstanceType{Name: "small", Nodes: 1}

	// z1 cannot grant the exact amount, z2 can
	mock.SetStock("r1", "z1", "small", 2)

	s := newTestScheduler(t, mock, fastVerifierConfig(port))
	hosts, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{itype},
		types.RegionRequest{Name: "r1", Count: 3, ZoneMaxNodes: 5})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"z2": 3}, zoneCounts(hosts))
}

func TestSchedulerPlanOrderOnRejection(t *testing.T) {
	port := sshListener(t)
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1", "z2")
	typeA := types.InstanceType{Name: "typeA", Nodes: 1}
	typeB := types.InstanceType{Name: "typeB", Nodes: 1}

	// plan order is typeA/z1, typeA/z2, typeB/z1, typeB/z2
	mock.SetReject("r1", "z1", "typeA", types.CreateErrNoStock)
	mock.SetStock("r1", "z2", "typeA", 2)

	s := newTestScheduler(t, mock, fastVerifierConfig(port))
	hosts, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{typeA, typeB},
		types.RegionRequest{Name: "r1", Count: 5, MaxNodesPerCall: 2})
	require.NoError(t, err)

	// 2 nodes from typeA in z2, the remaining 3 from typeB in z1
	assert.Equal(t, map[string]int{"z2": 2, "z1": 3}, zoneCounts(hosts))
}

func TestSchedulerExhaustedPlanReportsShortfall(t *testing.T) {
	port := sshListener(t)
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1")
	itype := types.InstanceType{Name: "small", Nodes: 1}

	mock.SetStock("r1", "z1", "small", 3)

	s := newTestScheduler(t, mock, fastVerifierConfig(port))
	hosts, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{itype},
		types.RegionRequest{Name: "r1", Count: 5})
	require.NoError(t, err)

	// partial capacity is not an error, the coordinator deals with it
	assert.Len(t, hosts, 3)
}

func TestSchedulerStalledVerifierFailsRegion(t *testing.T) {
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1")
	itype := types.InstanceType{Name: "small", Nodes: 1}

	// instances never leave pending
	mock.SetStartDelay(1 << 30)

	cfg := fastVerifierConfig(22)
	cfg.StallTimeout = 100 * time.Millisecond

	s := newTestScheduler(t, mock, cfg)
	_, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{itype},
		types.RegionRequest{Name: "r1", Count: 2})
	require.ErrorIs(t, err, ErrVerifierStalled)
}

func TestSchedulerZeroCount(t *testing.T) {
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1")
	itype := types.InstanceType{Name: "small", Nodes: 1}

	s := newTestScheduler(t, mock, fastVerifierConfig(22))
	hosts, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, []types.InstanceType{itype}, types.RegionRequest{Name: "r1"})
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestSchedulerNoInstanceTypes(t *testing.T) {
	mock := provider.NewMockClient()
	region := testRegion("r1", "z1")

	s := newTestScheduler(t, mock, fastVerifierConfig(22))
	_, err := s.ProvisionRegion(context.Background(), types.NewInstanceConfig("test"),
		region, nil, types.RegionRequest{Name: "r1", Count: 1})
	assert.Error(t, err)
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 3, ceilDiv(5, 2))
	assert.Equal(t, 2, ceilDiv(4, 2))
	assert.Equal(t, 1, ceilDiv(1, 2))
	assert.Equal(t, 5, ceilDiv(5, 0))
}
