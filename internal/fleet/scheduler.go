package fleet

import (
	"context"
	"fmt"

	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// Scheduler drives one region's verifier to its node target, preferring the
// cheapest acquisition path and degrading through an ordered
// (instance type x zone) fallback plan.
type Scheduler struct {
	client       provider.Client
	providerName string
	sshUser      string
	sshPool      *Pool
	verifierCfg  VerifierConfig
}

// NewScheduler creates a region scheduler. The SSH probe pool is shared
// across all regions driven by this scheduler.
func NewScheduler(client provider.Client, providerName, sshUser string, sshPool *Pool, verifierCfg VerifierConfig) *Scheduler {
	return &Scheduler{
		client:       client,
		providerName: providerName,
		sshUser:      sshUser,
		sshPool:      sshPool,
		verifierCfg:  verifierCfg,
	}
}

type planStep struct {
	instanceType types.InstanceType
	zone         types.ZoneInfo
}

// ProvisionRegion acquires nodes in one region until the request's node
// count is reached or every instance-type/zone combination is exhausted.
// It returns a host record per ready instance; an unrecoverable verifier
// stall returns an error and the region contributes nothing.
func (s *Scheduler) ProvisionRegion(ctx context.Context, cfg types.InstanceConfig, region types.RegionInfo, instanceTypes []types.InstanceType, request types.RegionRequest) ([]types.HostSpec, error) {
	if len(instanceTypes) == 0 {
		return nil, fmt.Errorf("region %s: no instance types configured", region.ID)
	}
	if request.Count <= 0 {
		return nil, nil
	}

	verifier := NewVerifier(region.ID, request.Count, s.sshPool, s.verifierCfg)
	defer verifier.Stop()

	go verifier.RunStatusLoop(ctx, s.client)
	go verifier.RunSSHLoop(ctx)

	// fast path: grab the whole batch from a single zone when it is small
	// enough to plausibly fit in one
	defaultType := instanceTypes[0]
	amount := ceilDiv(request.Count, defaultType.Nodes)
	if request.ZoneMaxNodes > 0 && amount <= request.ZoneMaxNodes {
		s.tryCreateInSingleZone(ctx, verifier, cfg, region, defaultType, amount)
	}

	zones := region.OrderedZones()
	plan := make([]planStep, 0, len(instanceTypes)*len(zones))
	for _, instanceType := range instanceTypes {
		for _, zone := range zones {
			plan = append(plan, planStep{instanceType: instanceType, zone: zone})
		}
	}

	next := 0
	for {
		rest, err := verifier.GetRestNodes(false)
		if err != nil {
			return nil, err
		}
		if rest <= 0 {
			logger.Infof("Region %s launch complete", region.ID)
			break
		}

		if next >= len(plan) {
			// every combination exhausted: let outstanding pendings resolve,
			// then report whatever shortfall remains upward
			rest, err = verifier.GetRestNodes(true)
			if err != nil {
				return nil, err
			}
			if rest > 0 {
				logger.Errorf("Cannot launch enough nodes in region %s, request %d, actual %d",
					region.ID, request.Count, verifier.ReadyNodes())
			}
			break
		}

		step := plan[next]
		hosts := ceilDiv(rest, step.instanceType.Nodes)
		if request.MaxNodesPerCall > 0 && hosts > request.MaxNodesPerCall {
			hosts = request.MaxNodesPerCall
		}

		ids, cerr := s.client.CreateInstancesInZone(ctx, cfg, region, step.zone, step.instanceType, 1, hosts)
		if len(ids) > 0 {
			// track partial successes too, so we never over-create
			verifier.SubmitPending(ids, step.instanceType, step.zone.ID)
		}
		if len(ids) < hosts {
			if cerr != types.CreateErrNil {
				logger.Debugf("Region %s/%s %s rejected (%s), advancing plan",
					region.ID, step.zone.ID, step.instanceType.Name, cerr)
			}
			next++
		}
	}

	ready := verifier.CopyReadyInstances()
	records := make([]types.HostSpec, 0, len(ready))
	for _, inst := range ready {
		records = append(records, types.HostSpec{
			IP:           inst.PublicIP,
			PrivateIP:    inst.PrivateIP,
			NodesPerHost: inst.Type.Nodes,
			SSHUser:      s.sshUser,
			SSHKeyPath:   region.KeyPath,
			Provider:     s.providerName,
			Region:       region.ID,
			Zone:         inst.ZoneID,
			InstanceID:   inst.InstanceID,
		})
	}
	return records, nil
}

// tryCreateInSingleZone attempts an exact-amount request in each zone in
// priority order. The first zone granting the full amount wins. Partial
// grants are registered but the search moves on; once every zone has been
// tried the fast path gives up for good.
func (s *Scheduler) tryCreateInSingleZone(ctx context.Context, verifier *Verifier, cfg types.InstanceConfig, region types.RegionInfo, instanceType types.InstanceType, amount int) {
	for _, zone := range region.OrderedZones() {
		ids, _ := s.client.CreateInstancesInZone(ctx, cfg, region, zone, instanceType, amount, amount)
		if len(ids) == 0 {
			continue
		}

		verifier.SubmitPending(ids, instanceType, zone.ID)

		if len(ids) < amount {
			logger.Warnf("Only partial create success, even if minimum required (%s/%s)",
				region.ID, zone.ID)
			continue
		}
		return
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
