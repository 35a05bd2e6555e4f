package fleet

import (
	"context"
	"fmt"

	"github.com/conflux-chain/cloud-provisioner/internal/constants"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// Options wires a Provisioner. Client, Provider, Regions and InstanceTypes
// are required; pool sizes and verifier tuning default to production values.
type Options struct {
	Client   provider.Client
	Provider string

	// SSHUser is the login user recorded in host records
	SSHUser string

	// InstanceConfig carries the shared creation-call parameters
	InstanceConfig types.InstanceConfig

	// Regions maps region id to its bootstrapped descriptor
	Regions map[string]types.RegionInfo

	// InstanceTypes in fallback-priority order
	InstanceTypes []types.InstanceType

	RegionPoolSize int
	SSHPoolSize    int
	VerifierConfig VerifierConfig
}

// Provisioner is the top-level fleet entry point: it provisions node capacity
// across regions via the scheduler and redistributes shortfall via the
// backfill coordinator.
type Provisioner struct {
	opts        Options
	scheduler   *Scheduler
	coordinator *Coordinator
}

// NewProvisioner assembles the scheduler/coordinator pipeline from options
func NewProvisioner(opts Options) (*Provisioner, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if len(opts.Regions) == 0 {
		return nil, fmt.Errorf("no regions configured")
	}
	if len(opts.InstanceTypes) == 0 {
		return nil, fmt.Errorf("no instance types configured")
	}
	if opts.RegionPoolSize <= 0 {
		opts.RegionPoolSize = constants.DefaultRegionPoolSize
	}
	if opts.SSHPoolSize <= 0 {
		opts.SSHPoolSize = constants.DefaultSSHPoolSize
	}

	p := &Provisioner{opts: opts}
	p.scheduler = NewScheduler(opts.Client, opts.Provider, opts.SSHUser,
		NewPool(opts.SSHPoolSize), opts.VerifierConfig)
	p.coordinator = NewCoordinator(p.provisionRegion, NewPool(opts.RegionPoolSize))
	return p, nil
}

// Provision acquires the requested node capacity, backfilling shortfall from
// healthy regions. Partial capacity is not an error; inspect the report's
// Unresolved count to decide whether the fleet is usable.
func (p *Provisioner) Provision(ctx context.Context, requests []types.RegionRequest) ([]types.HostSpec, *ShortfallReport, error) {
	for _, request := range requests {
		if _, ok := p.opts.Regions[request.Name]; !ok {
			return nil, nil, fmt.Errorf("region %s not bootstrapped", request.Name)
		}
	}

	hosts, report := p.coordinator.ProvisionFleet(ctx, requests)

	if report.Unresolved > 0 {
		logger.Warnf("Fleet short of capacity: requested_nodes=%d, acquired_nodes=%d, unresolved_nodes=%d",
			report.Requested, report.Acquired, report.Unresolved)
	} else {
		logger.Infof("Fleet complete: acquired_nodes=%d across %d hosts", report.Acquired, len(hosts))
	}
	return hosts, report, nil
}

func (p *Provisioner) provisionRegion(ctx context.Context, request types.RegionRequest) ([]types.HostSpec, error) {
	region, ok := p.opts.Regions[request.Name]
	if !ok {
		return nil, fmt.Errorf("region %s not bootstrapped", request.Name)
	}
	return p.scheduler.ProvisionRegion(ctx, p.opts.InstanceConfig, region, p.opts.InstanceTypes, request)
}
