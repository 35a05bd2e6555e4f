package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// ProvisionFunc acquires nodes for one region request and returns the host
// records it could satisfy. The coordinator drives it across regions.
type ProvisionFunc func(ctx context.Context, request types.RegionRequest) ([]types.HostSpec, error)

// RegionResult records one region's contribution to a provisioning pass
type RegionResult struct {
	Region    string              `json:"region"`
	Requested int                 `json:"requested_nodes"`
	Actual    int                 `json:"actual_nodes"`
	Hosts     []types.HostSpec    `json:"hosts"`
	Err       error               `json:"-"`
	Error     string              `json:"error,omitempty"`
	Request   types.RegionRequest `json:"request"`
}

// ShortfallReport summarizes a fleet provisioning run. Unresolved stays 0
// when backfill covered every missing node.
type ShortfallReport struct {
	Requested  int            `json:"requested_nodes"`
	Acquired   int            `json:"acquired_nodes"`
	Unresolved int            `json:"unresolved_nodes"`
	Regions    []RegionResult `json:"regions"`
}

// Coordinator runs region provisioning across all configured regions in
// parallel and redistributes any aggregate shortfall across regions that met
// their own quota, in repeated waves.
type Coordinator struct {
	provision ProvisionFunc
	pool      *Pool
}

// NewCoordinator creates a coordinator running region tasks on the given
// bounded pool
func NewCoordinator(provision ProvisionFunc, pool *Pool) *Coordinator {
	return &Coordinator{provision: provision, pool: pool}
}

// CountNodes sums the node capacity of the given host records
func CountNodes(hosts []types.HostSpec) int {
	return lo.SumBy(hosts, func(host types.HostSpec) int { return host.NodesPerHost })
}

// ProvisionFleet acquires nodes across every region and backfills the
// aggregate shortfall from healthy regions. It never fails on partial
// capacity: the caller always receives the best-effort host list plus a
// structured report and decides whether to accept it.
func (c *Coordinator) ProvisionFleet(ctx context.Context, regions []types.RegionRequest) ([]types.HostSpec, *ShortfallReport) {
	regions = lo.Filter(regions, func(r types.RegionRequest, _ int) bool { return r.Count > 0 })

	results := c.runRegions(ctx, regions)

	hosts := lo.FlatMap(results, func(r RegionResult, _ int) []types.HostSpec { return r.Hosts })
	requested := lo.SumBy(regions, func(r types.RegionRequest) int { return r.Count })
	acquired := CountNodes(hosts)

	shortfall := requested - acquired
	if shortfall < 0 {
		shortfall = 0
	}

	healthy := lo.Filter(results, func(r RegionResult, _ int) bool {
		return r.Err == nil && r.Actual >= r.Requested
	})

	extra, unresolved := c.backfillShortfall(ctx, healthy, shortfall)
	hosts = append(hosts, extra...)

	report := &ShortfallReport{
		Requested:  requested,
		Acquired:   CountNodes(hosts),
		Unresolved: unresolved,
		Regions:    results,
	}
	return hosts, report
}

// runRegions provisions the given requests in parallel on the bounded pool.
// A panic or error in one region task is recorded as that region's result
// and never reaches its siblings.
func (c *Coordinator) runRegions(ctx context.Context, requests []types.RegionRequest) []RegionResult {
	results := make([]RegionResult, len(requests))

	var wg sync.WaitGroup
	for i := range requests {
		i := i
		request := requests[i]
		wg.Add(1)
		c.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("region task panic: %v", r)
					logger.Errorf("Region %s provisioning panicked: %v", request.Name, r)
					results[i] = regionResult(request, nil, err)
				}
			}()

			hosts, err := c.provision(ctx, request)
			if err != nil {
				logger.Errorf("Region %s provisioning failed: %v", request.Name, err)
			}
			results[i] = regionResult(request, hosts, err)
		})
	}
	wg.Wait()

	return results
}

func regionResult(request types.RegionRequest, hosts []types.HostSpec, err error) RegionResult {
	result := RegionResult{
		Region:    request.Name,
		Requested: request.Count,
		Actual:    CountNodes(hosts),
		Hosts:     hosts,
		Err:       err,
		Request:   request,
	}
	if err != nil {
		result.Hosts = nil
		result.Actual = 0
		result.Error = err.Error()
	}
	return result
}

// backfillShortfall redistributes the shortfall across healthy regions in
// waves: an even split with the remainder assigned to the first regions,
// re-provisioned in parallel. Regions contributing nothing in a wave are
// assumed saturated and dropped. The loop stops on full coverage, a stalled
// wave, or an empty candidate set.
func (c *Coordinator) backfillShortfall(ctx context.Context, healthy []RegionResult, shortfall int) ([]types.HostSpec, int) {
	if shortfall <= 0 || len(healthy) == 0 {
		return nil, shortfall
	}

	var extra []types.HostSpec
	unresolved := shortfall
	candidates := append([]RegionResult(nil), healthy...)

	for unresolved > 0 && len(candidates) > 0 {
		base := unresolved / len(candidates)
		remainder := unresolved % len(candidates)

		var requests []types.RegionRequest
		for i, candidate := range candidates {
			amount := base
			if i < remainder {
				amount++
			}
			if amount > 0 {
				requests = append(requests, candidate.Request.WithCount(amount))
			}
		}
		if len(requests) == 0 {
			break
		}

		waveResults := c.runRegions(ctx, requests)

		progressed := 0
		failed := make(map[string]struct{})
		for _, result := range waveResults {
			switch {
			case result.Err != nil:
				logger.Errorf("Backfill failed in region %s: %v", result.Region, result.Err)
				failed[result.Region] = struct{}{}
			case result.Actual <= 0:
				logger.Warnf("Backfill no progress in region %s, requested_nodes=%d",
					result.Region, result.Requested)
				failed[result.Region] = struct{}{}
			default:
				extra = append(extra, result.Hosts...)
				progressed += result.Actual
				logger.Infof("Backfill success in region %s: requested_nodes=%d, added_nodes=%d",
					result.Region, result.Requested, result.Actual)
			}
		}

		if progressed <= 0 {
			logger.Errorf("Backfill stalled, remaining_shortfall=%d", unresolved)
			break
		}

		unresolved -= progressed
		if unresolved < 0 {
			unresolved = 0
		}
		if len(failed) > 0 {
			candidates = lo.Filter(candidates, func(r RegionResult, _ int) bool {
				_, dropped := failed[r.Region]
				return !dropped
			})
		}
	}

	return extra, unresolved
}
