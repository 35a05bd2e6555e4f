package fleet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// stubFleet scripts per-region node yields: each call to a region consumes the
// next entry of its yield list; regions without a script yield in full.
type stubFleet struct {
	mu     sync.Mutex
	yields map[string][]int
	errs   map[string]error
	panics map[string]bool
	calls  map[string][]int
}

func newStubFleet() *stubFleet {
	return &stubFleet{
		yields: make(map[string][]int),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
		calls:  make(map[string][]int),
	}
}

func (s *stubFleet) provision(_ context.Context, request types.RegionRequest) ([]types.HostSpec, error) {
	s.mu.Lock()
	s.calls[request.Name] = append(s.calls[request.Name], request.Count)

	if s.panics[request.Name] {
		s.mu.Unlock()
		panic("provider exploded")
	}
	if err := s.errs[request.Name]; err != nil {
		s.mu.Unlock()
		return nil, err
	}

	yield := request.Count
	if script, ok := s.yields[request.Name]; ok {
		if len(script) == 0 {
			yield = 0
		} else {
			yield = script[0]
			s.yields[request.Name] = script[1:]
		}
	}
	s.mu.Unlock()

	hosts := make([]types.HostSpec, 0, yield)
	for i := 0; i < yield; i++ {
		hosts = append(hosts, types.HostSpec{
			Region:       request.Name,
			NodesPerHost: 1,
			IP:           fmt.Sprintf("10.1.0.%d", i),
		})
	}
	return hosts, nil
}

func (s *stubFleet) callCounts(region string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls[region]...)
}

func requests(counts map[string]int, order ...string) []types.RegionRequest {
	reqs := make([]types.RegionRequest, 0, len(order))
	for _, name := range order {
		reqs = append(reqs, types.RegionRequest{Name: name, Count: counts[name]})
	}
	return reqs
}

func TestBackfillCoversShortfallInOneWave(t *testing.T) {
	stub := newStubFleet()
	stub.yields["B"] = []int{4}

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 10, "B": 10, "C": 10}, "A", "B", "C"))

	assert.Equal(t, 30, CountNodes(hosts))
	assert.Equal(t, 30, report.Requested)
	assert.Equal(t, 30, report.Acquired)
	assert.Equal(t, 0, report.Unresolved)

	// B never sees a backfill request; A and C split the 6 missing nodes
	assert.Equal(t, []int{10}, stub.callCounts("B"))
	assert.Equal(t, []int{10, 3}, stub.callCounts("A"))
	assert.Equal(t, []int{10, 3}, stub.callCounts("C"))

	require.Len(t, report.Regions, 3)
	for _, result := range report.Regions {
		if result.Region == "B" {
			assert.Equal(t, 4, result.Actual)
		}
	}
}

func TestBackfillStopsOnStalledWave(t *testing.T) {
	stub := newStubFleet()
	stub.yields["A"] = []int{10, 0}
	stub.errs["B"] = fmt.Errorf("region down")

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 10, "B": 10}, "A", "B"))

	assert.Equal(t, 10, CountNodes(hosts))
	assert.Equal(t, 10, report.Unresolved)

	// exactly one stalled wave, then give up
	assert.Equal(t, []int{10, 10}, stub.callCounts("A"))
	assert.Equal(t, []int{10}, stub.callCounts("B"))
}

func TestBackfillDropsSaturatedRegions(t *testing.T) {
	stub := newStubFleet()
	stub.yields["B"] = []int{10, 0}
	stub.yields["C"] = []int{0}

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 10, "B": 10, "C": 10}, "A", "B", "C"))

	// C's 10 missing nodes come from A and B; B stalls after its first
	// backfill wave and is dropped, A covers the rest
	assert.Equal(t, 30, CountNodes(hosts))
	assert.Equal(t, 0, report.Unresolved)
	assert.Equal(t, []int{10, 5, 5}, stub.callCounts("A"))
	assert.Equal(t, []int{10, 5}, stub.callCounts("B"))
	assert.Equal(t, []int{10}, stub.callCounts("C"))
}

func TestBackfillRecoversFromRegionPanic(t *testing.T) {
	stub := newStubFleet()
	stub.panics["B"] = true

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 5, "B": 5}, "A", "B"))

	// the panic is contained; A covers B's share
	assert.Equal(t, 10, CountNodes(hosts))
	assert.Equal(t, 0, report.Unresolved)

	var panicked *RegionResult
	for i := range report.Regions {
		if report.Regions[i].Region == "B" {
			panicked = &report.Regions[i]
		}
	}
	require.NotNil(t, panicked)
	assert.Contains(t, panicked.Error, "panic")
	assert.Equal(t, 0, panicked.Actual)
}

func TestBackfillIgnoresZeroCountRegions(t *testing.T) {
	stub := newStubFleet()

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 5, "B": 0}, "A", "B"))

	assert.Equal(t, 5, CountNodes(hosts))
	assert.Equal(t, 0, report.Unresolved)
	assert.Empty(t, stub.callCounts("B"))
}

func TestBackfillNoHealthyRegions(t *testing.T) {
	stub := newStubFleet()
	stub.errs["A"] = fmt.Errorf("quota exceeded")
	stub.errs["B"] = fmt.Errorf("quota exceeded")

	c := NewCoordinator(stub.provision, NewPool(4))
	hosts, report := c.ProvisionFleet(context.Background(),
		requests(map[string]int{"A": 5, "B": 5}, "A", "B"))

	assert.Empty(t, hosts)
	assert.Equal(t, 10, report.Unresolved)
	assert.Equal(t, []int{5}, stub.callCounts("A"))
	assert.Equal(t, []int{5}, stub.callCounts("B"))
}
