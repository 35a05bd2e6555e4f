package fleet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/netutil"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// ErrVerifierStalled is returned by GetRestNodes when no progress signal
// arrives within the staleness window. It is fatal for the region's attempt:
// the scheduler reports the remaining shortfall upward.
var ErrVerifierStalled = errors.New("verifier stalled")

// VerifierConfig tunes the verifier's polling and probing. The zero value
// uses production defaults; tests shrink the intervals.
type VerifierConfig struct {
	// PollInterval is the provider status query interval (default 3s)
	PollInterval time.Duration
	// SSHPort is the TCP port probed for reachability (default 22)
	SSHPort int
	// SSHTimeout is the overall deadline for one instance's probe (default 180s)
	SSHTimeout time.Duration
	// StallTimeout guards GetRestNodes against a stuck batch (default 180s)
	StallTimeout time.Duration
}

func (c VerifierConfig) withDefaults() VerifierConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	if c.SSHPort <= 0 {
		c.SSHPort = 22
	}
	if c.SSHTimeout <= 0 {
		c.SSHTimeout = 180 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 180 * time.Second
	}
	return c
}

// Verifier tracks a batch of instance ids in one region from creation
// through confirmed reachability. Instances move
// Pending -> Running -> SshReady -> Ready, or drop out as Lost at any point
// before Ready. All state lives behind one mutex; the status and SSH loops
// run concurrently for the verifier's lifetime.
type Verifier struct {
	regionID    string
	targetNodes int

	cfg     VerifierConfig
	sshPool *Pool

	mu      sync.Mutex
	pending map[string]types.Instance
	ready   []types.ReadyInstance
	known   map[string]struct{}

	runningQueue chan map[string]types.IPAddrs
	progress     chan struct{}
	stop         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	doneOnce     sync.Once
}

// NewVerifier creates a verifier for one region targeting the given node
// count. SSH probes are submitted to sshPool, which is shared across regions.
func NewVerifier(regionID string, targetNodes int, sshPool *Pool, cfg VerifierConfig) *Verifier {
	return &Verifier{
		regionID:     regionID,
		targetNodes:  targetNodes,
		cfg:          cfg.withDefaults(),
		sshPool:      sshPool,
		pending:      make(map[string]types.Instance),
		known:        make(map[string]struct{}),
		runningQueue: make(chan map[string]types.IPAddrs, 1024),
		progress:     make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Stop terminates both loops cooperatively. Safe to call concurrently with
// active loops, and more than once.
func (v *Verifier) Stop() {
	v.stopOnce.Do(func() { close(v.stop) })
}

// SubmitPending registers created instance ids as pending. Registration is
// additive and idempotent: ids already known (pending or ready) are skipped.
func (v *Verifier) SubmitPending(ids []string, instanceType types.InstanceType, zoneID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range ids {
		if _, dup := v.known[id]; dup {
			continue
		}
		v.known[id] = struct{}{}
		v.pending[id] = types.Instance{
			InstanceID: id,
			Type:       instanceType,
			ZoneID:     zoneID,
		}
	}
}

// ReadyNodes returns the accumulated ready node count
func (v *Verifier) ReadyNodes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.readyNodesLocked()
}

// PendingNodes returns the node count of still-pending instances
func (v *Verifier) PendingNodes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pendingNodesLocked()
}

// CopyReadyInstances returns a snapshot of the ready instances
func (v *Verifier) CopyReadyInstances() []types.ReadyInstance {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.ReadyInstance(nil), v.ready...)
}

func (v *Verifier) readyNodesLocked() int {
	nodes := 0
	for _, inst := range v.ready {
		nodes += inst.Type.Nodes
	}
	return nodes
}

func (v *Verifier) pendingNodesLocked() int {
	nodes := 0
	for _, inst := range v.pending {
		nodes += inst.Type.Nodes
	}
	return nodes
}

// GetRestNodes reports how many more nodes must be requested. It returns 0
// once ready nodes meet the target, the shortfall immediately when
// ready+pending cannot meet it (or, with waitForPendings, once no pendings
// remain), and otherwise blocks until progress arrives. A batch making no
// progress within the staleness window fails with ErrVerifierStalled.
func (v *Verifier) GetRestNodes(waitForPendings bool) (int, error) {
	for {
		v.mu.Lock()
		ready := v.readyNodesLocked()
		pending := v.pendingNodesLocked()
		v.mu.Unlock()

		if ready >= v.targetNodes {
			return 0, nil
		}
		if ready+pending < v.targetNodes && (!waitForPendings || pending == 0) {
			return v.targetNodes - ready - pending, nil
		}

		// ready is short but ready+pending suffices (or the caller insists on
		// waiting): block until the next progress signal
		select {
		case <-v.progress:
		case <-time.After(v.cfg.StallTimeout):
			return 0, fmt.Errorf("%w: region %s saw no progress within %s",
				ErrVerifierStalled, v.regionID, v.cfg.StallTimeout)
		}
	}
}

// signalProgress wakes a caller blocked in GetRestNodes. Signals coalesce;
// the function never blocks.
func (v *Verifier) signalProgress() {
	select {
	case v.progress <- struct{}{}:
	default:
	}
}

func (v *Verifier) markDoneIfReached() {
	v.mu.Lock()
	reached := v.readyNodesLocked() >= v.targetNodes
	v.mu.Unlock()
	if reached {
		v.doneOnce.Do(func() { close(v.done) })
	}
}

// RunStatusLoop polls provider status for not-yet-dispatched pending ids at
// a fixed interval. Running instances with a public IP are queued for SSH
// checking; ids absent from both the running and pending sets are declared
// lost. Query errors are logged and retried on the next tick.
func (v *Verifier) RunStatusLoop(ctx context.Context, client provider.Client) {
	dispatched := make(map[string]struct{})

	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()

	for {
		v.pollOnce(ctx, client, dispatched)

		v.markDoneIfReached()

		select {
		case <-v.done:
			logger.Infof("Region %s reached target nodes, status loop exits", v.regionID)
			return
		case <-v.stop:
			logger.Infof("Region %s status loop stopped before reaching target", v.regionID)
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (v *Verifier) pollOnce(ctx context.Context, client provider.Client, dispatched map[string]struct{}) {
	v.mu.Lock()
	toCheck := make([]string, 0, len(v.pending))
	for id := range v.pending {
		if _, sent := dispatched[id]; !sent {
			toCheck = append(toCheck, id)
		}
	}
	v.mu.Unlock()

	if len(toCheck) == 0 {
		return
	}

	status, err := client.DescribeInstanceStatus(ctx, v.regionID, toCheck)
	if err != nil {
		logger.Warnf("Region %s status query failed, will retry: %v", v.regionID, err)
		return
	}

	running := make(map[string]types.IPAddrs)
	for id, ips := range status.Running {
		// instances without a public IP yet stay undispatched for the next tick
		if ips.Public == "" {
			continue
		}
		dispatched[id] = struct{}{}
		running[id] = ips
	}
	if len(running) > 0 {
		logger.Infof("Region %s: %d instances running", v.regionID, len(running))
		v.runningQueue <- running
	}

	var lost []string
	for _, id := range toCheck {
		if _, isRunning := status.Running[id]; isRunning {
			continue
		}
		if _, isPending := status.Pending[id]; isPending {
			continue
		}
		lost = append(lost, id)
	}
	if len(lost) > 0 {
		v.mu.Lock()
		for _, id := range lost {
			delete(v.pending, id)
		}
		v.mu.Unlock()
		logger.Infof("Region %s: instances %v lost or stopped", v.regionID, lost)
		v.signalProgress()
	}
}

// RunSSHLoop drains the running queue and probes each instance's SSH port on
// the bounded probe pool. A successful probe promotes the instance to ready;
// a timed-out one declares it lost. Either outcome wakes blocked callers.
func (v *Verifier) RunSSHLoop(ctx context.Context) {
	for {
		select {
		case batch := <-v.runningQueue:
			for id, ips := range batch {
				id, ips := id, ips
				v.sshPool.Submit(func() {
					v.probeInstance(ctx, id, ips)
				})
			}
		case <-v.done:
			logger.Infof("Region %s reached target nodes, SSH loop exits", v.regionID)
			return
		case <-v.stop:
			logger.Infof("Region %s SSH loop stopped before reaching target", v.regionID)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (v *Verifier) probeInstance(ctx context.Context, instanceID string, ips types.IPAddrs) {
	err := netutil.WaitForPort(ctx, ips.Public, v.cfg.SSHPort, v.cfg.SSHTimeout)

	v.mu.Lock()
	inst, exists := v.pending[instanceID]
	if !exists {
		// declared lost while the probe was in flight
		v.mu.Unlock()
		return
	}
	delete(v.pending, instanceID)
	if err == nil {
		v.ready = append(v.ready, types.ReadyInstance{
			Instance:  inst,
			PublicIP:  ips.Public,
			PrivateIP: ips.Private,
		})
	}
	v.mu.Unlock()

	if err == nil {
		logger.Infof("Region %s instance %s IP %s connect success", v.regionID, instanceID, ips.Public)
	} else {
		logger.Warnf("Region %s instance %s IP %s connect fail: %v", v.regionID, instanceID, ips.Public, err)
	}

	v.signalProgress()
	v.markDoneIfReached()
}
