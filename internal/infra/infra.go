// Package infra bootstraps per-region network infrastructure: image lookup,
// VPC, security group, key pair, and one subnet per availability zone. The
// result is the immutable RegionInfo the fleet scheduler consumes.
package infra

import (
	"context"
	"fmt"
	"sync"

	"github.com/conflux-chain/cloud-provisioner/internal/constants"
	"github.com/conflux-chain/cloud-provisioner/internal/fleet"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/netutil"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// Options configures region bootstrapping
type Options struct {
	Client   provider.Client
	Provider string

	// ImageName filters machine images; the newest match is used
	ImageName string

	// KeyPair names the local private key and its provider-side registration
	KeyPair types.KeyPairRequest

	// ResourceName is the name shared by the VPC and security group
	// (default types.DefaultNamePrefix)
	ResourceName string

	// AllowCreate permits creating missing VPCs, security groups, subnets and
	// key pairs. When false a missing resource is an error.
	AllowCreate bool

	// SubnetPrefix is the per-zone subnet prefix length (default /20)
	SubnetPrefix int

	// PoolSize bounds concurrent region bootstraps (default 8)
	PoolSize int
}

func (o Options) withDefaults() Options {
	if o.ResourceName == "" {
		o.ResourceName = types.DefaultNamePrefix
	}
	if o.SubnetPrefix <= 0 {
		o.SubnetPrefix = constants.DefaultSubnetPrefix
	}
	if o.PoolSize <= 0 {
		o.PoolSize = constants.DefaultInfraPoolSize
	}
	return o
}

// EnsureRegions bootstraps every region in parallel and returns the region
// descriptors keyed by region id. The first failure aborts the whole call:
// provisioning into a half-bootstrapped fleet is never useful.
func EnsureRegions(ctx context.Context, opts Options, regionIDs []string) (map[string]types.RegionInfo, error) {
	opts = opts.withDefaults()

	var (
		mu       sync.Mutex
		regions  = make(map[string]types.RegionInfo, len(regionIDs))
		firstErr error
	)

	pool := fleet.NewPool(opts.PoolSize)
	for _, regionID := range regionIDs {
		regionID := regionID
		pool.Submit(func() {
			info, err := EnsureRegion(ctx, opts, regionID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Errorf("Bootstrap region %s failed: %v", regionID, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("region %s: %w", regionID, err)
				}
				return
			}
			regions[regionID] = info
		})
	}
	pool.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return regions, nil
}

// EnsureRegion bootstraps a single region
func EnsureRegion(ctx context.Context, opts Options, regionID string) (types.RegionInfo, error) {
	opts = opts.withDefaults()
	client := opts.Client

	imageID, err := resolveImage(ctx, client, regionID, opts.ImageName)
	if err != nil {
		return types.RegionInfo{}, err
	}

	vpcID, err := ensureVpc(ctx, opts, regionID)
	if err != nil {
		return types.RegionInfo{}, err
	}

	sgID, err := ensureSecurityGroup(ctx, opts, regionID, vpcID)
	if err != nil {
		return types.RegionInfo{}, err
	}

	if err := ensureKeyPair(ctx, opts, regionID); err != nil {
		return types.RegionInfo{}, err
	}

	zoneIDs, zones, err := ensureSubnets(ctx, opts, regionID, vpcID)
	if err != nil {
		return types.RegionInfo{}, err
	}

	logger.Infof("Region %s ready: vpc=%s sg=%s image=%s zones=%d",
		regionID, vpcID, sgID, imageID, len(zones))

	return types.RegionInfo{
		ID:              regionID,
		Zones:           zones,
		ZoneIDs:         zoneIDs,
		SecurityGroupID: sgID,
		VpcID:           vpcID,
		ImageID:         imageID,
		KeyPairName:     opts.KeyPair.KeyPairName,
		KeyPath:         opts.KeyPair.KeyPath,
	}, nil
}

func resolveImage(ctx context.Context, client provider.Client, regionID, imageName string) (string, error) {
	images, err := client.GetImages(ctx, regionID, imageName)
	if err != nil {
		return "", fmt.Errorf("query images: %w", err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("no image named %q in region %s", imageName, regionID)
	}
	return images[0].ImageID, nil
}

func ensureVpc(ctx context.Context, opts Options, regionID string) (string, error) {
	vpcs, err := opts.Client.GetVpcs(ctx, regionID)
	if err != nil {
		return "", fmt.Errorf("query vpcs: %w", err)
	}
	for _, vpc := range vpcs {
		if vpc.VpcName == opts.ResourceName {
			return vpc.VpcID, nil
		}
	}

	if !opts.AllowCreate {
		return "", fmt.Errorf("vpc %q not found in region %s and creation not allowed", opts.ResourceName, regionID)
	}

	logger.Infof("Creating VPC %s in region %s", opts.ResourceName, regionID)
	return opts.Client.CreateVpc(ctx, regionID, opts.ResourceName, netutil.DefaultVpcCIDR)
}

func ensureSecurityGroup(ctx context.Context, opts Options, regionID, vpcID string) (string, error) {
	groups, err := opts.Client.GetSecurityGroups(ctx, regionID, vpcID)
	if err != nil {
		return "", fmt.Errorf("query security groups: %w", err)
	}
	for _, group := range groups {
		if group.SecurityGroupName == opts.ResourceName {
			return group.SecurityGroupID, nil
		}
	}

	if !opts.AllowCreate {
		return "", fmt.Errorf("security group %q not found in region %s and creation not allowed", opts.ResourceName, regionID)
	}

	logger.Infof("Creating security group %s in region %s", opts.ResourceName, regionID)
	return opts.Client.CreateSecurityGroup(ctx, regionID, vpcID, opts.ResourceName)
}

// ensureKeyPair registers the local key with the provider, or verifies the
// already-registered key is actually the local one. A fingerprint mismatch is
// fatal: provisioned hosts would be unreachable.
func ensureKeyPair(ctx context.Context, opts Options, regionID string) error {
	want, err := opts.KeyPair.Fingerprint(opts.Provider)
	if err != nil {
		return fmt.Errorf("fingerprint local key %s: %w", opts.KeyPair.KeyPath, err)
	}

	existing, err := opts.Client.GetKeyPair(ctx, regionID, opts.KeyPair.KeyPairName)
	if err != nil {
		return fmt.Errorf("query key pair: %w", err)
	}
	if existing != nil {
		if existing.FingerPrint != want {
			return fmt.Errorf("key pair %s in region %s has fingerprint %s, local key has %s",
				opts.KeyPair.KeyPairName, regionID, existing.FingerPrint, want)
		}
		return nil
	}

	if !opts.AllowCreate {
		return fmt.Errorf("key pair %q not found in region %s and creation not allowed", opts.KeyPair.KeyPairName, regionID)
	}

	logger.Infof("Importing key pair %s into region %s", opts.KeyPair.KeyPairName, regionID)
	return opts.Client.CreateKeyPair(ctx, regionID, opts.KeyPair)
}

// ensureSubnets guarantees one subnet per availability zone, carving missing
// ones out of the VPC space with the subnet allocator. Zone order follows the
// provider's zone listing.
func ensureSubnets(ctx context.Context, opts Options, regionID, vpcID string) ([]string, map[string]types.ZoneInfo, error) {
	zoneIDs, err := opts.Client.GetZoneIDs(ctx, regionID)
	if err != nil {
		return nil, nil, fmt.Errorf("query zones: %w", err)
	}
	if len(zoneIDs) == 0 {
		return nil, nil, fmt.Errorf("region %s has no availability zones", regionID)
	}

	subnets, err := opts.Client.GetSubnets(ctx, regionID, vpcID)
	if err != nil {
		return nil, nil, fmt.Errorf("query subnets: %w", err)
	}

	byZone := make(map[string]types.SubnetInfo)
	occupied := make([]string, 0, len(subnets))
	for _, subnet := range subnets {
		occupied = append(occupied, subnet.CIDRBlock)
		if _, dup := byZone[subnet.ZoneID]; !dup {
			byZone[subnet.ZoneID] = subnet
		}
	}

	zones := make(map[string]types.ZoneInfo, len(zoneIDs))
	for _, zoneID := range zoneIDs {
		if subnet, ok := byZone[zoneID]; ok {
			zones[zoneID] = types.ZoneInfo{ID: zoneID, SubnetID: subnet.SubnetID}
			continue
		}

		if !opts.AllowCreate {
			return nil, nil, fmt.Errorf("zone %s/%s has no subnet and creation not allowed", regionID, zoneID)
		}

		cidr, err := netutil.AllocateVacantCIDR(occupied, opts.SubnetPrefix, netutil.DefaultVpcCIDR)
		if err != nil {
			return nil, nil, fmt.Errorf("allocate subnet for zone %s/%s: %w", regionID, zoneID, err)
		}

		logger.Infof("Creating subnet %s for zone %s/%s", cidr, regionID, zoneID)
		subnetID, err := opts.Client.CreateSubnet(ctx, regionID, zoneID, vpcID, opts.ResourceName, cidr)
		if err != nil {
			return nil, nil, fmt.Errorf("create subnet in zone %s/%s: %w", regionID, zoneID, err)
		}

		occupied = append(occupied, cidr)
		zones[zoneID] = types.ZoneInfo{ID: zoneID, SubnetID: subnetID}
	}

	return zoneIDs, zones, nil
}
