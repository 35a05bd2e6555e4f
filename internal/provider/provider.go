// Package provider defines the capability interface the fleet scheduler
// consumes for cloud-specific instance lifecycle calls, and the factory that
// selects a concrete implementation by provider name.
package provider

import (
	"context"
	"fmt"

	"github.com/conflux-chain/cloud-provisioner/internal/provider/aws"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// Client is the provider-facing capability interface. Each cloud
// implementation translates its own error codes into the three-way
// CreateInstanceError classification the scheduler understands.
type Client interface {
	// GetZoneIDs lists the availability zone ids of a region
	GetZoneIDs(ctx context.Context, regionID string) ([]string, error)

	// DescribeInstanceStatus reports which of the given instances are
	// running (with their IPs) and which are still starting. Ids absent
	// from both sets have been lost.
	DescribeInstanceStatus(ctx context.Context, regionID string, instanceIDs []string) (types.InstanceStatus, error)

	// CreateInstancesInZone requests between minAmount and maxAmount
	// instances in one zone and returns the ids the provider granted.
	// A rejection is reported through the classification, never as a
	// Go error: rejections are expected and drive fallback.
	CreateInstancesInZone(ctx context.Context, cfg types.InstanceConfig, region types.RegionInfo, zone types.ZoneInfo, instanceType types.InstanceType, minAmount, maxAmount int) ([]string, types.CreateInstanceError)

	// Network-infra bootstrap
	GetImages(ctx context.Context, regionID, imageName string) ([]types.ImageInfo, error)
	GetKeyPair(ctx context.Context, regionID, keyPairName string) (*types.KeyPairInfo, error)
	GetSecurityGroups(ctx context.Context, regionID, vpcID string) ([]types.SecurityGroupInfo, error)
	GetSubnets(ctx context.Context, regionID, vpcID string) ([]types.SubnetInfo, error)
	GetVpcs(ctx context.Context, regionID string) ([]types.VpcInfo, error)
	CreateKeyPair(ctx context.Context, regionID string, keyPair types.KeyPairRequest) error
	CreateSecurityGroup(ctx context.Context, regionID, vpcID, name string) (string, error)
	CreateSubnet(ctx context.Context, regionID, zoneID, vpcID, name, cidrBlock string) (string, error)
	CreateVpc(ctx context.Context, regionID, name, cidrBlock string) (string, error)

	// Cleanup
	ListTaggedInstances(ctx context.Context, regionID string) ([]types.TaggedInstance, error)
	DeleteInstances(ctx context.Context, regionID string, instanceIDs []string) error
}

// NewClient creates a provider client for the given provider name
func NewClient(ctx context.Context, name string) (Client, error) {
	switch name {
	case "aws":
		return aws.NewClient(ctx)
	case "mock", "aws-mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

var validProviders = map[string]struct{}{
	"aws": {}, "mock": {}, "aws-mock": {},
}

// IsValidProvider checks whether the given provider name is supported
func IsValidProvider(name string) bool {
	_, ok := validProviders[name]
	return ok
}
