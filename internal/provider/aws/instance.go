package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"

	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

func instanceTags(cfg types.InstanceConfig, name string) []ec2types.Tag {
	return []ec2types.Tag{
		{Key: aws.String(types.DefaultCommonTagKey), Value: aws.String(types.DefaultCommonTagValue)},
		{Key: aws.String(cfg.UserTagKey), Value: aws.String(cfg.UserTagValue)},
		{Key: aws.String("Name"), Value: aws.String(name)},
	}
}

// CreateInstancesInZone requests between minAmount and maxAmount instances
// in one zone. EC2 either grants the whole batch or rejects the request, so
// the granted ids either satisfy minAmount or are empty.
func (c *Client) CreateInstancesInZone(ctx context.Context, cfg types.InstanceConfig, region types.RegionInfo, zone types.ZoneInfo, instanceType types.InstanceType, minAmount, maxAmount int) ([]string, types.CreateInstanceError) {
	client := c.ec2For(region.ID)

	name := fmt.Sprintf("%s-%d", cfg.NamePrefix, time.Now().Unix())

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(region.ImageID),
		MinCount:     aws.Int32(int32(minAmount)), // #nosec G115 -- amounts are small positive counts
		MaxCount:     aws.Int32(int32(maxAmount)), // #nosec G115
		KeyName:      aws.String(region.KeyPairName),
		InstanceType: ec2types.InstanceType(instanceType.Name),
		NetworkInterfaces: []ec2types.InstanceNetworkInterfaceSpecification{{
			AssociatePublicIpAddress: aws.Bool(true),
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(zone.SubnetID),
			Groups:                   []string{region.SecurityGroupID},
		}},
		Placement: &ec2types.Placement{AvailabilityZone: aws.String(zone.ID)},
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{{
			DeviceName: aws.String("/dev/sda1"),
			Ebs: &ec2types.EbsBlockDevice{
				VolumeSize:          aws.Int32(int32(cfg.DiskSize)), // #nosec G115
				VolumeType:          ec2types.VolumeTypeGp3,
				Iops:                aws.Int32(3000),
				Throughput:          aws.Int32(300),
				DeleteOnTermination: aws.Bool(true),
			},
		}},
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeInstance,
			Tags:         instanceTags(cfg, name),
		}},
	}

	if cfg.UseSpot {
		input.InstanceMarketOptions = &ec2types.InstanceMarketOptionsRequest{
			MarketType: ec2types.MarketTypeSpot,
			SpotOptions: &ec2types.SpotMarketOptions{
				SpotInstanceType: ec2types.SpotInstanceTypeOneTime,
			},
		}
	}

	output, err := client.RunInstances(ctx, input)
	if err != nil {
		return nil, classifyRunError(err, region.ID, zone.ID, instanceType.Name, minAmount, maxAmount)
	}

	ids := make([]string, 0, len(output.Instances))
	for _, inst := range output.Instances {
		ids = append(ids, aws.ToString(inst.InstanceId))
	}
	logger.Infof("Created instances at %s/%s: instance_type=%s, amount=%d, request=%d~%d",
		region.ID, zone.ID, instanceType.Name, len(ids), minAmount, maxAmount)
	return ids, types.CreateErrNil
}

// classifyRunError maps EC2 rejection codes onto the scheduler's fallback
// classification
func classifyRunError(err error, regionID, zoneID, instanceType string, minAmount, maxAmount int) types.CreateInstanceError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		logger.Errorf("RunInstances failed for %s/%s: %v", regionID, zoneID, err)
		return types.CreateErrOther
	}

	switch apiErr.ErrorCode() {
	case "InsufficientInstanceCapacity":
		logger.Warnf("No stock for %s/%s, instance_type=%s, amount=%d~%d",
			regionID, zoneID, instanceType, minAmount, maxAmount)
		return types.CreateErrNoStock
	case "Unsupported", "InvalidParameterValue":
		logger.Warnf("Unsupported configuration for %s/%s, instance_type=%s, amount=%d~%d",
			regionID, zoneID, instanceType, minAmount, maxAmount)
		return types.CreateErrNoInstanceType
	default:
		logger.Errorf("RunInstances failed for %s/%s: %s: %v", regionID, zoneID, apiErr.ErrorCode(), err)
		return types.CreateErrOther
	}
}

// DescribeInstanceStatus reports running and still-pending instances among
// the given ids. Terminated or unknown instances end up in neither set.
func (c *Client) DescribeInstanceStatus(ctx context.Context, regionID string, instanceIDs []string) (types.InstanceStatus, error) {
	client := c.ec2For(regionID)

	status := types.InstanceStatus{
		Running: make(map[string]types.IPAddrs),
		Pending: make(map[string]struct{}),
	}

	for _, chunk := range chunks(instanceIDs, describeChunkSize) {
		paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
			InstanceIds: chunk,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return types.InstanceStatus{}, fmt.Errorf("describe instances in %s: %w", regionID, err)
			}
			for _, reservation := range page.Reservations {
				for _, inst := range reservation.Instances {
					id := aws.ToString(inst.InstanceId)
					switch inst.State.Name {
					case ec2types.InstanceStateNameRunning:
						status.Running[id] = types.IPAddrs{
							Public:  aws.ToString(inst.PublicIpAddress),
							Private: aws.ToString(inst.PrivateIpAddress),
						}
					case ec2types.InstanceStateNamePending, ec2types.InstanceStateNameStopped:
						status.Pending[id] = struct{}{}
					}
				}
			}
		}
	}
	return status, nil
}

// ListTaggedInstances lists the non-terminated instances of a region with
// their tags
func (c *Client) ListTaggedInstances(ctx context.Context, regionID string) ([]types.TaggedInstance, error) {
	client := c.ec2For(regionID)

	var result []types.TaggedInstance
	paginator := ec2.NewDescribeInstancesPaginator(client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{
			Name:   aws.String("tag:" + types.DefaultCommonTagKey),
			Values: []string{types.DefaultCommonTagValue},
		}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list instances in %s: %w", regionID, err)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				// the API keeps returning terminated instances for a while
				if inst.State.Name == ec2types.InstanceStateNameTerminated {
					continue
				}
				tags := make(map[string]string, len(inst.Tags))
				for _, tag := range inst.Tags {
					tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
				}
				result = append(result, types.TaggedInstance{
					InstanceID: aws.ToString(inst.InstanceId),
					Name:       tags["Name"],
					Tags:       tags,
				})
			}
		}
	}
	return result, nil
}

// DeleteInstances terminates the given instances
func (c *Client) DeleteInstances(ctx context.Context, regionID string, instanceIDs []string) error {
	client := c.ec2For(regionID)

	for _, chunk := range chunks(instanceIDs, describeChunkSize) {
		if _, err := client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: chunk,
		}); err != nil {
			return fmt.Errorf("terminate instances in %s: %w", regionID, err)
		}
	}
	return nil
}
