package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
	"github.com/conflux-chain/cloud-provisioner/internal/util/wait"
)

func nameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}

// GetSubnets lists the subnets of a VPC
func (c *Client) GetSubnets(ctx context.Context, regionID, vpcID string) ([]types.SubnetInfo, error) {
	client := c.ec2For(regionID)

	var result []types.SubnetInfo
	paginator := ec2.NewDescribeSubnetsPaginator(client, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe subnets in %s/%s: %w", regionID, vpcID, err)
		}
		for _, subnet := range page.Subnets {
			result = append(result, types.SubnetInfo{
				SubnetID:   aws.ToString(subnet.SubnetId),
				SubnetName: nameTag(subnet.Tags),
				ZoneID:     aws.ToString(subnet.AvailabilityZone),
				CIDRBlock:  aws.ToString(subnet.CidrBlock),
				Status:     string(subnet.State),
			})
		}
	}
	return result, nil
}

// CreateSubnet creates a subnet in one zone and waits until it is available
func (c *Client) CreateSubnet(ctx context.Context, regionID, zoneID, vpcID, name, cidrBlock string) (string, error) {
	client := c.ec2For(regionID)

	created, err := client.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:            aws.String(vpcID),
		CidrBlock:        aws.String(cidrBlock),
		AvailabilityZone: aws.String(zoneID),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSubnet,
			Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("create subnet %s in %s/%s: %w", cidrBlock, regionID, zoneID, err)
	}
	subnetID := aws.ToString(created.Subnet.SubnetId)

	err = wait.Until(ctx, 120*time.Second, 3*time.Second, func(ctx context.Context) (bool, error) {
		output, err := client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
			SubnetIds: []string{subnetID},
		})
		if err != nil {
			return false, err
		}
		return len(output.Subnets) > 0 && output.Subnets[0].State == ec2types.SubnetStateAvailable, nil
	})
	if err != nil {
		return "", fmt.Errorf("subnet %s in %s not available: %w", subnetID, regionID, err)
	}

	return subnetID, nil
}
