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

// GetVpcs lists the VPCs of a region
func (c *Client) GetVpcs(ctx context.Context, regionID string) ([]types.VpcInfo, error) {
	client := c.ec2For(regionID)

	var result []types.VpcInfo
	paginator := ec2.NewDescribeVpcsPaginator(client, &ec2.DescribeVpcsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe VPCs in %s: %w", regionID, err)
		}
		for _, vpc := range page.Vpcs {
			result = append(result, types.VpcInfo{
				VpcID:   aws.ToString(vpc.VpcId),
				VpcName: nameTag(vpc.Tags),
			})
		}
	}
	return result, nil
}

// CreateVpc creates a VPC with internet access: the VPC itself, an internet
// gateway, and a default route on the main route table.
func (c *Client) CreateVpc(ctx context.Context, regionID, name, cidrBlock string) (string, error) {
	client := c.ec2For(regionID)

	created, err := client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(cidrBlock),
	})
	if err != nil {
		return "", fmt.Errorf("create VPC in %s: %w", regionID, err)
	}
	vpcID := aws.ToString(created.Vpc.VpcId)

	if _, err := client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{vpcID},
		Tags:      []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
	}); err != nil {
		return "", fmt.Errorf("tag VPC %s in %s: %w", vpcID, regionID, err)
	}

	err = wait.Until(ctx, 120*time.Second, 3*time.Second, func(ctx context.Context) (bool, error) {
		output, err := client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
		if err != nil {
			return false, err
		}
		return len(output.Vpcs) > 0 && output.Vpcs[0].State == ec2types.VpcStateAvailable, nil
	})
	if err != nil {
		return "", fmt.Errorf("VPC %s in %s not available: %w", vpcID, regionID, err)
	}

	igw, err := client.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{})
	if err != nil {
		return "", fmt.Errorf("create internet gateway for %s in %s: %w", vpcID, regionID, err)
	}
	igwID := aws.ToString(igw.InternetGateway.InternetGatewayId)

	if _, err := client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{igwID},
		Tags:      []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(name + "-igw")}},
	}); err != nil {
		return "", fmt.Errorf("tag internet gateway %s in %s: %w", igwID, regionID, err)
	}

	if _, err := client.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: aws.String(igwID),
		VpcId:             aws.String(vpcID),
	}); err != nil {
		return "", fmt.Errorf("attach internet gateway %s to %s: %w", igwID, vpcID, err)
	}

	routeTables, err := client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
			{Name: aws.String("association.main"), Values: []string{"true"}},
		},
	})
	if err != nil || len(routeTables.RouteTables) == 0 {
		return "", fmt.Errorf("find main route table of %s in %s: %w", vpcID, regionID, err)
	}

	if _, err := client.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         routeTables.RouteTables[0].RouteTableId,
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(igwID),
	}); err != nil {
		return "", fmt.Errorf("create default route for %s in %s: %w", vpcID, regionID, err)
	}

	return vpcID, nil
}
