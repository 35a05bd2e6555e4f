package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// GetSecurityGroups lists the security groups of a VPC
func (c *Client) GetSecurityGroups(ctx context.Context, regionID, vpcID string) ([]types.SecurityGroupInfo, error) {
	client := c.ec2For(regionID)

	var result []types.SecurityGroupInfo
	paginator := ec2.NewDescribeSecurityGroupsPaginator(client, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("vpc-id"), Values: []string{vpcID}},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe security groups in %s/%s: %w", regionID, vpcID, err)
		}
		for _, sg := range page.SecurityGroups {
			result = append(result, types.SecurityGroupInfo{
				SecurityGroupID:   aws.ToString(sg.GroupId),
				SecurityGroupName: aws.ToString(sg.GroupName),
			})
		}
	}
	return result, nil
}

// CreateSecurityGroup creates a security group opening SSH and the node
// port range to the world
func (c *Client) CreateSecurityGroup(ctx context.Context, regionID, vpcID, name string) (string, error) {
	client := c.ec2For(regionID)

	created, err := client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String("conflux"),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		return "", fmt.Errorf("create security group %s in %s: %w", name, regionID, err)
	}
	groupID := aws.ToString(created.GroupId)

	_, err = client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: created.GroupId,
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(22),
				ToPort:     aws.Int32(22),
				IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			},
			{
				IpProtocol: aws.String("tcp"),
				FromPort:   aws.Int32(1024),
				ToPort:     aws.Int32(49151),
				IpRanges:   []ec2types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("authorize ingress for %s in %s: %w", groupID, regionID, err)
	}

	return groupID, nil
}
