package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// GetZoneIDs lists the availability zone names of a region
func (c *Client) GetZoneIDs(ctx context.Context, regionID string) ([]string, error) {
	client := c.ec2For(regionID)

	output, err := client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{})
	if err != nil {
		return nil, fmt.Errorf("describe availability zones in %s: %w", regionID, err)
	}

	zoneIDs := make([]string, 0, len(output.AvailabilityZones))
	for _, zone := range output.AvailabilityZones {
		zoneIDs = append(zoneIDs, aws.ToString(zone.ZoneName))
	}
	return zoneIDs, nil
}
