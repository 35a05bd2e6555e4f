package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

// GetImages lists the account's own images matching the given name
func (c *Client) GetImages(ctx context.Context, regionID, imageName string) ([]types.ImageInfo, error) {
	client := c.ec2For(regionID)

	var result []types.ImageInfo
	paginator := ec2.NewDescribeImagesPaginator(client, &ec2.DescribeImagesInput{
		Filters: []ec2types.Filter{
			{Name: aws.String("name"), Values: []string{imageName}},
		},
		Owners: []string{"self"},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe images in %s: %w", regionID, err)
		}
		for _, image := range page.Images {
			result = append(result, types.ImageInfo{
				ImageID:   aws.ToString(image.ImageId),
				ImageName: aws.ToString(image.Name),
			})
		}
	}
	return result, nil
}
