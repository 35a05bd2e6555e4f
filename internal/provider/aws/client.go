// Package aws implements the provider client against EC2 using the AWS SDK.
// It translates EC2 error codes into the scheduler's three-way creation
// error classification.
package aws

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
)

// describeChunkSize bounds how many instance ids one API call carries
const describeChunkSize = 1000

// Client is the EC2-backed provider client. One underlying EC2 client is
// kept per region.
type Client struct {
	base aws.Config

	mu      sync.Mutex
	clients map[string]*ec2.Client
}

// NewClient creates an AWS provider client from the default credential chain
// (environment, shared config, instance role).
func NewClient(ctx context.Context) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return &Client{
		base:    cfg,
		clients: make(map[string]*ec2.Client),
	}, nil
}

// ec2For returns the EC2 client bound to the given region
func (c *Client) ec2For(regionID string) *ec2.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[regionID]; ok {
		return client
	}
	client := ec2.NewFromConfig(c.base, func(o *ec2.Options) {
		o.Region = regionID
	})
	c.clients[regionID] = client
	return client
}

func chunks(ids []string, size int) [][]string {
	var result [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		result = append(result, ids[start:end])
	}
	return result
}
