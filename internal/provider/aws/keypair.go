package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"

	"github.com/conflux-chain/cloud-provisioner/internal/types"
	"github.com/conflux-chain/cloud-provisioner/internal/util/wait"
)

// GetKeyPair looks up a key pair by name. A missing key pair is reported as
// a nil info, not an error.
func (c *Client) GetKeyPair(ctx context.Context, regionID, keyPairName string) (*types.KeyPairInfo, error) {
	client := c.ec2For(regionID)

	output, err := client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{keyPairName},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidKeyPair.NotFound" {
			return nil, nil
		}
		return nil, fmt.Errorf("describe key pair %s in %s: %w", keyPairName, regionID, err)
	}

	if len(output.KeyPairs) == 0 {
		return nil, nil
	}
	if len(output.KeyPairs) > 1 {
		return nil, fmt.Errorf("unexpected: multiple results for key pair %s in %s", keyPairName, regionID)
	}
	return &types.KeyPairInfo{FingerPrint: aws.ToString(output.KeyPairs[0].KeyFingerprint)}, nil
}

// CreateKeyPair imports the public key derived from the local private key
// file and waits until the provider reports the expected fingerprint.
func (c *Client) CreateKeyPair(ctx context.Context, regionID string, keyPair types.KeyPairRequest) error {
	client := c.ec2For(regionID)

	publicKey, err := keyPair.PublicKey()
	if err != nil {
		return err
	}
	expected, err := keyPair.Fingerprint("aws")
	if err != nil {
		return err
	}

	if _, err := client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(keyPair.KeyPairName),
		PublicKeyMaterial: []byte(publicKey),
	}); err != nil {
		return fmt.Errorf("import key pair %s in %s: %w", keyPair.KeyPairName, regionID, err)
	}

	return wait.Until(ctx, 10*time.Second, 3*time.Second, func(ctx context.Context) (bool, error) {
		remote, err := c.GetKeyPair(ctx, regionID, keyPair.KeyPairName)
		if err != nil {
			return false, err
		}
		return remote != nil && remote.FingerPrint == expected, nil
	})
}
