package types

import (
	"github.com/conflux-chain/cloud-provisioner/internal/crypto"
)

// ImageInfo identifies a machine image available in a region
type ImageInfo struct {
	ImageID   string `json:"image_id"`
	ImageName string `json:"image_name"`
}

// KeyPairInfo is a key pair as registered with the provider
type KeyPairInfo struct {
	FingerPrint string `json:"finger_print"`
}

// SecurityGroupInfo identifies a security group inside a VPC
type SecurityGroupInfo struct {
	SecurityGroupID   string `json:"security_group_id"`
	SecurityGroupName string `json:"security_group_name"`
}

// SubnetInfo describes a subnet (a vswitch, in Aliyun terms) inside a VPC
type SubnetInfo struct {
	SubnetID   string `json:"subnet_id"`
	SubnetName string `json:"subnet_name"`
	ZoneID     string `json:"zone_id"`
	CIDRBlock  string `json:"cidr_block"`
	Status     string `json:"status"`
}

// VpcInfo identifies a VPC in a region
type VpcInfo struct {
	VpcID   string `json:"vpc_id"`
	VpcName string `json:"vpc_name"`
}

// KeyPairRequest names the local key file backing the fleet's key pair
type KeyPairRequest struct {
	KeyPath     string `json:"key_path"`
	KeyPairName string `json:"key_pair_name"`
}

// Fingerprint computes the fingerprint of the local key in the format the
// given provider reports for registered key pairs.
func (k KeyPairRequest) Fingerprint(provider string) (string, error) {
	return crypto.FingerprintFromKeyFile(k.KeyPath, provider)
}

// PublicKey returns the OpenSSH public key body derived from the local
// private key file.
func (k KeyPairRequest) PublicKey() (string, error) {
	return crypto.PublicKeyFromKeyFile(k.KeyPath)
}

// Default tags applied to every resource the provisioner creates. The common
// tag marks resources as belonging to a massive-test fleet; the user tag
// separates fleets of different operators sharing one account.
const (
	DefaultCommonTagKey   = "conflux-massive-test"
	DefaultCommonTagValue = "true"
	DefaultUserTagKey     = "user"
	DefaultNamePrefix     = "conflux-massive-test"
)

// InstanceConfig carries the creation-call parameters shared by all providers
type InstanceConfig struct {
	UserTagValue string `json:"user_tag_value"`
	UserTagKey   string `json:"user_tag_key"`

	NamePrefix string `json:"name_prefix"`

	DiskSize                int `json:"disk_size"`
	InternetMaxBandwidthOut int `json:"internet_max_bandwidth_out"`

	// Spot instances (optional, used by image build flows)
	UseSpot      bool   `json:"use_spot"`
	SpotStrategy string `json:"spot_strategy"`
}

// NewInstanceConfig returns an instance config with the fleet defaults for
// the given user tag.
func NewInstanceConfig(userTag string) InstanceConfig {
	return InstanceConfig{
		UserTagValue:            userTag,
		UserTagKey:              DefaultUserTagKey,
		NamePrefix:              DefaultNamePrefix,
		DiskSize:                40,
		InternetMaxBandwidthOut: 100,
		SpotStrategy:            "SpotAsPriceGo",
	}
}
