// Package netutil provides the subnet allocator and TCP reachability probes
// used during fleet acquisition.
package netutil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// DefaultVpcCIDR is the address space of VPCs the provisioner creates
const DefaultVpcCIDR = "10.0.0.0/16"

// ErrNoVacantSubnet is returned when the VPC address space has no remaining
// subnet of the requested prefix length.
var ErrNoVacantSubnet = errors.New("no vacant subnet")

// AllocateVacantCIDR returns the first /prefix subnet of vpcCIDR, in
// canonical enumeration order, that overlaps none of the occupied blocks.
// Empty strings in occupied are ignored. The function is pure and
// deterministic.
func AllocateVacantCIDR(occupied []string, prefix int, vpcCIDR string) (string, error) {
	vpc, err := netip.ParsePrefix(vpcCIDR)
	if err != nil {
		return "", fmt.Errorf("invalid VPC CIDR %q: %w", vpcCIDR, err)
	}
	vpc = vpc.Masked()
	if !vpc.Addr().Is4() {
		return "", fmt.Errorf("only IPv4 VPC CIDRs are supported, got %q", vpcCIDR)
	}
	if prefix < vpc.Bits() || prefix > 32 {
		return "", fmt.Errorf("prefix /%d not inside VPC CIDR %s", prefix, vpc)
	}

	used := make([]netip.Prefix, 0, len(occupied))
	for _, block := range occupied {
		if block == "" {
			continue
		}
		p, err := netip.ParsePrefix(block)
		if err != nil {
			return "", fmt.Errorf("invalid occupied CIDR %q: %w", block, err)
		}
		used = append(used, p.Masked())
	}

	base := addrToUint32(vpc.Addr())
	step := uint32(1) << (32 - prefix)
	count := 1 << (prefix - vpc.Bits())

	for i := 0; i < count; i++ {
		subnet := netip.PrefixFrom(uint32ToAddr(base+uint32(i)*step), prefix)
		if !overlapsAny(subnet, used) {
			return subnet.String(), nil
		}
	}

	return "", fmt.Errorf("%w: all /%d subnets of %s are occupied", ErrNoVacantSubnet, prefix, vpc)
}

func overlapsAny(subnet netip.Prefix, used []netip.Prefix) bool {
	for _, u := range used {
		if subnet.Overlaps(u) {
			return true
		}
	}
	return false
}

func addrToUint32(addr netip.Addr) uint32 {
	b := addr.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
