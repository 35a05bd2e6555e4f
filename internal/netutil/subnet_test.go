package netutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateVacantCIDRFirstFree(t *testing.T) {
	cidr, err := AllocateVacantCIDR(nil, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/20", cidr)
}

func TestAllocateVacantCIDRSkipsOccupied(t *testing.T) {
	occupied := []string{"10.0.0.0/20", "10.0.16.0/20"}

	cidr, err := AllocateVacantCIDR(occupied, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	assert.Equal(t, "10.0.32.0/20", cidr)
}

func TestAllocateVacantCIDRSkipsOverlapOfDifferentSize(t *testing.T) {
	// a single /19 occupies two /20 slots
	cidr, err := AllocateVacantCIDR([]string{"10.0.0.0/19"}, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	assert.Equal(t, "10.0.32.0/20", cidr)
}

func TestAllocateVacantCIDRIgnoresEmptyStrings(t *testing.T) {
	cidr, err := AllocateVacantCIDR([]string{"", "10.0.0.0/20", ""}, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	assert.Equal(t, "10.0.16.0/20", cidr)
}

func TestAllocateVacantCIDRExhausted(t *testing.T) {
	// every /24 of the /16 taken
	occupied := make([]string, 0, 256)
	for i := 0; i < 256; i++ {
		occupied = append(occupied, fmt.Sprintf("10.0.%d.0/24", i))
	}

	_, err := AllocateVacantCIDR(occupied, 24, DefaultVpcCIDR)
	require.ErrorIs(t, err, ErrNoVacantSubnet)
}

func TestAllocateVacantCIDRWholeVpcOccupied(t *testing.T) {
	_, err := AllocateVacantCIDR([]string{"10.0.0.0/16"}, 20, DefaultVpcCIDR)
	require.ErrorIs(t, err, ErrNoVacantSubnet)
}

func TestAllocateVacantCIDRInvalidInputs(t *testing.T) {
	tests := []struct {
		name     string
		occupied []string
		prefix   int
		vpc      string
	}{
		{"bad vpc", nil, 20, "not-a-cidr"},
		{"bad occupied", []string{"nope"}, 20, DefaultVpcCIDR},
		{"prefix larger than vpc", nil, 8, DefaultVpcCIDR},
		{"prefix beyond 32", nil, 33, DefaultVpcCIDR},
		{"ipv6 vpc", nil, 64, "fd00::/32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AllocateVacantCIDR(tt.occupied, tt.prefix, tt.vpc)
			assert.Error(t, err)
		})
	}
}

func TestAllocateVacantCIDRDeterministic(t *testing.T) {
	occupied := []string{"10.0.16.0/20"}

	first, err := AllocateVacantCIDR(occupied, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	second, err := AllocateVacantCIDR(occupied, 20, DefaultVpcCIDR)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
