package infra

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

func writeTestKey(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return path
}

func testOptions(t *testing.T, mock *provider.MockClient, allowCreate bool) Options {
	t.Helper()
	return Options{
		Client:   mock,
		Provider: "aws",
		KeyPair: types.KeyPairRequest{
			KeyPath:     writeTestKey(t),
			KeyPairName: "cfx-test-alice",
		},
		ImageName:   "conflux-node",
		AllowCreate: allowCreate,
	}
}

func TestEnsureRegionCreatesEverything(t *testing.T) {
	mock := provider.NewMockClient()
	mock.SetZones("r1", "z1", "z2")
	mock.AddImage("r1", types.ImageInfo{ImageID: "img-1", ImageName: "conflux-node"})

	info, err := EnsureRegion(context.Background(), testOptions(t, mock, true), "r1")
	require.NoError(t, err)

	assert.Equal(t, "r1", info.ID)
	assert.Equal(t, "img-1", info.ImageID)
	assert.Equal(t, "vpc-mock-r1", info.VpcID)
	assert.Equal(t, "sg-mock-r1", info.SecurityGroupID)
	assert.Equal(t, "cfx-test-alice", info.KeyPairName)
	assert.Equal(t, []string{"z1", "z2"}, info.ZoneIDs)

	require.Len(t, info.Zones, 2)
	assert.Equal(t, "subnet-mock-z1", info.Zones["z1"].SubnetID)
	assert.Equal(t, "subnet-mock-z2", info.Zones["z2"].SubnetID)
}

func TestEnsureRegionReusesExistingVpc(t *testing.T) {
	mock := provider.NewMockClient()
	mock.SetZones("r1", "z1")
	mock.AddImage("r1", types.ImageInfo{ImageID: "img-1", ImageName: "conflux-node"})
	mock.AddVpc("r1", types.VpcInfo{VpcID: "vpc-existing", VpcName: types.DefaultNamePrefix})

	info, err := EnsureRegion(context.Background(), testOptions(t, mock, true), "r1")
	require.NoError(t, err)
	assert.Equal(t, "vpc-existing", info.VpcID)
}

func TestEnsureRegionMissingImage(t *testing.T) {
	mock := provider.NewMockClient()
	mock.SetZones("r1", "z1")

	_, err := EnsureRegion(context.Background(), testOptions(t, mock, true), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image")
}

func TestEnsureRegionCreationNotAllowed(t *testing.T) {
	mock := provider.NewMockClient()
	mock.SetZones("r1", "z1")
	mock.AddImage("r1", types.ImageInfo{ImageID: "img-1", ImageName: "conflux-node"})

	_, err := EnsureRegion(context.Background(), testOptions(t, mock, false), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")
}

func TestEnsureRegionNoZones(t *testing.T) {
	mock := provider.NewMockClient()
	mock.AddImage("r1", types.ImageInfo{ImageID: "img-1", ImageName: "conflux-node"})

	_, err := EnsureRegion(context.Background(), testOptions(t, mock, true), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no availability zones")
}

func TestEnsureRegionsParallel(t *testing.T) {
	mock := provider.NewMockClient()
	for _, region := range []string{"r1", "r2", "r3"} {
		mock.SetZones(region, "a", "b")
		mock.AddImage(region, types.ImageInfo{ImageID: "img-" + region, ImageName: "conflux-node"})
	}

	regions, err := EnsureRegions(context.Background(), testOptions(t, mock, true), []string{"r1", "r2", "r3"})
	require.NoError(t, err)
	require.Len(t, regions, 3)
	assert.Equal(t, "img-r2", regions["r2"].ImageID)
}

func TestEnsureRegionsFailureAborts(t *testing.T) {
	mock := provider.NewMockClient()
	mock.SetZones("good", "a")
	mock.AddImage("good", types.ImageInfo{ImageID: "img-1", ImageName: "conflux-node"})
	// region "bad" has no image

	_, err := EnsureRegions(context.Background(), testOptions(t, mock, true), []string{"good", "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}
