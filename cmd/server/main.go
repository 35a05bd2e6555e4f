package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/conflux-chain/cloud-provisioner/internal/api/v1/handlers"
	v1 "github.com/conflux-chain/cloud-provisioner/internal/api/v1/routes"
	"github.com/conflux-chain/cloud-provisioner/internal/config"
	"github.com/conflux-chain/cloud-provisioner/internal/constants"
	"github.com/conflux-chain/cloud-provisioner/internal/fleet"
	"github.com/conflux-chain/cloud-provisioner/internal/infra"
	"github.com/conflux-chain/cloud-provisioner/internal/logger"
	"github.com/conflux-chain/cloud-provisioner/internal/provider"
	"github.com/conflux-chain/cloud-provisioner/internal/types"
)

func main() {
	logger.Initialize()
	config.LoadEnv()

	provision, err := buildFleetFunc(context.Background())
	if err != nil {
		logger.Fatalf("Server bootstrap failed: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	// API v1 routes
	v1.Register(app, handlers.NewFleetHandler(provision))

	port := os.Getenv(constants.EnvServerPort)
	if port == "" {
		port = constants.DefaultServerPort
	}
	logger.Fatal(app.Listen(port))
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// buildFleetFunc bootstraps every configured cloud up front and returns a
// provision function that dispatches each region request to the provisioner
// owning that region.
func buildFleetFunc(ctx context.Context) (handlers.FleetFunc, error) {
	cfgPath := os.Getenv(constants.EnvProvisionConfig)
	if cfgPath == "" {
		cfgPath = "provision.toml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	owners := make(map[string]*fleet.Provisioner)
	for _, cloud := range cfg.Clouds {
		client, err := provider.NewClient(ctx, cloud.Provider)
		if err != nil {
			return nil, err
		}

		regions, err := infra.EnsureRegions(ctx, infra.Options{
			Client:   client,
			Provider: cloud.Provider,
			KeyPair: types.KeyPairRequest{
				KeyPath:     cloud.SSHKeyPath,
				KeyPairName: cloud.KeyPairName,
			},
			ImageName:   cloud.ImageName,
			AllowCreate: true,
		}, cloud.RegionNames())
		if err != nil {
			return nil, err
		}

		prov, err := fleet.NewProvisioner(fleet.Options{
			Client:         client,
			Provider:       cloud.Provider,
			SSHUser:        cloud.DefaultUserName,
			InstanceConfig: types.NewInstanceConfig(cloud.UserTag),
			Regions:        regions,
			InstanceTypes:  cloud.InstanceTypes,
		})
		if err != nil {
			return nil, err
		}
		for _, name := range cloud.RegionNames() {
			owners[name] = prov
		}
	}

	return func(ctx context.Context, requests []types.RegionRequest) ([]types.HostSpec, *fleet.ShortfallReport, error) {
		grouped := make(map[*fleet.Provisioner][]types.RegionRequest)
		for _, request := range requests {
			prov, ok := owners[request.Name]
			if !ok {
				return nil, nil, fmt.Errorf("region %s is not configured", request.Name)
			}
			grouped[prov] = append(grouped[prov], request)
		}

		var (
			hosts  []types.HostSpec
			merged fleet.ShortfallReport
		)
		for prov, group := range grouped {
			got, report, err := prov.Provision(ctx, group)
			if err != nil {
				return nil, nil, err
			}
			hosts = append(hosts, got...)
			merged.Requested += report.Requested
			merged.Acquired += report.Acquired
			merged.Unresolved += report.Unresolved
			merged.Regions = append(merged.Regions, report.Regions...)
		}
		return hosts, &merged, nil
	}, nil
}
