// Package constants provides centralized definitions of constants used
// throughout the application
package constants

// Environment variable names
const (
	// EnvLogLevel selects the log level (debug, info, warn, error)
	EnvLogLevel = "LOG_LEVEL"

	// EnvUserTag overrides the user tag from the request config
	EnvUserTag = "USER_TAG"

	// EnvServerPort is the listen address of the API server (default :8080)
	EnvServerPort = "SERVER_PORT"

	// EnvProvisionConfig points the API server at its request config
	// (default provision.toml)
	EnvProvisionConfig = "PROVISION_CONFIG"

	// EnvAWSAccessKeyID and EnvAWSSecretAccessKey are the standard AWS
	// credential variables, usually loaded from .env
	EnvAWSAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvAWSSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
)

// Concurrency defaults. Region tasks are few and long-running; SSH probes are
// many and short.
const (
	// DefaultRegionPoolSize bounds concurrent per-region provisioning tasks
	DefaultRegionPoolSize = 20

	// DefaultSSHPoolSize bounds concurrent SSH reachability probes
	DefaultSSHPoolSize = 512

	// DefaultInfraPoolSize bounds concurrent region network bootstraps
	DefaultInfraPoolSize = 8
)

// DefaultServerPort is used when EnvServerPort is not set
const DefaultServerPort = ":8080"

// DefaultSubnetPrefix is the prefix length of per-zone subnets carved out of
// the fleet VPC
const DefaultSubnetPrefix = 20
