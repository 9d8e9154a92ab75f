package configuration

import (
	"fmt"
	"log/slog"

	"crypto/x509"
	"encoding/pem"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/common/auth"
)

const (
	APIKEY            string = "api_key"
	INSTANCEPRINCIPAL string = "instance_principal"
	RESOURCEPRINCIPAL string = "resource_principal"
	WORKLOADPRINCIPAL string = "workload_principal"
	// Defaults
	DEFAULT_POLICYFILE string = "policies.yml"
	DEFAULT_LOGLEVEL   string = "INFO"
)

// Configuration is a collection of variables that affect behavior of the script
type Configuration struct {
	Log                *slog.Logger
	LogLevel           string                       // Logging level [debug, info, warn, error]
	region             string                       // Region to run script on (Optional)
	policyFile         string                       // Policy file to load, default policies.yml
	logDir             string                       // Directory for per-pass JSON artifacts (Optional)
	dryRun             bool                         // Evaluate but take no actions
	principal          string                       // Principal type, one of the four supported auth types
	provider           common.ConfigurationProvider // Provider matching the principal type
	privateKeyPassword *string
}

type Opts struct {
	LogLevel   string
	Principal  string
	File       string // OCI configuration file for API key auth
	Profile    string
	PolicyFile string
	LogDir     string
	DryRun     bool
	KeyPass    *string
}

func NewConfiguration(opts Opts) (*Configuration, error) {
	if opts.LogLevel == "" {
		opts.LogLevel = DEFAULT_LOGLEVEL
	}

	if opts.PolicyFile == "" {
		opts.PolicyFile = DEFAULT_POLICYFILE
	}

	if opts.File == "" {
		opts.File = "~/.oci/config"
	}

	if opts.Profile == "" {
		opts.Profile = "DEFAULT"
	}

	var provider common.ConfigurationProvider
	var err error
	switch opts.Principal {
	case APIKEY:
		provider, err = common.ConfigurationProviderFromFileWithProfile(
			opts.File, opts.Profile, *opts.KeyPass)
	case INSTANCEPRINCIPAL:
		provider, err = auth.InstancePrincipalConfigurationProvider()
	case RESOURCEPRINCIPAL:
		provider, err = auth.ResourcePrincipalConfigurationProvider()
	case WORKLOADPRINCIPAL:
		provider, err = auth.OkeWorkloadIdentityConfigurationProvider()
	default:
		return nil, fmt.Errorf("error unsupported auth type %s", opts.Principal)
	}
	if err != nil {
		return nil, fmt.Errorf("error building configuration provider: %w", err)
	}

	region, err := provider.Region()
	if err != nil {
		return nil, fmt.Errorf("error getting region from provider: %w", err)
	}

	c := Configuration{
		Log:                setLogger(opts.LogLevel),
		LogLevel:           opts.LogLevel,
		region:             region,
		policyFile:         opts.PolicyFile,
		logDir:             opts.LogDir,
		dryRun:             opts.DryRun,
		principal:          opts.Principal,
		provider:           provider,
		privateKeyPassword: opts.KeyPass,
	}

	return &c, nil
}

// Region returns the default configured region
func (c *Configuration) Region() string {
	return c.region
}

// PolicyFile returns the configured policy file path
func (c *Configuration) PolicyFile() string {
	return c.policyFile
}

// LogDir returns the configured artifact directory, empty when unset
func (c *Configuration) LogDir() string {
	return c.logDir
}

// DryRun returns whether actions should be skipped
func (c *Configuration) DryRun() bool {
	return c.dryRun
}

// AuthType returns the configured authentication type
func (c *Configuration) AuthType() string {
	return c.principal
}

// Provider returns the default configured provider
func (c *Configuration) Provider() common.ConfigurationProvider {
	return c.provider
}

// MakeLog returns a child logger carrying the given attributes
func (c *Configuration) MakeLog(with ...any) *slog.Logger {
	return withAttrs(c.Log, with...)
}

// ForRegion returns a modified configuration provider for the selected region
func (c *Configuration) ForRegion(region string) (common.ConfigurationProvider, error) {
	// Only API key auth needs a new provider with a different region.
	if c.principal == APIKEY {
		tenant, err := c.provider.TenancyOCID()
		if err != nil {
			return nil, err
		}

		user, err := c.provider.UserOCID()
		if err != nil {
			return nil, err
		}

		fp, err := c.provider.KeyFingerprint()
		if err != nil {
			return nil, err
		}

		// Get the RSA key and convert to PEM string expected by NewRawConfigurationProvider
		pk, err := c.provider.PrivateRSAKey()
		if err != nil {
			return nil, err
		}
		pemBytes := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(pk),
		})

		return common.NewRawConfigurationProvider(
			tenant,
			user,
			region,
			fp,
			string(pemBytes),
			c.privateKeyPassword,
		), nil
	}

	// For non-API key principals (instance/resource/workload), return the existing provider.
	// Region is derived by the underlying environment and typically cannot be overridden here.
	return c.provider, nil
}
