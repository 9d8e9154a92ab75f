package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/flynnkc/oci-offhours/src/pkg/configuration"
	"github.com/flynnkc/oci-offhours/src/pkg/controller"
	"github.com/flynnkc/oci-offhours/src/pkg/policy"
)

const (
	ENVPREFIX  string = "OFFHOURS_"
	LOGLEVEL   string = "LOG_LEVEL"
	REGION     string = "REGION"
	PRINCIPAL  string = "AUTH_TYPE"
	POLICYFILE string = "POLICY_FILE"
	LOGDIR     string = "LOG_DIR"
)

var (
	// Authentication variables
	authType      string
	configFile    string
	configProfile string

	region     string // Region to run script against
	policyFile string // Policy file holding filter configuration
	logDir     string // Directory for parse_errors.json / opted_out.json
	dryRun     bool   // Evaluate schedules but take no actions
)

func init() {
	usage := fmt.Sprintf("authentication type to use [%s, %s, %s, %s]",
		configuration.APIKEY,
		configuration.INSTANCEPRINCIPAL,
		configuration.RESOURCEPRINCIPAL,
		configuration.WORKLOADPRINCIPAL)
	flag.StringVar(&authType, "auth", "", usage)
	flag.StringVar(&region, "region", "", "region to run offhours on")
	flag.StringVar(&region, "r", "", "region to run offhours on (shorthand)")
	flag.StringVar(&configFile, "config", "", "OCI configuration file location")
	flag.StringVar(&configProfile, "profile", "", "OCI configuration file profile")
	flag.StringVar(&policyFile, "policies", "", "policy file with filter configuration")
	flag.StringVar(&logDir, "log-dir", "", "directory for per-run JSON artifacts")
	flag.BoolVar(&dryRun, "dry-run", false, "evaluate schedules without taking actions")
}

func main() {
	keyPass := flag.String("pass", "", "private key password for API Key Authentication")
	flag.Parse()

	logLevel := os.Getenv(ENVPREFIX + LOGLEVEL)

	// Flags take priority over environment variables
	if authType == "" {
		if val, ok := os.LookupEnv(ENVPREFIX + PRINCIPAL); ok {
			authType = val
		}
	}

	if region == "" {
		if val, ok := os.LookupEnv(ENVPREFIX + REGION); ok {
			region = val
		}
	}

	if policyFile == "" {
		if val, ok := os.LookupEnv(ENVPREFIX + POLICYFILE); ok {
			policyFile = val
		}
	}

	if logDir == "" {
		if val, ok := os.LookupEnv(ENVPREFIX + LOGDIR); ok {
			logDir = val
		}
	}

	cfg, err := configuration.NewConfiguration(configuration.Opts{
		LogLevel:   logLevel,
		Principal:  authType,
		File:       configFile,
		Profile:    configProfile,
		PolicyFile: policyFile,
		LogDir:     logDir,
		DryRun:     dryRun,
		KeyPass:    keyPass,
	})
	if err != nil {
		slog.Default().Error("error loading configuration", "err", err)
		os.Exit(1)
	}

	log := cfg.MakeLog("Component", "main")
	log.Info("Offhours started...")
	log.Debug("Offhours initialized with the following settings",
		"Log Level", cfg.LogLevel,
		"Region", cfg.Region(),
		"Policy File", cfg.PolicyFile(),
		"Principal", cfg.AuthType(),
		"Dry Run", cfg.DryRun())

	run(cfg)
}

func run(cfg *configuration.Configuration) {
	log := cfg.MakeLog("Component", "run")

	file, err := policy.Load(cfg.PolicyFile())
	if err != nil {
		log.Error("error loading policies",
			"error", err)
		os.Exit(1)
	}
	if len(file.Policies) == 0 {
		log.Error("error no policies in policy file",
			"file", cfg.PolicyFile())
		os.Exit(1)
	}

	provider := cfg.Provider()
	if region != "" && region != cfg.Region() {
		provider, err = cfg.ForRegion(region)
		if err != nil {
			log.Error("error building provider for region",
				"region", region,
				"error", err)
			os.Exit(1)
		}
	}

	ctl, err := controller.NewTagController(controller.ControllerOpts{
		ConfigurationProvider: provider,
		Log: cfg.MakeLog(
			"Component", "Controller",
			"Region", cfg.Region()),
		LogDir: cfg.LogDir(),
		DryRun: cfg.DryRun(),
	})
	if err != nil {
		log.Error("Unable to create controller",
			"error", err)
		os.Exit(1)
	}

	if region != "" {
		ctl.SetRegion(region)
	}

	for _, p := range file.Policies {
		if err := ctl.RunPolicy(p); err != nil {
			log.Error("error running policy",
				"policy", p.Name,
				"error", err)
		}
	}
}
