package controller

import (
	"errors"
	"log/slog"

	"github.com/oracle/oci-go-sdk/v65/common"

	"github.com/flynnkc/oci-offhours/src/pkg/policy"
)

const numWorkers int = 8

var ErrControllerOptions error = errors.New("error controller missing required options")

type Controller interface {
	RunPolicy(policy.Policy) error
	SetRegion(string)
}

type ControllerOpts struct {
	ConfigurationProvider common.ConfigurationProvider
	Log                   *slog.Logger
	// LogDir receives the post-pass JSON artifacts when set.
	LogDir string
	DryRun bool
}
