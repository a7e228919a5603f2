// Package cli implements the sensorview command line.
//
// # Commands
//
// run - poll the sensors and render the overlay until quit:
//
//	sensorview run [--config FILE] [--camIndex N] [--width W] [--height H] [--fps F]
//
// Every flag can also be set through a SENSORVIEW_* environment variable.
// Precedence, lowest first: built-in defaults, the YAML config file, then
// environment variables and flags.
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/e7canasta/sensorview/internal/logging"
)

const (
	name           = "sensorview"
	versionDefault = "dev"
)

var (
	// overridden during build with ldflags
	version = versionDefault
	commit  = "unknown"
	date    = "unknown"
)

// NewCommand returns the root command.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:    name,
		Usage:   "Poll sensors and overlay their latest readings on a camera feed",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Commands: []*cli.Command{
			runCmd(),
		},
	}
}

// Execute runs the command line in args. ctx cancellation (SIGINT, SIGTERM)
// requests a graceful stop.
func Execute(ctx context.Context, args []string) error {
	// replaced by the configured logger once run has parsed its flags
	logging.SetDefaultStructuredLoggerWithLevel(name, version, "info")
	return NewCommand().Run(ctx, args)
}
