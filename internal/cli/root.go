package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/logging"
)

var version = "0.1.0"

// ErrThresholdsFailed is returned by the run command when at least one
// threshold did not pass. The summary has already been printed.
var ErrThresholdsFailed = errors.New("one or more thresholds failed")

// NewRootCmd builds the ridesim command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ridesim",
		Short:   "Load test a ride-hailing service with simulated riders and drivers",
		Version: version,
		Long: `ridesim simulates riders and drivers against a ride-hailing HTTP API.

Riders sign up, request rides between random points and poll each ride
until it completes. Drivers pick the first waiting ride, accept it and
complete it a minute later. Requests are aggregated per label and
reported live, as a summary, and optionally as JSON, CSV or HTML.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", logging.FormatText, "Log format: text or json")

	root.AddCommand(newRunCmd())
	root.AddCommand(newMockCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute runs the root command with the process arguments.
// This is called by main.main().
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil && !errors.Is(err, ErrThresholdsFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// newLogger builds the logger selected by the persistent flags. Logs go to
// stderr so they never mix with results written to stdout.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return logging.New(cmd.ErrOrStderr(), level, format)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ridesim %s\n", version)
		},
	}
}
