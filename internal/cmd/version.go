package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon and engine versions",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cryptonetd %s\n", Version)

	rt, err := setup(cmd, nil)
	if err != nil {
		fmt.Fprintf(out, "engine     unavailable (%v)\n", err)
		return nil
	}
	defer func() { _ = rt.Close(cmd.Context()) }()

	fmt.Fprintf(out, "engine     %s (%s)\n", rt.client.Version(), rt.cfg.Engine.Kind)
	return nil
}
