package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/vibefi/vibepack/pkg/buildinfo"
)

var versionExtended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.Printf("vibepack %s\n", buildinfo.BinaryVersion)
		if versionExtended {
			if mv := buildinfo.ModuleVersion(); mv != "" {
				cmd.Printf("module: %s\n", mv)
			}
			cmd.Printf("go: %s\n", runtime.Version())
			cmd.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionExtended, "extended", false, "Show detailed build information")
}
