package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vibefi/vibepack/internal/pipeline"
)

var inspectPolicyFile string

var inspectCmd = &cobra.Command{
	Use:   "inspect [source-dir]",
	Short: "Detect the layout and validate a source directory without packaging",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPolicyFile, "policy", "", "Policy override file (YAML or JSON)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	source := "."
	if len(args) > 0 {
		source = args[0]
	}
	source, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("resolve source dir: %w", err)
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source does not exist: %s", source)
	}

	insp, err := pipeline.Inspect(source, inspectPolicyFile)
	if err != nil {
		return err
	}

	cmd.Printf("layout: %s\n", insp.Layout)
	cmd.Printf("files: %d\n", insp.Files)
	if insp.Descriptor.Capabilities != nil && insp.Descriptor.Capabilities.IPFS != nil {
		cmd.Printf("capability grants: %d\n", len(insp.Descriptor.Capabilities.IPFS.Allow))
	}
	cmd.Println("valid")
	return nil
}
