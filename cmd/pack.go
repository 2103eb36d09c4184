package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vibefi/vibepack/internal/bundle"
	"github.com/vibefi/vibepack/internal/pipeline"
	"github.com/vibefi/vibepack/pkg/safeio"
)

var (
	packName             string
	packVersion          string
	packDescription      string
	packOut              string
	packPolicyFile       string
	packOffline          bool
	packPin              bool
	packOnlyHash         bool
	packStoreAPI         string
	packSuppressManifest bool
)

var packCmd = &cobra.Command{
	Use:   "pack [source-dir]",
	Short: "Validate, collect, and publish a bundle",
	Long: `Pack detects the bundle layout, enforces the packaging policy, rebuilds
the output directory with a canonical manifest, and computes the root
identifier via the content store (or a local manifest digest with --offline).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPack,
}

func init() {
	packCmd.Flags().StringVar(&packName, "name", "", "Bundle name recorded in the manifest")
	packCmd.Flags().StringVar(&packVersion, "version", "0.0.0", "Bundle version recorded in the manifest")
	packCmd.Flags().StringVar(&packDescription, "description", "", "Bundle description recorded in the manifest")
	packCmd.Flags().StringVarP(&packOut, "out", "o", "dist-bundle", "Output directory (deleted and rebuilt)")
	packCmd.Flags().StringVar(&packPolicyFile, "policy", "", "Policy override file (YAML or JSON)")
	packCmd.Flags().BoolVar(&packOffline, "offline", false, "Compute a local manifest digest instead of calling the store")
	packCmd.Flags().BoolVar(&packPin, "pin", false, "Ask the store to pin the uploaded tree")
	packCmd.Flags().BoolVar(&packOnlyHash, "only-hash", false, "Compute the store identifier without storing content")
	packCmd.Flags().StringVar(&packStoreAPI, "api", "http://127.0.0.1:5001", "Content store API base URL")
	packCmd.Flags().BoolVar(&packSuppressManifest, "suppress-manifest", false, "Do not write manifest.json into the output directory")
}

func runPack(cmd *cobra.Command, args []string) error {
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
	out, err := safeio.CleanUserPath(packOut)
	if err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	name := packName
	if name == "" {
		name = filepath.Base(source)
	}

	res, err := pipeline.Pack(cmd.Context(), pipeline.PackOptions{
		SourceDir:        source,
		OutDir:           out,
		Meta:             bundle.Meta{Name: name, Version: packVersion, Description: packDescription},
		PolicyFile:       packPolicyFile,
		Offline:          packOffline,
		Pin:              packPin,
		OnlyHash:         packOnlyHash,
		StoreAPI:         packStoreAPI,
		SuppressManifest: packSuppressManifest,
	})
	if err != nil {
		return err
	}

	cmd.Printf("layout: %s\n", res.Layout)
	cmd.Printf("files: %d\n", len(res.Manifest.Files))
	cmd.Printf("mode: %s\n", res.Address.Mode)
	cmd.Printf("id: %s\n", res.Address.ID)
	return nil
}
