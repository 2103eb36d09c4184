package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibefi/vibepack/internal/cas"
	"github.com/vibefi/vibepack/internal/gateway"
	"github.com/vibefi/vibepack/internal/policy"
	"github.com/vibefi/vibepack/pkg/safeio"
)

var (
	fetchOut        string
	fetchGatewayURL string
	fetchStoreAPI   string
	fetchPolicyFile string
	fetchNoVerify   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <identifier>",
	Short: "Fetch a published bundle and verify its integrity",
	Long: `Fetch retrieves manifest.json and every listed file for the identifier
from the gateway, writes them under the output directory, and recomputes the
identifier over the fetched tree. A mismatch is a hard failure; the partial
download is left in place as evidence.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchOut, "out", "o", "fetched-bundle", "Output directory for fetched content")
	fetchCmd.Flags().StringVar(&fetchGatewayURL, "gateway", "https://ipfs.io", "Retrieval gateway base URL")
	fetchCmd.Flags().StringVar(&fetchStoreAPI, "api", "http://127.0.0.1:5001", "Content store API base URL, used to recompute the identifier")
	fetchCmd.Flags().StringVar(&fetchPolicyFile, "policy", "", "Policy override file (YAML or JSON)")
	fetchCmd.Flags().BoolVar(&fetchNoVerify, "no-verify", false, "Skip identifier recomputation (content stays untrusted)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	id := args[0]
	out, err := safeio.CleanUserPath(fetchOut)
	if err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	cons, err := policy.Load(fetchPolicyFile)
	if err != nil {
		return err
	}

	var addresser *cas.Client
	if !fetchNoVerify {
		addresser = cas.NewClient(fetchStoreAPI, cons.MaxIdentifierBytes)
	}
	client := gateway.New(fetchGatewayURL, addresser)

	report, err := client.Fetch(cmd.Context(), id, out, !fetchNoVerify)
	if err != nil {
		return err
	}

	cmd.Printf("files: %d\n", report.Files)
	cmd.Printf("bytes: %d\n", report.Bytes)
	if report.Verified {
		cmd.Printf("verified: %s\n", report.Identifier)
	} else {
		cmd.Println("verified: skipped")
	}
	return nil
}
