package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"credpass/internal/metadata"
)

func newCIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cid <file>",
		Short: "Print the content URI a file would be stored under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			uri, err := metadata.URIFor(data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
}

func newUploadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a proof document and print its URI for submit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if opts.cfg.IPFS.APIURL == "" {
				return fmt.Errorf("--ipfs-api or IPFS_API_URL is required for uploads")
			}
			gateway := metadata.NewGateway(opts.cfg.IPFS.GatewayURL,
				metadata.WithAPIURL(opts.cfg.IPFS.APIURL),
				metadata.WithLogger(opts.logger(cmd)),
			)
			uri, err := gateway.Put(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
}
