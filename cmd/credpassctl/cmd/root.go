// Package cmd holds the credpassctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"credpass/internal/platform/config"
	"credpass/internal/platform/logger"
)

// options are the flags shared by every command. Defaults come from the
// same environment variables the server reads.
type options struct {
	cfg      config.Server
	logLevel string
}

// Execute runs the root command with the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd(config.FromEnv()).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree over cfg.
func NewRootCmd(cfg config.Server) *cobra.Command {
	opts := &options{cfg: cfg}

	root := &cobra.Command{
		Use:           "credpassctl",
		Short:         "Operate the credpass projector and verification contract",
		SilenceUsage:  true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.cfg.IPFS.GatewayURL, "gateway", cfg.IPFS.GatewayURL, "content gateway base URL")
	flags.StringVar(&opts.cfg.IPFS.APIURL, "ipfs-api", cfg.IPFS.APIURL, "content storage API URL used for uploads")
	flags.StringVar(&opts.cfg.Ledger.RPCURL, "rpc", cfg.Ledger.RPCURL, "ledger JSON-RPC endpoint")
	flags.StringVar(&opts.cfg.Ledger.ContractAddress, "contract", cfg.Ledger.ContractAddress, "verification contract address")
	flags.StringVar(&opts.cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "journal database; used to restore the projection")

	root.AddCommand(
		newReplayCmd(opts),
		newCIDCmd(),
		newUploadCmd(opts),
		newSubmitCmd(opts),
		newVoteCmd(opts),
		newFinalizeCmd(opts),
		newPublishCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithLevel(cmd.ErrOrStderr(), o.logLevel)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
