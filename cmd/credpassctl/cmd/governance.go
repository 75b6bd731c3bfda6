package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"credpass/internal/eligibility"
	governance "credpass/internal/governance/service"
	"credpass/internal/ledger/ethclient"
	"credpass/internal/ledger/journal"
	ledger "credpass/internal/ledger/models"
	"credpass/internal/ledger/ports"
	"credpass/internal/ledger/source"
	"credpass/internal/metadata"
	"credpass/internal/platform/database"
	projector "credpass/internal/projector/service"
)

type txOutput struct {
	TxHash string `json:"txHash"`
}

// governanceEnv is a governance service backed by a projection restored from
// the journal database or an events file.
type governanceEnv struct {
	svc   *governance.Service
	close func()
}

func (o *options) governance(cmd *cobra.Command, eventsFile string) (*governanceEnv, error) {
	ctx := cmd.Context()
	log := o.logger(cmd)

	proj, closeDB, err := o.projection(ctx, eventsFile, log)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(ctx, ethclient.Config{
		RPCURL:          o.cfg.Ledger.RPCURL,
		ContractAddress: o.cfg.Ledger.ContractAddress,
		PrivateKeyHex:   o.cfg.Ledger.PrivateKey,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("dial ledger: %w", err)
	}

	svc := governance.New(client, proj, eligibility.New(proj),
		governance.WithStorage(metadata.NewGateway(o.cfg.IPFS.GatewayURL, metadata.WithAPIURL(o.cfg.IPFS.APIURL))),
		governance.WithLogger(log),
	)
	return &governanceEnv{
		svc: svc,
		close: func() {
			client.Close()
			closeDB()
		},
	}, nil
}

func (o *options) projection(ctx context.Context, eventsFile string, log *slog.Logger) (*projector.Projector, func(), error) {
	if eventsFile != "" {
		proj := projector.New(journal.NewInMemory(), projector.WithLogger(log))
		if _, err := source.ReplayFile(ctx, eventsFile, proj, log); err != nil {
			return nil, nil, err
		}
		return proj, func() {}, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = o.cfg.DatabaseURL
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if pool == nil {
		return nil, nil, fmt.Errorf("--events or --database-url is required to check the request state")
	}
	proj := projector.New(journal.NewPostgres(pool.DB()), projector.WithLogger(log))
	if err := proj.Rebuild(ctx); err != nil {
		pool.Close() //nolint:errcheck // best-effort cleanup
		return nil, nil, fmt.Errorf("rebuild projection: %w", err)
	}
	return proj, func() { _ = pool.Close() }, nil
}

func printTx(cmd *cobra.Command, tx ports.TxRef) error {
	return printJSON(cmd.OutOrStdout(), txOutput{TxHash: tx.Hash.Hex()})
}

func newSubmitCmd(opts *options) *cobra.Command {
	var req governance.SubmitRequest
	var eventsFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Propose an institution for verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.governance(cmd, eventsFile)
			if err != nil {
				return err
			}
			defer env.close()

			tx, err := env.svc.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printTx(cmd, tx)
		},
	}
	cmd.Flags().StringVar(&req.ProjectID, "project", "", "project identifier")
	cmd.Flags().StringVar(&req.ProofURI, "proof", "", "proof document URI (see upload)")
	cmd.Flags().StringVar(&eventsFile, "events", "", "events file to project instead of the journal database")
	return cmd
}

func newVoteCmd(opts *options) *cobra.Command {
	var (
		reject     bool
		eventsFile string
	)

	cmd := &cobra.Command{
		Use:   "vote <request-id>",
		Short: "Vote on a verification request; refused locally when the ledger would reject it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ledger.ParseRequestID(args[0])
			if err != nil {
				return err
			}
			env, err := opts.governance(cmd, eventsFile)
			if err != nil {
				return err
			}
			defer env.close()

			tx, err := env.svc.Vote(cmd.Context(), id, !reject)
			if err != nil {
				return err
			}
			return printTx(cmd, tx)
		},
	}
	cmd.Flags().BoolVar(&reject, "reject", false, "vote against the request")
	cmd.Flags().StringVar(&eventsFile, "events", "", "events file to project instead of the journal database")
	return cmd
}

func newFinalizeCmd(opts *options) *cobra.Command {
	var eventsFile string

	cmd := &cobra.Command{
		Use:   "finalize <request-id>",
		Short: "Close voting on a verification request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := ledger.ParseRequestID(args[0])
			if err != nil {
				return err
			}
			env, err := opts.governance(cmd, eventsFile)
			if err != nil {
				return err
			}
			defer env.close()

			tx, err := env.svc.Finalize(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printTx(cmd, tx)
		},
	}
	cmd.Flags().StringVar(&eventsFile, "events", "", "events file to project instead of the journal database")
	return cmd
}
