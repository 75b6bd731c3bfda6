// Package ethclient implements the ledger call interface against the
// verification contract through a go-ethereum bound contract.
package ethclient

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gethclient "github.com/ethereum/go-ethereum/ethclient"

	"credpass/internal/ledger/models"
	"credpass/internal/ledger/ports"
)

// ContractABI is the subset of the verification contract the core calls.
const ContractABI = `[
  {"type":"function","name":"submitVerification","stateMutability":"nonpayable",
   "inputs":[{"name":"projectId","type":"string"},{"name":"proofURI","type":"string"}],"outputs":[]},
  {"type":"function","name":"vote","stateMutability":"nonpayable",
   "inputs":[{"name":"verificationId","type":"uint256"},{"name":"approve","type":"bool"}],"outputs":[]},
  {"type":"function","name":"finalize","stateMutability":"nonpayable",
   "inputs":[{"name":"verificationId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"mintCredential","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"uri","type":"string"},{"name":"expiryTs","type":"uint256"}],"outputs":[]}
]`

// Config holds the connection settings for the ledger client.
type Config struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
}

// Client sends transactions to the verification contract.
type Client struct {
	contract *bind.BoundContract
	sender   bind.ContractTransactor
	auth     bind.TransactOpts
	close    func()
}

// ParseABI parses ContractABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ContractABI))
}

// Dial connects to an RPC endpoint and binds the contract with a keyed transactor.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("ledger rpc url not configured")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := parseKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	backend, err := gethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger rpc: %w", err)
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	client, err := New(common.HexToAddress(cfg.ContractAddress), backend, auth)
	if err != nil {
		backend.Close()
		return nil, err
	}
	client.close = backend.Close
	return client, nil
}

// New binds the contract on an existing backend.
func New(address common.Address, backend bind.ContractBackend, auth *bind.TransactOpts) (*Client, error) {
	if auth == nil {
		return nil, errors.New("transactor is required")
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	return &Client{
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		sender:   backend,
		auth:     *auth,
	}, nil
}

// Account returns the transaction sender.
func (c *Client) Account() common.Address {
	return c.auth.From
}

// SubmitVerification sends submitVerification(projectId, proofURI).
func (c *Client) SubmitVerification(ctx context.Context, projectID, proofURI string) (ports.TxRef, error) {
	return c.transact(ctx, "submitVerification", projectID, proofURI)
}

// Vote sends vote(verificationId, approve).
func (c *Client) Vote(ctx context.Context, requestID models.RequestID, approve bool) (ports.TxRef, error) {
	return c.transact(ctx, "vote", new(big.Int).SetUint64(uint64(requestID)), approve)
}

// Finalize sends finalize(verificationId).
func (c *Client) Finalize(ctx context.Context, requestID models.RequestID) (ports.TxRef, error) {
	return c.transact(ctx, "finalize", new(big.Int).SetUint64(uint64(requestID)))
}

// MintCredential sends mintCredential(to, uri, expiryTs).
func (c *Client) MintCredential(ctx context.Context, to common.Address, metadataURI string, expiryTs int64) (ports.TxRef, error) {
	if expiryTs < 0 {
		return ports.TxRef{}, fmt.Errorf("expiry must not be negative: %w", ports.ErrNotBroadcast)
	}
	return c.transact(ctx, "mintCredential", to, metadataURI, big.NewInt(expiryTs))
}

// Close releases the RPC connection when the client owns it.
func (c *Client) Close() {
	if c.close != nil {
		c.close()
	}
}

// transact builds and signs the call before sending it, so packing, gas
// estimation and signing failures are reported as ports.ErrNotBroadcast.
func (c *Client) transact(ctx context.Context, method string, args ...any) (ports.TxRef, error) {
	opts := c.auth
	opts.Context = ctx
	opts.NoSend = true
	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return ports.TxRef{}, fmt.Errorf("%s transaction: %w: %w", method, ports.ErrNotBroadcast, err)
	}
	if err := c.sender.SendTransaction(ctx, tx); err != nil {
		return ports.TxRef{}, fmt.Errorf("send %s transaction %s: %w", method, tx.Hash(), err)
	}
	return ports.TxRef{Hash: tx.Hash()}, nil
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("ledger private key not configured")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse ledger private key: %w", err)
	}
	return key, nil
}

var _ ports.Client = (*Client)(nil)
