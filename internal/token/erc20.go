package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// Known cUSD deployments.
var Networks = map[string]string{
	"alfajores":   "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
	"celoSepolia": "0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1",
	"mainnet":     "0x765DE816845861e75A25fCA122bb6898B8B1282a",
}

const erc20ABI = `[
 {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20Options configures an ERC20 client.
type ERC20Options struct {
	RPCURL         string
	Token          domain.Address
	PrivateKeyHex  string
	ReceiptTimeout time.Duration
	Logger         *zerolog.Logger
}

// ERC20 drives a deployed ERC-20 contract through JSON-RPC. The custody
// account is the address of the configured private key; it submits
// transferFrom as spender and transfer as owner.
type ERC20 struct {
	client         *ethclient.Client
	contract       *bind.BoundContract
	key            *ecdsa.PrivateKey
	custody        domain.Address
	chainID        *big.Int
	receiptTimeout time.Duration
	logger         zerolog.Logger

	// Nonces come from the node; one transaction in flight at a time keeps
	// them from colliding.
	sendMu sync.Mutex
}

// DialERC20 connects to the RPC endpoint and binds the token contract.
func DialERC20(ctx context.Context, opts ERC20Options) (*ERC20, error) {
	if strings.TrimSpace(opts.RPCURL) == "" {
		return nil, errors.New("token: rpc url is required")
	}
	if domain.IsZeroAddress(opts.Token) {
		return nil, errors.New("token: contract address is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(opts.PrivateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("token: parse custody key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("token: parse abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, opts.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("token: dial rpc: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("token: chain id: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "erc20").Logger()
	}
	timeout := opts.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &ERC20{
		client:         client,
		contract:       bind.NewBoundContract(opts.Token, parsed, client, client, client),
		key:            key,
		custody:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:        chainID,
		receiptTimeout: timeout,
		logger:         logger,
	}, nil
}

func (t *ERC20) Custody() domain.Address {
	return t.custody
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender domain.Address) (ledger.Amount, error) {
	return t.callAmount(ctx, "allowance", owner, spender)
}

// BalanceOf returns the token balance of account.
func (t *ERC20) BalanceOf(ctx context.Context, account domain.Address) (ledger.Amount, error) {
	return t.callAmount(ctx, "balanceOf", account)
}

func (t *ERC20) TransferFrom(ctx context.Context, from, to domain.Address, amount ledger.Amount) (Receipt, error) {
	return t.transact(ctx, "transferFrom", from, to, amount.Big())
}

func (t *ERC20) Transfer(ctx context.Context, to domain.Address, amount ledger.Amount) (Receipt, error) {
	return t.transact(ctx, "transfer", to, amount.Big())
}

// Close releases the RPC connection.
func (t *ERC20) Close() {
	t.client.Close()
}

func (t *ERC20) callAmount(ctx context.Context, method string, args ...any) (ledger.Amount, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return ledger.Zero, fmt.Errorf("token: %s: %w", method, err)
	}
	if len(out) != 1 {
		return ledger.Zero, fmt.Errorf("token: %s: unexpected result count %d", method, len(out))
	}
	value, ok := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !ok {
		return ledger.Zero, fmt.Errorf("token: %s: unexpected result type %T", method, out[0])
	}
	return ledger.FromBig(value)
}

func (t *ERC20) transact(ctx context.Context, method string, args ...any) (Receipt, error) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	auth, err := bind.NewKeyedTransactorWithChainID(t.key, t.chainID)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s: signer: %v", domain.ErrTransferFailed, method, err)
	}
	auth.Context = ctx

	// Submission errors (gas estimation reverts, rejected by the node) mean
	// nothing was broadcast.
	tx, err := t.contract.Transact(auth, method, args...)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %s: %v", domain.ErrTransferFailed, method, err)
	}
	ref := tx.Hash().Hex()
	t.logger.Info().Str("method", method).Str("tx", ref).Msg("token transaction submitted")

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, t.client, tx)
	if err != nil {
		t.logger.Error().Err(err).Str("method", method).Str("tx", ref).Msg("token transaction not confirmed")
		return Receipt{Ref: ref}, fmt.Errorf("%w: %s %s: %v", domain.ErrTransferUnconfirmed, method, ref, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		t.logger.Warn().Str("method", method).Str("tx", ref).Msg("token transaction reverted")
		return Receipt{Ref: ref}, fmt.Errorf("%w: %s %s reverted", domain.ErrTransferFailed, method, ref)
	}
	return Receipt{Ref: ref}, nil
}

var _ Service = (*ERC20)(nil)
