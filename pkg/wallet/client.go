// Package wallet holds the signing capability and everything that gates it:
// the spending guard, the send/confirm engine, and the client object that
// owns a sealed identity. A Client reference can be handed to adapters,
// strategies, and loggers; none of them can reach the secret.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/keystore"
	"github.com/meridian-labs/solagent/pkg/logging"
)

// ataCreateRentLamports is the nominal spend estimate handed to the guard
// when creating an associated token account.
const ataCreateRentLamports = 5000

// feeEstimateLamports is the nominal network-fee estimate for transfers that
// move tokens rather than lamports.
const feeEstimateLamports = 5000

// Config configures a wallet client.
type Config struct {
	RPCURL                   string
	Commitment               rpc.CommitmentType
	Send                     SendConfig
	PriorityFeeMicroLamports uint64
	Limits                   domain.SpendingLimits
}

// Client is the wallet capability object. The signing identity lives in an
// unexported field with no accessor; the only operations that touch it are
// the signing paths (SignTransaction and SignAndSendTransaction), which sign
// through it without exposing it, and Close, which zeroes it.
type Client struct {
	identity *keystore.Identity
	guard    *SpendingLimitGuard
	rpc      ChainRPC
	cfg      Config
	log      *logging.Logger
	pubkey   solana.PublicKey
}

// NewClient builds a client over a fresh RPC connection to cfg.RPCURL.
// Construction rejects mainnet endpoints before anything else happens.
func NewClient(identity *keystore.Identity, cfg Config, log *logging.Logger) (*Client, error) {
	if err := RejectMainnet(cfg.RPCURL); err != nil {
		return nil, err
	}
	return NewClientWithRPC(identity, cfg, rpc.New(cfg.RPCURL), log)
}

// NewClientWithRPC builds a client over a caller-supplied RPC connection.
// Used by the manager (shared connection pool) and by tests (fakes).
func NewClientWithRPC(identity *keystore.Identity, cfg Config, chainRPC ChainRPC, log *logging.Logger) (*Client, error) {
	if identity == nil {
		return nil, domain.NewError(domain.CodeInvalidConfig, "signing identity is required")
	}
	if cfg.RPCURL != "" {
		if err := RejectMainnet(cfg.RPCURL); err != nil {
			return nil, err
		}
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	guard, err := NewSpendingLimitGuard(cfg.Limits)
	if err != nil {
		return nil, err
	}
	return &Client{
		identity: identity,
		guard:    guard,
		rpc:      chainRPC,
		cfg:      cfg,
		log:      log,
		pubkey:   identity.PublicKey(),
	}, nil
}

// RejectMainnet fails for any RPC URL whose hostname matches the mainnet
// pattern. This runtime must never sign against mainnet.
func RejectMainnet(rpcURL string) error {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return domain.Errorf(domain.CodeInvalidConfig, "invalid rpc url: %v", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = rpcURL
	}
	if strings.Contains(strings.ToLower(host), "mainnet-beta") {
		return domain.Errorf(domain.CodeMainnetBlocked, "mainnet rpc endpoints are blocked: %s", host)
	}
	return nil
}

// PublicKey returns the public identifier.
func (c *Client) PublicKey() solana.PublicKey {
	return c.pubkey
}

// String renders exactly the base58 public key.
func (c *Client) String() string {
	return c.pubkey.String()
}

// MarshalJSON serializes to the public key string and nothing else.
func (c *Client) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.pubkey.String())), nil
}

// Format implements fmt.Formatter: %s prints the bare public key, as String
// does; every other verb, including %v, %+v and %#v, prints the debug form
// WalletClient(<pubkey>) instead of walking fields.
func (c *Client) Format(f fmt.State, verb rune) {
	switch verb {
	case 's':
		fmt.Fprint(f, c.String())
	default:
		fmt.Fprintf(f, "WalletClient(%s)", c.pubkey)
	}
}

// GetSolBalance returns the wallet's lamport balance.
func (c *Client) GetSolBalance(ctx context.Context) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, c.pubkey, c.cfg.Commitment)
	if err != nil {
		return 0, domain.Errorf(domain.CodeRPCError, "balance query failed: %v", err)
	}
	return out.Value, nil
}

// GetTokenBalance returns the wallet's balance for mint in base units. A
// missing associated token account reads as zero.
func (c *Client) GetTokenBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(c.pubkey, mint)
	if err != nil {
		return 0, domain.Errorf(domain.CodeInvalidMint, "cannot derive token account for %s: %v", mint, err)
	}
	out, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.cfg.Commitment)
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, domain.Errorf(domain.CodeRPCError, "token balance query failed: %v", err)
	}
	if out.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, domain.Errorf(domain.CodeRPCError, "malformed token amount %q: %v", out.Value.Amount, err)
	}
	return amount, nil
}

// GetOrCreateTokenAccount returns the wallet's associated token account for
// mint, creating it on chain when absent. Idempotent.
func (c *Client) GetOrCreateTokenAccount(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(c.pubkey, mint)
	if err != nil {
		return solana.PublicKey{}, domain.Errorf(domain.CodeInvalidMint, "cannot derive token account for %s: %v", mint, err)
	}

	if _, err := c.rpc.GetAccountInfo(ctx, ata); err == nil {
		return ata, nil
	} else if !isNotFound(err) {
		return solana.PublicKey{}, domain.Errorf(domain.CodeRPCError, "account lookup failed: %v", err)
	}

	c.log.Info("creating associated token account",
		zap.String("mint", mint.String()), zap.String("ata", ata.String()))

	createIx := associatedtokenaccount.NewCreateInstruction(c.pubkey, c.pubkey, mint).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{createIx}, solana.Hash{}, solana.TransactionPayer(c.pubkey))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to build create-account transaction: %w", err)
	}

	result, err := c.SignAndSendTransaction(ctx, tx, ataCreateRentLamports, "")
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !result.Confirmed() {
		return solana.PublicKey{}, domain.Errorf(domain.CodeRPCError,
			"token account creation did not confirm: %s %s", result.Status, result.Error)
	}
	return ata, nil
}

// SendSol transfers lamports to a destination, including a priority-fee
// compute-budget instruction, gated by the guard.
func (c *Client) SendSol(ctx context.Context, to solana.PublicKey, lamports uint64) (*domain.TxResult, error) {
	if lamports == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "transfer amount must be positive")
	}
	balance, err := c.GetSolBalance(ctx)
	if err != nil {
		return nil, err
	}
	if balance < lamports {
		return nil, domain.Errorf(domain.CodeInsufficientFunds,
			"balance %s SOL is below requested transfer %s SOL",
			domain.FormatSol(balance), domain.FormatSol(lamports))
	}

	instructions := []solana.Instruction{
		computebudget.NewSetComputeUnitPriceInstruction(c.cfg.PriorityFeeMicroLamports).Build(),
		system.NewTransferInstruction(lamports, c.pubkey, to).Build(),
	}
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(c.pubkey))
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer transaction: %w", err)
	}
	return c.SignAndSendTransaction(ctx, tx, lamports, to.String())
}

// SendToken transfers token base units to a destination wallet, creating the
// destination's associated account when absent.
func (c *Client) SendToken(ctx context.Context, mint, to solana.PublicKey, amount uint64) (*domain.TxResult, error) {
	if amount == 0 {
		return nil, domain.NewError(domain.CodeInvalidConfig, "transfer amount must be positive")
	}

	supply, err := c.rpc.GetTokenSupply(ctx, mint, c.cfg.Commitment)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidMint, "mint lookup failed for %s: %v", mint, err)
	}
	decimals := supply.Value.Decimals

	sourceATA, err := c.GetOrCreateTokenAccount(ctx, mint)
	if err != nil {
		return nil, err
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, domain.Errorf(domain.CodeInvalidMint, "cannot derive destination token account: %v", err)
	}

	var instructions []solana.Instruction
	if _, err := c.rpc.GetAccountInfo(ctx, destATA); err != nil {
		if !isNotFound(err) {
			return nil, domain.Errorf(domain.CodeRPCError, "destination account lookup failed: %v", err)
		}
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(c.pubkey, to, mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferCheckedInstruction(amount, decimals, sourceATA, mint, destATA, c.pubkey, nil).Build())

	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(c.pubkey))
	if err != nil {
		return nil, fmt.Errorf("failed to build token transfer transaction: %w", err)
	}
	return c.SignAndSendTransaction(ctx, tx, feeEstimateLamports, to.String())
}

// SignTransaction signs tx without a guard check. Only for adapter
// pre-submission signing paths whose transaction is then re-submitted through
// SignAndSendTransaction.
func (c *Client) SignTransaction(tx *solana.Transaction) error {
	return c.identity.SignTransaction(tx)
}

// SignAndSendTransaction is the single guard-crossing signing path. When
// estimatedLamports is positive the guard check runs before the signer is
// ever invoked; session spend is recorded only on a confirmed result.
func (c *Client) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction, estimatedLamports uint64, destination string) (*domain.TxResult, error) {
	if estimatedLamports > 0 {
		if err := c.guard.Check(estimatedLamports, destination); err != nil {
			c.log.Warn("spending guard rejected transaction",
				zap.Uint64("estimated_lamports", estimatedLamports),
				zap.String("error", err.Error()))
			return nil, err
		}
	}

	result, err := SendAndConfirm(ctx, tx, c.identity.SignTransaction, c.rpc, c.cfg.Send, c.log)
	if err != nil {
		return nil, err
	}
	if result.Confirmed() && estimatedLamports > 0 {
		c.guard.Record(estimatedLamports)
	}
	return result, nil
}

// GetSpendingLimitStatus returns the guard's non-sensitive snapshot.
func (c *Client) GetSpendingLimitStatus() GuardStatus {
	return c.guard.Status()
}

// Close zeroes the signing identity. The client is unusable afterwards.
func (c *Client) Close() {
	c.identity.Zero()
}

func isNotFound(err error) bool {
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
