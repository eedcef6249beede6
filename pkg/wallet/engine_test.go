package wallet

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
)

// fakeRPC implements ChainRPC with overridable behavior per method.
type fakeRPC struct {
	blockhash    func() (*rpc.GetLatestBlockhashResult, error)
	simulate     func() (*rpc.SimulateTransactionResponse, error)
	send         func() (solana.Signature, error)
	statuses     func() (*rpc.GetSignatureStatusesResult, error)
	getTx        func() (*rpc.GetTransactionResult, error)
	balance      func() (*rpc.GetBalanceResult, error)
	tokenBalance func() (*rpc.GetTokenAccountBalanceResult, error)
	tokenSupply  func() (*rpc.GetTokenSupplyResult, error)
	accountInfo  func() (*rpc.GetAccountInfoResult, error)
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.blockhash != nil {
		return f.blockhash()
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{1}},
	}, nil
}

func (f *fakeRPC) SimulateTransactionWithOpts(context.Context, *solana.Transaction, *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	if f.simulate != nil {
		return f.simulate()
	}
	return &rpc.SimulateTransactionResponse{Value: &rpc.SimulateTransactionResult{}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(context.Context, *solana.Transaction, rpc.TransactionOpts) (solana.Signature, error) {
	if f.send != nil {
		return f.send()
	}
	return solana.Signature{9}, nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if f.statuses != nil {
		return f.statuses()
	}
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{
			Slot:               42,
			ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		}},
	}, nil
}

func (f *fakeRPC) GetTransaction(context.Context, solana.Signature, *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if f.getTx != nil {
		return f.getTx()
	}
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) GetBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.balance != nil {
		return f.balance()
	}
	return &rpc.GetBalanceResult{Value: 10 * domain.LamportsPerSol}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.tokenBalance != nil {
		return f.tokenBalance()
	}
	return nil, rpc.ErrNotFound
}

func (f *fakeRPC) GetTokenSupply(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error) {
	if f.tokenSupply != nil {
		return f.tokenSupply()
	}
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if f.accountInfo != nil {
		return f.accountInfo()
	}
	return nil, rpc.ErrNotFound
}

func testSendConfig() SendConfig {
	return SendConfig{
		MaxRetries:         3,
		RetryDelay:         time.Millisecond,
		Commitment:         rpc.CommitmentConfirmed,
		SimulateBeforeSend: true,
		ConfirmTimeout:     50 * time.Millisecond,
		PollInterval:       time.Millisecond,
	}
}

func buildTestTx(t *testing.T) *solana.Transaction {
	t.Helper()
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, from, to).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	if err != nil {
		t.Fatalf("NewTransaction() error = %v", err)
	}
	return tx
}

func noopSigner(*solana.Transaction) error { return nil }

func TestSendAndConfirmHappyPath(t *testing.T) {
	client := &fakeRPC{}
	tx := buildTestTx(t)

	res, err := SendAndConfirm(context.Background(), tx, noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxConfirmed {
		t.Errorf("Status = %v, want confirmed", res.Status)
	}
	if res.Slot != 42 {
		t.Errorf("Slot = %d, want 42", res.Slot)
	}
	if res.Signature == "" {
		t.Error("Signature should be set")
	}
}

func TestSendAndConfirmSimulationRejects(t *testing.T) {
	sent := false
	client := &fakeRPC{
		simulate: func() (*rpc.SimulateTransactionResponse, error) {
			return &rpc.SimulateTransactionResponse{
				Value: &rpc.SimulateTransactionResult{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
			}, nil
		},
		send: func() (solana.Signature, error) {
			sent = true
			return solana.Signature{}, nil
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxSimulated {
		t.Errorf("Status = %v, want simulated", res.Status)
	}
	if sent {
		t.Error("transaction must not be sent after simulation rejects")
	}
}

func TestSendAndConfirmSignerFailureIsNotRetried(t *testing.T) {
	calls := 0
	signer := func(*solana.Transaction) error {
		calls++
		return errors.New("hsm offline")
	}

	_, err := SendAndConfirm(context.Background(), buildTestTx(t), signer, &fakeRPC{}, testSendConfig(), logging.NewNop())
	if domain.ErrorCode(err) != domain.CodeSigningFailed {
		t.Fatalf("error code = %v, want %v", domain.ErrorCode(err), domain.CodeSigningFailed)
	}
	if calls != 1 {
		t.Errorf("signer calls = %d, want 1 (no retry)", calls)
	}
}

func TestSendAndConfirmBlockhashExpiredRetries(t *testing.T) {
	attempts := 0
	client := &fakeRPC{
		send: func() (solana.Signature, error) {
			attempts++
			if attempts == 1 {
				return solana.Signature{}, errors.New("rpc: BlockhashNotFound")
			}
			return solana.Signature{9}, nil
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxConfirmed {
		t.Errorf("Status = %v, want confirmed after retry", res.Status)
	}
	if attempts != 2 {
		t.Errorf("send attempts = %d, want 2", attempts)
	}
}

func TestSendAndConfirmTerminalSendError(t *testing.T) {
	attempts := 0
	client := &fakeRPC{
		send: func() (solana.Signature, error) {
			attempts++
			return solana.Signature{}, errors.New("Transaction results in an account (0) with insufficient funds for rent")
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
	if attempts != 1 {
		t.Errorf("send attempts = %d, want 1 (terminal, no retry)", attempts)
	}
}

func TestSendAndConfirmOnChainError(t *testing.T) {
	client := &fakeRPC{
		statuses: func() (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{{
					Slot: 7,
					Err:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
				}},
			}, nil
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
}

func TestSendAndConfirmPollingTimeout(t *testing.T) {
	client := &fakeRPC{
		statuses: func() (*rpc.GetSignatureStatusesResult, error) {
			return &rpc.GetSignatureStatusesResult{
				Value: []*rpc.SignatureStatusesResult{nil},
			}, nil
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxTimeout {
		t.Errorf("Status = %v, want timeout", res.Status)
	}
	if res.Signature == "" {
		t.Error("timeout result must carry the signature: the tx may still land")
	}
}

func TestSendAndConfirmExhaustedRetries(t *testing.T) {
	client := &fakeRPC{
		blockhash: func() (*rpc.GetLatestBlockhashResult, error) {
			return nil, errors.New("connection refused")
		},
	}

	res, err := SendAndConfirm(context.Background(), buildTestTx(t), noopSigner, client, testSendConfig(), logging.NewNop())
	if err != nil {
		t.Fatalf("SendAndConfirm() error = %v", err)
	}
	if res.Status != domain.TxTimeout {
		t.Errorf("Status = %v, want timeout", res.Status)
	}
	if !strings.Contains(res.Error, "Exhausted 3 attempts") {
		t.Errorf("Error = %q, want exhausted-attempts message", res.Error)
	}
}
