package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

const (
	// rpcCallTimeout bounds a single RPC attempt; the client default is
	// effectively unbounded, which is not acceptable on a request path.
	rpcCallTimeout = 8 * time.Second
	rpcRetryDelay  = 500 * time.Millisecond
)

// ChainTransaction is the chain-agnostic view of one confirmed transaction:
// the account list with pre/post native balances, indexed identically
// regardless of whether the transaction used the legacy or the versioned
// encoding.
type ChainTransaction struct {
	Signature    string
	Slot         uint64
	BlockTime    time.Time
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
}

// ChainReader fetches a confirmed transaction by hash for one chain.
type ChainReader interface {
	Chain() models.CryptoType
	FetchTransaction(ctx context.Context, signature string) (*ChainTransaction, error)
}

// SolanaService reads confirmed transactions from a Solana RPC endpoint.
type SolanaService struct {
	client *rpc.Client
}

func NewSolanaService(rpcURL string) *SolanaService {
	return &SolanaService{client: rpc.New(rpcURL)}
}

func (s *SolanaService) Chain() models.CryptoType {
	return models.CryptoTypeSOL
}

// FetchTransaction fetches the transaction and normalizes it into a
// ChainTransaction. Fails with NOT_FOUND when the signature is unknown or
// not yet confirmed, EXECUTION_FAILED when the on-chain execution errored,
// CHAIN_ERROR for RPC faults (retryable by the caller).
func (s *SolanaService) FetchTransaction(ctx context.Context, signature string) (*ChainTransaction, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, "invalid transaction signature", err)
	}

	maxTxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		// base64 decodes uniformly for legacy and v0 transactions
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTxVersion,
	}

	out, err := s.getTransactionWithRetry(ctx, sig, opts)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found or not yet confirmed")
		}
		return nil, apperrors.Wrap(apperrors.CodeChainError, "rpc request failed", err)
	}
	if out == nil || out.Meta == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "transaction not found or not yet confirmed")
	}
	if out.Meta.Err != nil {
		return nil, apperrors.Newf(apperrors.CodeExecutionFailed, "transaction failed on chain: %v", out.Meta.Err)
	}

	parsed, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChainError, "failed to decode transaction", err)
	}

	// Balance arrays are indexed over the static keys followed by the
	// addresses loaded from lookup tables, writable before readonly.
	keys := make([]string, 0, len(parsed.Message.AccountKeys))
	for _, k := range parsed.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	for _, k := range out.Meta.LoadedAddresses.Writable {
		keys = append(keys, k.String())
	}
	for _, k := range out.Meta.LoadedAddresses.ReadOnly {
		keys = append(keys, k.String())
	}

	var blockTime time.Time
	if out.BlockTime != nil {
		blockTime = out.BlockTime.Time()
	}

	return &ChainTransaction{
		Signature:    signature,
		Slot:         out.Slot,
		BlockTime:    blockTime,
		AccountKeys:  keys,
		PreBalances:  out.Meta.PreBalances,
		PostBalances: out.Meta.PostBalances,
	}, nil
}

// getTransactionWithRetry performs the RPC call with a bounded timeout and
// a single retry on transient failure. Not-found is returned immediately:
// retrying cannot make an unknown signature appear.
func (s *SolanaService) getTransactionWithRetry(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	attempt := func() (*rpc.GetTransactionResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
		defer cancel()
		return s.client.GetTransaction(callCtx, sig, opts)
	}

	out, err := attempt()
	if err == nil || errors.Is(err, rpc.ErrNotFound) || ctx.Err() != nil {
		return out, err
	}

	log.Printf("solana rpc GetTransaction failed, retrying once: %v", err)
	time.Sleep(rpcRetryDelay)
	return attempt()
}
