package services

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"neurolov_billing/internal/apperrors"
)

const (
	// DefaultAmountTolerance absorbs fee and rounding noise between the
	// quoted amount and the observed transfer.
	DefaultAmountTolerance = 0.02
	// DefaultMaxTxAge rejects stale transactions presented long after they
	// settled.
	DefaultMaxTxAge = 24 * time.Hour
)

// ExpectedPayment is what a transaction must satisfy to settle an intent.
type ExpectedPayment struct {
	Amount    float64
	Recipient string
	MaxAge    time.Duration // zero means DefaultMaxTxAge
}

// VerificationResult reports the observed transfer on success.
type VerificationResult struct {
	TransferAmount float64
	BlockTime      time.Time
}

// Verifier validates a fetched transaction against an expected payment
// using balance deltas. Deltas are robust to how the sending wallet encoded
// the transfer instruction, which varies widely between implementations.
type Verifier struct {
	tolerance float64
	maxAge    time.Duration
}

func NewVerifier() *Verifier {
	return &Verifier{tolerance: DefaultAmountTolerance, maxAge: DefaultMaxTxAge}
}

// NewVerifierWithTolerance overrides the relative tolerance band.
func NewVerifierWithTolerance(tolerance float64) *Verifier {
	v := NewVerifier()
	if tolerance > 0 {
		v.tolerance = tolerance
	}
	return v
}

// Tolerance returns the verifier's relative tolerance band.
func (v *Verifier) Tolerance() float64 {
	return v.tolerance
}

// WithinTolerance reports whether actual is within the relative tolerance
// band around expected, boundary inclusive. Shared by the on-chain verifier
// and the webhook amount check.
func WithinTolerance(expected, actual, tolerance float64) bool {
	diff := actual - expected
	if diff < 0 {
		diff = -diff
	}
	// Widen the band by a relative epsilon so a payment exactly at the
	// boundary is accepted: in float64, 1.0-0.98 comes out a hair above
	// 0.02 and a plain comparison would reject it.
	return diff <= expected*tolerance*(1+1e-9)
}

// Verify checks recipient presence, transfer delta, tolerance band and
// transaction age, in that order. The first failed check decides the error.
func (v *Verifier) Verify(tx *ChainTransaction, expected ExpectedPayment) (*VerificationResult, error) {
	if tx == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "no transaction to verify")
	}

	recipientIdx := -1
	for i, key := range tx.AccountKeys {
		if key == expected.Recipient {
			recipientIdx = i
			break
		}
	}
	if recipientIdx < 0 {
		return nil, apperrors.New(apperrors.CodeRecipientNotFound, "payment wallet is not part of this transaction")
	}
	if recipientIdx >= len(tx.PreBalances) || recipientIdx >= len(tx.PostBalances) {
		return nil, apperrors.New(apperrors.CodeChainError, "transaction balance data is incomplete")
	}

	pre := tx.PreBalances[recipientIdx]
	post := tx.PostBalances[recipientIdx]
	if post <= pre {
		return nil, apperrors.New(apperrors.CodeNoTransferDetected, "no transfer to the payment wallet detected")
	}
	transferred := float64(post-pre) / float64(solana.LAMPORTS_PER_SOL)

	if !WithinTolerance(expected.Amount, transferred, v.tolerance) {
		return nil, apperrors.New(apperrors.CodeAmountMismatch, "transferred amount does not match the expected amount").
			WithDetails(map[string]interface{}{
				"expected": expected.Amount,
				"actual":   transferred,
			})
	}

	maxAge := expected.MaxAge
	if maxAge <= 0 {
		maxAge = v.maxAge
	}
	if !tx.BlockTime.IsZero() && time.Since(tx.BlockTime) > maxAge {
		return nil, apperrors.New(apperrors.CodeTransactionTooOld, "transaction is too old to settle this payment").
			WithDetails(map[string]interface{}{
				"block_time": tx.BlockTime.UTC(),
				"max_age":    maxAge.String(),
			})
	}

	return &VerificationResult{TransferAmount: transferred, BlockTime: tx.BlockTime}, nil
}
