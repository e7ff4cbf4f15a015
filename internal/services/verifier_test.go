package services

import (
	"testing"
	"time"

	"neurolov_billing/internal/apperrors"
)

const lamportsPerSOL = 1_000_000_000

func makeTx(recipient string, preLamports, postLamports uint64, blockTime time.Time) *ChainTransaction {
	return &ChainTransaction{
		Signature:    "sig",
		AccountKeys:  []string{"SenderWallet111", recipient, "SystemProgram111"},
		PreBalances:  []uint64{5 * lamportsPerSOL, preLamports, 1},
		PostBalances: []uint64{4 * lamportsPerSOL, postLamports, 1},
		BlockTime:    blockTime,
	}
}

func TestVerify(t *testing.T) {
	wallet := "MerchantWallet111"
	now := time.Now()

	tests := []struct {
		name     string
		tx       *ChainTransaction
		expected ExpectedPayment
		wantCode apperrors.Code // empty means success
		wantAmt  float64
	}{
		{
			name:     "exact amount",
			tx:       makeTx(wallet, 0, 1*lamportsPerSOL, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  1.0,
		},
		{
			name:     "slightly under but within tolerance",
			tx:       makeTx(wallet, 0, 995_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  0.995,
		},
		{
			name:     "slightly over but within tolerance",
			tx:       makeTx(wallet, 0, 1_015_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  1.015,
		},
		{
			name:     "exactly two percent under",
			tx:       makeTx(wallet, 0, 980_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  0.98,
		},
		{
			name:     "exactly two percent over",
			tx:       makeTx(wallet, 0, 1_020_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  1.02,
		},
		{
			name:     "underpaid beyond tolerance",
			tx:       makeTx(wallet, 0, 900_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeAmountMismatch,
		},
		{
			name:     "overpaid beyond tolerance",
			tx:       makeTx(wallet, 0, 1_100_000_000, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeAmountMismatch,
		},
		{
			name:     "recipient not in transaction",
			tx:       makeTx("SomeOtherWallet111", 0, 1*lamportsPerSOL, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeRecipientNotFound,
		},
		{
			name:     "no balance increase on recipient",
			tx:       makeTx(wallet, 2*lamportsPerSOL, 2*lamportsPerSOL, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeNoTransferDetected,
		},
		{
			name:     "balance decreased on recipient",
			tx:       makeTx(wallet, 2*lamportsPerSOL, 1*lamportsPerSOL, now),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeNoTransferDetected,
		},
		{
			name:     "transaction older than max age",
			tx:       makeTx(wallet, 0, 1*lamportsPerSOL, now.Add(-25*time.Hour)),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantCode: apperrors.CodeTransactionTooOld,
		},
		{
			name:     "custom max age",
			tx:       makeTx(wallet, 0, 1*lamportsPerSOL, now.Add(-2*time.Hour)),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet, MaxAge: time.Hour},
			wantCode: apperrors.CodeTransactionTooOld,
		},
		{
			name:     "missing block time skips age check",
			tx:       makeTx(wallet, 0, 1*lamportsPerSOL, time.Time{}),
			expected: ExpectedPayment{Amount: 1.0, Recipient: wallet},
			wantAmt:  1.0,
		},
	}

	v := NewVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := v.Verify(tt.tx, tt.expected)
			if tt.wantCode != "" {
				if err == nil {
					t.Fatalf("Verify() succeeded, want error code %s", tt.wantCode)
				}
				if got := apperrors.CodeOf(err); got != tt.wantCode {
					t.Errorf("Verify() error code = %s; want %s", got, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() unexpected error: %v", err)
			}
			if result.TransferAmount != tt.wantAmt {
				t.Errorf("Verify() amount = %v; want %v", result.TransferAmount, tt.wantAmt)
			}
		})
	}
}

func TestVerifyNilTransaction(t *testing.T) {
	_, err := NewVerifier().Verify(nil, ExpectedPayment{Amount: 1, Recipient: "x"})
	if err == nil {
		t.Fatal("Verify(nil) succeeded, want error")
	}
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name      string
		expected  float64
		actual    float64
		tolerance float64
		want      bool
	}{
		{"exact match", 1.0, 1.0, 0.02, true},
		{"at lower bound", 1.0, 0.98, 0.02, true},
		{"at upper bound", 1.0, 1.02, 0.02, true},
		{"just below lower bound", 1.0, 0.9799, 0.02, false},
		{"just above upper bound", 1.0, 1.0201, 0.02, false},
		{"small amounts", 0.05, 0.0499, 0.02, true},
		{"zero tolerance requires exact", 1.0, 1.0001, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinTolerance(tt.expected, tt.actual, tt.tolerance); got != tt.want {
				t.Errorf("WithinTolerance(%v, %v, %v) = %v; want %v",
					tt.expected, tt.actual, tt.tolerance, got, tt.want)
			}
		})
	}
}
