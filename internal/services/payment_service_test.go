package services

import (
	"testing"

	"neurolov_billing/internal/apperrors"
	"neurolov_billing/internal/models"
)

func TestValidateIntentAmount(t *testing.T) {
	plan := &models.Plan{Code: "pro", PriceUSD: 49, PriceSOL: 0.35}

	tests := []struct {
		name    string
		params  CreateIntentParams
		wantErr bool
	}{
		{
			name:   "exact catalog price",
			params: CreateIntentParams{Amount: 0.35, CryptoType: models.CryptoTypeSOL},
		},
		{
			name:   "within tolerance of catalog price",
			params: CreateIntentParams{Amount: 0.345, CryptoType: models.CryptoTypeSOL},
		},
		{
			name:    "near-zero amount for a priced plan",
			params:  CreateIntentParams{Amount: 0.001, CryptoType: models.CryptoTypeSOL},
			wantErr: true,
		},
		{
			name:    "overpriced beyond tolerance",
			params:  CreateIntentParams{Amount: 0.5, CryptoType: models.CryptoTypeSOL},
			wantErr: true,
		},
		{
			name:    "no catalog price in the settlement currency",
			params:  CreateIntentParams{Amount: 49, CryptoType: models.CryptoTypeETH},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIntentAmount(plan, tt.params)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("validateIntentAmount(%+v) succeeded, want error", tt.params)
				}
				if got := apperrors.CodeOf(err); got != apperrors.CodeValidation {
					t.Errorf("validateIntentAmount() error code = %s; want %s", got, apperrors.CodeValidation)
				}
				return
			}
			if err != nil {
				t.Fatalf("validateIntentAmount(%+v) unexpected error: %v", tt.params, err)
			}
		})
	}
}
