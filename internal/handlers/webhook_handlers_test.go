package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"neurolov_billing/internal/models"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyChainSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"blockchain":"solana","signature":"abc","amount":1.5,"destination":"wallet","referenceId":"pi_1"}`)

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"valid signature", secret, signBody(secret, body), true},
		{"valid signature uppercase hex", secret, "" /* filled below */, true},
		{"wrong signature", secret, signBody("other-secret", body), false},
		{"empty signature", secret, "", false},
		{"no secret configured", "", signBody(secret, body), false},
		{"garbage signature", secret, "not-hex-at-all", false},
	}
	// Hex case must not matter; upstreams disagree on it.
	upper := ""
	for _, ch := range signBody(secret, body) {
		if ch >= 'a' && ch <= 'f' {
			ch = ch - 'a' + 'A'
		}
		upper += string(ch)
	}
	tests[1].signature = upper

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyChainSignature(tt.secret, body, tt.signature); got != tt.want {
				t.Errorf("VerifyChainSignature() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyChainSignatureBodySensitive(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"amount":1.5}`)
	tampered := []byte(`{"amount":9.5}`)

	sig := signBody(secret, body)
	if VerifyChainSignature(secret, tampered, sig) {
		t.Error("signature for a different body must not verify")
	}
}

func TestChainToCryptoType(t *testing.T) {
	tests := []struct {
		input string
		want  models.CryptoType
		ok    bool
	}{
		{"solana", models.CryptoTypeSOL, true},
		{"sol", models.CryptoTypeSOL, true},
		{"SOLANA", models.CryptoTypeSOL, true},
		{"ethereum", models.CryptoTypeETH, true},
		{"btc", models.CryptoTypeBTC, true},
		{"dogecoin", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := chainToCryptoType(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("chainToCryptoType(%q) = (%q, %v); want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseFiatOrderID(t *testing.T) {
	tests := []struct {
		name     string
		orderID  string
		wantPlan uint
		wantUser uint
		wantErr  bool
	}{
		{"valid", "sub-3-42-1735689600", 3, 42, false},
		{"wrong prefix", "pay-3-42-1735689600", 0, 0, true},
		{"missing segment", "sub-3-42", 0, 0, true},
		{"non-numeric plan", "sub-x-42-1735689600", 0, 0, true},
		{"non-numeric user", "sub-3-x-1735689600", 0, 0, true},
		{"empty", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planID, userID, err := parseFiatOrderID(tt.orderID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseFiatOrderID(%q) succeeded, want error", tt.orderID)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFiatOrderID(%q) unexpected error: %v", tt.orderID, err)
			}
			if planID != tt.wantPlan || userID != tt.wantUser {
				t.Errorf("parseFiatOrderID(%q) = (%d, %d); want (%d, %d)", tt.orderID, planID, userID, tt.wantPlan, tt.wantUser)
			}
		})
	}
}
