package services

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	t.Setenv("MIDTRANS_SERVER_KEY", "SB-Mid-server-test")
	svc := NewMidtransService()

	orderID := "sub-3-42-1735689600"
	statusCode := "200"
	grossAmount := "49.00"

	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + "SB-Mid-server-test"))
	valid := hex.EncodeToString(sum[:])

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{"valid signature", valid, true},
		{"empty signature", "", false},
		{"tampered signature", valid[:len(valid)-1] + "0", false},
		{"signature for another order", func() string {
			s := sha512.Sum512([]byte("sub-3-43-1735689600" + statusCode + grossAmount + "SB-Mid-server-test"))
			return hex.EncodeToString(s[:])
		}(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := svc.VerifySignature(orderID, statusCode, grossAmount, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v; want %v", got, tt.want)
			}
		})
	}
}
