package models

import (
	"testing"
	"time"
)

func TestIntentIsTerminal(t *testing.T) {
	tests := []struct {
		status IntentStatus
		want   bool
	}{
		{IntentStatusPending, false},
		{IntentStatusConfirmed, true},
		{IntentStatusFailed, true},
		{IntentStatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			intent := PaymentIntent{Status: tt.status}
			if got := intent.IsTerminal(); got != tt.want {
				t.Errorf("IsTerminal() with status %s = %v; want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestIntentIsExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"well before expiry", now.Add(30 * time.Minute), false},
		{"exactly at expiry", now, true},
		{"past expiry", now.Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := PaymentIntent{ExpiresAt: tt.expiresAt}
			if got := intent.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestPlanPriceFor(t *testing.T) {
	plan := Plan{PriceUSD: 49, PriceSOL: 0.35}

	if got := plan.PriceFor(CryptoTypeSOL); got != 0.35 {
		t.Errorf("PriceFor(sol) = %v; want 0.35", got)
	}
	if got := plan.PriceFor(CryptoTypeETH); got != 0 {
		t.Errorf("PriceFor(eth) = %v; want 0 for an unpriced currency", got)
	}
}
