package services

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMidtransService_ValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *MidtransConfig
		wantErr bool
	}{
		{
			name:    "valid config",
			config:  &MidtransConfig{ServerKey: "test-server-key"},
			wantErr: false,
		},
		{
			name:    "missing server key",
			config:  &MidtransConfig{IsProduction: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &MidtransService{config: tt.config}
			err := ms.ValidateConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func midtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	hash := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(hash[:])
}

func TestMidtransService_ValidateSignature(t *testing.T) {
	ms := NewMidtransService(&MidtransConfig{ServerKey: "test-server-key"})
	gross := grossAmountString(5625)
	assert.Equal(t, "5625.00", gross)

	valid := midtransSignature("ord-1", "200", gross, "test-server-key")
	assert.True(t, ms.ValidateSignature("ord-1", "200", gross, valid))
	assert.False(t, ms.ValidateSignature("ord-1", "200", "5626.00", valid))
	assert.False(t, ms.ValidateSignature("ord-1", "200", gross, midtransSignature("ord-1", "200", gross, "other-key")))
}

func TestMapTransactionStatus(t *testing.T) {
	tests := []struct {
		status string
		fraud  string
		want   PaymentOutcome
	}{
		{"settlement", "", OutcomePaid},
		{"capture", "accept", OutcomePaid},
		{"capture", "challenge", OutcomePending},
		{"pending", "", OutcomePending},
		{"deny", "", OutcomeFailed},
		{"cancel", "", OutcomeFailed},
		{"expire", "", OutcomeFailed},
		{"failure", "", OutcomeFailed},
		{"refund", "", OutcomePending},
	}
	for _, tt := range tests {
		t.Run(tt.status+"/"+tt.fraud, func(t *testing.T) {
			assert.Equal(t, tt.want, mapTransactionStatus(tt.status, tt.fraud))
		})
	}
}

func TestMidtransService_ParseCallback(t *testing.T) {
	ms := NewMidtransService(&MidtransConfig{ServerKey: "test-server-key"})
	fields := map[string]string{
		"order_id":           "ord-1-2",
		"status_code":        "200",
		"gross_amount":       "3000.00",
		"transaction_status": "settlement",
		"signature_key":      midtransSignature("ord-1-2", "200", "3000.00", "test-server-key"),
	}

	result, err := ms.ParseCallback(fields)
	require.NoError(t, err)
	assert.Equal(t, "ord-1-2", result.ExternalRef)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.True(t, amountMatches(result.Amount, 3000))

	fields["gross_amount"] = "1.00"
	_, err = ms.ParseCallback(fields)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = ms.ParseCallback(map[string]string{"order_id": "ord-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMidtransOrderID(t *testing.T) {
	assert.Equal(t, "ref", midtransOrderID("ref", 1))
	assert.Equal(t, "ref", midtransOrderID("ref", 0))
	assert.Equal(t, "ref-3", midtransOrderID("ref", 3))
}
