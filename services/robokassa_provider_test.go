package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRobokassa() *RobokassaProvider {
	return NewRobokassaProvider(RobokassaConfig{
		MerchantLogin: "aquadoks",
		Password1:     "pass1",
		Password2:     "pass2",
		TestMode:      true,
	})
}

func TestRobokassa_ValidateConfig(t *testing.T) {
	assert.NoError(t, testRobokassa().ValidateConfig())
	assert.Error(t, NewRobokassaProvider(RobokassaConfig{Password1: "a", Password2: "b"}).ValidateConfig())
	assert.Error(t, NewRobokassaProvider(RobokassaConfig{MerchantLogin: "m", Password1: "a"}).ValidateConfig())
}

func TestRobokassa_CreateLink(t *testing.T) {
	p := testRobokassa()
	email := "anna@example.com"
	order := &models.Order{ID: 42, Reference: "ref", FinalAmount: 5625}

	link, err := p.CreateLink(context.Background(), LinkRequest{
		Order:    order,
		Customer: &models.Customer{Email: &email},
		Attempt:  2,
		TTL:      30 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "4202", link.ExternalRef)

	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "aquadoks", q.Get("MerchantLogin"))
	assert.Equal(t, "5625", q.Get("OutSum"))
	assert.Equal(t, "4202", q.Get("InvId"))
	assert.Equal(t, md5Hex("aquadoks", "5625", "4202", "pass1"), q.Get("SignatureValue"))
	assert.Equal(t, email, q.Get("Email"))
	assert.Equal(t, "1", q.Get("IsTest"))
	assert.NotEmpty(t, q.Get("ExpirationDate"))

	_, err = p.CreateLink(context.Background(), LinkRequest{Order: order, Attempt: 100})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRobokassa_ParseCallback(t *testing.T) {
	p := testRobokassa()
	fields := map[string]string{
		"OutSum":         "5625.000000",
		"InvId":          "4202",
		"SignatureValue": md5Hex("5625.000000", "4202", "pass2"),
	}

	result, err := p.ParseCallback(fields)
	require.NoError(t, err)
	assert.Equal(t, "4202", result.ExternalRef)
	assert.Equal(t, OutcomePaid, result.Outcome)
	assert.True(t, amountMatches(result.Amount, 5625))

	// signatures arrive upper-cased as well
	fields["SignatureValue"] = "ABCDEF"
	_, err = p.ParseCallback(fields)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseCallback(map[string]string{"InvId": "1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRobokassa_CheckStatus(t *testing.T) {
	stateCode := "100"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4202", r.URL.Query().Get("InvoiceID"))
		assert.Equal(t, md5Hex("aquadoks", "4202", "pass2"), r.URL.Query().Get("Signature"))
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<OperationStateResponse xmlns="http://merchant.roboxchange.com/WebService/">
  <Result><Code>0</Code></Result>
  <State><Code>` + stateCode + `</Code></State>
</OperationStateResponse>`))
	}))
	defer server.Close()

	p := testRobokassa()
	p.stateURL = server.URL

	outcome, err := p.CheckStatus(context.Background(), "4202")
	require.NoError(t, err)
	assert.Equal(t, OutcomePaid, outcome)

	stateCode = "60"
	outcome, err = p.CheckStatus(context.Background(), "4202")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	stateCode = "50"
	outcome, err = p.CheckStatus(context.Background(), "4202")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, outcome)
}

func TestRobokassa_CheckStatusUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := testRobokassa()
	p.stateURL = server.URL
	_, err := p.CheckStatus(context.Background(), "4202")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestAmountMatches(t *testing.T) {
	assert.True(t, amountMatches("1000.000000", 1000))
	assert.True(t, amountMatches(" 1000 ", 1000))
	assert.False(t, amountMatches("1000.50", 1000))
	assert.False(t, amountMatches("abc", 1000))
}
