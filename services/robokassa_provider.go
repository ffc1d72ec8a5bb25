package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	robokassaCheckoutURL = "https://auth.robokassa.ru/Merchant/Index.aspx"
	robokassaStateURL    = "https://auth.robokassa.ru/Merchant/WebService/Service.asmx/OpStateExt"
	maxPaymentAttempts   = 99
)

type RobokassaConfig struct {
	MerchantLogin string
	Password1     string
	Password2     string
	TestMode      bool
}

// RobokassaProvider issues signed checkout URLs. The invoice id is
// orderID*100 + attempt, so every re-issue gets a fresh numeric InvId.
type RobokassaProvider struct {
	config     RobokassaConfig
	stateURL   string
	httpClient *http.Client
}

func NewRobokassaProvider(config RobokassaConfig) *RobokassaProvider {
	return &RobokassaProvider{
		config:   config,
		stateURL: robokassaStateURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (p *RobokassaProvider) Name() string { return "robokassa" }

func (p *RobokassaProvider) ValidateConfig() error {
	if p.config.MerchantLogin == "" {
		return fmt.Errorf("ROBOKASSA_MERCHANT_LOGIN is not set")
	}
	if p.config.Password1 == "" || p.config.Password2 == "" {
		return fmt.Errorf("ROBOKASSA_PASSWORD_1 and ROBOKASSA_PASSWORD_2 must be set")
	}
	return nil
}

func md5Hex(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func (p *RobokassaProvider) CreateLink(_ context.Context, req LinkRequest) (*IssuedLink, error) {
	if req.Attempt < 1 || req.Attempt > maxPaymentAttempts {
		return nil, invalidTransition("order %d has too many payment attempts", req.Order.ID)
	}
	invID := strconv.FormatUint(uint64(req.Order.ID)*100+uint64(req.Attempt), 10)
	outSum := strconv.FormatInt(req.Order.FinalAmount, 10)

	q := url.Values{}
	q.Set("MerchantLogin", p.config.MerchantLogin)
	q.Set("OutSum", outSum)
	q.Set("InvId", invID)
	q.Set("Description", req.Order.PaymentDescription())
	q.Set("SignatureValue", md5Hex(p.config.MerchantLogin, outSum, invID, p.config.Password1))
	q.Set("Culture", "ru")
	if req.Customer != nil && req.Customer.Email != nil {
		q.Set("Email", *req.Customer.Email)
	}
	if req.TTL > 0 {
		q.Set("ExpirationDate", time.Now().Add(req.TTL).UTC().Format("2006-01-02T15:04:05.0000000-07:00"))
	}
	if p.config.TestMode {
		q.Set("IsTest", "1")
	}

	return &IssuedLink{URL: robokassaCheckoutURL + "?" + q.Encode(), ExternalRef: invID}, nil
}

// ParseCallback verifies a ResultURL notification: SignatureValue is
// md5(OutSum:InvId:Password2), compared case-insensitively.
func (p *RobokassaProvider) ParseCallback(fields map[string]string) (*CallbackResult, error) {
	outSum := fields["OutSum"]
	invID := fields["InvId"]
	signature := fields["SignatureValue"]
	if outSum == "" || invID == "" || signature == "" {
		return nil, invalidInput("robokassa callback requires OutSum, InvId and SignatureValue")
	}
	if !strings.EqualFold(md5Hex(outSum, invID, p.config.Password2), signature) {
		return nil, invalidSignature(p.Name())
	}
	// ResultURL is only called for successful payments.
	return &CallbackResult{ExternalRef: invID, Amount: outSum, Outcome: OutcomePaid}, nil
}

type opStateResponse struct {
	XMLName xml.Name `xml:"OperationStateResponse"`
	Result  struct {
		Code        int    `xml:"Code"`
		Description string `xml:"Description"`
	} `xml:"Result"`
	State struct {
		Code int `xml:"Code"`
	} `xml:"State"`
}

// CheckStatus queries OpStateExt for the invoice.
func (p *RobokassaProvider) CheckStatus(ctx context.Context, externalRef string) (PaymentOutcome, error) {
	q := url.Values{}
	q.Set("MerchantLogin", p.config.MerchantLogin)
	q.Set("InvoiceID", externalRef)
	q.Set("Signature", md5Hex(p.config.MerchantLogin, externalRef, p.config.Password2))
	if p.config.TestMode {
		q.Set("IsTest", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.stateURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", upstreamUnavailable("robokassa", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", upstreamUnavailable("robokassa", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", upstreamUnavailable("robokassa", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var state opStateResponse
	if err := xml.Unmarshal(body, &state); err != nil {
		return "", upstreamUnavailable("robokassa", fmt.Errorf("error unmarshaling response: %w", err))
	}
	if state.Result.Code != 0 {
		return "", upstreamUnavailable("robokassa", fmt.Errorf("op state error %d: %s", state.Result.Code, state.Result.Description))
	}
	return mapRobokassaState(state.State.Code), nil
}

func mapRobokassaState(code int) PaymentOutcome {
	switch code {
	case 100:
		return OutcomePaid
	case 10, 60:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// amountMatches compares a provider amount string ("1000.000000") with rubles.
func amountMatches(raw string, rubles int64) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return d.Equal(decimal.NewFromInt(rubles))
}
