package services

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/sirupsen/logrus"
)

// MidtransConfig holds Midtrans configuration
type MidtransConfig struct {
	ServerKey    string
	IsProduction bool
}

// MidtransService issues Snap checkout links and reads transaction status
// through the Core API.
type MidtransService struct {
	config *MidtransConfig
	snap   snap.Client
	core   coreapi.Client
}

func NewMidtransService(config *MidtransConfig) *MidtransService {
	env := midtrans.Sandbox
	if config.IsProduction {
		env = midtrans.Production
	}
	ms := &MidtransService{config: config}
	ms.snap.New(config.ServerKey, env)
	ms.core.New(config.ServerKey, env)
	return ms
}

func (ms *MidtransService) Name() string { return "midtrans" }

// ValidateConfig validates Midtrans configuration
func (ms *MidtransService) ValidateConfig() error {
	if ms.config.ServerKey == "" {
		return fmt.Errorf("MIDTRANS_SERVER_KEY is not set")
	}
	return nil
}

// midtransOrderID keeps the first attempt on the plain order reference.
func midtransOrderID(reference string, attempt int) string {
	if attempt <= 1 {
		return reference
	}
	return fmt.Sprintf("%s-%d", reference, attempt)
}

func (ms *MidtransService) CreateLink(_ context.Context, req LinkRequest) (*IssuedLink, error) {
	orderID := midtransOrderID(req.Order.Reference, req.Attempt)

	items := make([]midtrans.ItemDetails, 0, len(req.Order.OrderItems)+1)
	for _, item := range req.Order.OrderItems {
		items = append(items, midtrans.ItemDetails{
			ID:    item.SKU,
			Name:  item.SKU,
			Price: item.PricePerPack,
			Qty:   int32(item.QtyPacks),
		})
	}
	if req.Order.DiscountAmount > 0 {
		items = append(items, midtrans.ItemDetails{
			ID:    "discount",
			Name:  "Discount",
			Price: -req.Order.DiscountAmount,
			Qty:   1,
		})
	}

	snapReq := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: req.Order.FinalAmount,
		},
	}
	if len(items) > 0 {
		snapReq.Items = &items
	}
	if req.Customer != nil {
		cd := &midtrans.CustomerDetails{FName: req.Customer.Name, Phone: req.Customer.Phone}
		if req.Customer.Email != nil {
			cd.Email = *req.Customer.Email
		}
		snapReq.CustomerDetail = cd
	}
	if req.TTL > 0 {
		snapReq.Expiry = &snap.ExpiryDetails{Unit: "minute", Duration: int64(req.TTL.Minutes())}
	}

	resp, mErr := ms.snap.CreateTransaction(snapReq)
	if mErr != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"order_id": orderID}).
			Errorf("midtrans snap error: %s", mErr.Message)
		return nil, upstreamUnavailable("midtrans", mErr)
	}
	if resp == nil || resp.RedirectURL == "" {
		return nil, upstreamUnavailable("midtrans", fmt.Errorf("snap returned no redirect url"))
	}
	return &IssuedLink{URL: resp.RedirectURL, ExternalRef: orderID}, nil
}

// ParseCallback validates an HTTP notification. signature_key is
// sha512(order_id + status_code + gross_amount + server_key).
func (ms *MidtransService) ParseCallback(fields map[string]string) (*CallbackResult, error) {
	orderID := fields["order_id"]
	statusCode := fields["status_code"]
	grossAmount := fields["gross_amount"]
	if orderID == "" || statusCode == "" || grossAmount == "" {
		return nil, invalidInput("midtrans notification requires order_id, status_code and gross_amount")
	}
	if !ms.ValidateSignature(orderID, statusCode, grossAmount, fields["signature_key"]) {
		return nil, invalidSignature(ms.Name())
	}
	return &CallbackResult{
		ExternalRef: orderID,
		Amount:      grossAmount,
		Outcome:     mapTransactionStatus(fields["transaction_status"], fields["fraud_status"]),
	}, nil
}

// CheckStatus checks transaction status from Midtrans
func (ms *MidtransService) CheckStatus(_ context.Context, externalRef string) (PaymentOutcome, error) {
	resp, mErr := ms.core.CheckTransaction(externalRef)
	if mErr != nil {
		if mErr.StatusCode == 404 {
			return OutcomePending, nil
		}
		return "", upstreamUnavailable("midtrans", mErr)
	}
	return mapTransactionStatus(resp.TransactionStatus, resp.FraudStatus), nil
}

// ValidateSignature validates Midtrans signature
func (ms *MidtransService) ValidateSignature(orderID, statusCode, grossAmount, signature string) bool {
	hash := sha512.Sum512([]byte(orderID + statusCode + grossAmount + ms.config.ServerKey))
	return hex.EncodeToString(hash[:]) == signature
}

// mapTransactionStatus maps Midtrans transaction status to a payment outcome
func mapTransactionStatus(status, fraudStatus string) PaymentOutcome {
	switch status {
	case "settlement":
		return OutcomePaid
	case "capture":
		if fraudStatus == "challenge" {
			return OutcomePending
		}
		return OutcomePaid
	case "deny", "cancel", "expire", "failure":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// grossAmountString renders rubles the way notifications carry gross_amount.
func grossAmountString(rubles int64) string {
	return strconv.FormatInt(rubles, 10) + ".00"
}
