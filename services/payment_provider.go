package services

import (
	"context"
	"time"

	"github.com/aquadoks/sales-backend/models"
)

type PaymentOutcome string

const (
	OutcomePending PaymentOutcome = "pending"
	OutcomePaid    PaymentOutcome = "paid"
	OutcomeFailed  PaymentOutcome = "failed"
)

// LinkRequest carries what a provider needs to open a checkout.
type LinkRequest struct {
	Order    *models.Order
	Customer *models.Customer
	Attempt  int
	TTL      time.Duration
}

type IssuedLink struct {
	URL         string
	ExternalRef string
}

// CallbackResult is a verified provider notification.
type CallbackResult struct {
	ExternalRef string
	Amount      string
	Outcome     PaymentOutcome
}

// PaymentProvider is the link-issuing and status side of a payment gateway.
// Settlement itself happens at the provider.
type PaymentProvider interface {
	Name() string
	CreateLink(ctx context.Context, req LinkRequest) (*IssuedLink, error)
	// ParseCallback verifies the signature of a notification and maps its status.
	ParseCallback(fields map[string]string) (*CallbackResult, error)
	CheckStatus(ctx context.Context, externalRef string) (PaymentOutcome, error)
}
