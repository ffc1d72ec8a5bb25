package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PaymentService issues checkout links and applies provider callbacks to
// orders through the OrderService.
type PaymentService struct {
	db        *gorm.DB
	orders    *OrderService
	providers map[string]PaymentProvider
	primary   string
	linkTTL   time.Duration
}

// NewPaymentService registers providers; the first one issues new links.
func NewPaymentService(db *gorm.DB, orders *OrderService, linkTTL time.Duration, providers ...PaymentProvider) *PaymentService {
	s := &PaymentService{
		db:        db,
		orders:    orders,
		providers: make(map[string]PaymentProvider, len(providers)),
		linkTTL:   linkTTL,
	}
	for _, p := range providers {
		if s.primary == "" {
			s.primary = p.Name()
		}
		s.providers[p.Name()] = p
	}
	return s
}

func (s *PaymentService) Provider(name string) (PaymentProvider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// IdempotencyKey identifies one (order, amount) pair.
func IdempotencyKey(reference string, amount int64) string {
	sum := sha256.Sum256([]byte(reference + ":" + strconv.FormatInt(amount, 10)))
	return hex.EncodeToString(sum[:])
}

// IssuePaymentLink returns the checkout link of a pending DIRECT order.
// A link already issued for the same order and amount is returned as is;
// only a failed link is replaced by a new provider transaction.
func (s *PaymentService) IssuePaymentLink(ctx context.Context, orderID uint) (*models.PaymentLink, bool, error) {
	provider, ok := s.providers[s.primary]
	if !ok {
		return nil, false, upstreamUnavailable("payment provider", errors.New("no payment provider configured"))
	}

	var order models.Order
	if err := s.db.WithContext(ctx).Preload("OrderItems").Preload("Customer").First(&order, orderID).Error; err != nil {
		return nil, false, notFoundOr(err, "order", orderID)
	}
	if order.FulfillmentMode != models.FulfillmentDirect {
		return nil, false, &DomainError{
			Code:    CodeRoutingViolation,
			Message: fmt.Sprintf("order %d is fulfilled through a marketplace", order.ID),
		}
	}
	if order.Status != models.OrderStatusPending {
		return nil, false, invalidTransition("order %d is %s, payment links are issued for pending orders", order.ID, order.Status)
	}

	key := IdempotencyKey(order.Reference, order.FinalAmount)
	var existing models.PaymentLink
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up payment link: %w", err)
	}
	if found && existing.Status != models.LinkStatusFailed {
		return &existing, true, nil
	}

	attempt := 1
	if found {
		attempt = existing.Attempt + 1
	}
	issued, err := provider.CreateLink(ctx, LinkRequest{
		Order:    &order,
		Customer: order.Customer,
		Attempt:  attempt,
		TTL:      s.linkTTL,
	})
	if err != nil {
		if _, ok := AsDomainError(err); ok {
			return nil, false, err
		}
		return nil, false, upstreamUnavailable(provider.Name(), err)
	}

	link := models.PaymentLink{
		OrderID:        order.ID,
		Provider:       provider.Name(),
		Amount:         order.FinalAmount,
		URL:            issued.URL,
		ExternalRef:    issued.ExternalRef,
		IdempotencyKey: key,
		Status:         models.LinkStatusPending,
		Attempt:        attempt,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if found {
			link.ID = existing.ID
			link.CreatedAt = existing.CreatedAt
			res := tx.Model(&models.PaymentLink{}).
				Where("id = ? AND status = ?", existing.ID, models.LinkStatusFailed).
				Updates(map[string]interface{}{
					"url":          link.URL,
					"external_ref": link.ExternalRef,
					"status":       link.Status,
					"attempt":      link.Attempt,
					"updated_at":   time.Now(),
				})
			if res.Error != nil {
				return fmt.Errorf("failed to replace payment link: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errLinkRace
			}
		} else if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("failed to store payment link: %w", err)
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"payment_link":         link.URL,
				"external_payment_ref": link.ExternalRef,
				"payment_status":       models.PaymentStatusPending,
				"updated_at":           time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to attach payment link to order %d: %w", order.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return invalidTransition("order %d left pending while the link was issued", order.ID)
		}
		return nil
	})
	if err != nil {
		// A concurrent caller may have stored its link first; hand that one out.
		var winner models.PaymentLink
		if lookupErr := s.db.WithContext(ctx).Where("idempotency_key = ? AND status <> ?", key, models.LinkStatusFailed).
			First(&winner).Error; lookupErr == nil {
			return &winner, true, nil
		}
		return nil, false, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"provider":     link.Provider,
		"external_ref": link.ExternalRef,
		"attempt":      link.Attempt,
	}).Info("payment link issued")
	return &link, false, nil
}

var errLinkRace = errors.New("payment link stored concurrently")

// HandlePaymentCallback verifies a provider notification and applies it.
func (s *PaymentService) HandlePaymentCallback(ctx context.Context, providerName string, fields map[string]string) (*models.Order, PaymentOutcome, error) {
	provider, ok := s.providers[providerName]
	if !ok {
		return nil, "", notFound("payment provider", providerName)
	}
	result, err := provider.ParseCallback(fields)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"provider": providerName}).
			Errorf("rejected payment callback: %v", err)
		return nil, "", err
	}
	order, err := s.ApplyOutcome(ctx, providerName, result.ExternalRef, result.Amount, result.Outcome)
	return order, result.Outcome, err
}

// ApplyOutcome moves the link and its order according to a verified outcome.
// amount is checked when non-empty.
func (s *PaymentService) ApplyOutcome(ctx context.Context, providerName, externalRef, amount string, outcome PaymentOutcome) (*models.Order, error) {
	var link models.PaymentLink
	err := s.db.WithContext(ctx).
		Where("provider = ? AND external_ref = ?", providerName, externalRef).
		First(&link).Error
	if err != nil {
		return nil, notFoundOr(err, "payment", externalRef)
	}
	if amount != "" && !amountMatches(amount, link.Amount) {
		return nil, invalidInput("payment %s amount %s does not match %d", externalRef, amount, link.Amount)
	}

	switch outcome {
	case OutcomePaid:
		order, err := s.orders.MarkPaid(ctx, link.OrderID, externalRef)
		if err != nil {
			return nil, err
		}
		s.setLinkStatus(ctx, link.ID, models.LinkStatusPaid)
		return order, nil
	case OutcomeFailed:
		order, err := s.orders.MarkPaymentFailed(ctx, link.OrderID, externalRef)
		if err != nil {
			return nil, err
		}
		s.setLinkStatus(ctx, link.ID, models.LinkStatusFailed)
		return order, nil
	default:
		return s.orders.Get(ctx, link.OrderID)
	}
}

func (s *PaymentService) setLinkStatus(ctx context.Context, linkID uint, status string) {
	err := s.db.WithContext(ctx).Model(&models.PaymentLink{}).
		Where("id = ?", linkID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()}).Error
	if err != nil {
		utils.ErrorLogger.Errorf("failed to set payment link %d to %s: %v", linkID, status, err)
	}
}

// PendingLinks lists links still waiting for the provider, oldest first.
func (s *PaymentService) PendingLinks(ctx context.Context, olderThan time.Time, limit int) ([]models.PaymentLink, error) {
	var links []models.PaymentLink
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.LinkStatusPending, olderThan).
		Order("created_at asc").
		Limit(limit).
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payment links: %w", err)
	}
	return links, nil
}
