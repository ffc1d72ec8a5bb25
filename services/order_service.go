package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateOrderInput is what a channel adapter and the agent supply for a new order.
type CreateOrderInput struct {
	CustomerID     *uint         `json:"customer_id"`
	CustomerPhone  string        `json:"customer_phone"`
	CustomerName   string        `json:"customer_name"`
	CustomerEmail  *string       `json:"customer_email"`
	Channel        string        `json:"channel"`
	ExternalChatID string        `json:"external_chat_id"`
	City           string        `json:"city"`
	Address        string        `json:"address"`
	Items          []LineRequest `json:"items"`
}

// OrderService owns every order status transition. Stock moves only through
// the inventory ledger it holds.
type OrderService struct {
	db        *gorm.DB
	pricing   *PricingService
	inventory *InventoryService
	customers *CustomerService
	chats     *ChatSessionService
	router    *FulfillmentService
}

func NewOrderService(
	db *gorm.DB,
	pricing *PricingService,
	inventory *InventoryService,
	customers *CustomerService,
	chats *ChatSessionService,
	router *FulfillmentService,
) *OrderService {
	return &OrderService{
		db:        db,
		pricing:   pricing,
		inventory: inventory,
		customers: customers,
		chats:     chats,
		router:    router,
	}
}

// Create prices, reserves and persists a pending order. Either every line is
// reserved and the order exists, or nothing is held and no order exists.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	channel := strings.TrimSpace(in.Channel)
	if channel == "" {
		return nil, invalidInput("channel is required")
	}

	decision := s.router.Route(in.City, in.Address)
	if decision.Mode == models.FulfillmentMarketplace {
		return nil, &DomainError{
			Code:    CodeRoutingViolation,
			Message: fmt.Sprintf("city %q is served through marketplaces", in.City),
			Details: map[string]interface{}{
				"mode":         decision.Mode,
				"reason":       decision.Reason,
				"marketplaces": decision.Marketplaces,
			},
		}
	}

	quote, err := s.pricing.PriceOrder(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	customer, err := s.resolveCustomer(ctx, in)
	if err != nil {
		return nil, err
	}

	var sessionID *uint
	if in.ExternalChatID != "" && s.chats != nil {
		session, err := s.chats.Open(ctx, channel, in.ExternalChatID, &customer.ID)
		if err != nil {
			return nil, err
		}
		sessionID = &session.ID
	}

	ref := uuid.NewString()
	if err := s.reserveLines(ctx, ref, quote.Lines); err != nil {
		return nil, err
	}

	city := strings.TrimSpace(in.City)
	if city == "" {
		city = decision.City
	}
	now := time.Now()
	order := &models.Order{
		Reference:       ref,
		CustomerID:      &customer.ID,
		ChatSessionID:   sessionID,
		Channel:         channel,
		Status:          models.OrderStatusPending,
		City:            city,
		Address:         strings.TrimSpace(in.Address),
		FulfillmentMode: decision.Mode,
		TotalAmount:     quote.TotalAmount,
		DiscountAmount:  quote.DiscountAmount,
		FinalAmount:     quote.FinalAmount,
		PaymentStatus:   models.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range quote.Lines {
		order.OrderItems = append(order.OrderItems, models.OrderItem{
			ProductID:    line.ProductID,
			SKU:          line.SKU,
			QtyPacks:     line.QtyPacks,
			PricePerPack: line.PricePerPack,
			Subtotal:     line.Subtotal,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return recordEvent(tx, models.EventOrderCreated, order, nil)
	})
	if err != nil {
		s.releaseAcquired(ctx, ref)
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"reference": order.Reference,
		"channel":   order.Channel,
		"final":     order.FinalAmount,
	}).Info("order created")
	return order, nil
}

func (s *OrderService) resolveCustomer(ctx context.Context, in CreateOrderInput) (*models.Customer, error) {
	if strings.TrimSpace(in.CustomerPhone) != "" {
		var city *string
		if c := strings.TrimSpace(in.City); c != "" {
			city = &c
		}
		customer, _, err := s.customers.GetOrCreate(ctx, CustomerInput{
			Name:  in.CustomerName,
			Phone: in.CustomerPhone,
			Email: in.CustomerEmail,
			City:  city,
		})
		return customer, err
	}
	if in.CustomerID != nil {
		var customer models.Customer
		if err := s.db.WithContext(ctx).First(&customer, *in.CustomerID).Error; err != nil {
			return nil, notFoundOr(err, "customer", *in.CustomerID)
		}
		return &customer, nil
	}
	return nil, invalidInput("customer phone or customer id is required")
}

// reserveLines holds every line for ref or nothing. A cancelled context is
// treated like a failed line.
func (s *OrderService) reserveLines(ctx context.Context, ref string, lines []QuoteLine) error {
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			s.releaseAcquired(ctx, ref)
			return err
		}
		if _, err := s.inventory.Reserve(ctx, ref, line.SKU, line.QtyPacks); err != nil {
			s.releaseAcquired(ctx, ref)
			return err
		}
	}
	return nil
}

// releaseAcquired runs even when ctx is already cancelled.
func (s *OrderService) releaseAcquired(ctx context.Context, ref string) {
	released, err := s.inventory.ReleaseAll(context.WithoutCancel(ctx), ref)
	if err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"reference": ref}).
			Errorf("failed to release reservations: %v", err)
		return
	}
	if released > 0 {
		utils.InfoLogger.WithFields(logrus.Fields{"reference": ref, "released": released}).
			Info("order creation unwound")
	}
}

// MarkPaid moves a pending order to paid. A repeated callback carrying the
// same external reference for an already paid order succeeds without changes.
func (s *OrderService) MarkPaid(ctx context.Context, orderID uint, externalRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			return notFoundOr(err, "order", orderID)
		}
		if isDuplicatePayment(&order, externalRef) {
			return nil
		}
		if order.Status != models.OrderStatusPending {
			return invalidTransition("order %d is %s, cannot become paid", orderID, order.Status)
		}

		updates := map[string]interface{}{
			"status":         models.OrderStatusPaid,
			"payment_status": models.PaymentStatusPaid,
			"updated_at":     time.Now(),
		}
		if externalRef != "" {
			updates["external_payment_ref"] = externalRef
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to mark order %d paid: %w", orderID, res.Error)
		}
		if res.RowsAffected == 0 {
			if err := tx.First(&order, orderID).Error; err != nil {
				return notFoundOr(err, "order", orderID)
			}
			if isDuplicatePayment(&order, externalRef) {
				return nil
			}
			return invalidTransition("order %d is %s, cannot become paid", orderID, order.Status)
		}

		order.Status = models.OrderStatusPaid
		order.PaymentStatus = models.PaymentStatusPaid
		if externalRef != "" {
			order.ExternalPaymentRef = &externalRef
		}
		return recordEvent(tx, models.EventOrderPaid, &order, map[string]interface{}{"external_ref": externalRef})
	})
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": orderID, "external_ref": externalRef}).Info("order paid")
	return &order, nil
}

func isDuplicatePayment(order *models.Order, externalRef string) bool {
	return order.Status == models.OrderStatusPaid &&
		externalRef != "" &&
		order.ExternalPaymentRef != nil &&
		*order.ExternalPaymentRef == externalRef
}

// MarkPaymentFailed records a declined or expired payment. The order stays
// pending so the customer can be sent a new link.
func (s *OrderService) MarkPaymentFailed(ctx context.Context, orderID uint, externalRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			return notFoundOr(err, "order", orderID)
		}
		if order.Status != models.OrderStatusPending {
			return invalidTransition("order %d is %s, payment can no longer fail", orderID, order.Status)
		}
		if order.PaymentStatus == models.PaymentStatusFailed {
			return nil
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND payment_status = ?", orderID, models.OrderStatusPending, models.PaymentStatusPending).
			Updates(map[string]interface{}{"payment_status": models.PaymentStatusFailed, "updated_at": time.Now()})
		if res.Error != nil {
			return fmt.Errorf("failed to record payment failure for order %d: %w", orderID, res.Error)
		}
		if res.RowsAffected == 0 {
			return invalidTransition("order %d payment is no longer pending", orderID)
		}
		order.PaymentStatus = models.PaymentStatusFailed
		return recordEvent(tx, models.EventPaymentFailed, &order, map[string]interface{}{"external_ref": externalRef})
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Advance moves an order one step along processing -> delivering -> completed.
// Entering processing commits the order's reservations in the same transaction.
func (s *OrderService) Advance(ctx context.Context, orderID uint, target models.OrderStatus) (*models.Order, error) {
	switch target {
	case models.OrderStatusProcessing, models.OrderStatusDelivering, models.OrderStatusCompleted:
	case models.OrderStatusPaid:
		return nil, invalidTransition("orders become paid through a payment confirmation")
	case models.OrderStatusCancelled:
		return nil, invalidTransition("orders are cancelled through cancel")
	default:
		return nil, invalidTransition("unknown target status %q", target)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			return notFoundOr(err, "order", orderID)
		}
		next, ok := order.Status.Next()
		if !ok || next != target {
			return invalidTransition("order %d is %s, cannot advance to %s", orderID, order.Status, target)
		}

		from := order.Status
		if err := guardedStatus(tx, &order, target, nil); err != nil {
			return err
		}
		if target == models.OrderStatusProcessing {
			if err := s.inventory.WithTx(tx).CommitAll(ctx, order.Reference); err != nil {
				return err
			}
		}
		return recordEvent(tx, models.EventOrderStatusChanged, &order, map[string]interface{}{"from": string(from)})
	})
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": orderID, "status": target}).Info("order advanced")
	return &order, nil
}

// Cancel releases the order's stock and emits a refund request when money
// was already taken.
func (s *OrderService) Cancel(ctx context.Context, orderID uint, reason string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			return notFoundOr(err, "order", orderID)
		}
		if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
			return invalidTransition("order %d is %s, cannot be cancelled", orderID, order.Status)
		}

		from := order.Status
		refund := order.PaymentStatus == models.PaymentStatusPaid
		extra := map[string]interface{}{"cancel_reason": reason}
		if refund {
			extra["payment_status"] = models.PaymentStatusRefundRequested
		}
		if err := guardedStatus(tx, &order, models.OrderStatusCancelled, extra); err != nil {
			return err
		}
		order.CancelReason = reason
		if refund {
			order.PaymentStatus = models.PaymentStatusRefundRequested
		}

		ledger := s.inventory.WithTx(tx)
		if _, err := ledger.ReleaseAll(ctx, order.Reference); err != nil {
			return err
		}
		if from == models.OrderStatusProcessing {
			if err := ledger.ReturnAll(ctx, order.Reference); err != nil {
				return err
			}
		}

		if err := recordEvent(tx, models.EventOrderCancelled, &order, map[string]interface{}{
			"from":   string(from),
			"reason": reason,
		}); err != nil {
			return err
		}
		if refund {
			return recordEvent(tx, models.EventPaymentRefundRequested, &order, map[string]interface{}{
				"external_ref": order.ExternalPaymentRef,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.WithFields(logrus.Fields{"order_id": orderID, "reason": reason}).Info("order cancelled")
	return &order, nil
}

// guardedStatus is the single place an order status is written.
func guardedStatus(tx *gorm.DB, order *models.Order, target models.OrderStatus, extra map[string]interface{}) error {
	if !order.Status.CanTransitionTo(target) {
		return invalidTransition("order %d is %s, cannot become %s", order.ID, order.Status, target)
	}
	updates := map[string]interface{}{"status": target, "updated_at": time.Now()}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", order.ID, order.Status).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update order %d: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return invalidTransition("order %d changed concurrently", order.ID)
	}
	order.Status = target
	return nil
}

func recordEvent(tx *gorm.DB, eventType string, order *models.Order, extra map[string]interface{}) error {
	payload := datatypes.JSONMap{
		"reference":      order.Reference,
		"status":         string(order.Status),
		"payment_status": string(order.PaymentStatus),
		"final_amount":   order.FinalAmount,
		"channel":        order.Channel,
	}
	for k, v := range extra {
		payload[k] = v
	}
	event := models.OrderEvent{
		EventType: eventType,
		OrderID:   order.ID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}

func (s *OrderService) Get(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Deliveries").
		Preload("Customer").
		First(&order, orderID).Error
	if err != nil {
		return nil, notFoundOr(err, "order", orderID)
	}
	return &order, nil
}

func (s *OrderService) GetByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Deliveries").
		Where("reference = ?", ref).
		First(&order).Error
	if err != nil {
		return nil, notFoundOr(err, "order", ref)
	}
	return &order, nil
}

// GetByExternalPaymentRef resolves the order a provider callback refers to.
func (s *OrderService) GetByExternalPaymentRef(ctx context.Context, externalRef string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Where("external_payment_ref = ?", externalRef).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var link models.PaymentLink
		if err := s.db.WithContext(ctx).Where("external_ref = ?", externalRef).Order("id desc").First(&link).Error; err != nil {
			return nil, notFoundOr(err, "payment", externalRef)
		}
		return s.Get(ctx, link.OrderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order by payment %s: %w", externalRef, err)
	}
	return &order, nil
}

func (s *OrderService) ListByCustomerPhone(ctx context.Context, phone string, limit int) ([]models.Order, error) {
	customer, err := s.customers.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Deliveries").
		Where("customer_id = ?", customer.ID).
		Order("created_at desc, id desc").
		Limit(clampLimit(limit)).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of customer %d: %w", customer.ID, err)
	}
	return orders, nil
}

// ListByChat returns the most recent orders placed from one chat.
func (s *OrderService) ListByChat(ctx context.Context, channel, externalChatID string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderItems").
		Preload("Deliveries").
		Joins("JOIN chat_sessions ON chat_sessions.id = orders.chat_session_id").
		Where("chat_sessions.channel = ? AND chat_sessions.external_chat_id = ?", channel, externalChatID).
		Order("orders.created_at desc, orders.id desc").
		Limit(clampLimit(limit)).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list orders of chat %s/%s: %w", channel, externalChatID, err)
	}
	return orders, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 5
	}
	if limit > 100 {
		return 100
	}
	return limit
}
