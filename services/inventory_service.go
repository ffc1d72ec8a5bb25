package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Availability is the read-only answer of CheckAvailability.
type Availability struct {
	SKU       string `json:"sku"`
	Requested int    `json:"requested"`
	Available bool   `json:"available"`
	Sellable  int    `json:"sellable"`
	UnitPrice int64  `json:"unit_price"`
}

// StockLevel is one row of the catalog joined with its counters.
type StockLevel struct {
	ProductID     uint   `json:"-"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Volume        string `json:"volume"`
	PackSize      int    `json:"pack_size"`
	PricePerPack  int64  `json:"price_per_pack"`
	StockPacks    int    `json:"stock_packs"`
	ReservedPacks int    `json:"reserved_packs"`
}

func (l StockLevel) Sellable() int { return l.StockPacks - l.ReservedPacks }

// InventoryService is the only writer of stock_packs and reserved_packs.
// Every counter change is a single conditional UPDATE on the inventory row, so
// concurrent callers are serialised by the database row lock and a failed
// condition is observed as zero affected rows.
type InventoryService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewInventoryService(db *gorm.DB, reservationTTL time.Duration) *InventoryService {
	return &InventoryService{db: db, ttl: reservationTTL, now: time.Now}
}

// WithTx returns a ledger bound to the caller's transaction.
func (s *InventoryService) WithTx(tx *gorm.DB) *InventoryService {
	return &InventoryService{db: tx, ttl: s.ttl, now: s.now}
}

func (s *InventoryService) stockBySKU(ctx context.Context, sku string) (*StockLevel, error) {
	var level StockLevel
	err := s.stockQuery(ctx).Where("products.sku = ?", NormalizeSKU(sku)).Take(&level).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unknownProduct(sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load stock for %s: %w", sku, err)
	}
	return &level, nil
}

func (s *InventoryService) stockQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("products").
		Select("products.id AS product_id, products.sku, products.name, products.volume, products.pack_size, " +
			"products.price_per_pack, inventory.stock_packs, inventory.reserved_packs").
		Joins("JOIN inventory ON inventory.product_id = products.id")
}

// CheckAvailability never mutates state.
func (s *InventoryService) CheckAvailability(ctx context.Context, sku string, qtyPacks int) (*Availability, error) {
	if qtyPacks <= 0 {
		return nil, invalidInput("quantity must be positive, got %d", qtyPacks)
	}
	level, err := s.stockBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &Availability{
		SKU:       level.SKU,
		Requested: qtyPacks,
		Available: level.Sellable() >= qtyPacks,
		Sellable:  level.Sellable(),
		UnitPrice: level.PricePerPack,
	}, nil
}

// Snapshot -> every product with its counters
func (s *InventoryService) Snapshot(ctx context.Context) ([]StockLevel, error) {
	var levels []StockLevel
	if err := s.stockQuery(ctx).Order("products.id asc").Scan(&levels).Error; err != nil {
		return nil, fmt.Errorf("failed to load stock levels: %w", err)
	}
	return levels, nil
}

// Reserve holds qtyPacks of sku for orderRef. It either reserves the full
// quantity or fails with InsufficientStock; nothing is held on failure.
func (s *InventoryService) Reserve(ctx context.Context, orderRef, sku string, qtyPacks int) (*models.Reservation, error) {
	if qtyPacks <= 0 {
		return nil, invalidInput("quantity must be positive, got %d", qtyPacks)
	}
	level, err := s.stockBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reservation := &models.Reservation{
		ID:         uuid.NewString(),
		OrderRef:   orderRef,
		ProductID:  level.ProductID,
		SKU:        level.SKU,
		QtyPacks:   qtyPacks,
		Status:     models.ReservationReserved,
		ReservedAt: now,
		ExpiresAt:  now.Add(s.ttl),
		UpdatedAt:  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryRecord{}).
			Where("product_id = ? AND stock_packs - reserved_packs >= ?", level.ProductID, qtyPacks).
			Updates(map[string]interface{}{
				"reserved_packs": gorm.Expr("reserved_packs + ?", qtyPacks),
				"updated_at":     now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to reserve %s: %w", level.SKU, res.Error)
		}
		if res.RowsAffected == 0 {
			var current models.InventoryRecord
			if err := tx.Where("product_id = ?", level.ProductID).First(&current).Error; err != nil {
				return insufficientStock(level.SKU, qtyPacks, 0)
			}
			return insufficientStock(level.SKU, qtyPacks, current.Sellable())
		}
		if err := tx.Create(reservation).Error; err != nil {
			return fmt.Errorf("failed to record reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_ref":   orderRef,
		"sku":         level.SKU,
		"qty":         qtyPacks,
		"reservation": reservation.ID,
	}).Info("inventory reserved")
	return reservation, nil
}

// Commit turns a reservation into a permanent deduction, exactly once.
func (s *InventoryService) Commit(ctx context.Context, reservationID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.moveReservation(tx, reservationID, models.ReservationReserved, models.ReservationCommitted)
		if errors.Is(err, errAlreadyInState) {
			return invalidTransition("reservation %s already committed", reservationID)
		}
		if err != nil {
			return err
		}
		res := tx.Model(&models.InventoryRecord{}).
			Where("product_id = ? AND reserved_packs >= ? AND stock_packs >= ?", r.ProductID, r.QtyPacks, r.QtyPacks).
			Updates(map[string]interface{}{
				"stock_packs":    gorm.Expr("stock_packs - ?", r.QtyPacks),
				"reserved_packs": gorm.Expr("reserved_packs - ?", r.QtyPacks),
				"updated_at":     s.now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to commit reservation %s: %w", r.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("inventory counters for %s do not cover reservation %s", r.SKU, r.ID)
		}
		return nil
	})
}

// Release returns a held quantity to the sellable pool. Releasing an already
// released reservation succeeds without changes.
func (s *InventoryService) Release(ctx context.Context, reservationID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.moveReservation(tx, reservationID, models.ReservationReserved, models.ReservationReleased)
		if errors.Is(err, errAlreadyInState) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.decrementReserved(tx, r)
	})
}

// ReturnCommitted puts committed stock of a cancelled order back on the shelf.
func (s *InventoryService) ReturnCommitted(ctx context.Context, reservationID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.moveReservation(tx, reservationID, models.ReservationCommitted, models.ReservationReturned)
		if errors.Is(err, errAlreadyInState) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&models.InventoryRecord{}).
			Where("product_id = ?", r.ProductID).
			Updates(map[string]interface{}{
				"stock_packs": gorm.Expr("stock_packs + ?", r.QtyPacks),
				"updated_at":  s.now(),
			}).Error
	})
}

var errAlreadyInState = errors.New("reservation already in target state")

// moveReservation performs the guarded status change from -> to.
func (s *InventoryService) moveReservation(tx *gorm.DB, id string, from, to models.ReservationStatus) (*models.Reservation, error) {
	var r models.Reservation
	if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}

	res := tx.Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{"status": to, "updated_at": s.now()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update reservation %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return nil, notFoundOr(err, "reservation", id)
		}
		if r.Status == to {
			return &r, errAlreadyInState
		}
		return nil, invalidTransition("reservation %s is %s, cannot become %s", id, r.Status, to)
	}
	return &r, nil
}

func (s *InventoryService) decrementReserved(tx *gorm.DB, r *models.Reservation) error {
	res := tx.Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_packs >= ?", r.ProductID, r.QtyPacks).
		Updates(map[string]interface{}{
			"reserved_packs": gorm.Expr("reserved_packs - ?", r.QtyPacks),
			"updated_at":     s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release reservation %s: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reserved counter for %s is below reservation %s", r.SKU, r.ID)
	}
	return nil
}

// ReservationsFor lists every reservation of an order regardless of status.
func (s *InventoryService) ReservationsFor(ctx context.Context, orderRef string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	if err := s.db.WithContext(ctx).Where("order_ref = ?", orderRef).Order("reserved_at asc").Find(&reservations).Error; err != nil {
		return nil, fmt.Errorf("failed to list reservations for %s: %w", orderRef, err)
	}
	return reservations, nil
}

// ReleaseAll releases every open reservation of orderRef and reports how many
// were released. It keeps going after a failure and returns the first error.
func (s *InventoryService) ReleaseAll(ctx context.Context, orderRef string) (int, error) {
	reservations, err := s.ReservationsFor(ctx, orderRef)
	if err != nil {
		return 0, err
	}
	released := 0
	var firstErr error
	for _, r := range reservations {
		if r.Status != models.ReservationReserved {
			continue
		}
		if err := s.Release(ctx, r.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		released++
	}
	return released, firstErr
}

// CommitAll commits every open reservation of orderRef.
func (s *InventoryService) CommitAll(ctx context.Context, orderRef string) error {
	reservations, err := s.ReservationsFor(ctx, orderRef)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.Status != models.ReservationReserved {
			continue
		}
		if err := s.Commit(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// ReturnAll undoes committed deductions of orderRef.
func (s *InventoryService) ReturnAll(ctx context.Context, orderRef string) error {
	reservations, err := s.ReservationsFor(ctx, orderRef)
	if err != nil {
		return err
	}
	for _, r := range reservations {
		if r.Status != models.ReservationCommitted {
			continue
		}
		if err := s.ReturnCommitted(ctx, r.ID); err != nil {
			return err
		}
	}
	return nil
}

// StaleReservations lists open reservations whose hold expired before now.
// The sweeper that releases them lives outside this service.
func (s *InventoryService) StaleReservations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.ReservationReserved, now).
		Order("expires_at asc").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale reservations: %w", err)
	}
	return reservations, nil
}

// Restock adds incoming packs to stock.
func (s *InventoryService) Restock(ctx context.Context, sku string, packs int) (*StockLevel, error) {
	if packs <= 0 {
		return nil, invalidInput("restock quantity must be positive, got %d", packs)
	}
	level, err := s.stockBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ?", level.ProductID).
		Updates(map[string]interface{}{
			"stock_packs": gorm.Expr("stock_packs + ?", packs),
			"updated_at":  s.now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to restock %s: %w", level.SKU, err)
	}
	utils.InfoLogger.WithFields(logrus.Fields{"sku": level.SKU, "packs": packs}).Info("inventory restocked")
	return s.stockBySKU(ctx, sku)
}
