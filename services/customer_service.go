package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomerInput struct {
	Name  string  `json:"name"`
	Phone string  `json:"phone" binding:"required"`
	Email *string `json:"email"`
	City  *string `json:"city"`
}

type CustomerService struct {
	db *gorm.DB
}

func NewCustomerService(db *gorm.DB) *CustomerService {
	return &CustomerService{db: db}
}

// NormalizePhone keeps digits only and prefixes "+". A leading 8 in an
// 11-digit number is the domestic form of +7.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) == 11 && digits[0] == '8' {
		digits = "7" + digits[1:]
	}
	return "+" + digits
}

// GetOrCreate is idempotent on the normalised phone. Missing name, email or
// city of an existing customer are filled in; present values are kept.
func (s *CustomerService) GetOrCreate(ctx context.Context, in CustomerInput) (*models.Customer, bool, error) {
	phone := NormalizePhone(in.Phone)
	if len(phone) < 8 {
		return nil, false, invalidInput("phone %q is not a valid number", in.Phone)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = "Клиент"
	}
	now := time.Now()
	candidate := models.Customer{
		Name:      name,
		Phone:     phone,
		Email:     in.Email,
		City:      in.City,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(&candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create customer: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return &candidate, true, nil
	}

	var existing models.Customer
	if err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&existing).Error; err != nil {
		return nil, false, notFoundOr(err, "customer", phone)
	}

	updates := map[string]interface{}{}
	if existing.Email == nil && in.Email != nil {
		updates["email"] = *in.Email
	}
	if existing.City == nil && in.City != nil {
		updates["city"] = *in.City
	}
	if (existing.Name == "" || existing.Name == "Клиент") && strings.TrimSpace(in.Name) != "" {
		updates["name"] = name
	}
	if len(updates) > 0 {
		updates["updated_at"] = now
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("failed to update customer %d: %w", existing.ID, err)
		}
	}
	return &existing, false, nil
}

func (s *CustomerService) GetByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var c models.Customer
	err := s.db.WithContext(ctx).Where("phone = ?", NormalizePhone(phone)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("customer", phone)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return &c, nil
}
