package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquadoks/sales-backend/models"
	"gorm.io/gorm"
)

// DefaultProducts is the AQUADOKS range.
var DefaultProducts = []models.Product{
	{SKU: "0_5L", Name: "AQUADOKS 0.5 л", Volume: "0.5 л", PackSize: 12, PricePerPack: 1000,
		Description: "Щелочная вода, упаковка 12 бутылок по 0.5 л"},
	{SKU: "1L", Name: "AQUADOKS 1 л", Volume: "1 л", PackSize: 9, PricePerPack: 1250,
		Description: "Щелочная вода, упаковка 9 бутылок по 1 л"},
	{SKU: "5L", Name: "AQUADOKS 5 л", Volume: "5 л", PackSize: 2, PricePerPack: 800,
		Description: "Щелочная вода, упаковка 2 бутыли по 5 л"},
	{SKU: "19L", Name: "AQUADOKS 19 л", Volume: "19 л", PackSize: 1, PricePerPack: 1000,
		Description: "Щелочная вода, бутыль 19 л для кулера"},
}

type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListProducts -> all products ordered by id
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("id asc").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetBySKU fails with UnknownProduct when the SKU does not exist.
func (s *CatalogService) GetBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.WithContext(ctx).Where("sku = ?", NormalizeSKU(sku)).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, unknownProduct(sku)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %s: %w", sku, err)
	}
	return &product, nil
}

// GetBySKUs resolves every SKU or fails with UnknownProduct naming the first miss.
func (s *CatalogService) GetBySKUs(ctx context.Context, skus []string) (map[string]models.Product, error) {
	normalized := make([]string, 0, len(skus))
	for _, sku := range skus {
		normalized = append(normalized, NormalizeSKU(sku))
	}

	var products []models.Product
	if err := s.db.WithContext(ctx).Where("sku IN ?", normalized).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	bySKU := make(map[string]models.Product, len(products))
	for _, p := range products {
		bySKU[p.SKU] = p
	}
	for i, sku := range normalized {
		if _, ok := bySKU[sku]; !ok {
			return nil, unknownProduct(skus[i])
		}
	}
	return bySKU, nil
}

// NormalizeSKU accepts the spellings the agent tends to produce ("0.5L", "19l").
func NormalizeSKU(sku string) string {
	s := strings.ToUpper(strings.TrimSpace(sku))
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, ",", "_")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// SeedCatalog inserts DefaultProducts and their inventory rows if missing.
func SeedCatalog(db *gorm.DB, initialStock int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, p := range DefaultProducts {
			product := p
			product.CreatedAt = time.Now()
			product.UpdatedAt = time.Now()
			if err := tx.Where(models.Product{SKU: p.SKU}).FirstOrCreate(&product).Error; err != nil {
				return fmt.Errorf("failed to seed product %s: %w", p.SKU, err)
			}
			record := models.InventoryRecord{
				ProductID:  product.ID,
				StockPacks: initialStock,
				UpdatedAt:  time.Now(),
			}
			if err := tx.Where(models.InventoryRecord{ProductID: product.ID}).FirstOrCreate(&record).Error; err != nil {
				return fmt.Errorf("failed to seed inventory for %s: %w", p.SKU, err)
			}
		}
		return nil
	})
}
