package services

import (
	"context"

	"github.com/shopspring/decimal"
)

// MaxLinePacks bounds the packs of a single SKU in one request.
const MaxLinePacks = 1_000_000

// LineRequest is one requested line of an order.
type LineRequest struct {
	SKU      string `json:"sku" binding:"required"`
	QtyPacks int    `json:"qty" binding:"required"`
}

type QuoteLine struct {
	ProductID    uint   `json:"-"`
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	QtyPacks     int    `json:"qty_packs"`
	PricePerPack int64  `json:"price_per_pack"`
	Subtotal     int64  `json:"subtotal"`
}

// Quote is a priced order. FinalAmount = TotalAmount - DiscountAmount.
type Quote struct {
	Lines          []QuoteLine `json:"lines"`
	TotalAmount    int64       `json:"total_amount"`
	DiscountAmount int64       `json:"discount_amount"`
	FinalAmount    int64       `json:"final_amount"`
}

// DiscountSummary backs the calculate_discount tool.
type DiscountSummary struct {
	TotalAmount      int64 `json:"total_amount"`
	DiscountAmount   int64 `json:"discount_amount"`
	FinalAmount      int64 `json:"final_amount"`
	Threshold        int64 `json:"threshold"`
	AmountToDiscount int64 `json:"amount_to_discount"`
}

type PricingService struct {
	catalog   *CatalogService
	threshold int64
	rate      decimal.Decimal
}

func NewPricingService(catalog *CatalogService, threshold int64, rate decimal.Decimal) *PricingService {
	return &PricingService{catalog: catalog, threshold: threshold, rate: rate}
}

// PriceOrder prices every line from the catalog. Repeated SKUs are merged into
// one line in first-seen order; any unknown SKU fails the whole quote.
func (s *PricingService) PriceOrder(ctx context.Context, items []LineRequest) (*Quote, error) {
	merged, order, err := mergeLines(items)
	if err != nil {
		return nil, err
	}

	products, err := s.catalog.GetBySKUs(ctx, order)
	if err != nil {
		return nil, err
	}

	quote := &Quote{Lines: make([]QuoteLine, 0, len(order))}
	for _, sku := range order {
		p := products[sku]
		qty := merged[sku]
		line := QuoteLine{
			ProductID:    p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			QtyPacks:     qty,
			PricePerPack: p.PricePerPack,
			Subtotal:     p.PricePerPack * int64(qty),
		}
		quote.Lines = append(quote.Lines, line)
		quote.TotalAmount += line.Subtotal
	}
	quote.DiscountAmount = s.ApplyDiscount(quote.TotalAmount)
	quote.FinalAmount = quote.TotalAmount - quote.DiscountAmount
	return quote, nil
}

func mergeLines(items []LineRequest) (map[string]int, []string, error) {
	if len(items) == 0 {
		return nil, nil, invalidInput("order has no items")
	}
	merged := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if item.QtyPacks <= 0 {
			return nil, nil, invalidInput("quantity for %s must be positive, got %d", item.SKU, item.QtyPacks)
		}
		sku := NormalizeSKU(item.SKU)
		if sku == "" {
			return nil, nil, invalidInput("sku is required")
		}
		if _, seen := merged[sku]; !seen {
			order = append(order, sku)
		}
		if item.QtyPacks > MaxLinePacks || merged[sku]+item.QtyPacks > MaxLinePacks {
			return nil, nil, invalidInput("quantity for %s exceeds %d packs", sku, MaxLinePacks)
		}
		merged[sku] += item.QtyPacks
	}
	return merged, order, nil
}

// ApplyDiscount returns round(total * rate) when total reaches the threshold,
// half away from zero, else 0.
func (s *PricingService) ApplyDiscount(total int64) int64 {
	if total < s.threshold {
		return 0
	}
	return decimal.NewFromInt(total).Mul(s.rate).Round(0).IntPart()
}

// AmountToDiscount is how much more the customer has to order to get the discount.
func (s *PricingService) AmountToDiscount(total int64) int64 {
	if total >= s.threshold {
		return 0
	}
	return s.threshold - total
}

func (s *PricingService) Summarize(total int64) DiscountSummary {
	discount := s.ApplyDiscount(total)
	return DiscountSummary{
		TotalAmount:      total,
		DiscountAmount:   discount,
		FinalAmount:      total - discount,
		Threshold:        s.threshold,
		AmountToDiscount: s.AmountToDiscount(total),
	}
}
