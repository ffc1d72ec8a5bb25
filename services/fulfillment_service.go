package services

import (
	"context"
	"strings"

	"github.com/aquadoks/sales-backend/models"
)

// RoutingRules describes the one city served directly.
type RoutingRules struct {
	HomeCity      string
	CityAliases   []string
	Marketplaces  []string
	ExcludedZones []string
}

// RouteDecision is the outcome of Route.
type RouteDecision struct {
	Mode         models.FulfillmentMode `json:"mode"`
	Reason       string                 `json:"reason"`
	City         string                 `json:"city"`
	Marketplaces []string               `json:"marketplaces,omitempty"`
}

// DeliveryQuote is returned by QuoteDeliveryCost.
type DeliveryQuote struct {
	Deliverable bool   `json:"deliverable"`
	Provider    string `json:"provider"`
	Cost        int64  `json:"cost"`
	Packs       int    `json:"packs"`
	OrderAmount int64  `json:"order_amount"`
	Reason      string `json:"reason,omitempty"`
}

type FulfillmentService struct {
	rules   RoutingRules
	aliases map[string]struct{}
	quoter  DeliveryQuoter
	pricing *PricingService
}

func NewFulfillmentService(rules RoutingRules, quoter DeliveryQuoter, pricing *PricingService) *FulfillmentService {
	aliases := make(map[string]struct{}, len(rules.CityAliases)+1)
	aliases[normalizeCity(rules.HomeCity)] = struct{}{}
	for _, a := range rules.CityAliases {
		aliases[normalizeCity(a)] = struct{}{}
	}
	return &FulfillmentService{rules: rules, aliases: aliases, quoter: quoter, pricing: pricing}
}

// normalizeCity lower-cases, folds ё and drops the "г." / "город" prefix.
func normalizeCity(city string) string {
	c := strings.ToLower(strings.TrimSpace(city))
	c = strings.ReplaceAll(c, "ё", "е")
	for _, prefix := range []string{"г.", "город "} {
		c = strings.TrimPrefix(c, prefix)
	}
	return strings.Join(strings.Fields(c), " ")
}

func (s *FulfillmentService) isHomeCity(city string) bool {
	_, ok := s.aliases[normalizeCity(city)]
	return ok
}

// addressMentionsHomeCity covers requests where the city only appears in the address.
func (s *FulfillmentService) addressMentionsHomeCity(address string) bool {
	a := normalizeCity(address)
	for _, part := range strings.Split(a, ",") {
		if s.isHomeCity(part) {
			return true
		}
	}
	return false
}

// Route is a pure decision on (city, address).
func (s *FulfillmentService) Route(city, address string) RouteDecision {
	if s.isHomeCity(city) || (strings.TrimSpace(city) == "" && s.addressMentionsHomeCity(address)) {
		return RouteDecision{
			Mode:   models.FulfillmentDirect,
			Reason: "direct delivery in " + s.rules.HomeCity,
			City:   s.rules.HomeCity,
		}
	}
	reason := "delivery outside " + s.rules.HomeCity + " is available through marketplaces"
	if strings.TrimSpace(city) == "" {
		reason = "city is unknown, marketplaces deliver everywhere"
	}
	return RouteDecision{
		Mode:         models.FulfillmentMarketplace,
		Reason:       reason,
		City:         strings.TrimSpace(city),
		Marketplaces: append([]string(nil), s.rules.Marketplaces...),
	}
}

// IsDeliverable never fails; anything unsupported is simply false.
func (s *FulfillmentService) IsDeliverable(city, address string) bool {
	_, ok := s.undeliverableReason(city, address)
	return ok
}

func (s *FulfillmentService) undeliverableReason(city, address string) (string, bool) {
	if s.Route(city, address).Mode != models.FulfillmentDirect {
		return "outside the direct delivery city", false
	}
	addr := normalizeCity(address)
	if addr == "" {
		return "address is empty", false
	}
	for _, zone := range s.rules.ExcludedZones {
		if z := normalizeCity(zone); z != "" && strings.Contains(addr, z) {
			return "address is in an excluded zone: " + zone, false
		}
	}
	return "", true
}

// QuoteDeliveryCost prices delivery of items to a home-city address.
// Addresses that cannot be served return Deliverable=false and no cost.
func (s *FulfillmentService) QuoteDeliveryCost(ctx context.Context, city, address string, items []LineRequest) (*DeliveryQuote, error) {
	decision := s.Route(city, address)
	if decision.Mode != models.FulfillmentDirect {
		return nil, &DomainError{
			Code:    CodeRoutingViolation,
			Message: decision.Reason,
			Details: map[string]interface{}{"mode": decision.Mode, "marketplaces": decision.Marketplaces},
		}
	}

	quote, err := s.pricing.PriceOrder(ctx, items)
	if err != nil {
		return nil, err
	}
	packs := 0
	for _, l := range quote.Lines {
		packs += l.QtyPacks
	}

	result := &DeliveryQuote{
		Provider:    s.quoter.Name(),
		Packs:       packs,
		OrderAmount: quote.FinalAmount,
	}
	if reason, ok := s.undeliverableReason(city, address); !ok {
		result.Reason = reason
		return result, nil
	}

	cost, err := s.quoter.Quote(ctx, DeliveryRequest{
		City:        decision.City,
		Address:     strings.TrimSpace(address),
		Packs:       packs,
		OrderAmount: quote.FinalAmount,
	})
	if err != nil {
		return nil, err
	}
	result.Deliverable = true
	result.Cost = cost
	return result, nil
}
