package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/config"
	"github.com/aquadoks/sales-backend/database"
	"github.com/aquadoks/sales-backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testStockPacks = 100

// setupTestDB opens a fresh sqlite file with the schema, guards and catalog.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.InitDB(config.DBConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, SeedCatalog(db, testStockPacks))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type testStack struct {
	db          *gorm.DB
	catalog     *CatalogService
	inventory   *InventoryService
	pricing     *PricingService
	customers   *CustomerService
	chats       *ChatSessionService
	fulfillment *FulfillmentService
	orders      *OrderService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := setupTestDB(t)
	catalog := NewCatalogService(db)
	inventory := NewInventoryService(db, time.Hour)
	pricing := NewPricingService(catalog, 5000, decimal.RequireFromString("0.10"))
	customers := NewCustomerService(db)
	chats := NewChatSessionService(db)
	fulfillment := NewFulfillmentService(testRoutingRules(), TariffQuoter{BaseCost: 300, PerPackCost: 50, FreeFromAmount: 10000}, pricing)
	return &testStack{
		db:          db,
		catalog:     catalog,
		inventory:   inventory,
		pricing:     pricing,
		customers:   customers,
		chats:       chats,
		fulfillment: fulfillment,
		orders:      NewOrderService(db, pricing, inventory, customers, chats, fulfillment),
	}
}

func testRoutingRules() RoutingRules {
	return RoutingRules{
		HomeCity:      "Санкт-Петербург",
		CityAliases:   []string{"спб", "питер", "петербург", "saint petersburg"},
		Marketplaces:  []string{"Ozon", "Wildberries", "Яндекс.Маркет"},
		ExcludedZones: []string{"кронштадт"},
	}
}

func (ts *testStack) createOrder(t *testing.T, items ...LineRequest) *models.Order {
	t.Helper()
	order, err := ts.orders.Create(context.Background(), CreateOrderInput{
		CustomerPhone:  "+7 (999) 123-45-67",
		CustomerName:   "Иван",
		Channel:        "telegram",
		ExternalChatID: "chat-1",
		City:           "Санкт-Петербург",
		Address:        "Невский пр., 1",
		Items:          items,
	})
	require.NoError(t, err)
	return order
}

func (ts *testStack) stock(t *testing.T, sku string) StockLevel {
	t.Helper()
	level, err := ts.inventory.stockBySKU(context.Background(), sku)
	require.NoError(t, err)
	return *level
}

func (ts *testStack) events(t *testing.T, orderID uint) []string {
	t.Helper()
	var events []models.OrderEvent
	require.NoError(t, ts.db.Where("order_id = ?", orderID).Order("id asc").Find(&events).Error)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeProvider is an in-memory payment gateway.
type fakeProvider struct {
	mu       sync.Mutex
	name     string
	created  int
	status   map[string]PaymentOutcome
	failNext error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, status: map[string]PaymentOutcome{}}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) CreateLink(_ context.Context, req LinkRequest) (*IssuedLink, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return nil, err
	}
	p.created++
	ref := midtransOrderID(req.Order.Reference, req.Attempt)
	return &IssuedLink{URL: "https://pay.example/" + ref, ExternalRef: ref}, nil
}

func (p *fakeProvider) ParseCallback(fields map[string]string) (*CallbackResult, error) {
	if fields["sig"] != "ok" {
		return nil, invalidSignature(p.name)
	}
	return &CallbackResult{ExternalRef: fields["ref"], Amount: fields["amount"], Outcome: PaymentOutcome(fields["outcome"])}, nil
}

func (p *fakeProvider) CheckStatus(_ context.Context, externalRef string) (PaymentOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.status[externalRef]; ok {
		return s, nil
	}
	return OutcomePending, nil
}
