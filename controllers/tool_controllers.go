package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/aquadoks/sales-backend/models"
	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

// toolFunc runs one tool with raw JSON arguments.
type toolFunc func(ctx context.Context, args json.RawMessage) (string, interface{}, error)

// ToolController exposes the named tools the conversational agent calls.
type ToolController struct {
	Catalog     *services.CatalogService
	Inventory   *services.InventoryService
	Pricing     *services.PricingService
	Orders      *services.OrderService
	Fulfillment *services.FulfillmentService
	Payments    *services.PaymentService
	Customers   *services.CustomerService
	Knowledge   *services.KnowledgeService
	Chats       *services.ChatSessionService

	tools map[string]toolFunc
}

func NewToolController(tc ToolController) *ToolController {
	ctrl := &tc
	ctrl.tools = map[string]toolFunc{
		"check_stock_price":           ctrl.checkStockPrice,
		"get_products":                ctrl.getProducts,
		"create_order":                ctrl.createOrder,
		"calculate_discount":          ctrl.calculateDiscount,
		"create_payment_link":         ctrl.createPaymentLink,
		"check_delivery_availability": ctrl.checkDeliveryAvailability,
		"calculate_delivery_cost":     ctrl.calculateDeliveryCost,
		"create_or_get_customer":      ctrl.createOrGetCustomer,
		"search_knowledge":            ctrl.searchKnowledge,
		"get_order_status":            ctrl.getOrderStatus,
	}
	return ctrl
}

// ListTools -> names of every registered tool
func (tc *ToolController) ListTools(c *gin.Context) {
	names := make([]string, 0, len(tc.tools))
	for name := range tc.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	utils.RespondJSON(c, http.StatusOK, "Available tools", names)
}

// InvokeTool -> POST /tools/:tool with the arguments as body
func (tc *ToolController) InvokeTool(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	tc.run(c, c.Param("tool"), raw, nil)
}

type toolCallRequest struct {
	Name           string          `json:"name" binding:"required"`
	Arguments      json.RawMessage `json:"arguments"`
	Channel        string          `json:"channel"`
	ExternalChatID string          `json:"external_chat_id"`
}

// CallTool -> POST /tools/call {name, arguments, channel?, external_chat_id?}
// The call is written to the chat log when the chat is identified.
func (tc *ToolController) CallTool(c *gin.Context) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error(), string(services.CodeInvalidInput), nil)
		return
	}
	tc.run(c, req.Name, req.Arguments, &req)
}

func (tc *ToolController) run(c *gin.Context, name string, args json.RawMessage, call *toolCallRequest) {
	tool, ok := tc.tools[name]
	if !ok {
		utils.RespondFailure(c, http.StatusNotFound, "unknown tool "+name, string(services.CodeNotFound),
			map[string]interface{}{"tool": name})
		return
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	ctx := c.Request.Context()
	if call != nil && call.Channel != "" && call.ExternalChatID != "" && tc.Chats != nil {
		tc.logCall(ctx, call, name, args)
	}

	message, data, err := tool(ctx, args)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, message, data)
}

func (tc *ToolController) logCall(ctx context.Context, call *toolCallRequest, name string, args json.RawMessage) {
	session, err := tc.Chats.Open(ctx, call.Channel, call.ExternalChatID, nil)
	if err != nil {
		utils.ErrorLogger.Errorf("chat log: %v", err)
		return
	}
	var fields map[string]interface{}
	_ = json.Unmarshal(args, &fields)
	if err := tc.Chats.LogToolCall(ctx, session.ID, name, fields); err != nil {
		utils.ErrorLogger.Errorf("chat log: %v", err)
	}
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(args, v); err != nil {
		return services.NewInvalidInput("malformed tool arguments: %v", err)
	}
	return nil
}

func (tc *ToolController) checkStockPrice(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		SKU string `json:"sku"`
		Qty int    `json:"qty"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if in.SKU == "" {
		return "", nil, services.NewInvalidInput("sku is required")
	}
	if in.Qty == 0 {
		in.Qty = 1
	}
	availability, err := tc.Inventory.CheckAvailability(ctx, in.SKU, in.Qty)
	if err != nil {
		return "", nil, err
	}
	return "Stock and price", availability, nil
}

type productView struct {
	services.StockLevel
	Sellable       int    `json:"sellable"`
	PriceFormatted string `json:"price_formatted"`
}

func (tc *ToolController) getProducts(ctx context.Context, _ json.RawMessage) (string, interface{}, error) {
	levels, err := tc.Inventory.Snapshot(ctx)
	if err != nil {
		return "", nil, err
	}
	out := make([]productView, 0, len(levels))
	for _, l := range levels {
		out = append(out, productView{StockLevel: l, Sellable: l.Sellable(), PriceFormatted: utils.FormatRubles(l.PricePerPack)})
	}
	return "List of products", out, nil
}

func (tc *ToolController) createOrder(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in services.CreateOrderInput
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if in.Channel == "" {
		in.Channel = "web"
	}
	order, err := tc.Orders.Create(ctx, in)
	if err != nil {
		return "", nil, err
	}
	return "Order created", gin.H{
		"order_id":        order.ID,
		"reference":       order.Reference,
		"status":          order.Status,
		"total_amount":    order.TotalAmount,
		"discount_amount": order.DiscountAmount,
		"final_amount":    order.FinalAmount,
		"items":           order.OrderItems,
		"city":            order.City,
		"address":         order.Address,
	}, nil
}

func (tc *ToolController) calculateDiscount(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		TotalAmount *int64                 `json:"total_amount"`
		Items       []services.LineRequest `json:"items"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if len(in.Items) > 0 {
		quote, err := tc.Pricing.PriceOrder(ctx, in.Items)
		if err != nil {
			return "", nil, err
		}
		return "Order calculation", gin.H{
			"lines":   quote.Lines,
			"summary": tc.Pricing.Summarize(quote.TotalAmount),
		}, nil
	}
	if in.TotalAmount == nil || *in.TotalAmount < 0 {
		return "", nil, services.NewInvalidInput("total_amount or items is required")
	}
	return "Discount", tc.Pricing.Summarize(*in.TotalAmount), nil
}

func (tc *ToolController) createPaymentLink(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		OrderID uint `json:"order_id"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	if in.OrderID == 0 {
		return "", nil, services.NewInvalidInput("order_id is required")
	}
	link, reused, err := tc.Payments.IssuePaymentLink(ctx, in.OrderID)
	if err != nil {
		return "", nil, err
	}
	return "Payment link", gin.H{
		"order_id": link.OrderID,
		"url":      link.URL,
		"amount":   link.Amount,
		"provider": link.Provider,
		"reused":   reused,
	}, nil
}

type locationArgs struct {
	City    string `json:"city"`
	Address string `json:"address"`
}

func (tc *ToolController) checkDeliveryAvailability(_ context.Context, args json.RawMessage) (string, interface{}, error) {
	var in locationArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	route := tc.Fulfillment.Route(in.City, in.Address)
	return "Delivery availability", gin.H{
		"deliverable": tc.Fulfillment.IsDeliverable(in.City, in.Address),
		"route":       route,
	}, nil
}

func (tc *ToolController) calculateDeliveryCost(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		locationArgs
		Items []services.LineRequest `json:"items"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	quote, err := tc.Fulfillment.QuoteDeliveryCost(ctx, in.City, in.Address, in.Items)
	if err != nil {
		return "", nil, err
	}
	return "Delivery cost", quote, nil
}

func (tc *ToolController) createOrGetCustomer(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in services.CustomerInput
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	customer, created, err := tc.Customers.GetOrCreate(ctx, in)
	if err != nil {
		return "", nil, err
	}
	message := "Customer found"
	if created {
		message = "Customer created"
	}
	return message, gin.H{"customer": customer, "created": created}, nil
}

func (tc *ToolController) searchKnowledge(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		Query  string    `json:"query"`
		Vector []float32 `json:"vector"`
		TopK   *int      `json:"top_k"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}
	topK := 3
	if in.TopK != nil {
		topK = *in.TopK
	}

	var (
		results []services.SearchResult
		err     error
	)
	if len(in.Vector) > 0 {
		results, err = tc.Knowledge.Search(ctx, in.Vector, topK)
	} else {
		results, err = tc.Knowledge.SearchText(ctx, in.Query, topK)
	}
	if err != nil {
		return "", nil, err
	}
	return "Knowledge search", gin.H{
		"results":     results,
		"approximate": tc.Knowledge.Approximate(),
	}, nil
}

func (tc *ToolController) getOrderStatus(ctx context.Context, args json.RawMessage) (string, interface{}, error) {
	var in struct {
		OrderID        uint   `json:"order_id"`
		Phone          string `json:"phone"`
		Channel        string `json:"channel"`
		ExternalChatID string `json:"external_chat_id"`
		Limit          int    `json:"limit"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return "", nil, err
	}

	var (
		orders []models.Order
		err    error
	)
	switch {
	case in.OrderID != 0:
		var order *models.Order
		order, err = tc.Orders.Get(ctx, in.OrderID)
		if order != nil {
			orders = []models.Order{*order}
		}
	case in.Phone != "":
		orders, err = tc.Orders.ListByCustomerPhone(ctx, in.Phone, in.Limit)
	case in.Channel != "" && in.ExternalChatID != "":
		orders, err = tc.Orders.ListByChat(ctx, in.Channel, in.ExternalChatID, in.Limit)
	default:
		return "", nil, services.NewInvalidInput("order_id, phone or channel with external_chat_id is required")
	}
	if err != nil {
		return "", nil, err
	}
	return "Order status", orders, nil
}
