package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/sirupsen/logrus"
)

type DeliveryRequest struct {
	City        string `json:"city"`
	Address     string `json:"address"`
	Packs       int    `json:"packs"`
	OrderAmount int64  `json:"order_amount"`
}

// DeliveryQuoter returns the delivery cost in rubles.
type DeliveryQuoter interface {
	Name() string
	Quote(ctx context.Context, req DeliveryRequest) (int64, error)
}

// TariffQuoter prices delivery from a flat tariff: base cost plus a per-pack
// surcharge, free from a configured order amount.
type TariffQuoter struct {
	BaseCost       int64
	PerPackCost    int64
	FreeFromAmount int64
}

func (TariffQuoter) Name() string { return "tariff" }

func (q TariffQuoter) Quote(_ context.Context, req DeliveryRequest) (int64, error) {
	if q.FreeFromAmount > 0 && req.OrderAmount >= q.FreeFromAmount {
		return 0, nil
	}
	return q.BaseCost + q.PerPackCost*int64(req.Packs), nil
}

// HTTPDeliveryQuoter asks the delivery provider's quote endpoint.
type HTTPDeliveryQuoter struct {
	provider   string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPDeliveryQuoter(provider, baseURL, apiKey string, timeout time.Duration) *HTTPDeliveryQuoter {
	return &HTTPDeliveryQuoter{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (q *HTTPDeliveryQuoter) Name() string { return q.provider }

func (q *HTTPDeliveryQuoter) Quote(ctx context.Context, in DeliveryRequest) (int64, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("error marshaling delivery request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.baseURL+"/quote", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("error creating delivery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+q.apiKey)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return 0, upstreamUnavailable("delivery provider "+q.provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, upstreamUnavailable("delivery provider "+q.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		utils.ErrorLogger.WithFields(logrus.Fields{
			"provider": q.provider,
			"status":   resp.StatusCode,
		}).Errorf("delivery quote failed: %s", string(raw))
		return 0, upstreamUnavailable("delivery provider "+q.provider,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		Cost *int64 `json:"cost"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || out.Cost == nil {
		return 0, upstreamUnavailable("delivery provider "+q.provider,
			fmt.Errorf("unexpected quote response: %s", string(raw)))
	}
	return *out.Cost, nil
}
