// Package carrier wraps the external shipping label collaborator. Label and
// pickup purchases are network calls to the carrier gateway; the settlement
// engine only persists what comes back and never recomputes tracking data.
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jtj60/dorado-exchange-sub003/internal/config"
)

// LabelRequest describes the shipment a label is purchased for.
type LabelRequest struct {
	CarrierID   string  `json:"carrier_id"`
	OrderID     int64   `json:"order_id"`
	AddressID   int64   `json:"address_id"`
	WeightOz    float64 `json:"weight_oz"`
	Reference   string  `json:"reference"`
	ReturnLabel bool    `json:"return_label"`
}

// Label is the carrier's response to a label purchase.
type Label struct {
	TrackingNumber string  `json:"tracking_number"`
	LabelFile      string  `json:"label_file"`
	NetCharge      float64 `json:"net_charge"`
}

// PickupRequest schedules a carrier pickup at the customer's address.
type PickupRequest struct {
	CarrierID string    `json:"carrier_id"`
	AddressID int64     `json:"address_id"`
	ReadyAt   time.Time `json:"ready_at"`
}

// Pickup is the carrier's pickup confirmation.
type Pickup struct {
	ConfirmationNumber string `json:"confirmation_number"`
	Location           string `json:"location"`
}

// Client is the carrier collaborator surface consumed by the settlement engine.
type Client interface {
	CreateLabel(ctx context.Context, req LabelRequest) (*Label, error)
	CreatePickup(ctx context.Context, req PickupRequest) (*Pickup, error)
}

// Module provides the configured carrier client to Fx.
var Module = fx.Provide(NewClient)

// NewClient builds a carrier client based on configuration.
func NewClient(cfg config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.Carrier.Driver {
	case "noop":
		logger.Info("carrier disabled; using noop client")
		return noopClient{}, nil
	case "http":
		return &httpClient{
			baseURL: cfg.Carrier.BaseURL,
			apiKey:  cfg.Carrier.APIKey,
			http:    &http.Client{Timeout: cfg.Carrier.Timeout},
			logger:  logger,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported carrier driver: %s", cfg.Carrier.Driver)
	}
}

// noopClient fabricates tracking data for local development.
type noopClient struct{}

func (noopClient) CreateLabel(_ context.Context, req LabelRequest) (*Label, error) {
	return &Label{
		TrackingNumber: fmt.Sprintf("NOOP-%d-%d", req.OrderID, time.Now().Unix()),
	}, nil
}

func (noopClient) CreatePickup(context.Context, PickupRequest) (*Pickup, error) {
	return &Pickup{ConfirmationNumber: "NOOP"}, nil
}

// httpClient talks JSON to the carrier gateway.
type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

func (c *httpClient) CreateLabel(ctx context.Context, req LabelRequest) (*Label, error) {
	var label Label
	if err := c.post(ctx, "/labels", req, &label); err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	return &label, nil
}

func (c *httpClient) CreatePickup(ctx context.Context, req PickupRequest) (*Pickup, error) {
	var pickup Pickup
	if err := c.post(ctx, "/pickups", req, &pickup); err != nil {
		return nil, fmt.Errorf("create pickup: %w", err)
	}
	return &pickup, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
