package treasuries

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"treasury/src/config"
	"treasury/src/utils/requests"
)

type DatasetKind string

const (
	SpotPriceSeries         DatasetKind = "SpotPriceSeries"
	AggregateHoldingsSeries DatasetKind = "AggregateHoldingsSeries"
	EntityDetailBundle      DatasetKind = "EntityDetailBundle"
)

type TreasuriesServiceClientI interface {
	GetPrices(ctx context.Context) (PriceSeriesResponse, error)
	GetAggregate(ctx context.Context) (AggregateResponse, error)
	GetEntity(ctx context.Context, slug string) (*EntityBundle, error)
}

// TreasuriesServiceClient fetches datasets from the upstream treasuries API.
type TreasuriesServiceClient struct {
	API     *requests.ExternalAPIService
	BaseURL string
}

// NewClient creates a new instance of TreasuriesServiceClient
func NewClient(cfg config.TreasuriesConfig, logger *logrus.Logger) *TreasuriesServiceClient {
	return &TreasuriesServiceClient{
		API:     requests.NewExternalAPIService(cfg.Timeout, cfg.RetryMax, logger),
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (c *TreasuriesServiceClient) endpoint(kind DatasetKind, key string) (string, error) {
	switch kind {
	case SpotPriceSeries:
		return c.BaseURL + "/bitcoin/prices", nil
	case AggregateHoldingsSeries:
		return c.BaseURL + "/bitcoin/aggregate", nil
	case EntityDetailBundle:
		if key == "" {
			return "", fmt.Errorf("entity slug is required for %s", kind)
		}
		return c.BaseURL + "/bitcoin/entity/" + url.PathEscape(key), nil
	}
	return "", fmt.Errorf("unknown dataset kind %q", kind)
}

// FetchDataset performs one GET for the dataset and returns the raw body.
// Non-2xx responses and network errors are transport failures; a top-level `success:false` is a shape failure.
func (c *TreasuriesServiceClient) FetchDataset(ctx context.Context, kind DatasetKind, key string) (json.RawMessage, error) {
	endpoint, err := c.endpoint(kind, key)
	if err != nil {
		return nil, err
	}

	resp, err := c.API.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, &UpstreamError{Kind: TransportFailure, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Kind: TransportFailure, Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &UpstreamError{
			Kind:     TransportFailure,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  strings.TrimSpace(string(body)),
		}
	}

	if !json.Valid(body) {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: endpoint, Message: "response is not valid JSON"}
	}

	// Only object payloads carry a success flag.
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Success *bool  `json:"success"`
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Success != nil && !*envelope.Success {
			message := envelope.Error
			if message == "" {
				message = envelope.Message
			}
			return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: endpoint, Message: message}
		}
	}

	return body, nil
}

// GetPrices fetches the BTC spot price series.
func (c *TreasuriesServiceClient) GetPrices(ctx context.Context) (PriceSeriesResponse, error) {
	body, err := c.FetchDataset(ctx, SpotPriceSeries, "")
	if err != nil {
		return nil, err
	}

	var prices PriceSeriesResponse
	if err := decodeWithNumbers(body, &prices); err != nil {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: "/bitcoin/prices", Err: err}
	}
	return prices, nil
}

// GetAggregate fetches the per-sector holdings series.
func (c *TreasuriesServiceClient) GetAggregate(ctx context.Context) (AggregateResponse, error) {
	body, err := c.FetchDataset(ctx, AggregateHoldingsSeries, "")
	if err != nil {
		return nil, err
	}

	var aggregate AggregateResponse
	if err := decodeWithNumbers(body, &aggregate); err != nil {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: "/bitcoin/aggregate", Err: err}
	}
	return aggregate, nil
}

// GetEntity fetches the detail bundle for one entity, addressed by its upstream slug.
func (c *TreasuriesServiceClient) GetEntity(ctx context.Context, slug string) (*EntityBundle, error) {
	body, err := c.FetchDataset(ctx, EntityDetailBundle, slug)
	if err != nil {
		return nil, err
	}

	endpoint := "/bitcoin/entity/" + slug
	var response EntityResponse
	if err := decodeWithNumbers(body, &response); err != nil {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: endpoint, Err: err}
	}
	if !response.Success {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: endpoint, Message: "missing success flag"}
	}
	if response.Data == nil {
		return nil, &UpstreamError{Kind: ShapeFailure, Endpoint: endpoint, Message: "missing data object"}
	}
	return response.Data, nil
}
