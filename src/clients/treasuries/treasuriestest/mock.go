package treasuriestest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"treasury/src/clients/treasuries"
	"treasury/src/utils"
)

// MockClient is an in-memory TreasuriesServiceClientI that can be seeded from saved JSON responses.
type MockClient struct {
	mu        sync.Mutex
	prices    treasuries.PriceSeriesResponse
	aggregate treasuries.AggregateResponse
	entities  map[string]*treasuries.EntityBundle
	err       error
	delay     time.Duration
	calls     map[treasuries.DatasetKind]int
}

func NewMockClient() *MockClient {
	return &MockClient{
		entities: make(map[string]*treasuries.EntityBundle),
		calls:    make(map[treasuries.DatasetKind]int),
	}
}

// NewMockClientFromDir loads prices_response.json, aggregate_response.json and entity_{slug}_response.json files.
func NewMockClientFromDir(mockDataDir string) (*MockClient, error) {
	m := NewMockClient()

	if err := readJSON(filepath.Join(mockDataDir, "prices_response.json"), &m.prices); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(mockDataDir, "aggregate_response.json"), &m.aggregate); err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(mockDataDir, "entity_*_response.json"))
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		slug := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "entity_"), "_response.json")
		var response treasuries.EntityResponse
		if err := readJSON(file, &response); err != nil {
			return nil, err
		}
		m.entities[slug] = response.Data
	}
	return m, nil
}

func readJSON(filePath string, v interface{}) error {
	responseBytes, err := utils.ReadResponseFromFile(filePath)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(responseBytes, v); err != nil {
		return fmt.Errorf("decode %s: %w", filePath, err)
	}
	return nil
}

func (m *MockClient) SetPrices(prices treasuries.PriceSeriesResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = prices
}

func (m *MockClient) SetAggregate(aggregate treasuries.AggregateResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregate = aggregate
}

func (m *MockClient) SetEntity(slug string, bundle *treasuries.EntityBundle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[slug] = bundle
}

// SetError makes every call fail with err until cleared with nil.
func (m *MockClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call wait before answering.
func (m *MockClient) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Calls returns how many times a dataset was requested.
func (m *MockClient) Calls(kind treasuries.DatasetKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[kind]
}

func (m *MockClient) begin(ctx context.Context, kind treasuries.DatasetKind) error {
	m.mu.Lock()
	m.calls[kind]++
	delay, err := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return &treasuries.UpstreamError{Kind: treasuries.TransportFailure, Endpoint: string(kind), Err: ctx.Err()}
		}
	}
	return err
}

func (m *MockClient) GetPrices(ctx context.Context) (treasuries.PriceSeriesResponse, error) {
	if err := m.begin(ctx, treasuries.SpotPriceSeries); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(treasuries.PriceSeriesResponse(nil), m.prices...), nil
}

func (m *MockClient) GetAggregate(ctx context.Context) (treasuries.AggregateResponse, error) {
	if err := m.begin(ctx, treasuries.AggregateHoldingsSeries); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(treasuries.AggregateResponse(nil), m.aggregate...), nil
}

func (m *MockClient) GetEntity(ctx context.Context, slug string) (*treasuries.EntityBundle, error) {
	if err := m.begin(ctx, treasuries.EntityDetailBundle); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.entities[slug]
	if !ok {
		return nil, &treasuries.UpstreamError{
			Kind:     treasuries.TransportFailure,
			Endpoint: "/bitcoin/entity/" + slug,
			Status:   404,
			Message:  "entity not found",
		}
	}
	return bundle, nil
}
