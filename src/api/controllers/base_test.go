package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"treasury/src/clients/treasuries"
	"treasury/src/models"
	"treasury/src/repositories"
	"treasury/src/schemas"
	"treasury/src/services"
	"treasury/src/utils"
)

// MockEntityService is a mock implementation of services.EntityServiceI
type MockEntityService struct {
	mock.Mock
}

func (m *MockEntityService) CreateEntity(ctx context.Context, input schemas.EntityInput) (*models.Entity, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockEntityService) UpdateEntity(ctx context.Context, slug string, input schemas.EntityUpdate) (*models.Entity, error) {
	args := m.Called(ctx, slug, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockEntityService) ListEntities(ctx context.Context) ([]models.Entity, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entity), args.Error(1)
}

func (m *MockEntityService) ListAdminEntities(ctx context.Context, entityType string) ([]models.Entity, error) {
	args := m.Called(ctx, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Entity), args.Error(1)
}

func (m *MockEntityService) SyncEntityDetail(ctx context.Context, slug string) (*models.Entity, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entity), args.Error(1)
}

func (m *MockEntityService) GetBalanceSheet(ctx context.Context, slug string) ([]schemas.BalanceSheetRow, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.BalanceSheetRow), args.Error(1)
}

func (m *MockEntityService) GetTimeSeries(ctx context.Context, slug string) (schemas.EntityTimeSeries, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.EntityTimeSeries), args.Error(1)
}

// MockPriceService is a mock implementation of services.PriceServiceI
type MockPriceService struct {
	mock.Mock
}

func (m *MockPriceService) GetPriceHistory(ctx context.Context) (schemas.PriceHistory, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.PriceHistory), args.Error(1)
}

func (m *MockPriceService) GetSpotPrice(ctx context.Context, id string) (*schemas.SpotPrice, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.SpotPrice), args.Error(1)
}

func (m *MockPriceService) SyncPriceHistory(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var httpErr *utils.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected an HTTPError, got %v", err)
	return httpErr.Code
}

func TestSyncEntityErrorMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"entity not found", fmt.Errorf("%w: ghost", services.ErrEntityNotFound), http.StatusNotFound},
		{"invalid row", &services.RowValidationError{Dataset: "balance sheet", Index: 2, Err: utils.ErrInvalidDate}, http.StatusUnprocessableEntity},
		{"upstream transport", &treasuries.UpstreamError{Kind: treasuries.TransportFailure, Endpoint: "/bitcoin/entity/ghost", Status: 500}, http.StatusBadGateway},
		{"upstream shape", &treasuries.UpstreamError{Kind: treasuries.ShapeFailure, Endpoint: "/bitcoin/entity/ghost", Message: "missing data object"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entities := new(MockEntityService)
			entities.On("SyncEntityDetail", ctx, "ghost").Return(nil, tc.err)
			controller := NewController(nil, nil, nil, entities)

			_, err := controller.SyncEntity(ctx, "ghost")
			assert.Equal(t, tc.status, statusOf(t, err))
			assert.ErrorIs(t, err, tc.err)
			entities.AssertExpectations(t)
		})
	}
}

func TestAdminErrorMapping(t *testing.T) {
	ctx := context.Background()
	entities := new(MockEntityService)
	controller := NewController(nil, nil, nil, entities)

	input := schemas.EntityInput{Slug: "strategy"}
	entities.On("CreateEntity", ctx, input).Return(nil, fmt.Errorf("%w: strategy", services.ErrSlugTaken)).Once()
	_, err := controller.CreateEntity(ctx, input)
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	entities.On("ListAdminEntities", ctx, "PLANET").Return(nil, fmt.Errorf("%w: unknown entity type", services.ErrInvalidEntity))
	_, err = controller.GetAdminEntities(ctx, "PLANET")
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))

	entities.AssertExpectations(t)
}

func TestPriceErrorMapping(t *testing.T) {
	ctx := context.Background()
	prices := new(MockPriceService)
	controller := NewController(prices, nil, nil, nil)

	prices.On("GetSpotPrice", ctx, "doge").Return(nil, fmt.Errorf("%w: doge", services.ErrUnknownPriceID))
	_, err := controller.GetSpotPrice(ctx, "doge")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	prices.On("GetSpotPrice", ctx, "btc").Return(nil, repositories.ErrNotFound)
	_, err = controller.GetSpotPrice(ctx, "btc")
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	t.Run("store failures pass through", func(t *testing.T) {
		prices.On("GetPriceHistory", ctx).Return(nil, assert.AnError).Once()
		_, err := controller.GetPriceHistory(ctx)
		var httpErr *utils.HTTPError
		assert.False(t, errors.As(err, &httpErr))
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("deadline passes through", func(t *testing.T) {
		prices.On("GetPriceHistory", ctx).Return(nil, context.DeadlineExceeded).Once()
		_, err := controller.GetPriceHistory(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	prices.On("GetPriceHistory", ctx).Return(schemas.PriceHistory{{1000, 50000}}, nil).Once()
	history, err := controller.GetPriceHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
