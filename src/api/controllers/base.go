package controllers

import (
	"context"
	"errors"
	"net/http"

	"treasury/src/clients/treasuries"
	"treasury/src/models"
	"treasury/src/repositories"
	"treasury/src/schemas"
	"treasury/src/services"
	"treasury/src/utils"
)

type IController interface {
	GetPriceHistory(ctx context.Context) (schemas.PriceHistory, error)
	GetSpotPrice(ctx context.Context, id string) (*schemas.SpotPrice, error)
	GetAggregateHoldings(ctx context.Context) ([]schemas.AggregatePoint, error)
	GetSummary(ctx context.Context) (*schemas.Summary, error)
	GetEntities(ctx context.Context) ([]models.Entity, error)
	GetEntityBalanceSheet(ctx context.Context, slug string) ([]schemas.BalanceSheetRow, error)
	GetEntityTimeSeries(ctx context.Context, slug string) (schemas.EntityTimeSeries, error)
	GetAdminEntities(ctx context.Context, entityType string) ([]models.Entity, error)
	CreateEntity(ctx context.Context, input schemas.EntityInput) (*models.Entity, error)
	UpdateEntity(ctx context.Context, slug string, input schemas.EntityUpdate) (*models.Entity, error)
	SyncEntity(ctx context.Context, slug string) (*models.Entity, error)
}

type Controller struct {
	Prices     services.PriceServiceI
	Aggregates services.AggregateServiceI
	Summary    services.SummaryServiceI
	Entities   services.EntityServiceI
}

func NewController(prices services.PriceServiceI, aggregates services.AggregateServiceI, summary services.SummaryServiceI, entities services.EntityServiceI) *Controller {
	return &Controller{Prices: prices, Aggregates: aggregates, Summary: summary, Entities: entities}
}

// toHTTPError attaches the response status to service errors. Unknown errors pass through and end up as 500.
func toHTTPError(err error) error {
	var rowErr *services.RowValidationError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, services.ErrEntityNotFound), errors.Is(err, services.ErrUnknownPriceID):
		return utils.WrapHTTPError(http.StatusNotFound, err)
	case errors.Is(err, repositories.ErrNotFound):
		return utils.WrapHTTPError(http.StatusNotFound, err)
	case errors.Is(err, services.ErrInvalidEntity):
		return utils.WrapHTTPError(http.StatusBadRequest, err)
	case errors.Is(err, services.ErrSlugTaken):
		return utils.WrapHTTPError(http.StatusConflict, err)
	case errors.As(err, &rowErr):
		return utils.WrapHTTPError(http.StatusUnprocessableEntity, err)
	case treasuries.IsUpstreamFailure(err):
		return utils.WrapHTTPError(http.StatusBadGateway, err)
	}
	return err
}
