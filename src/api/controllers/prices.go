package controllers

import (
	"context"

	"treasury/src/schemas"
)

func (c *Controller) GetPriceHistory(ctx context.Context) (schemas.PriceHistory, error) {
	history, err := c.Prices.GetPriceHistory(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return history, nil
}

func (c *Controller) GetSpotPrice(ctx context.Context, id string) (*schemas.SpotPrice, error) {
	price, err := c.Prices.GetSpotPrice(ctx, id)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return price, nil
}

func (c *Controller) GetAggregateHoldings(ctx context.Context) ([]schemas.AggregatePoint, error) {
	points, err := c.Aggregates.GetAggregateHoldings(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return points, nil
}

func (c *Controller) GetSummary(ctx context.Context) (*schemas.Summary, error) {
	summary, err := c.Summary.GetSummary(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return summary, nil
}
