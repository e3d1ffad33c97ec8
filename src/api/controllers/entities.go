package controllers

import (
	"context"

	"treasury/src/models"
	"treasury/src/schemas"
)

func (c *Controller) GetEntities(ctx context.Context) ([]models.Entity, error) {
	entities, err := c.Entities.ListEntities(ctx)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return entities, nil
}

func (c *Controller) GetEntityBalanceSheet(ctx context.Context, slug string) ([]schemas.BalanceSheetRow, error) {
	rows, err := c.Entities.GetBalanceSheet(ctx, slug)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return rows, nil
}

func (c *Controller) GetEntityTimeSeries(ctx context.Context, slug string) (schemas.EntityTimeSeries, error) {
	series, err := c.Entities.GetTimeSeries(ctx, slug)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return series, nil
}

func (c *Controller) GetAdminEntities(ctx context.Context, entityType string) ([]models.Entity, error) {
	entities, err := c.Entities.ListAdminEntities(ctx, entityType)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return entities, nil
}

func (c *Controller) CreateEntity(ctx context.Context, input schemas.EntityInput) (*models.Entity, error) {
	entity, err := c.Entities.CreateEntity(ctx, input)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return entity, nil
}

func (c *Controller) UpdateEntity(ctx context.Context, slug string, input schemas.EntityUpdate) (*models.Entity, error) {
	entity, err := c.Entities.UpdateEntity(ctx, slug, input)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return entity, nil
}

// SyncEntity runs the edit-triggered detail sync. Unlike read paths, upstream failures surface to the caller.
func (c *Controller) SyncEntity(ctx context.Context, slug string) (*models.Entity, error) {
	entity, err := c.Entities.SyncEntityDetail(ctx, slug)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return entity, nil
}
