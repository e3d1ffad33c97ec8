package controllers

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"treasury/src/models"
	"treasury/src/scheduler"
	"treasury/src/services"
)

type Controller struct {
	Warmup   services.WarmupServiceI
	Entities services.EntityServiceI
	Logger   *logrus.Logger

	schedulerMutex sync.Mutex
	warmupTask     *scheduler.ScheduledTask
}

func NewController(warmup services.WarmupServiceI, entities services.EntityServiceI, logger *logrus.Logger) *Controller {
	return &Controller{Warmup: warmup, Entities: entities, Logger: logger}
}

// StartWarmupSchedule registers the periodic warm-up. Calling it again replaces the previous schedule.
func (c *Controller) StartWarmupSchedule(cronSpec string) error {
	task, err := scheduler.NewScheduledTask(cronSpec, c.Logger, func(ctx context.Context) {
		_ = c.Warmup.Warmup(ctx)
	})
	if err != nil {
		return err
	}

	c.schedulerMutex.Lock()
	defer c.schedulerMutex.Unlock()
	if c.warmupTask != nil {
		c.warmupTask.Cancel()
	}
	c.warmupTask = task
	c.Logger.WithField("cron", cronSpec).Info("Warm-up scheduled")
	return nil
}

func (c *Controller) StopSchedules() {
	c.schedulerMutex.Lock()
	defer c.schedulerMutex.Unlock()
	if c.warmupTask != nil {
		c.warmupTask.Cancel()
		c.warmupTask = nil
	}
}

func (c *Controller) RunWarmup(ctx context.Context) error {
	return c.Warmup.Warmup(ctx)
}

func (c *Controller) SyncEntity(ctx context.Context, slug string) (*models.Entity, error) {
	return c.Entities.SyncEntityDetail(ctx, slug)
}
