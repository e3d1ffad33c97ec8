package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ScheduledTask runs a job on a cron schedule. A run still in progress makes the next tick a no-op.
type ScheduledTask struct {
	cronID cron.EntryID
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduledTask(cronSpec string, logger *logrus.Logger, taskFunc func(ctx context.Context)) (*ScheduledTask, error) {
	cronLogger := cron.PrintfLogger(logger)
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	ctx, cancel := context.WithCancel(context.Background())
	task := &ScheduledTask{cron: c, ctx: ctx, cancel: cancel}

	id, err := c.AddFunc(cronSpec, func() {
		if ctx.Err() != nil {
			return
		}
		taskFunc(ctx)
	})
	if err != nil {
		cancel()
		return nil, err
	}

	task.cronID = id
	c.Start()
	return task, nil
}

// Cancel stops future runs, cancels the running one and waits for it to return.
func (s *ScheduledTask) Cancel() {
	s.cron.Remove(s.cronID)
	s.cancel()
	<-s.cron.Stop().Done()
}
