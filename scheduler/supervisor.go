package scheduler

import (
	"context"
)

// TaskSupervisor запускает и останавливает все планировщики разом.
type TaskSupervisor struct {
	Schedulers []JobSchedulerInterface
	Crons      []*Cron
}

func NewTaskSupervisor(schedulers []JobSchedulerInterface, crons ...*Cron) *TaskSupervisor {
	return &TaskSupervisor{
		Schedulers: schedulers,
		Crons:      crons,
	}
}

func (c *TaskSupervisor) Start(ctx context.Context) {
	for _, scheduler := range c.Schedulers {
		scheduler.Start(ctx)()
	}
	for _, cr := range c.Crons {
		cr.Start()
	}
}

// Stop ждёт завершения уже запущенных cron-задач.
func (c *TaskSupervisor) Stop() {
	for _, cr := range c.Crons {
		<-cr.Stop().Done()
	}
	for _, scheduler := range c.Schedulers {
		scheduler.Stop()()
	}
}
