package subsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Runner triggers a sync on a cron schedule and once when started.
type Runner struct {
	cron   *cron.Cron
	syncer *Syncer
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a Runner for a standard cron spec or descriptor such as "@hourly".
func NewRunner(syncer *Syncer, schedule string, log *slog.Logger) (*Runner, error) {
	r := &Runner{
		cron:   cron.New(),
		syncer: syncer,
		log:    log,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs an initial sync in the background and starts the schedule.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()
	r.cron.Start()
}

// Stop halts the schedule and waits for a running sync to finish.
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	r.wg.Wait()
}

func (r *Runner) run() {
	if _, err := r.syncer.UpdateExternalSubscriptions(r.ctx); err != nil {
		r.log.Error("subscription sync", "error", err)
	}
}
