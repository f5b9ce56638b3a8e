package lib

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const BidSweepJob = "bid-expiry-sweep"

var scheduler gocron.Scheduler

// GetScheduler returns the process scheduler, creating it with opts on first
// use. opts are ignored once the scheduler exists.
func GetScheduler(opts ...gocron.SchedulerOption) (gocron.Scheduler, error) {
	if scheduler != nil {
		return scheduler, nil
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		log.Printf("[scheduler] Error initializing Scheduler: %s\n", err.Error())
		return nil, err
	}
	scheduler = sched
	return sched, nil
}

type SweepFunc func(ctx context.Context) (int64, error)

// ScheduleBidSweep runs sweep every interval. A run that overlaps the previous
// one is skipped.
func ScheduleBidSweep(sched gocron.Scheduler, interval time.Duration, sweep SweepFunc) (gocron.Job, error) {
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := sweep(ctx); err != nil {
				log.Printf("[scheduler] Bid sweep failed: %s\n", err.Error())
			}
		}),
		gocron.WithName(BidSweepJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("[scheduler] Error creating job: %s\n", err.Error())
		return nil, err
	}
	log.Printf("[scheduler] Job %s %s every %s\n", j.ID().String(), j.Name(), interval)
	return j, nil
}
