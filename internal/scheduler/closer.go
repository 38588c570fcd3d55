// Package scheduler runs the periodic job that closes expired auctions.
package scheduler

import (
	"auction-live/utils"
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Closer deactivates auctions whose end time has passed
type Closer interface {
	CloseExpired(ctx context.Context, now time.Time) (int, error)
}

// AuctionCloser drives a Closer on a fixed interval
type AuctionCloser struct {
	closer    Closer
	interval  time.Duration
	scheduler gocron.Scheduler
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAuctionCloser creates a closer that runs every interval once started
func NewAuctionCloser(closer Closer, interval time.Duration) (*AuctionCloser, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &AuctionCloser{
		closer:    closer,
		interval:  interval,
		scheduler: scheduler,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers the closing job and starts the scheduler
func (c *AuctionCloser) Start() error {
	_, err := c.scheduler.NewJob(
		gocron.DurationJob(c.interval),
		gocron.NewTask(
			func() {
				c.RunOnce(c.ctx)
			},
		),
		gocron.WithName("close_expired_auctions"),
		// a slow store must not pile up overlapping runs
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: failed to register closing job: %w", err)
	}

	c.scheduler.Start()
	utils.Info("auction closer started", map[string]any{"interval": c.interval.String()})
	return nil
}

// RunOnce closes everything that has expired by now
func (c *AuctionCloser) RunOnce(ctx context.Context) int {
	closed, err := c.closer.CloseExpired(ctx, c.now().UTC())
	if err != nil {
		utils.Error("closing expired auctions failed", map[string]any{"error": err.Error(), "closed": closed})
		return closed
	}
	if closed > 0 {
		utils.Info("expired auctions closed", map[string]any{"closed": closed})
	}
	return closed
}

// Stop cancels an in-flight run and shuts the scheduler down
func (c *AuctionCloser) Stop() error {
	c.cancel()
	return c.scheduler.Shutdown()
}
