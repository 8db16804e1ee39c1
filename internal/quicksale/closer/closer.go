// Package closer ends quick sales whose deadline has passed.
package closer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ktu-bizconnect/internal/logger"
)

type Finalizer interface {
	FinalizeExpired(ctx context.Context) (int, error)
	AutoFinalize(ctx context.Context, saleID string)
}

// DeadlineSource delivers deadline expirations, e.g. Redis keyspace notifications.
type DeadlineSource interface {
	SubscribeDeadlines(ctx context.Context, onExpired func(ctx context.Context, saleID string)) error
}

type Closer struct {
	Finalizer Finalizer
	Deadlines DeadlineSource // nil runs the sweeper alone
	Interval  time.Duration
	Logger    *logger.Logger
}

func New(f Finalizer, deadlines DeadlineSource, interval time.Duration, log *logger.Logger) *Closer {
	return &Closer{Finalizer: f, Deadlines: deadlines, Interval: interval, Logger: log}
}

// Run blocks until ctx is cancelled.
func (c *Closer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.RunSweeper(ctx) })
	if c.Deadlines != nil {
		g.Go(func() error {
			err := c.Deadlines.SubscribeDeadlines(ctx, c.Finalizer.AutoFinalize)
			if err != nil && !errors.Is(err, context.Canceled) {
				// the sweeper still closes sales, just later
				c.Logger.Error("CLOSER", fmt.Sprintf("Deadline listener stopped: %v", err))
			}
			return nil
		})
	}
	return g.Wait()
}

// RunSweeper finalizes expired sales once at start and then every Interval.
func (c *Closer) RunSweeper(ctx context.Context) error {
	c.Logger.Info("CLOSER", fmt.Sprintf("Sweeping expired quick sales every %s", c.Interval))

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		c.sweep(ctx)
		select {
		case <-ctx.Done():
			c.Logger.Info("CLOSER", "Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Closer) sweep(ctx context.Context) {
	closed, err := c.Finalizer.FinalizeExpired(ctx)
	if err != nil && ctx.Err() == nil {
		c.Logger.Error("CLOSER", fmt.Sprintf("Sweep failed: %v", err))
	}
	if closed > 0 {
		c.Logger.Info("CLOSER", fmt.Sprintf("Finalized %d expired quick sales", closed))
	}
}
