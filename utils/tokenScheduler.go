package utils

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// TokenPruner removes approval link tokens that can no longer be redeemed.
type TokenPruner interface {
	PruneTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// logScheduler logs scheduler events with timestamp
func logScheduler(message string) {
	log.Printf("[TOKEN-SCHEDULER %s] %s", time.Now().Format(time.RFC3339), message)
}

func pruneApprovalTokens(p TokenPruner, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.PruneTokens(ctx, now)
	if err != nil {
		logScheduler("Error pruning approval tokens: " + err.Error())
		return
	}
	if n > 0 {
		logScheduler(fmt.Sprintf("Pruned %d expired or used approval tokens", n))
	}
}

// StartTokenPruneScheduler registers the pruning job on c.
func StartTokenPruneScheduler(c *cron.Cron, schedule string, p TokenPruner) error {
	if _, err := c.AddFunc(schedule, func() {
		pruneApprovalTokens(p, time.Now())
	}); err != nil {
		return fmt.Errorf("invalid token prune schedule %q: %w", schedule, err)
	}
	logScheduler("Approval token pruner started - schedule " + schedule)
	return nil
}

// InitializeSchedulers starts every background job. Stop the returned cron on shutdown.
func InitializeSchedulers(pruneSchedule string, p TokenPruner) (*cron.Cron, error) {
	logScheduler("Initializing schedulers...")

	c := cron.New()
	if err := StartTokenPruneScheduler(c, pruneSchedule, p); err != nil {
		return nil, err
	}
	c.Start()

	logScheduler("All schedulers initialized successfully")
	return c, nil
}
