package limiter

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper is a store that can drop idle records.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

// StartSweeper runs s.Sweep on the cron schedule (e.g. "@every 5m").
// Stop the returned cron to end it.
func StartSweeper(s Sweeper, schedule string, log *zap.Logger) (*cron.Cron, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := s.Sweep(ctx, time.Now())
		if err != nil {
			log.Warn("sweep failed", zap.Error(err))
			return
		}
		if n > 0 {
			log.Debug("swept idle records", zap.Int64("removed", n))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
